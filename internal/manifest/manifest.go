// internal/manifest/manifest.go
package manifest

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"storeapp/pkg/apperr"
)

// Webhook is one subscription as the tenant registers it.
type Webhook struct {
	Name        string   `json:"name"`
	AsyncEvents []string `json:"asyncEvents"`
	Query       string   `json:"query"`
	TargetURL   string   `json:"targetUrl"`
	IsActive    bool     `json:"isActive"`
}

// WebhookDecl is the base-independent declaration of a subscription; Path is
// relative to /webhooks/.
type WebhookDecl struct {
	Name  string
	Event string
	Path  string
	Query string
}

type Manifest struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	About          string      `json:"about,omitempty"`
	Author         string      `json:"author,omitempty"`
	HomepageURL    string      `json:"homepageUrl,omitempty"`
	SupportURL     string      `json:"supportUrl,omitempty"`
	DataPrivacyURL string      `json:"dataPrivacyUrl,omitempty"`
	TokenTargetURL string      `json:"tokenTargetUrl"`
	AppURL         string      `json:"appUrl"`
	Permissions    []string    `json:"permissions"`
	Webhooks       []Webhook   `json:"webhooks"`
	Extensions     []Extension `json:"extensions"`
}

// NormalizeBaseURL checks that base is an absolute http(s) URL with a host and
// no query or fragment, and trims trailing slashes.
func NormalizeBaseURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.RawQuery != "" || u.Fragment != "" {
		return "", apperr.Validation("app base url must be an absolute http(s) url without query", map[string]any{"base": base})
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BuildManifest renders the manifest for the given base URL. It holds no state;
// two calls with the same inputs give the same result unless UniqueID is set.
func BuildManifest(appBaseURL string, def Definition, decls []WebhookDecl) (Manifest, error) {
	base, err := NormalizeBaseURL(appBaseURL)
	if err != nil {
		return Manifest{}, err
	}
	if err := def.validate(); err != nil {
		return Manifest{}, err
	}

	id, name := def.ID, def.Name
	if def.UniqueID {
		suffix := uuid.NewString()
		id = id + ":" + suffix
		name = name + " - " + suffix
	}

	hooks := make([]Webhook, 0, len(decls))
	for _, d := range decls {
		hooks = append(hooks, Webhook{
			Name:        d.Name,
			AsyncEvents: []string{d.Event},
			Query:       d.Query,
			TargetURL:   base + "/webhooks/" + strings.TrimLeft(d.Path, "/"),
			IsActive:    true,
		})
	}
	perms := def.Permissions
	if perms == nil {
		perms = []string{}
	}
	exts := def.Extensions
	if exts == nil {
		exts = []Extension{}
	}

	return Manifest{
		ID:             id,
		Name:           name,
		Version:        def.Version,
		About:          def.About,
		Author:         def.Author,
		HomepageURL:    def.HomepageURL,
		SupportURL:     def.SupportURL,
		DataPrivacyURL: def.DataPrivacyURL,
		TokenTargetURL: base + "/register-callback",
		AppURL:         base + "/app",
		Permissions:    perms,
		Webhooks:       hooks,
		Extensions:     exts,
	}, nil
}

// BaseURLFromRequest derives the public base URL, honouring the usual reverse
// proxy headers.
func BaseURLFromRequest(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	return scheme + "://" + host
}
