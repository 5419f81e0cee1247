// internal/manifest/definition.go
package manifest

import (
	"os"

	"gopkg.in/yaml.v3"

	"storeapp/pkg/apperr"
	"storeapp/pkg/config"
)

// Extension is a dashboard mount point declared by the app.
type Extension struct {
	Label       string   `json:"label" yaml:"label"`
	Mount       string   `json:"mount" yaml:"mount"`
	Target      string   `json:"target" yaml:"target"`
	Permissions []string `json:"permissions" yaml:"permissions"`
	URL         string   `json:"url" yaml:"url"`
}

// Definition is the static part of the manifest. URLs that depend on where the
// app is reached are filled in per request by BuildManifest.
type Definition struct {
	ID             string      `yaml:"id"`
	Name           string      `yaml:"name"`
	Version        string      `yaml:"version"`
	About          string      `yaml:"about"`
	Author         string      `yaml:"author"`
	HomepageURL    string      `yaml:"homepageUrl"`
	SupportURL     string      `yaml:"supportUrl"`
	DataPrivacyURL string      `yaml:"dataPrivacyUrl"`
	Permissions    []string    `yaml:"permissions"`
	Extensions     []Extension `yaml:"extensions"`
	// UniqueID appends a fresh uuid to id and name on every build, so a tenant
	// sees a new app on each install.
	UniqueID bool `yaml:"uniqueId"`
}

// DefinitionFromConfig builds the definition from env settings and, when
// MANIFEST_FILE is set, overlays the non-empty fields of that YAML file.
func DefinitionFromConfig(cfg config.Config) (Definition, error) {
	def := Definition{
		ID:          cfg.AppID,
		Name:        cfg.AppName,
		Version:     cfg.AppVersion,
		Author:      cfg.AppAuthor,
		Permissions: append([]string(nil), cfg.AppPermissions...),
		UniqueID:    cfg.AppIDUnique,
	}
	if cfg.ManifestFile == "" {
		return def, nil
	}
	b, err := os.ReadFile(cfg.ManifestFile)
	if err != nil {
		return def, apperr.Config("manifest: read "+cfg.ManifestFile+": "+err.Error(), nil)
	}
	var over Definition
	if err := yaml.Unmarshal(b, &over); err != nil {
		return def, apperr.Config("manifest: parse "+cfg.ManifestFile+": "+err.Error(), nil)
	}
	return def.merge(over), nil
}

func (d Definition) merge(o Definition) Definition {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&d.ID, o.ID)
	pick(&d.Name, o.Name)
	pick(&d.Version, o.Version)
	pick(&d.About, o.About)
	pick(&d.Author, o.Author)
	pick(&d.HomepageURL, o.HomepageURL)
	pick(&d.SupportURL, o.SupportURL)
	pick(&d.DataPrivacyURL, o.DataPrivacyURL)
	if len(o.Permissions) > 0 {
		d.Permissions = o.Permissions
	}
	if len(o.Extensions) > 0 {
		d.Extensions = o.Extensions
	}
	d.UniqueID = d.UniqueID || o.UniqueID
	return d
}

func (d Definition) validate() error {
	if d.ID == "" || d.Name == "" || d.Version == "" {
		return apperr.Config("manifest: id, name and version are required", nil)
	}
	return nil
}
