// Package webhooks authenticates inbound event deliveries against the stored
// tenant credentials and dispatches them to the subscription that declared the
// delivery path.
package webhooks

import (
	"context"
	"fmt"
	"strings"

	"storeapp/internal/manifest"
	"storeapp/pkg/apl"
)

// Event is what a handler receives once the delivery is authenticated.
type Event struct {
	Name         string
	Path         string
	TenantAPIURL string
	Payload      []byte
	AuthData     apl.AuthData
	BaseURL      string
}

type HandlerFunc func(ctx context.Context, ev Event) error

// Subscription is declared once and used twice: rendered into the manifest and
// used to route deliveries arriving at /webhooks/{Path}.
type Subscription struct {
	Name    string
	Event   string
	Path    string
	Query   string
	Handler HandlerFunc
}

type Registry struct {
	subs   []Subscription
	byPath map[string]Subscription
}

func NewRegistry(subs ...Subscription) (*Registry, error) {
	r := &Registry{byPath: map[string]Subscription{}}
	for _, s := range subs {
		s.Path = strings.Trim(s.Path, "/")
		switch {
		case s.Name == "" || s.Event == "" || s.Path == "":
			return nil, fmt.Errorf("webhooks: subscription %q needs name, event and path", s.Name)
		case strings.Contains(s.Path, "/"):
			return nil, fmt.Errorf("webhooks: path %q must be a single segment", s.Path)
		case s.Handler == nil:
			return nil, fmt.Errorf("webhooks: subscription %q has no handler", s.Name)
		}
		if _, dup := r.byPath[s.Path]; dup {
			return nil, fmt.Errorf("webhooks: duplicate path %q", s.Path)
		}
		r.byPath[s.Path] = s
		r.subs = append(r.subs, s)
	}
	return r, nil
}

func (r *Registry) Lookup(path string) (Subscription, bool) {
	s, ok := r.byPath[strings.Trim(path, "/")]
	return s, ok
}

// Declarations lists subscriptions in declaration order for the manifest.
func (r *Registry) Declarations() []manifest.WebhookDecl {
	out := make([]manifest.WebhookDecl, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, manifest.WebhookDecl{Name: s.Name, Event: s.Event, Path: s.Path, Query: s.Query})
	}
	return out
}
