package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"storeapp/internal/manifest"
	"storeapp/pkg/apl"
	"storeapp/pkg/apperr"
	"storeapp/pkg/platform"
	"storeapp/pkg/problems"
)

const maxBody = 1 << 20

// DefaultRefetchInterval bounds how often a tenant's JWKS is fetched again
// after a signature fails against the stored keys.
const DefaultRefetchInterval = time.Minute

var deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storeapp_webhook_deliveries_total",
	Help: "Webhook deliveries by subscription path and outcome.",
}, []string{"path", "outcome"})

// KeyFetcher retrieves a tenant's current signing keys as a JSON JWK set.
type KeyFetcher interface {
	FetchJWKS(ctx context.Context, tenantAPIURL string) (string, error)
}

type Gateway struct {
	store apl.APL
	reg   *Registry
	keys  KeyFetcher
	log   *zap.SugaredLogger

	refetchEvery time.Duration
	now          func() time.Time
	mu           sync.Mutex
	lastFetch    map[string]time.Time
}

func NewGateway(store apl.APL, reg *Registry, keys KeyFetcher, log *zap.SugaredLogger) *Gateway {
	return &Gateway{
		store:        store,
		reg:          reg,
		keys:         keys,
		log:          log,
		refetchEvery: DefaultRefetchInterval,
		now:          time.Now,
		lastFetch:    map[string]time.Time{},
	}
}

// RegisterRoutes mounts POST /webhooks/{path}; /api/webhooks/{path} is kept
// for subscriptions registered by older manifests.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{path}", g.ServeHTTP)
	r.Post("/api/webhooks/{path}", g.ServeHTTP)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")
	sub, ok := g.reg.Lookup(path)
	if !ok {
		deliveries.WithLabelValues("unknown", "not_found").Inc()
		problems.Write(w, apperr.NotFound("no subscription for this path", map[string]any{"path": path}))
		return
	}

	ev, err := g.authenticate(r, sub)
	if err != nil {
		deliveries.WithLabelValues(sub.Path, outcome(err)).Inc()
		g.log.Warnw("webhook rejected", "path", sub.Path, "tenant", r.Header.Get(platform.HeaderAPIURL), "status", apperr.Status(err), "err", err)
		problems.Write(w, err)
		return
	}

	if err := sub.Handler(r.Context(), ev); err != nil {
		// classified client errors are final; the tenant must not retry them
		if apperr.Status(err) < http.StatusInternalServerError {
			deliveries.WithLabelValues(sub.Path, "handler_rejected").Inc()
			g.log.Warnw("webhook payload rejected", "path", sub.Path, "tenant", ev.TenantAPIURL, "err", err)
			problems.Write(w, err)
			return
		}
		deliveries.WithLabelValues(sub.Path, "handler_error").Inc()
		g.log.Errorw("webhook handler failed", "path", sub.Path, "tenant", ev.TenantAPIURL, "err", err)
		problems.Write(w, apperr.Internal(err, "webhook handler failed"))
		return
	}
	deliveries.WithLabelValues(sub.Path, "accepted").Inc()
	g.log.Infow("webhook accepted", "path", sub.Path, "event", sub.Event, "tenant", ev.TenantAPIURL)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Accepted")
}

// authenticate runs every check that must pass before a handler sees the
// delivery. No handler runs for a tenant without stored credentials.
func (g *Gateway) authenticate(r *http.Request, sub Subscription) (Event, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Event{}, apperr.Validation("payload exceeds 1 MiB", nil)
		}
		return Event{}, apperr.Validation("could not read payload", nil)
	}

	tenant := strings.TrimSpace(r.Header.Get(platform.HeaderAPIURL))
	if tenant == "" {
		return Event{}, apperr.Validation("missing "+platform.HeaderAPIURL+" header", nil)
	}
	if got := r.Header.Get(platform.HeaderEvent); got != "" && !strings.EqualFold(got, sub.Event) {
		return Event{}, apperr.Validation("event "+got+" does not match subscription "+sub.Event, nil)
	}

	ctx := r.Context()
	data, err := g.store.Get(ctx, tenant)
	if err != nil {
		return Event{}, err
	}
	if data == nil {
		return Event{}, apperr.Auth("tenant is not registered", map[string]any{"tenant": tenant})
	}

	sig := strings.TrimSpace(r.Header.Get(platform.HeaderSignature))
	if sig == "" {
		return Event{}, apperr.Auth("missing "+platform.HeaderSignature+" header", nil)
	}
	if err := g.verify(ctx, data, sig, body); err != nil {
		return Event{}, err
	}

	return Event{
		Name:         sub.Event,
		Path:         sub.Path,
		TenantAPIURL: data.TenantAPIURL,
		Payload:      body,
		AuthData:     *data,
		BaseURL:      manifest.BaseURLFromRequest(r),
	}, nil
}

func (g *Gateway) verify(ctx context.Context, data *apl.AuthData, sig string, body []byte) error {
	if !isDetachedJWS(sig) {
		if err := verifyHMAC(sig, body, data.Token); err != nil {
			return apperr.WrapAuth(err, "invalid signature", nil)
		}
		return nil
	}

	stored := verifyJWS(sig, body, data.JWKS)
	if stored == nil {
		return nil
	}
	if g.keys == nil || !g.mayRefetch(data, sig) {
		return apperr.WrapAuth(stored, "invalid signature", nil)
	}

	// the tenant may have rotated its keys since registration
	fresh, err := g.keys.FetchJWKS(ctx, data.TenantAPIURL)
	if err != nil {
		g.log.Warnw("jwks refresh failed", "tenant", data.TenantAPIURL, "err", err)
		return apperr.WrapAuth(stored, "invalid signature", nil)
	}
	if fresh == data.JWKS {
		return apperr.WrapAuth(stored, "invalid signature", nil)
	}
	if err := verifyJWS(sig, body, fresh); err != nil {
		return apperr.WrapAuth(err, "invalid signature", nil)
	}
	// the record may have been deleted or re-registered while fetching
	written, err := apl.UpdateJWKS(ctx, g.store, data.TenantAPIURL, data.Token, fresh)
	switch {
	case err != nil:
		g.log.Warnw("storing rotated jwks failed", "tenant", data.TenantAPIURL, "err", err)
	case !written:
		g.log.Infow("tenant record changed during key refresh, rotated jwks not stored", "tenant", data.TenantAPIURL)
	default:
		g.log.Infow("tenant signing keys rotated", "tenant", data.TenantAPIURL)
	}
	data.JWKS = fresh
	return nil
}

// mayRefetch allows a JWKS fetch only for a key id the stored set does not
// know, and at most once per refetchEvery per tenant.
func (g *Gateway) mayRefetch(data *apl.AuthData, sig string) bool {
	if kid := jwsKeyID(sig); kid != "" && hasKeyID(data.JWKS, kid) {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.lastFetch[data.TenantAPIURL]; ok && now.Sub(last) < g.refetchEvery {
		g.log.Debugw("jwks refresh skipped, fetched recently", "tenant", data.TenantAPIURL)
		return false
	}
	g.lastFetch[data.TenantAPIURL] = now
	return true
}

func outcome(err error) string {
	switch apperr.Status(err) {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	default:
		return "error"
	}
}
