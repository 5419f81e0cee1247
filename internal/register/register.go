// Package register completes an installation: it verifies the token a tenant
// hands over and persists the tenant's credentials. A request either reaches
// ACKNOWLEDGED with exactly one store write, or REJECTED with none.
package register

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"storeapp/internal/policy"
	"storeapp/pkg/apl"
	"storeapp/pkg/apperr"
	"storeapp/pkg/platform"
)

type State string

const (
	Received     State = "RECEIVED"
	Validated    State = "VALIDATED"
	Persisted    State = "PERSISTED"
	Acknowledged State = "ACKNOWLEDGED"
	Rejected     State = "REJECTED"
)

var registrations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storeapp_registrations_total",
	Help: "Registration attempts by final state and rejection code.",
}, []string{"state", "code"})

// Verifier confirms a token with the tenant that supposedly issued it.
type Verifier interface {
	FetchAppID(ctx context.Context, tenantAPIURL, token string) (string, error)
	FetchJWKS(ctx context.Context, tenantAPIURL string) (string, error)
}

type Request struct {
	AuthToken    string
	TenantAPIURL string
	Domain       string
}

type Registrar struct {
	store  apl.APL
	verify Verifier
	admit  *policy.Admission
	log    *zap.SugaredLogger
}

// NewRegistrar wires the handler. admit may be nil to admit every tenant.
func NewRegistrar(store apl.APL, verify Verifier, admit *policy.Admission, log *zap.SugaredLogger) *Registrar {
	return &Registrar{store: store, verify: verify, admit: admit, log: log}
}

// Register runs the handshake for one request.
func (r *Registrar) Register(ctx context.Context, req Request) (apl.AuthData, error) {
	tenant := strings.TrimSpace(req.TenantAPIURL)
	log := r.log.With("tenant", tenant)
	log.Debugw("registration", "state", Received)

	data, err := r.validate(ctx, req)
	if err != nil {
		return apl.AuthData{}, r.reject(log, err)
	}
	log.Debugw("registration", "state", Validated, "app_id", data.AppID)

	if err := r.store.Set(ctx, data); err != nil {
		return apl.AuthData{}, r.reject(log, err)
	}
	log.Debugw("registration", "state", Persisted)

	registrations.WithLabelValues(string(Acknowledged), "").Inc()
	log.Infow("app registered", "state", Acknowledged, "app_id", data.AppID, "domain", data.Domain)
	return data, nil
}

func (r *Registrar) validate(ctx context.Context, req Request) (apl.AuthData, error) {
	token := strings.TrimSpace(req.AuthToken)
	if token == "" {
		return apl.AuthData{}, apperr.Validation("auth_token is required", nil)
	}
	tenant := strings.TrimSpace(req.TenantAPIURL)
	if _, err := platform.ParseTenantURL(tenant); err != nil {
		return apl.AuthData{}, err
	}

	dec, err := r.admit.Evaluate(ctx, policy.Input{TenantAPIURL: tenant, Domain: req.Domain})
	if err != nil {
		return apl.AuthData{}, err
	}
	if !dec.Allowed() {
		return apl.AuthData{}, apperr.Forbidden("tenant is not allowed to install this app",
			map[string]any{"tenant": tenant, "reasons": dec.Reasons})
	}

	appID, err := r.verify.FetchAppID(ctx, tenant, token)
	if err != nil {
		return apl.AuthData{}, err
	}
	jwks, err := r.verify.FetchJWKS(ctx, tenant)
	if err != nil {
		return apl.AuthData{}, err
	}
	return apl.AuthData{
		TenantAPIURL: tenant,
		Token:        token,
		AppID:        appID,
		JWKS:         jwks,
		Domain:       strings.TrimSpace(req.Domain),
	}, nil
}

func (r *Registrar) reject(log *zap.SugaredLogger, err error) error {
	code := apperr.TextCode(err)
	registrations.WithLabelValues(string(Rejected), code).Inc()
	if apperr.Status(err) >= 500 {
		log.Errorw("registration failed", "state", Rejected, "code", code, "err", err)
	} else {
		log.Warnw("registration rejected", "state", Rejected, "code", code, "err", err)
	}
	return err
}
