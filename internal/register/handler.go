package register

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storeapp/pkg/apperr"
	"storeapp/pkg/platform"
	"storeapp/pkg/problems"
)

type body struct {
	AuthToken      string `json:"auth_token"`
	AuthTokenCamel string `json:"authToken"`
	TenantAPIURL   string `json:"tenantApiUrl"`
	SaleorAPIURL   string `json:"saleorApiUrl"`
}

// RegisterRoutes mounts the handshake endpoint under every path a tenant may
// have been told about.
func (r *Registrar) RegisterRoutes(router chi.Router) {
	router.Post("/register", r.ServeHTTP)
	router.Post("/register-callback", r.ServeHTTP)
	router.Post("/api/register", r.ServeHTTP)
}

func (r *Registrar) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var b body
	if err := json.NewDecoder(io.LimitReader(req.Body, 64<<10)).Decode(&b); err != nil {
		problems.Write(w, r.reject(r.log, apperr.Validation("request body must be a JSON object", nil)))
		return
	}

	in := Request{
		AuthToken:    firstNonEmpty(b.AuthToken, b.AuthTokenCamel),
		TenantAPIURL: firstNonEmpty(b.TenantAPIURL, b.SaleorAPIURL, req.Header.Get(platform.HeaderAPIURL)),
		Domain:       req.Header.Get(platform.HeaderDomain),
	}
	if _, err := r.Register(req.Context(), in); err != nil {
		problems.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
