// internal/manifest/handler.go
package manifest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storeapp/pkg/problems"
)

func RegisterRoutes(r chi.Router, def Definition, decls []WebhookDecl, log *zap.SugaredLogger) {
	h := func(w http.ResponseWriter, req *http.Request) {
		base := BaseURLFromRequest(req)
		m, err := BuildManifest(base, def, decls)
		if err != nil {
			log.Warnw("manifest build failed", "base", base, "err", err)
			problems.Write(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m)
	}
	r.Get("/manifest", h)
	r.Get("/api/manifest", h)
}
