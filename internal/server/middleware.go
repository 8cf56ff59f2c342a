package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/replypilot/replypilot/pkg/apikey"
	"github.com/replypilot/replypilot/pkg/jsonutil"
)

// timeNow is swapped in tests to pin signature timestamps.
var timeNow = time.Now

// requireAPIKey guards the admin routes with the configured admin key,
// presented as "Authorization: Bearer rp_...".
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if key == "" || !apikey.ValidateKeyFormat(key, "rp") {
			jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, "missing or malformed API key")
			return
		}
		if !apikey.Verify(key, s.cfg.APIKeySecret, s.cfg.AdminAPIKeyHash) {
			jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
