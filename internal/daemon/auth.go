package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"memalerts/internal/logging"
)

const bearerScheme = "bearer"

// requireToken guards next with the configured API token. With no token
// configured every request passes; /api/health is never wrapped.
func (s *apiServer) requireToken(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	want := []byte(s.token)
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(presented), want) != 1 {
			logging.WithContext(r.Context(), s.log()).Debug("api request rejected",
				logging.String("path", r.URL.Path),
				logging.Bool("token_present", ok),
				logging.EventType("api_unauthorized"),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="memalerts"`)
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// bearerToken extracts the credential from an Authorization header. The
// scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, credential, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	credential = strings.TrimSpace(credential)
	return credential, credential != ""
}
