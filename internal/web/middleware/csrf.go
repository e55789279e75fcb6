package middleware

import (
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRFProtection creates a CSRF protection middleware using gorilla/csrf.
// When secure is false the requests are marked as plaintext so the origin
// checks work on a local http:// deployment.
func CSRFProtection(secret []byte, secure bool, fieldName string) func(http.Handler) http.Handler {
	csrfMiddleware := csrf.Protect(
		secret,
		csrf.Secure(secure),
		csrf.FieldName(fieldName),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.Path("/"),
		csrf.ErrorHandler(http.HandlerFunc(CSRFFailureHandler)),
	)

	return func(next http.Handler) http.Handler {
		protected := csrfMiddleware(next)
		if secure {
			return protected
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

// CSRFFailureHandler answers requests whose CSRF token is missing or invalid
func CSRFFailureHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Token de segurança inválido. Recarregue a página e tente novamente.", http.StatusForbidden)
}
