package middleware

import (
	"net/http"

	"github.com/shindakun/resetpassword/internal/auth"
)

// RedirectIfAuthenticated sends visitors who already hold a session to target.
// Used on the login page so a signed-in user lands on the reset form.
func RedirectIfAuthenticated(sessionManager *auth.SessionManager, target string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sessionManager.GetSession(w, r)
			if err == nil && session.HasEmail() {
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
