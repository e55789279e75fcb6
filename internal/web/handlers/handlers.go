package handlers

import (
	"context"
	"database/sql"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/shindakun/resetpassword/internal/auth"
	"github.com/shindakun/resetpassword/internal/config"
	"github.com/shindakun/resetpassword/internal/identity"
	"github.com/shindakun/resetpassword/internal/metrics"
	"github.com/shindakun/resetpassword/internal/reset"
	"go.uber.org/zap"
)

// PasswordUpdater is the provider call behind the reset form
type PasswordUpdater interface {
	UpdateUser(ctx context.Context, accessToken string, attrs identity.UserAttributes) (*identity.User, error)
}

// Handlers holds dependencies for HTTP handlers
type Handlers struct {
	cfg            *config.Config
	db             *sql.DB // nil when the audit trail is disabled
	sessionManager *auth.SessionManager
	flows          *auth.FlowManager
	updater        PasswordUpdater
	recorder       *metrics.Recorder
	inflight       *reset.InFlight
	logger         *zap.Logger
	templates      map[string]*template.Template
	static         fs.FS
}

// New creates a new Handlers instance
func New(cfg *config.Config, db *sql.DB, sessionManager *auth.SessionManager, flows *auth.FlowManager, updater PasswordUpdater, recorder *metrics.Recorder, logger *zap.Logger) (*Handlers, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	static, err := staticFS()
	if err != nil {
		return nil, err
	}

	return &Handlers{
		cfg:            cfg,
		db:             db,
		sessionManager: sessionManager,
		flows:          flows,
		updater:        updater,
		recorder:       recorder,
		inflight:       reset.NewInFlight(),
		logger:         logger,
		templates:      templates,
		static:         static,
	}, nil
}

// Landing sends the visitor to the reset form when signed in, otherwise to the login page
func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionManager.GetSession(w, r)
	if err == nil && session.HasEmail() {
		http.Redirect(w, r, "/reset-password", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, h.loginPath(), http.StatusSeeOther)
}

// LoginForm renders the sign-in page
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := TemplateData{Title: "Entrar"}
	if r.URL.Query().Get("signed_out") == "1" {
		data.Message = "Você saiu da sua conta."
	}

	if err := h.renderTemplate(w, r, http.StatusOK, "login", data); err != nil {
		h.logger.Error("error rendering login template", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Login signs the user in with e-mail and password
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("failed to parse login form", zap.Error(err))
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	if email == "" || password == "" {
		h.renderLoginError(w, r, email, "Informe e-mail e senha.")
		return
	}

	if err := h.flows.SignIn(w, r, email, password); err != nil {
		h.logger.Info("sign-in rejected", zap.String("email", email), zap.Error(err))

		message := "Não foi possível entrar. Tente novamente."
		if apiErr, ok := identity.AsAPIError(err); ok && apiErr.IsUnauthorized() {
			message = "E-mail ou senha inválidos."
		}
		h.renderLoginError(w, r, email, message)
		return
	}

	http.Redirect(w, r, "/reset-password", http.StatusSeeOther)
}

// ConfirmRecovery exchanges the token of a recovery e-mail link for a session
func (h *Handlers) ConfirmRecovery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if err := h.flows.ConfirmRecovery(w, r, query.Get("token_hash"), query.Get("type")); err != nil {
		h.logger.Info("recovery link rejected", zap.Error(err))
		h.renderLoginError(w, r, "", "Link de recuperação inválido ou expirado.")
		return
	}

	http.Redirect(w, r, "/reset-password", http.StatusSeeOther)
}

// Logout ends the provider session and clears the cookie
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.flows.SignOut(w, r); err != nil {
		h.logger.Warn("sign-out was not confirmed by the provider", zap.Error(err))
	}

	http.Redirect(w, r, h.loginPath()+"?signed_out=1", http.StatusSeeOther)
}

// Healthz reports liveness
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.logger.Error("audit database unavailable", zap.Error(err))
			http.Error(w, "audit database unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// ServeStatic serves the embedded static files
func (h *Handlers) ServeStatic(w http.ResponseWriter, r *http.Request) {
	// Prevent directory listing
	if strings.HasSuffix(r.URL.Path, "/") {
		http.NotFound(w, r)
		return
	}

	http.StripPrefix("/static/", http.FileServer(http.FS(h.static))).ServeHTTP(w, r)
}

// NotFound renders the 404 error page
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	data := TemplateData{Title: "Página não encontrada"}
	if err := h.renderTemplate(w, r, http.StatusNotFound, "not_found", data); err != nil {
		h.logger.Error("error rendering 404 template", zap.Error(err))
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

func (h *Handlers) renderLoginError(w http.ResponseWriter, r *http.Request, email, message string) {
	data := TemplateData{
		Title: "Entrar",
		Error: message,
		Email: email,
	}
	if err := h.renderTemplate(w, r, http.StatusUnauthorized, "login", data); err != nil {
		h.logger.Error("error rendering login template", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handlers) loginPath() string {
	return h.cfg.Reset.LoginPath
}

// isNoSession reports whether err only means the visitor is not signed in,
// including a session that expired and could not be refreshed
func isNoSession(err error) bool {
	return errors.Is(err, auth.ErrNoSession) || errors.Is(err, auth.ErrSessionExpired)
}
