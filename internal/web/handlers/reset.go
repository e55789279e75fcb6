package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/shindakun/resetpassword/internal/auth"
	"github.com/shindakun/resetpassword/internal/identity"
	"github.com/shindakun/resetpassword/internal/models"
	"github.com/shindakun/resetpassword/internal/reset"
	"github.com/shindakun/resetpassword/internal/storage"
	"go.uber.org/zap"
)

// ResetPasswordForm runs the session guard and renders the form
func (h *Handlers) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	h.serveResetPage(w, r, false)
}

// ResetPassword handles a form submission
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("failed to parse reset form", zap.Error(err))
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.serveResetPage(w, r, true)
}

func (h *Handlers) serveResetPage(w http.ResponseWriter, r *http.Request, submit bool) {
	ident := &requestIdentity{h: h, w: w, r: r}
	browser := &browserRedirect{}

	var email string
	page := reset.New(ident, browser,
		reset.WithScheduler(browser),
		reset.WithLogger(h.logger),
		reset.WithMinLength(h.cfg.Reset.MinPasswordLength),
		reset.WithRedirectDelay(h.cfg.Reset.RedirectDelay),
		reset.WithLoginPath(h.loginPath()),
		reset.WithInFlight(h.inflight),
		reset.WithHooks(reset.Hooks{
			SessionChecked: h.recorder.SessionChecked,
			Submitted: func(outcome models.ResetOutcome, message string) {
				h.recorder.Submitted(outcome)
				h.recordEvent(r, email, outcome, message)
			},
		}),
	)
	defer page.Close()

	if page.Mount(r.Context()) != reset.StateReady {
		http.Redirect(w, r, page.View().RedirectTo, http.StatusSeeOther)
		return
	}
	email = page.View().Email

	status := http.StatusOK
	if submit {
		page.SetPassword(r.PostFormValue("password"))
		page.SetConfirmPassword(r.PostFormValue("confirm_password"))
		switch err := page.Submit(r.Context()); {
		case errors.Is(err, reset.ErrSubmitInProgress):
			status = http.StatusConflict
		case err != nil:
			status = http.StatusUnprocessableEntity
		}
	}

	view := page.View()
	data := TemplateData{
		Title:        "Redefinir Senha",
		View:         view,
		MessageClass: messageClass(view.Form.Kind),
		MinLength:    h.cfg.Reset.MinPasswordLength,
		LastReset:    h.lastReset(r.Context(), view.Email),
	}

	if browser.scheduled && view.RedirectTo != "" {
		data.RefreshURL = view.RedirectTo
		data.RefreshSeconds = int(math.Ceil(view.RedirectAfter.Seconds()))
		w.Header().Set("Refresh", fmt.Sprintf("%d; url=%s", data.RefreshSeconds, data.RefreshURL))
	}

	if err := h.renderTemplate(w, r, status, "reset_password", data); err != nil {
		h.logger.Error("error rendering reset password template", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// recordEvent writes the audit record of a submission; failures are only logged
func (h *Handlers) recordEvent(r *http.Request, email string, outcome models.ResetOutcome, message string) {
	if h.db == nil || email == "" {
		return
	}

	event := &models.ResetEvent{
		Email:      email,
		Outcome:    outcome,
		Message:    message,
		RemoteAddr: r.RemoteAddr,
	}
	if err := storage.RecordResetEvent(r.Context(), h.db, event); err != nil {
		h.logger.Error("failed to record reset event", zap.String("email", email), zap.Error(err))
	}
}

// lastReset returns the time of the most recent successful reset of email
func (h *Handlers) lastReset(ctx context.Context, email string) *time.Time {
	if h.db == nil || email == "" {
		return nil
	}

	event, err := storage.LastSuccessfulReset(ctx, h.db, email)
	if err != nil {
		h.logger.Warn("failed to look up last reset", zap.String("email", email), zap.Error(err))
		return nil
	}
	if event == nil {
		return nil
	}
	return &event.CreatedAt
}

func messageClass(kind reset.MessageKind) string {
	switch kind {
	case reset.MessageSuccess:
		return "success"
	case reset.MessageError:
		return "error"
	default:
		return ""
	}
}

// requestIdentity binds the page's identity calls to one HTTP request
type requestIdentity struct {
	h       *Handlers
	w       http.ResponseWriter
	r       *http.Request
	session *models.Session
}

func (ri *requestIdentity) GetSession(ctx context.Context) (*models.Session, error) {
	session, err := ri.h.sessionManager.GetSession(ri.w, ri.r)
	if isNoSession(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ri.session = session
	return session, nil
}

func (ri *requestIdentity) UpdatePassword(ctx context.Context, password string) error {
	if ri.session == nil {
		return auth.ErrNoSession
	}

	start := time.Now()
	_, err := ri.h.updater.UpdateUser(ctx, ri.session.AccessToken, identity.UserAttributes{Password: password})
	ri.h.recorder.ObserveProviderCall("update_user", err, time.Since(start).Seconds())
	return err
}

// browserRedirect hands navigation to the browser. Immediate navigation
// becomes a 303; a scheduled one becomes a Refresh header, so the timer runs
// client side and leaving the page cancels it.
type browserRedirect struct {
	scheduled bool
}

func (b *browserRedirect) Navigate(string) {}

func (b *browserRedirect) AfterFunc(time.Duration, func()) func() bool {
	b.scheduled = true
	return func() bool {
		stopped := b.scheduled
		b.scheduled = false
		return stopped
	}
}
