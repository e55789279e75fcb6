// Package reset holds the password reset page: a session guard, the reset
// form with local validation, and the feedback/redirect that follows the
// provider's answer. It has no knowledge of HTTP; the web layer drives it
// through Mount, the setters and Submit, and renders View.
package reset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shindakun/resetpassword/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultRedirectDelay = 2 * time.Second
	DefaultLoginPath     = "/login"
)

// State is the page's view state
type State int

const (
	// StateLoading is the state before the session guard has answered
	StateLoading State = iota
	// StateRedirecting means there is no usable session; nothing is rendered
	StateRedirecting
	// StateReady means the form can be shown for View.Email
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRedirecting:
		return "redirecting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MessageKind tells the renderer how to style FormState.Message
type MessageKind int

const (
	MessageNone MessageKind = iota
	MessageSuccess
	MessageError
)

// SessionResult is the outcome of the session guard
type SessionResult string

const (
	SessionReady     SessionResult = "ready"
	SessionNone      SessionResult = "no_session"
	SessionLookupErr SessionResult = "error"
)

// FormState is the mutable state of the reset form
type FormState struct {
	Password        string
	ConfirmPassword string
	Loading         bool
	Message         string
	Kind            MessageKind
}

// View is a snapshot of the page for rendering
type View struct {
	State State
	Email string
	Form  FormState
	// RedirectTo and RedirectAfter describe the navigation the page has
	// requested, immediate for the guard and delayed after a successful update.
	RedirectTo    string
	RedirectAfter time.Duration
}

// SubmitDisabled reports whether the submit control must be disabled
func (v View) SubmitDisabled() bool {
	return v.Form.Loading
}

// Identity is the page's view of the identity provider
type Identity interface {
	// GetSession returns the current session, or nil when there is none
	GetSession(ctx context.Context) (*models.Session, error)
	// UpdatePassword replaces the signed-in user's password
	UpdatePassword(ctx context.Context, password string) error
}

// ProviderError is implemented by errors carrying the provider's own message.
// An empty message selects the generic fallback text.
type ProviderError interface {
	error
	ProviderMessage() string
}

// Hooks observe page events; nil fields are skipped
type Hooks struct {
	SessionChecked func(result SessionResult)
	Submitted      func(outcome models.ResetOutcome, message string)
}

// Option configures a Page
type Option func(*Page)

// WithScheduler replaces the timer used for the post-success redirect
func WithScheduler(s Scheduler) Option {
	return func(p *Page) { p.sched = s }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Page) { p.logger = l }
}

// WithMinLength sets the minimum password length
func WithMinLength(n int) Option {
	return func(p *Page) { p.minLength = n }
}

// WithRedirectDelay sets the delay between a successful update and the redirect
func WithRedirectDelay(d time.Duration) Option {
	return func(p *Page) { p.redirectDelay = d }
}

// WithLoginPath sets the login route
func WithLoginPath(path string) Option {
	return func(p *Page) { p.loginPath = path }
}

// WithMessages replaces the message catalogue
func WithMessages(m Messages) Option {
	return func(p *Page) { p.messages = m }
}

// WithInFlight shares a registry of in-progress updates with other pages, so
// a user's concurrent submissions reach the provider only once
func WithInFlight(f *InFlight) Option {
	return func(p *Page) { p.inflight = f }
}

// WithHooks installs event observers
func WithHooks(h Hooks) Option {
	return func(p *Page) { p.hooks = h }
}

// Page is one mounted instance of the reset page
type Page struct {
	identity      Identity
	nav           Navigator
	sched         Scheduler
	logger        *zap.Logger
	minLength     int
	redirectDelay time.Duration
	loginPath     string
	messages      Messages
	hooks         Hooks
	inflight      *InFlight

	mu            sync.Mutex
	state         State
	email         string
	userKey       string
	form          FormState
	redirectTo    string
	redirectAfter time.Duration
	stopRedirect  func() bool
	closed        bool
}

// New creates a page in StateLoading
func New(identity Identity, nav Navigator, opts ...Option) *Page {
	p := &Page{
		identity:      identity,
		nav:           nav,
		sched:         TimerScheduler{},
		logger:        zap.NewNop(),
		minLength:     DefaultMinLength,
		redirectDelay: DefaultRedirectDelay,
		loginPath:     DefaultLoginPath,
		messages:      PortugueseMessages,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mount runs the session guard once. Without a session with an e-mail, or on
// any failure to read it, the page navigates to the login route.
func (p *Page) Mount(ctx context.Context) State {
	p.mu.Lock()
	if p.state != StateLoading {
		state := p.state
		p.mu.Unlock()
		return state
	}
	p.mu.Unlock()

	session, err := p.identity.GetSession(ctx)
	switch {
	case err != nil:
		// Any failure counts as "not authenticated", including transient ones
		p.logger.Warn("session retrieval failed, redirecting to login",
			zap.Error(&SessionRetrievalError{Err: err}))
		p.observeSession(SessionLookupErr)
		p.redirectNow()
		return StateRedirecting
	case !session.HasEmail():
		p.observeSession(SessionNone)
		p.redirectNow()
		return StateRedirecting
	}

	p.mu.Lock()
	p.state = StateReady
	p.email = session.Email
	p.userKey = session.UserID
	if p.userKey == "" {
		p.userKey = session.Email
	}
	p.mu.Unlock()

	p.observeSession(SessionReady)
	return StateReady
}

// SetPassword updates the password field
func (p *Page) SetPassword(password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.form.Password = password
}

// SetConfirmPassword updates the confirmation field
func (p *Page) SetConfirmPassword(confirm string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.form.ConfirmPassword = confirm
}

// Submit validates the form and, when valid, asks the provider to update the
// password. The returned error is already reflected in View; callers use it
// only to observe the outcome.
func (p *Page) Submit(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateReady {
		p.mu.Unlock()
		return ErrNotReady
	}
	if p.form.Loading {
		p.mu.Unlock()
		p.observeSubmit(models.ResetOutcomeBusy, "")
		return ErrSubmitInProgress
	}

	password := p.form.Password
	if err := Validate(password, p.form.ConfirmPassword, p.minLength); err != nil {
		outcome := models.ResetOutcomeMismatch
		message := p.messages.Mismatch

		var tooShort *TooShortError
		if errors.As(err, &tooShort) {
			outcome = models.ResetOutcomeTooShort
			message = p.messages.tooShort(tooShort.Min)
		}

		p.form.Message = message
		p.form.Kind = MessageError
		p.mu.Unlock()

		p.observeSubmit(outcome, message)
		return err
	}

	key := p.userKey
	if !p.inflight.acquire(key) {
		p.form.Message = ""
		p.form.Kind = MessageNone
		p.mu.Unlock()
		p.observeSubmit(models.ResetOutcomeBusy, "")
		return ErrSubmitInProgress
	}

	p.form.Loading = true
	p.form.Message = ""
	p.form.Kind = MessageNone
	p.mu.Unlock()

	updateErr := p.update(ctx, key, password)

	p.mu.Lock()
	p.form.Loading = false

	if updateErr != nil {
		message := p.failureMessage(updateErr)
		p.form.Message = message
		p.form.Kind = MessageError
		email := p.email
		p.mu.Unlock()

		p.logger.Warn("password update rejected",
			zap.String("email", email),
			zap.Error(updateErr))
		p.observeSubmit(models.ResetOutcomeProviderError, message)
		return &CredentialUpdateError{Message: message, Err: updateErr}
	}

	p.form.Message = p.messages.Success
	p.form.Kind = MessageSuccess
	p.redirectTo = p.loginPath
	p.redirectAfter = p.redirectDelay
	p.mu.Unlock()

	p.observeSubmit(models.ResetOutcomeSuccess, p.messages.Success)
	p.scheduleRedirect()
	return nil
}

// View returns a snapshot of the page. The form reads as loading while any
// update for the same user is in flight, including one from another page.
func (p *Page) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	form := p.form
	if !form.Loading && p.inflight.Busy(p.userKey) {
		form.Loading = true
	}
	return View{
		State:         p.state,
		Email:         p.email,
		Form:          form,
		RedirectTo:    p.redirectTo,
		RedirectAfter: p.redirectAfter,
	}
}

// Close disposes of the page and cancels a pending redirect
func (p *Page) Close() {
	p.mu.Lock()
	p.closed = true
	stop := p.stopRedirect
	p.stopRedirect = nil
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// update holds the user's in-flight key for the duration of the provider call
func (p *Page) update(ctx context.Context, key, password string) error {
	defer p.inflight.release(key)
	return p.identity.UpdatePassword(ctx, password)
}

func (p *Page) failureMessage(err error) string {
	var providerErr ProviderError
	if errors.As(err, &providerErr) {
		if msg := providerErr.ProviderMessage(); msg != "" {
			return msg
		}
		return p.messages.UpdateFailed
	}
	return p.messages.Unknown
}

func (p *Page) redirectNow() {
	p.mu.Lock()
	p.state = StateRedirecting
	p.redirectTo = p.loginPath
	p.redirectAfter = 0
	target := p.loginPath
	p.mu.Unlock()

	p.nav.Navigate(target)
}

func (p *Page) scheduleRedirect() {
	target := p.loginPath
	stop := p.sched.AfterFunc(p.redirectDelay, func() {
		p.mu.Lock()
		closed := p.closed
		p.stopRedirect = nil
		p.mu.Unlock()

		if !closed {
			p.nav.Navigate(target)
		}
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		stop()
		return
	}
	p.stopRedirect = stop
}

func (p *Page) observeSession(result SessionResult) {
	if p.hooks.SessionChecked != nil {
		p.hooks.SessionChecked(result)
	}
}

func (p *Page) observeSubmit(outcome models.ResetOutcome, message string) {
	if p.hooks.Submitted != nil {
		p.hooks.Submitted(outcome, message)
	}
}
