package reset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shindakun/resetpassword/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	mu         sync.Mutex
	session    *models.Session
	sessionErr error
	updateErr  error
	updates    []string
	block      chan struct{} // when set, UpdatePassword waits on it
	entered    chan struct{}
}

func (f *fakeIdentity) GetSession(context.Context) (*models.Session, error) {
	return f.session, f.sessionErr
}

func (f *fakeIdentity) UpdatePassword(_ context.Context, password string) error {
	f.mu.Lock()
	f.updates = append(f.updates, password)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.updateErr
}

func (f *fakeIdentity) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...)
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// manualScheduler records scheduled work and runs it on demand
type manualScheduler struct {
	delays  []time.Duration
	pending []func()
	stopped int
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.delays = append(s.delays, d)
	idx := len(s.pending)
	s.pending = append(s.pending, f)
	return func() bool {
		if s.pending[idx] == nil {
			return false
		}
		s.pending[idx] = nil
		s.stopped++
		return true
	}
}

func (s *manualScheduler) fire() {
	for i, f := range s.pending {
		if f != nil {
			s.pending[i] = nil
			f()
		}
	}
}

type providerErr struct{ msg string }

func (e *providerErr) Error() string           { return "provider: " + e.msg }
func (e *providerErr) ProviderMessage() string { return e.msg }

func signedIn() *fakeIdentity {
	return &fakeIdentity{session: &models.Session{Email: "ana@example.com", AccessToken: "t"}}
}

func mountedPage(t *testing.T, id *fakeIdentity) (*Page, *recordingNavigator, *manualScheduler) {
	t.Helper()
	nav := &recordingNavigator{}
	sched := &manualScheduler{}
	p := New(id, nav, WithScheduler(sched))
	require.Equal(t, StateReady, p.Mount(context.Background()))
	return p, nav, sched
}

func TestMountReady(t *testing.T) {
	id := signedIn()
	p, nav, _ := mountedPage(t, id)

	v := p.View()
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, "ana@example.com", v.Email)
	assert.Empty(t, nav.visited())
}

func TestMountStartsLoading(t *testing.T) {
	p := New(signedIn(), &recordingNavigator{})
	assert.Equal(t, StateLoading, p.View().State)
	assert.ErrorIs(t, p.Submit(context.Background()), ErrNotReady)
}

func TestMountWithoutSessionRedirects(t *testing.T) {
	tests := []struct {
		name string
		id   *fakeIdentity
		want SessionResult
	}{
		{"no session", &fakeIdentity{}, SessionNone},
		{"session without email", &fakeIdentity{session: &models.Session{AccessToken: "t"}}, SessionNone},
		// Retrieval failures are treated as "not authenticated", transient or not
		{"retrieval failure", &fakeIdentity{sessionErr: errors.New("connection refused")}, SessionLookupErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := &recordingNavigator{}
			var got []SessionResult
			p := New(tt.id, nav, WithHooks(Hooks{SessionChecked: func(r SessionResult) { got = append(got, r) }}))

			assert.Equal(t, StateRedirecting, p.Mount(context.Background()))
			assert.Equal(t, []string{"/login"}, nav.visited())

			v := p.View()
			assert.Equal(t, StateRedirecting, v.State)
			assert.Empty(t, v.Email)
			assert.Equal(t, "/login", v.RedirectTo)
			assert.Zero(t, v.RedirectAfter)
			assert.Equal(t, []SessionResult{tt.want}, got)

			assert.ErrorIs(t, p.Submit(context.Background()), ErrNotReady)
		})
	}
}

func TestMountIsSingleAttempt(t *testing.T) {
	id := &fakeIdentity{sessionErr: errors.New("timeout")}
	nav := &recordingNavigator{}
	p := New(id, nav)

	p.Mount(context.Background())
	id.sessionErr = nil
	id.session = &models.Session{Email: "ana@example.com"}

	assert.Equal(t, StateRedirecting, p.Mount(context.Background()))
	assert.Len(t, nav.visited(), 1)
}

func TestSubmitMismatch(t *testing.T) {
	id := signedIn()
	p, nav, sched := mountedPage(t, id)

	p.SetPassword("abc")
	p.SetConfirmPassword("abcd")
	err := p.Submit(context.Background())

	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Empty(t, id.calls(), "no provider call on validation failure")

	v := p.View()
	assert.Equal(t, "As senhas não coincidem", v.Form.Message)
	assert.Equal(t, MessageError, v.Form.Kind)
	assert.False(t, v.Form.Loading)
	assert.Empty(t, sched.delays)
	assert.Empty(t, nav.visited())
}

func TestSubmitTooShort(t *testing.T) {
	id := signedIn()
	p, _, _ := mountedPage(t, id)

	p.SetPassword("abcde")
	p.SetConfirmPassword("abcde")
	err := p.Submit(context.Background())

	var tooShort *TooShortError
	require.ErrorAs(t, err, &tooShort)
	assert.Empty(t, id.calls())
	assert.Equal(t, "A senha deve ter pelo menos 6 caracteres", p.View().Form.Message)
	assert.False(t, p.View().Form.Loading)
}

func TestSubmitSuccess(t *testing.T) {
	id := signedIn()
	p, nav, sched := mountedPage(t, id)

	p.SetPassword("secret1")
	p.SetConfirmPassword("secret1")
	require.NoError(t, p.Submit(context.Background()))

	assert.Equal(t, []string{"secret1"}, id.calls(), "exactly one update with the new password")

	v := p.View()
	assert.Equal(t, "Senha atualizada com sucesso!", v.Form.Message)
	assert.Equal(t, MessageSuccess, v.Form.Kind)
	assert.False(t, v.Form.Loading)
	assert.Equal(t, "/login", v.RedirectTo)
	assert.Equal(t, 2000*time.Millisecond, v.RedirectAfter)

	require.Equal(t, []time.Duration{2000 * time.Millisecond}, sched.delays)
	assert.Empty(t, nav.visited(), "redirect waits for the delay")

	sched.fire()
	assert.Equal(t, []string{"/login"}, nav.visited())
}

func TestSubmitClearsPreviousMessage(t *testing.T) {
	id := signedIn()
	id.block = make(chan struct{})
	id.entered = make(chan struct{})
	p, _, _ := mountedPage(t, id)

	p.SetPassword("abc")
	p.SetConfirmPassword("xyz")
	require.Error(t, p.Submit(context.Background()))
	require.NotEmpty(t, p.View().Form.Message)

	p.SetPassword("abcdef")
	p.SetConfirmPassword("abcdef")

	done := make(chan error, 1)
	go func() { done <- p.Submit(context.Background()) }()

	<-id.entered
	v := p.View()
	assert.True(t, v.Form.Loading)
	assert.True(t, v.SubmitDisabled())
	assert.Empty(t, v.Form.Message)
	assert.Equal(t, MessageNone, v.Form.Kind)

	// A second submit while busy never reaches the provider
	assert.ErrorIs(t, p.Submit(context.Background()), ErrSubmitInProgress)

	close(id.block)
	require.NoError(t, <-done)
	assert.Len(t, id.calls(), 1)
	assert.False(t, p.View().Form.Loading)
}

func TestSubmitSharedInFlight(t *testing.T) {
	id := signedIn()
	id.session.UserID = "user-1"
	id.block = make(chan struct{})
	id.entered = make(chan struct{})

	inflight := NewInFlight()
	var outcomes []models.ResetOutcome
	var mu sync.Mutex
	hooks := WithHooks(Hooks{Submitted: func(o models.ResetOutcome, _ string) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, o)
	}})

	first := New(id, &recordingNavigator{}, WithScheduler(&manualScheduler{}), WithInFlight(inflight), hooks)
	second := New(id, &recordingNavigator{}, WithScheduler(&manualScheduler{}), WithInFlight(inflight), hooks)
	require.Equal(t, StateReady, first.Mount(context.Background()))
	require.Equal(t, StateReady, second.Mount(context.Background()))

	for _, p := range []*Page{first, second} {
		p.SetPassword("abcdef")
		p.SetConfirmPassword("abcdef")
	}

	done := make(chan error, 1)
	go func() { done <- first.Submit(context.Background()) }()
	<-id.entered

	assert.True(t, inflight.Busy("user-1"))
	assert.True(t, second.View().SubmitDisabled(), "another page's update disables the form")
	assert.ErrorIs(t, second.Submit(context.Background()), ErrSubmitInProgress)

	close(id.block)
	require.NoError(t, <-done)

	assert.Len(t, id.calls(), 1)
	assert.False(t, inflight.Busy("user-1"))
	assert.False(t, second.View().SubmitDisabled())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.ResetOutcome{models.ResetOutcomeBusy, models.ResetOutcomeSuccess}, outcomes)
}

func TestInFlightKeysAreIndependent(t *testing.T) {
	f := NewInFlight()
	require.True(t, f.acquire("user-1"))
	assert.False(t, f.acquire("user-1"))
	assert.True(t, f.acquire("user-2"))

	f.release("user-1")
	assert.False(t, f.Busy("user-1"))
	assert.True(t, f.Busy("user-2"))

	var none *InFlight
	assert.True(t, none.acquire("user-1"), "a nil registry never blocks")
	assert.False(t, none.Busy("user-1"))
}

func TestSubmitProviderFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "provider message is shown",
			err:     &providerErr{msg: "New password should be different from the old password."},
			message: "New password should be different from the old password.",
		},
		{
			name:    "empty provider message falls back",
			err:     &providerErr{},
			message: "Erro ao atualizar senha",
		},
		{
			name:    "wrapped provider error",
			err:     errors.Join(errors.New("update"), &providerErr{msg: "Password is known to be weak"}),
			message: "Password is known to be weak",
		},
		{
			name:    "non-provider failure",
			err:     context.DeadlineExceeded,
			message: "Erro desconhecido ao atualizar senha",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := signedIn()
			id.updateErr = tt.err
			p, nav, sched := mountedPage(t, id)

			var outcomes []models.ResetOutcome
			p.hooks.Submitted = func(o models.ResetOutcome, _ string) { outcomes = append(outcomes, o) }

			p.SetPassword("secret1")
			p.SetConfirmPassword("secret1")
			err := p.Submit(context.Background())

			var updateErr *CredentialUpdateError
			require.ErrorAs(t, err, &updateErr)
			assert.Equal(t, tt.message, updateErr.Message)
			assert.ErrorIs(t, err, tt.err)

			v := p.View()
			assert.Equal(t, tt.message, v.Form.Message)
			assert.Equal(t, MessageError, v.Form.Kind)
			assert.False(t, v.Form.Loading)
			assert.Empty(t, v.RedirectTo)
			assert.Empty(t, sched.delays)
			assert.Empty(t, nav.visited())
			assert.Equal(t, []models.ResetOutcome{models.ResetOutcomeProviderError}, outcomes)
		})
	}
}

func TestCloseCancelsPendingRedirect(t *testing.T) {
	id := signedIn()
	p, nav, sched := mountedPage(t, id)

	p.SetPassword("secret1")
	p.SetConfirmPassword("secret1")
	require.NoError(t, p.Submit(context.Background()))

	p.Close()
	assert.Equal(t, 1, sched.stopped)

	sched.fire()
	assert.Empty(t, nav.visited())
}

func TestClosedPageIgnoresLateTimer(t *testing.T) {
	id := signedIn()
	nav := &recordingNavigator{}

	var fired func()
	sched := schedulerFunc(func(d time.Duration, f func()) func() bool {
		fired = f
		// Simulate a timer that already fired and cannot be stopped
		return func() bool { return false }
	})
	p := New(id, nav, WithScheduler(sched))
	require.Equal(t, StateReady, p.Mount(context.Background()))

	p.SetPassword("secret1")
	p.SetConfirmPassword("secret1")
	require.NoError(t, p.Submit(context.Background()))

	p.Close()
	fired()
	assert.Empty(t, nav.visited())
}

func TestTimerSchedulerRedirects(t *testing.T) {
	id := signedIn()
	navigated := make(chan string, 1)
	p := New(id, NavigatorFunc(func(path string) { navigated <- path }), WithRedirectDelay(10*time.Millisecond))
	require.Equal(t, StateReady, p.Mount(context.Background()))

	p.SetPassword("secret1")
	p.SetConfirmPassword("secret1")
	require.NoError(t, p.Submit(context.Background()))

	select {
	case path := <-navigated:
		assert.Equal(t, "/login", path)
	case <-time.After(2 * time.Second):
		t.Fatal("redirect did not fire")
	}
}

func TestOptions(t *testing.T) {
	id := signedIn()
	nav := &recordingNavigator{}
	sched := &manualScheduler{}
	messages := PortugueseMessages
	messages.TooShort = "min %d"

	p := New(id, nav,
		WithScheduler(sched),
		WithMinLength(10),
		WithLoginPath("/entrar"),
		WithRedirectDelay(5*time.Second),
		WithMessages(messages),
	)
	require.Equal(t, StateReady, p.Mount(context.Background()))

	p.SetPassword("secret1")
	p.SetConfirmPassword("secret1")
	require.Error(t, p.Submit(context.Background()))
	assert.Equal(t, "min 10", p.View().Form.Message)

	p.SetPassword("secret1234")
	p.SetConfirmPassword("secret1234")
	require.NoError(t, p.Submit(context.Background()))
	assert.Equal(t, []time.Duration{5 * time.Second}, sched.delays)

	sched.fire()
	assert.Equal(t, []string{"/entrar"}, nav.visited())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "redirecting", StateRedirecting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "unknown", State(42).String())
}

type schedulerFunc func(d time.Duration, f func()) func() bool

func (f schedulerFunc) AfterFunc(d time.Duration, fn func()) func() bool {
	return f(d, fn)
}
