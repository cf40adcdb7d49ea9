// Package session keeps a browser's idea of a banking session in step with the bank backend.
//
// A Monitor is a small state machine driven by two one-shot timers. Activity pushes the idle
// deadline out; when the idle deadline approaches the user is prompted, and if nobody answers
// the prompt the session is logged out. Calls to the backend are best-effort and never hold up
// the local clock.
package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// EntryRoute is where an ended session is sent.
const EntryRoute = "/"

// Reasons a session ends.
const (
	ReasonUser    = "user"
	ReasonTimeout = "timeout"
	ReasonReaped  = "reaped"
)

type State int

const (
	StateActive State = iota
	StatePromptPending
	StateExpired
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePromptPending:
		return "prompt_pending"
	case StateExpired:
		return "expired"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var qualifyingActivity = map[string]bool{
	"pointerdown": true,
	"keydown":     true,
	"scroll":      true,
	"touchstart":  true,
	"touchmove":   true,
}

// QualifyingActivity reports whether a browser event kind counts as user activity.
func QualifyingActivity(kind string) bool {
	return qualifyingActivity[kind]
}

// Backend is the bank's session surface. Every method is called best-effort.
type Backend interface {
	RefreshSession(ctx context.Context) error
	ExtendSessionTimeout(ctx context.Context) error
	Logout(ctx context.Context) error
}

// AccountStore holds cached account and user state for a session.
type AccountStore interface {
	Logout(ctx context.Context, sessionID string) error
}

// Navigator sends a session's client to a route.
type Navigator interface {
	Redirect(sessionID, route string)
}

// Prompter shows and withdraws the expiry confirmation.
type Prompter interface {
	Confirm(sessionID string, p Prompt)
	Dismiss(sessionID string)
}

// Prompt is the expiry confirmation. OnConfirm keeps the session, OnCancel logs out.
type Prompt struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ConfirmLabel string `json:"confirm_label"`
	CancelLabel  string `json:"cancel_label"`
	OnConfirm    func() `json:"-"`
	OnCancel     func() `json:"-"`
}

type Config struct {
	// Idle time after which the session is logged out.
	Timeout time.Duration
	// How long before Timeout the prompt is shown.
	PromptOffset time.Duration
	// Minimum gap between activity-driven refresh calls.
	ActivityThrottle time.Duration
	// Deadline for each backend and store call.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:          20 * time.Minute,
		PromptOffset:     time.Minute,
		ActivityThrottle: 60 * time.Second,
		CallTimeout:      10 * time.Second,
	}
}

type Options struct {
	ID        string
	Config    Config
	Scheduler Scheduler
	Backend   Backend
	Store     AccountStore
	Navigator Navigator
	Prompter  Prompter
	// Dispatch runs best-effort backend calls. Defaults to a new goroutine per call.
	Dispatch func(func())
	// OnTouch is called whenever activity triggers a refresh, i.e. at most once per throttle window.
	OnTouch func(sessionID string, at time.Time)
	// OnEnd is called once, after the session has been logged out.
	OnEnd func(sessionID, reason string)
}

type Monitor struct {
	id        string
	cfg       Config
	sched     Scheduler
	backend   Backend
	store     AccountStore
	navigator Navigator
	prompter  Prompter
	dispatch  func(func())
	onTouch   func(string, time.Time)
	onEnd     func(string, string)

	mu              sync.Mutex
	state           State
	lastActivityAt  time.Time
	gen             uint64
	sessionTimer    Timer
	promptTimer     Timer
	sessionDeadline time.Time
	promptDeadline  time.Time
	prompt          *Prompt
	endReason       string
}

func NewMonitor(opts Options) *Monitor {
	m := &Monitor{
		id:        opts.ID,
		cfg:       opts.Config,
		sched:     opts.Scheduler,
		backend:   opts.Backend,
		store:     opts.Store,
		navigator: opts.Navigator,
		prompter:  opts.Prompter,
		dispatch:  opts.Dispatch,
		onTouch:   opts.OnTouch,
		onEnd:     opts.OnEnd,
	}
	def := DefaultConfig()
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = def.Timeout
	}
	if m.cfg.PromptOffset <= 0 || m.cfg.PromptOffset >= m.cfg.Timeout {
		m.cfg.PromptOffset = def.PromptOffset
	}
	if m.cfg.PromptOffset >= m.cfg.Timeout {
		m.cfg.PromptOffset = m.cfg.Timeout / 2
	}
	if m.cfg.ActivityThrottle <= 0 {
		m.cfg.ActivityThrottle = def.ActivityThrottle
	}
	if m.cfg.CallTimeout <= 0 {
		m.cfg.CallTimeout = def.CallTimeout
	}
	if m.sched == nil {
		m.sched = SystemScheduler{}
	}
	if m.backend == nil {
		m.backend = nopBackend{}
	}
	if m.store == nil {
		m.store = nopStore{}
	}
	if m.navigator == nil {
		m.navigator = nopNavigator{}
	}
	if m.prompter == nil {
		m.prompter = nopPrompter{}
	}
	if m.dispatch == nil {
		m.dispatch = func(fn func()) { go fn() }
	}
	return m
}

func (m *Monitor) ID() string { return m.id }

func (m *Monitor) Config() Config { return m.cfg }

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start arms the timers. The first activity after Start always refreshes the backend session.
func (m *Monitor) Start() {
	m.ResetTimers()
	logger.Debug().Str("session", m.id).Dur("timeout", m.cfg.Timeout).Dur("prompt_offset", m.cfg.PromptOffset).Msg("session monitor started")
}

// ResetTimers cancels both timers and schedules the prompt timeout-promptOffset from now. A
// pending prompt is withdrawn. It does nothing once the session has ended.
func (m *Monitor) ResetTimers() {
	m.mu.Lock()
	withdrew := m.resetLocked()
	m.mu.Unlock()
	if withdrew {
		m.prompter.Dismiss(m.id)
	}
}

func (m *Monitor) resetLocked() (withdrew bool) {
	if m.state == StateExpired || m.state == StateStopped {
		return false
	}
	m.cancelTimersLocked()
	withdrew = m.state == StatePromptPending
	if withdrew {
		transitions.WithLabelValues(StateActive.String()).Inc()
	}
	m.state = StateActive
	m.prompt = nil
	m.gen++
	gen := m.gen
	d := m.cfg.Timeout - m.cfg.PromptOffset
	m.sessionDeadline = m.sched.Now().Add(d)
	m.sessionTimer = m.sched.AfterFunc(d, func() { m.showExpirePrompt(gen) })
	return withdrew
}

func (m *Monitor) cancelTimersLocked() {
	if m.sessionTimer != nil {
		m.sessionTimer.Stop()
		m.sessionTimer = nil
	}
	if m.promptTimer != nil {
		m.promptTimer.Stop()
		m.promptTimer = nil
	}
	m.sessionDeadline = time.Time{}
	m.promptDeadline = time.Time{}
}

// OnActivity records a browser event. Events other than the qualifying kinds are ignored and
// false is returned. When more than the throttle window has passed since the previous event the
// backend session is refreshed and extended.
func (m *Monitor) OnActivity(kind string) bool {
	if !QualifyingActivity(kind) {
		return false
	}
	m.mu.Lock()
	if m.state == StateExpired || m.state == StateStopped {
		m.mu.Unlock()
		return false
	}
	now := m.sched.Now()
	refresh := m.lastActivityAt.IsZero() || now.Sub(m.lastActivityAt) > m.cfg.ActivityThrottle
	m.lastActivityAt = now
	withdrew := m.resetLocked()
	m.mu.Unlock()

	if withdrew {
		m.prompter.Dismiss(m.id)
	}
	if refresh {
		m.bestEffort("refresh", m.backend.RefreshSession)
		m.bestEffort("extend", m.backend.ExtendSessionTimeout)
		if m.onTouch != nil {
			m.onTouch(m.id, now)
		}
	}
	return true
}

func (m *Monitor) showExpirePrompt(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StatePromptPending
	m.sessionTimer = nil
	m.sessionDeadline = time.Time{}
	m.promptDeadline = m.sched.Now().Add(m.cfg.PromptOffset)
	m.promptTimer = m.sched.AfterFunc(m.cfg.PromptOffset, func() { m.promptExpired(gen) })
	// The callbacks only act on the prompt they were created for.
	current := func() bool { return gen == m.gen && m.state == StatePromptPending }
	p := Prompt{
		Title:        "Session expiring",
		Description:  "You have been inactive for a while. Continue your session or log out?",
		ConfirmLabel: "Continue",
		CancelLabel:  "Logout",
		OnConfirm:    func() { m.resume(current) },
		OnCancel:     func() { m.end(ReasonUser, current) },
	}
	m.prompt = &p
	m.mu.Unlock()

	transitions.WithLabelValues(StatePromptPending.String()).Inc()
	logger.Info().Str("session", m.id).Msg("session idle, prompting before expiry")
	m.prompter.Confirm(m.id, p)
}

func (m *Monitor) promptExpired(gen uint64) {
	m.end(ReasonTimeout, func() bool {
		return gen == m.gen && m.state == StatePromptPending
	})
}

// Continue answers the prompt with "keep me signed in". It returns false when no prompt is
// pending.
func (m *Monitor) Continue() bool {
	return m.resume(nil)
}

func (m *Monitor) resume(cond func() bool) bool {
	m.mu.Lock()
	if m.state != StatePromptPending || (cond != nil && !cond()) {
		m.mu.Unlock()
		return false
	}
	m.lastActivityAt = m.sched.Now()
	m.resetLocked()
	m.mu.Unlock()

	m.prompter.Dismiss(m.id)
	m.bestEffort("extend", m.backend.ExtendSessionTimeout)
	return true
}

// Logout ends the session: the backend is told best-effort, local account state is cleared and
// the client is sent to EntryRoute. Only the first call has any effect; it returns whether this
// call ended the session.
func (m *Monitor) Logout(reason string) bool {
	return m.end(reason, nil)
}

func (m *Monitor) end(reason string, cond func() bool) bool {
	m.mu.Lock()
	if m.state == StateExpired || m.state == StateStopped || (cond != nil && !cond()) {
		m.mu.Unlock()
		return false
	}
	hadPrompt := m.state == StatePromptPending
	m.cancelTimersLocked()
	m.gen++
	m.state = StateExpired
	m.prompt = nil
	m.endReason = reason
	m.mu.Unlock()

	transitions.WithLabelValues(StateExpired.String()).Inc()
	logger.Info().Str("session", m.id).Str("reason", reason).Msg("session ended")

	if hadPrompt {
		m.prompter.Dismiss(m.id)
	}
	m.bestEffort("logout", m.backend.Logout)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
	if err := m.store.Logout(ctx, m.id); err != nil {
		logger.Err(err).Str("session", m.id).Msg("failed to clear account store")
	}
	cancel()

	m.navigator.Redirect(m.id, EntryRoute)
	if m.onEnd != nil {
		m.onEnd(m.id, reason)
	}
	return true
}

// Stop clears both timers without logging out, for when the client goes away.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateExpired || m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	hadPrompt := m.state == StatePromptPending
	m.cancelTimersLocked()
	m.gen++
	m.state = StateStopped
	m.prompt = nil
	m.mu.Unlock()

	transitions.WithLabelValues(StateStopped.String()).Inc()
	if hadPrompt {
		m.prompter.Dismiss(m.id)
	}
}

func (m *Monitor) bestEffort(call string, fn func(context.Context) error) {
	id, timeout := m.id, m.cfg.CallTimeout
	m.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			backendCalls.WithLabelValues(call, "error").Inc()
			logger.Warn().Err(err).Str("session", id).Str("call", call).Msg("best-effort session call failed")
			return
		}
		backendCalls.WithLabelValues(call, "ok").Inc()
	})
}

// Snapshot is a point-in-time view of a Monitor.
type Snapshot struct {
	ID             string     `json:"session_id"`
	State          string     `json:"state"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	PromptAt       *time.Time `json:"prompt_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Prompt         *Prompt    `json:"prompt,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		ID:        m.id,
		State:     m.state.String(),
		EndReason: m.endReason,
	}
	if !m.lastActivityAt.IsZero() {
		t := m.lastActivityAt
		s.LastActivityAt = &t
	}
	switch m.state {
	case StateActive:
		prompt := m.sessionDeadline
		expires := prompt.Add(m.cfg.PromptOffset)
		s.PromptAt, s.ExpiresAt = &prompt, &expires
	case StatePromptPending:
		expires := m.promptDeadline
		s.ExpiresAt = &expires
		p := *m.prompt
		s.Prompt = &p
	}
	return s
}

type nopBackend struct{}

func (nopBackend) RefreshSession(context.Context) error       { return nil }
func (nopBackend) ExtendSessionTimeout(context.Context) error { return nil }
func (nopBackend) Logout(context.Context) error               { return nil }

type nopStore struct{}

func (nopStore) Logout(context.Context, string) error { return nil }

type nopNavigator struct{}

func (nopNavigator) Redirect(string, string) {}

type nopPrompter struct{}

func (nopPrompter) Confirm(string, Prompt) {}
func (nopPrompter) Dismiss(string)         {}
