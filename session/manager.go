// Package session owns the dashboard's authentication credential: one-time
// token exchange, persistence, proactive renewal before expiry, and the
// single redirect-to-login side effect every auth failure funnels into.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/seatwise/dashboard/internal/errors"
	"github.com/seatwise/dashboard/internal/metrics"
)

// State of the session lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateVerifying       State = "verifying"
	StateAuthenticated   State = "authenticated"
)

// renewalLeeway is how far before the estimated expiry a renewal is
// attempted. An expiry already inside the window renews immediately.
const renewalLeeway = 5 * time.Minute

const renewRequestTimeout = 30 * time.Second

// AuthAPI is the remote endpoint pair the manager exchanges and renews
// credentials against.
type AuthAPI interface {
	ExchangeToken(ctx context.Context, oneTimeToken string) (string, error)
	RenewToken(ctx context.Context, credential string) (string, error)
}

// Manager drives the session state machine. It is the only component
// allowed to trigger the redirect-to-login side effect; every other
// component escalates auth failures here via Invalidate.
type Manager struct {
	authAPI AuthAPI
	store   Store

	lock       sync.Mutex
	state      State
	credential *Credential
	// generation increments on every credential replacement or clear; a
	// renewal timer carries the generation it was scheduled under and is a
	// no-op once the numbers disagree, so a stale timer can never resurrect
	// a cleared session.
	generation int
	renewTimer *time.Timer

	subscribers map[int]chan State
	nextSubID   int

	onUnauthenticated func(reason error)
	nowTime           func() time.Time
	afterFunc         func(time.Duration, func()) *time.Timer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithAfterFunc sets the timer factory (primarily for testing)
func WithAfterFunc(afterFunc func(time.Duration, func()) *time.Timer) ManagerOption {
	return func(m *Manager) {
		m.afterFunc = afterFunc
	}
}

// WithOnUnauthenticated registers the single redirect side effect invoked
// whenever the session transitions to Unauthenticated.
func WithOnUnauthenticated(hook func(reason error)) ManagerOption {
	return func(m *Manager) {
		m.onUnauthenticated = hook
	}
}

// NewManager creates a session manager in the Unauthenticated state.
func NewManager(authAPI AuthAPI, store Store, options ...ManagerOption) (*Manager, error) {
	if authAPI == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[NewManager] authAPI is required")
	}
	if store == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[NewManager] store is required")
	}

	manager := &Manager{
		authAPI:     authAPI,
		store:       store,
		state:       StateUnauthenticated,
		subscribers: make(map[int]chan State),
		nowTime:     time.Now,
		afterFunc:   time.AfterFunc,
	}
	for _, opt := range options {
		opt(manager)
	}
	return manager, nil
}

// Establish brings the session to Authenticated. With a one-time login
// token present it is exchanged for a credential (and never used again);
// otherwise a previously stored credential with a future expiry is adopted
// without a network round-trip. Any failure clears the session and fires
// the unauthenticated hook.
func (m *Manager) Establish(ctx context.Context, oneTimeToken string) error {
	if oneTimeToken != "" {
		m.setState(StateVerifying)

		raw, err := m.authAPI.ExchangeToken(ctx, oneTimeToken)
		if err != nil {
			m.clear(err)
			return apperrors.Wrapf(err, "token exchange failed")
		}
		credential, err := DecodeCredential(raw)
		if err != nil {
			m.clear(err)
			return err
		}
		m.adopt(credential)
		return nil
	}

	credential, err := m.store.Load()
	if err != nil {
		m.clear(err)
		return err
	}
	decoded, err := DecodeCredential(credential.Token)
	if err != nil {
		m.clear(err)
		return err
	}
	if !decoded.Valid(m.nowTime()) {
		m.clear(apperrors.ErrCredentialExpired)
		return apperrors.ErrCredentialExpired
	}
	m.adopt(decoded)
	return nil
}

// Invalidate is the escalation path for authorization-rejected responses.
// The remote side is the source of truth on validity, so the credential is
// dropped immediately regardless of its estimated expiry or any pending
// renewal timer.
func (m *Manager) Invalidate(reason error) {
	m.clear(reason)
}

// Logout clears the session explicitly.
func (m *Manager) Logout() {
	m.clear(nil)
}

// Close cancels the renewal timer without clearing the stored credential,
// for shutdown paths where the session itself stays valid.
func (m *Manager) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.cancelTimerLocked()
	m.generation++
}

// Current returns the state and, when authenticated, the credential.
func (m *Manager) Current() (State, *Credential) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.credential == nil {
		return m.state, nil
	}
	copied := *m.credential
	return m.state, &copied
}

// Token implements oauth2.TokenSource so authenticated API calls always
// see the freshest credential.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state != StateAuthenticated || m.credential == nil {
		return nil, apperrors.ErrNoCredential
	}
	return &oauth2.Token{
		AccessToken: m.credential.Token,
		Expiry:      m.credential.ExpiresAt,
	}, nil
}

var _ oauth2.TokenSource = (*Manager)(nil)

// Subscribe registers a listener for state transitions. The returned
// cancel function removes it.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan State, 4)
	m.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.lock.Lock()
			defer m.lock.Unlock()
			delete(m.subscribers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// adopt installs a credential, persists it, and schedules the next renewal.
func (m *Manager) adopt(credential *Credential) {
	m.lock.Lock()
	m.cancelTimerLocked()
	m.state = StateAuthenticated
	m.credential = credential
	m.generation++

	if err := m.store.Save(credential); err != nil {
		log.Err(err).Msg("Failed to persist session credential")
	}
	m.scheduleRenewalLocked(m.generation)
	m.lock.Unlock()

	m.notify(StateAuthenticated)
}

func (m *Manager) scheduleRenewalLocked(generation int) {
	delay := m.credential.ExpiresAt.Sub(m.nowTime()) - renewalLeeway
	if delay < 0 {
		delay = 0
	}
	m.renewTimer = m.afterFunc(delay, func() {
		m.renew(generation)
	})
}

// renew runs on the renewal timer. The generation check makes stale timers
// inert; the post-request re-check drops a renewal that raced a clear.
func (m *Manager) renew(generation int) {
	m.lock.Lock()
	if generation != m.generation || m.state != StateAuthenticated {
		m.lock.Unlock()
		return
	}
	current := m.credential.Token
	m.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), renewRequestTimeout)
	defer cancel()

	raw, err := m.authAPI.RenewToken(ctx, current)
	if err != nil {
		metrics.RecordRenewal("failure")
		log.Err(err).Msg("Credential renewal failed")
		m.clearIfGeneration(generation, err)
		return
	}
	credential, err := DecodeCredential(raw)
	if err != nil {
		metrics.RecordRenewal("failure")
		log.Err(err).Msg("Renewed credential is undecodable")
		m.clearIfGeneration(generation, err)
		return
	}

	m.lock.Lock()
	if generation != m.generation || m.state != StateAuthenticated {
		// A newer session took over while the request was in flight.
		m.lock.Unlock()
		return
	}
	m.cancelTimerLocked()
	m.credential = credential
	m.generation++
	if err := m.store.Save(credential); err != nil {
		log.Err(err).Msg("Failed to persist renewed credential")
	}
	m.scheduleRenewalLocked(m.generation)
	m.lock.Unlock()

	metrics.RecordRenewal("success")
	m.notify(StateAuthenticated)
}

func (m *Manager) clear(reason error) {
	m.lock.Lock()
	m.cancelTimerLocked()
	m.state = StateUnauthenticated
	m.credential = nil
	m.generation++
	if err := m.store.Clear(); err != nil {
		log.Err(err).Msg("Failed to clear stored credential")
	}
	m.lock.Unlock()

	m.notify(StateUnauthenticated)
	if m.onUnauthenticated != nil {
		m.onUnauthenticated(reason)
	}
}

// clearIfGeneration clears only when the session is still the one the
// failing renewal belonged to.
func (m *Manager) clearIfGeneration(generation int, reason error) {
	m.lock.Lock()
	stale := generation != m.generation
	m.lock.Unlock()
	if stale {
		return
	}
	m.clear(reason)
}

func (m *Manager) cancelTimerLocked() {
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
}

func (m *Manager) setState(state State) {
	m.lock.Lock()
	m.state = state
	m.lock.Unlock()
	m.notify(state)
}

func (m *Manager) notify(state State) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, subscriber := range m.subscribers {
		select {
		case subscriber <- state:
		default:
		}
	}
}
