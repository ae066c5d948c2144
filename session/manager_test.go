package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperrors "github.com/seatwise/dashboard/internal/errors"
	"github.com/seatwise/dashboard/session"
	"github.com/seatwise/dashboard/session/storefake"
)

const (
	testTenantID = "tenant-1"
	testEmail    = "owner@bistro.example.com"
	signingKey   = "test-signing-key"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func makeCredential(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp":      expiresAt.Unix(),
		"tenantId": testTenantID,
		"email":    testEmail,
	})
	signed, err := token.SignedString([]byte(signingKey))
	require.NoError(t, err)
	return signed
}

type fakeAuthAPI struct {
	lock          sync.Mutex
	exchangeToken string
	exchangeErr   error
	exchangeCalls int
	renewToken    string
	renewErr      error
	renewCalls    int
}

func (f *fakeAuthAPI) ExchangeToken(_ context.Context, _ string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.exchangeCalls++
	return f.exchangeToken, f.exchangeErr
}

func (f *fakeAuthAPI) RenewToken(_ context.Context, _ string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.renewCalls++
	return f.renewToken, f.renewErr
}

func (f *fakeAuthAPI) counts() (int, int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.exchangeCalls, f.renewCalls
}

// fakeTimers records scheduled renewals so tests can fire them manually.
type fakeTimers struct {
	lock      sync.Mutex
	scheduled []scheduledTimer
}

type scheduledTimer struct {
	delay time.Duration
	fn    func()
}

func (ft *fakeTimers) AfterFunc(delay time.Duration, fn func()) *time.Timer {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	ft.scheduled = append(ft.scheduled, scheduledTimer{delay: delay, fn: fn})
	return time.AfterFunc(24*time.Hour, func() {})
}

func (ft *fakeTimers) count() int {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	return len(ft.scheduled)
}

func (ft *fakeTimers) fire(t *testing.T, index int) {
	ft.lock.Lock()
	require.Less(t, index, len(ft.scheduled))
	fn := ft.scheduled[index].fn
	ft.lock.Unlock()
	fn()
}

func (ft *fakeTimers) delay(t *testing.T, index int) time.Duration {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	require.Less(t, index, len(ft.scheduled))
	return ft.scheduled[index].delay
}

type managerFixture struct {
	authAPI  *fakeAuthAPI
	store    *storefake.FakeStore
	timers   *fakeTimers
	manager  *session.Manager
	cleared  []error
	clearLog sync.Mutex
}

func setupManager(t *testing.T) *managerFixture {
	t.Helper()

	fixture := &managerFixture{
		authAPI: &fakeAuthAPI{},
		store:   storefake.NewFakeStore(),
		timers:  &fakeTimers{},
	}

	manager, err := session.NewManager(
		fixture.authAPI,
		fixture.store,
		session.WithNowTime(func() time.Time { return fixedNow }),
		session.WithAfterFunc(fixture.timers.AfterFunc),
		session.WithOnUnauthenticated(func(reason error) {
			fixture.clearLog.Lock()
			defer fixture.clearLog.Unlock()
			fixture.cleared = append(fixture.cleared, reason)
		}),
	)
	require.NoError(t, err)
	fixture.manager = manager
	return fixture
}

func (f *managerFixture) clearCount() int {
	f.clearLog.Lock()
	defer f.clearLog.Unlock()
	return len(f.cleared)
}

func TestEstablishExchangesOneTimeToken(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeToken = makeCredential(t, fixedNow.Add(time.Hour))

	err := fixture.manager.Establish(context.Background(), "one-time-token")
	require.NoError(t, err)

	state, credential := fixture.manager.Current()
	require.Equal(t, session.StateAuthenticated, state)
	require.Equal(t, testTenantID, credential.TenantID)
	require.Equal(t, testEmail, credential.SubjectEmail)

	stored, err := fixture.store.Load()
	require.NoError(t, err)
	require.Equal(t, fixture.authAPI.exchangeToken, stored.Token)

	// Renewal is scheduled 5 minutes before the one-hour expiry.
	require.Equal(t, 1, fixture.timers.count())
	require.Equal(t, 55*time.Minute, fixture.timers.delay(t, 0))
}

func TestEstablishAdoptsStoredCredentialWithoutNetwork(t *testing.T) {
	fixture := setupManager(t)
	raw := makeCredential(t, fixedNow.Add(2*time.Hour))
	require.NoError(t, fixture.store.Save(&session.Credential{Token: raw}))

	err := fixture.manager.Establish(context.Background(), "")
	require.NoError(t, err)

	state, credential := fixture.manager.Current()
	require.Equal(t, session.StateAuthenticated, state)
	require.Equal(t, testTenantID, credential.TenantID)

	exchanges, renews := fixture.authAPI.counts()
	require.Zero(t, exchanges)
	require.Zero(t, renews)
}

func TestEstablishRejectsExpiredStoredCredential(t *testing.T) {
	fixture := setupManager(t)
	raw := makeCredential(t, fixedNow.Add(-time.Minute))
	require.NoError(t, fixture.store.Save(&session.Credential{Token: raw}))

	err := fixture.manager.Establish(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrCredentialExpired)

	state, _ := fixture.manager.Current()
	require.Equal(t, session.StateUnauthenticated, state)
	require.Equal(t, 1, fixture.clearCount())

	_, err = fixture.store.Load()
	require.ErrorIs(t, err, apperrors.ErrNoCredential)
}

func TestEstablishExchangeFailureClears(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeErr = errors.New("boom")

	err := fixture.manager.Establish(context.Background(), "one-time-token")
	require.Error(t, err)

	state, _ := fixture.manager.Current()
	require.Equal(t, session.StateUnauthenticated, state)
	require.Equal(t, 1, fixture.clearCount())
	require.Zero(t, fixture.timers.count())
}

func TestEstablishMalformedCredentialTreatedAsExpiry(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeToken = "not-a-jwt"

	err := fixture.manager.Establish(context.Background(), "one-time-token")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	state, _ := fixture.manager.Current()
	require.Equal(t, session.StateUnauthenticated, state)
}

func TestExpiryInsideWindowSchedulesImmediateRenewal(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeToken = makeCredential(t, fixedNow.Add(2*time.Minute))
	fixture.authAPI.renewToken = makeCredential(t, fixedNow.Add(time.Hour))

	require.NoError(t, fixture.manager.Establish(context.Background(), "one-time-token"))
	require.Equal(t, 1, fixture.timers.count())
	require.Equal(t, time.Duration(0), fixture.timers.delay(t, 0))

	fixture.timers.fire(t, 0)

	_, renews := fixture.authAPI.counts()
	require.Equal(t, 1, renews)

	// The renewed credential replaces the stored one and exactly one new
	// timer is scheduled, never two.
	stored, err := fixture.store.Load()
	require.NoError(t, err)
	require.Equal(t, fixture.authAPI.renewToken, stored.Token)
	require.Equal(t, 2, fixture.timers.count())
	require.Equal(t, 55*time.Minute, fixture.timers.delay(t, 1))

	state, _ := fixture.manager.Current()
	require.Equal(t, session.StateAuthenticated, state)
}

func TestRenewalFailureForcesUnauthenticated(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeToken = makeCredential(t, fixedNow.Add(2*time.Minute))
	fixture.authAPI.renewErr = errors.New("renewal rejected")

	require.NoError(t, fixture.manager.Establish(context.Background(), "one-time-token"))
	fixture.timers.fire(t, 0)

	state, _ := fixture.manager.Current()
	require.Equal(t, session.StateUnauthenticated, state)
	require.Equal(t, 1, fixture.clearCount())

	_, err := fixture.store.Load()
	require.ErrorIs(t, err, apperrors.ErrNoCredential)
}

func TestInvalidateCancelsPendingRenewal(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeToken = makeCredential(t, fixedNow.Add(time.Hour))
	fixture.authAPI.renewToken = makeCredential(t, fixedNow.Add(2*time.Hour))

	require.NoError(t, fixture.manager.Establish(context.Background(), "one-time-token"))
	require.Equal(t, 1, fixture.timers.count())

	// A 401 arrives while the renewal timer is still pending.
	fixture.manager.Invalidate(apperrors.ErrUnauthorized)

	state, _ := fixture.manager.Current()
	require.Equal(t, session.StateUnauthenticated, state)
	_, err := fixture.store.Load()
	require.ErrorIs(t, err, apperrors.ErrNoCredential)

	// The stale timer firing afterwards must not resurrect the session.
	fixture.timers.fire(t, 0)

	_, renews := fixture.authAPI.counts()
	require.Zero(t, renews)
	state, _ = fixture.manager.Current()
	require.Equal(t, session.StateUnauthenticated, state)
	_, err = fixture.store.Load()
	require.ErrorIs(t, err, apperrors.ErrNoCredential)
	require.Equal(t, 1, fixture.store.SaveCount) // only the original establish saved
}

func TestTokenSource(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeToken = makeCredential(t, fixedNow.Add(time.Hour))

	_, err := fixture.manager.Token()
	require.ErrorIs(t, err, apperrors.ErrNoCredential)

	require.NoError(t, fixture.manager.Establish(context.Background(), "one-time-token"))

	token, err := fixture.manager.Token()
	require.NoError(t, err)
	require.Equal(t, fixture.authAPI.exchangeToken, token.AccessToken)

	fixture.manager.Logout()
	_, err = fixture.manager.Token()
	require.ErrorIs(t, err, apperrors.ErrNoCredential)
}

func TestSubscribeObservesTransitions(t *testing.T) {
	fixture := setupManager(t)
	fixture.authAPI.exchangeToken = makeCredential(t, fixedNow.Add(time.Hour))

	states, cancel := fixture.manager.Subscribe()
	defer cancel()

	require.NoError(t, fixture.manager.Establish(context.Background(), "one-time-token"))
	require.Equal(t, session.StateVerifying, <-states)
	require.Equal(t, session.StateAuthenticated, <-states)

	fixture.manager.Logout()
	require.Equal(t, session.StateUnauthenticated, <-states)
}

func TestDecodeCredentialRejectsGarbage(t *testing.T) {
	_, err := session.DecodeCredential("garbage")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	_, err = session.DecodeCredential("")
	require.ErrorIs(t, err, apperrors.ErrNoCredential)
}
