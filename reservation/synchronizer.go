// Package reservation holds the reservation record type and the
// synchronizer that keeps one dashboard view's working copy of "today's
// reservations" eventually consistent with the remote system of record.
// Three independent triggers each force a re-fetch: a change-flag poll, a
// cross-view broadcast signal, and the view regaining visibility. Every
// refresh re-derives state from the authoritative remote copy; nothing is
// merged across views.
package reservation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/seatwise/dashboard/broadcast"
	apperrors "github.com/seatwise/dashboard/internal/errors"
	"github.com/seatwise/dashboard/internal/metrics"
	"github.com/seatwise/dashboard/internal/utils"
)

// Trigger names recorded against each fetch.
const (
	TriggerInitial    = "initial"
	TriggerPoll       = "poll"
	TriggerBroadcast  = "broadcast"
	TriggerVisibility = "visibility"
	TriggerDate       = "date"
	TriggerTimezone   = "timezone"
	TriggerPush       = "push"
	TriggerAddRow     = "add-row"
)

const defaultPollInterval = 3 * time.Second

// visibility refreshes are coalesced so rapid focus flapping costs at most
// one fetch per second.
var visibilityLimit = rate.Every(time.Second)

// API is the slice of the remote client the synchronizer needs.
type API interface {
	ListReservations(ctx context.Context, tenantID, date string) ([]Reservation, error)
	PushReservations(ctx context.Context, tenantID string, records []UpsertRecord) error
	PollChangeFlag(ctx context.Context, tenantID string) (bool, error)
}

// RowIdentity resolves one working-copy row: by remote or provisional ID
// when present, by position otherwise (unsaved rows may predate both).
type RowIdentity struct {
	ID    string
	Index int
}

// Synchronizer owns one view's working copy. It is safe for the trigger
// goroutines and the view to call concurrently.
type Synchronizer struct {
	api       API
	hub       *broadcast.Hub
	tenantID  string
	editable  bool
	pollEvery time.Duration
	escalate  func(error) // auth failures route to the session manager
	onUpdate  func([]Reservation)

	lock    sync.Mutex
	date    string
	working []Reservation
	started bool

	// pushLock guarantees a push completes before its reconciling re-fetch
	// is issued, and that pushes never overlap.
	pushLock sync.Mutex

	visibility        chan struct{}
	visibilityLimiter *rate.Limiter

	cancelPoll       context.CancelFunc
	cancelBroadcast  context.CancelFunc
	cancelVisibility context.CancelFunc
	closeOnce        sync.Once
	wg               sync.WaitGroup
}

// SynchronizerOption configures a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithEditable makes the view an editable per-tenant dashboard: fetches
// append one synthetic blank row pre-filled with the requested date. The
// read-only/demo view shows exactly what the server supplies.
func WithEditable(editable bool) SynchronizerOption {
	return func(s *Synchronizer) {
		s.editable = editable
	}
}

// WithPollInterval overrides the change-flag poll cadence (primarily for
// testing).
func WithPollInterval(interval time.Duration) SynchronizerOption {
	return func(s *Synchronizer) {
		s.pollEvery = interval
	}
}

// WithAuthEscalation routes authorization-rejected responses to the session
// manager, the only component allowed to redirect.
func WithAuthEscalation(escalate func(error)) SynchronizerOption {
	return func(s *Synchronizer) {
		s.escalate = escalate
	}
}

// WithOnUpdate registers the view callback invoked with a snapshot after
// every change to the working copy.
func WithOnUpdate(onUpdate func([]Reservation)) SynchronizerOption {
	return func(s *Synchronizer) {
		s.onUpdate = onUpdate
	}
}

// NewSynchronizer creates a synchronizer for one tenant and date.
func NewSynchronizer(remote API, hub *broadcast.Hub, tenantID, date string, options ...SynchronizerOption) (*Synchronizer, error) {
	if remote == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[NewSynchronizer] api is required")
	}
	if hub == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[NewSynchronizer] hub is required")
	}
	if tenantID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[NewSynchronizer] tenantID is required")
	}

	synchronizer := &Synchronizer{
		api:               remote,
		hub:               hub,
		tenantID:          tenantID,
		date:              date,
		pollEvery:         defaultPollInterval,
		visibility:        make(chan struct{}, 1),
		visibilityLimiter: rate.NewLimiter(visibilityLimit, 1),
	}
	for _, opt := range options {
		opt(synchronizer)
	}
	return synchronizer, nil
}

// Start issues the initial authoritative fetch (which gates render) and
// wires the three refresh triggers. Each trigger is its own subscription
// with its own cancellation; Close tears all of them down.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.lock.Lock()
	if s.started {
		s.lock.Unlock()
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[Start] already started")
	}
	s.started = true
	s.lock.Unlock()

	if err := s.Refresh(ctx, TriggerInitial); err != nil {
		return err
	}

	pollCtx, cancelPoll := context.WithCancel(ctx)
	broadcastCtx, cancelBroadcast := context.WithCancel(ctx)
	visibilityCtx, cancelVisibility := context.WithCancel(ctx)
	s.cancelPoll = cancelPoll
	s.cancelBroadcast = cancelBroadcast
	s.cancelVisibility = cancelVisibility

	s.wg.Add(3)
	go s.pollLoop(pollCtx)
	go s.broadcastLoop(broadcastCtx)
	go s.visibilityLoop(visibilityCtx)
	return nil
}

// Close unsubscribes all three triggers and waits for them to stop. No
// further network calls are made once Close returns.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		if s.cancelPoll != nil {
			s.cancelPoll()
		}
		if s.cancelBroadcast != nil {
			s.cancelBroadcast()
		}
		if s.cancelVisibility != nil {
			s.cancelVisibility()
		}
		s.wg.Wait()
	})
}

// Snapshot returns a copy of the working copy.
func (s *Synchronizer) Snapshot() []Reservation {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.snapshotLocked()
}

// Date returns the currently selected calendar date.
func (s *Synchronizer) Date() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.date
}

// Refresh re-fetches the authoritative reservation set. Auth failures
// escalate to the session manager; other failures leave the last known
// good working copy displayed.
func (s *Synchronizer) Refresh(ctx context.Context, trigger string) error {
	s.lock.Lock()
	date := s.date
	s.lock.Unlock()

	fetched, err := s.api.ListReservations(ctx, s.tenantID, date)
	if err != nil {
		s.reportError(trigger, err)
		return err
	}
	metrics.RecordFetch(trigger)

	s.lock.Lock()
	if s.date != date {
		// The date changed while the fetch was in flight; the change
		// already forced its own refresh.
		s.lock.Unlock()
		return nil
	}
	s.working = fetched
	if s.editable {
		s.working = append(s.working, s.blankRow(date))
	}
	snapshot := s.snapshotLocked()
	s.lock.Unlock()

	s.publishUpdate(snapshot)
	return nil
}

// ApplyLocalEdit mutates one field of the in-memory working copy only;
// nothing is sent upstream until PushEdits.
func (s *Synchronizer) ApplyLocalEdit(row RowIdentity, field, value string) error {
	s.lock.Lock()
	index := s.resolveLocked(row)
	if index < 0 {
		s.lock.Unlock()
		return apperrors.Wrapf(apperrors.ErrNotFound, "row %q/%d", row.ID, row.Index)
	}

	target := &s.working[index]
	switch field {
	case "name":
		target.Name = value
	case "date":
		target.Date = value
	case "time":
		target.TimeSlot = value
	case "contact":
		target.ContactInfo = value
	case "status":
		target.Status = Status(value)
	case "confirmationCode":
		target.ConfirmationCode = value
	case "partySize":
		size, err := strconv.Atoi(value)
		if err != nil {
			s.lock.Unlock()
			return apperrors.Wrapf(apperrors.ErrInvalidFieldValue, "partySize %q", value)
		}
		target.PartySize = size
	default:
		s.lock.Unlock()
		return apperrors.Wrapf(apperrors.ErrInvalidFieldValue, "field %q", field)
	}
	snapshot := s.snapshotLocked()
	s.lock.Unlock()

	s.publishUpdate(snapshot)
	return nil
}

// AddBlankRow appends an editable row and immediately persists it upstream
// as a create-with-empty-fields, then re-fetches. The row is never purely
// local, so what the user sees cannot diverge from what is durably stored.
func (s *Synchronizer) AddBlankRow(ctx context.Context, date string) error {
	s.pushLock.Lock()
	defer s.pushLock.Unlock()

	blank := s.blankRow(date)
	s.lock.Lock()
	s.working = append(s.working, blank)
	s.lock.Unlock()

	record := UpsertRecord{RecordID: nil, UpdatedFields: Reservation{TenantID: s.tenantID, Date: date}}
	if err := s.api.PushReservations(ctx, s.tenantID, []UpsertRecord{record}); err != nil {
		s.reportError(TriggerAddRow, err)
		return err
	}
	return s.Refresh(ctx, TriggerAddRow)
}

// PushEdits sends the full working set as an upsert batch (rows with every
// editable field empty are skipped, null id means create), then re-fetches
// to reconcile with whatever the server actually persisted. The reconciling
// fetch is never issued before the push completes.
func (s *Synchronizer) PushEdits(ctx context.Context) error {
	s.pushLock.Lock()
	defer s.pushLock.Unlock()

	s.lock.Lock()
	records := make([]UpsertRecord, 0, len(s.working))
	for _, row := range s.working {
		if row.IsEmpty() {
			continue
		}
		record := UpsertRecord{UpdatedFields: row}
		if row.ID != "" {
			record.RecordID = utils.Ptr(row.ID)
		}
		records = append(records, record)
	}
	s.lock.Unlock()

	if err := s.api.PushReservations(ctx, s.tenantID, records); err != nil {
		metrics.RecordPush("failure")
		s.reportError(TriggerPush, err)
		return err
	}
	metrics.RecordPush("success")

	s.hub.Publish(broadcast.Signal{Kind: broadcast.KindChange, TenantID: s.tenantID})
	return s.Refresh(ctx, TriggerPush)
}

// SetDate selects a different calendar day, invalidating the cache and
// forcing an immediate re-fetch.
func (s *Synchronizer) SetDate(ctx context.Context, date string) error {
	s.lock.Lock()
	if s.date == date {
		s.lock.Unlock()
		return nil
	}
	s.date = date
	s.working = nil
	s.lock.Unlock()
	return s.Refresh(ctx, TriggerDate)
}

// TimezoneChanged invalidates the cache after a tenant timezone update; the
// agenda is timezone-dependent.
func (s *Synchronizer) TimezoneChanged(ctx context.Context) error {
	s.lock.Lock()
	s.working = nil
	s.lock.Unlock()
	return s.Refresh(ctx, TriggerTimezone)
}

// NotifyVisible signals that the view regained visibility/focus. Delivery
// is non-blocking; a refresh is already pending if the channel is full.
func (s *Synchronizer) NotifyVisible() {
	select {
	case s.visibility <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := s.api.PollChangeFlag(ctx, s.tenantID)
			if err != nil {
				s.reportError(TriggerPoll, err)
				continue
			}
			metrics.RecordPoll(changed)
			if !changed {
				continue
			}
			if err := s.Refresh(ctx, TriggerPoll); err != nil {
				log.Debug().Err(err).Msg("Poll-triggered refresh failed")
			}
		}
	}
}

func (s *Synchronizer) broadcastLoop(ctx context.Context) {
	defer s.wg.Done()
	signals, cancel := s.hub.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-signals:
			if !ok {
				return
			}
			if signal.TenantID != "" && signal.TenantID != s.tenantID {
				continue
			}
			if err := s.Refresh(ctx, TriggerBroadcast); err != nil {
				log.Debug().Err(err).Msg("Broadcast-triggered refresh failed")
			}
		}
	}
}

func (s *Synchronizer) visibilityLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.visibility:
			if !s.visibilityLimiter.Allow() {
				continue
			}
			if err := s.Refresh(ctx, TriggerVisibility); err != nil {
				log.Debug().Err(err).Msg("Visibility-triggered refresh failed")
			}
		}
	}
}

// blankRow builds the synthetic editable row appended to editable views.
// The provisional ID gives the row a stable identity before the remote
// side assigns a real one.
func (s *Synchronizer) blankRow(date string) Reservation {
	return Reservation{
		ProvisionalID: uuid.New().String(),
		TenantID:      s.tenantID,
		Date:          date,
	}
}

func (s *Synchronizer) resolveLocked(row RowIdentity) int {
	if row.ID != "" {
		for i := range s.working {
			if s.working[i].ID == row.ID || s.working[i].ProvisionalID == row.ID {
				return i
			}
		}
		return -1
	}
	if row.Index < 0 || row.Index >= len(s.working) {
		return -1
	}
	return row.Index
}

func (s *Synchronizer) snapshotLocked() []Reservation {
	snapshot := make([]Reservation, len(s.working))
	copy(snapshot, s.working)
	return snapshot
}

func (s *Synchronizer) publishUpdate(snapshot []Reservation) {
	if s.onUpdate != nil {
		s.onUpdate(snapshot)
	}
}

// reportError escalates auth failures to the session manager and logs the
// rest; the last known good working copy stays displayed either way.
func (s *Synchronizer) reportError(trigger string, err error) {
	if apperrors.Is(err, apperrors.ErrUnauthorized) {
		if s.escalate != nil {
			s.escalate(err)
		}
		return
	}
	if apperrors.Is(err, context.Canceled) || apperrors.Is(err, apperrors.ErrNoCredential) {
		return
	}
	log.Warn().Err(err).Str("trigger", trigger).Msg("Reservation request failed")
}
