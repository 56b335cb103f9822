// Package scheduler implements the per-vehicle boarding state machine.
//
// A Scheduler owns the priority queue of waiting passengers, the seat
// assignment set and every known passenger record of one vehicle. All
// mutations run inside a single critical section, including the store
// round-trip, so the in-memory order never reflects a write the store
// rejected: a failed primary write restores the state saved before the
// mutation and surfaces a PersistenceError.
package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/queue"
	"github.com/mateusmacedo/go-boarding/internal/boarding/seating"
	"github.com/mateusmacedo/go-boarding/pkg/application"
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
	pkgInfra "github.com/mateusmacedo/go-boarding/pkg/infrastructure"
)

type Config struct {
	VehicleID string
	// Capacity caps the passengers that are not cancelled. Zero means no cap.
	Capacity int
	// RequireSeat makes boarding fail when no seat can be assigned.
	RequireSeat bool
	Layout      *seating.Layout
}

// Observer receives one notification per committed mutation. It runs after
// the scheduler lock is released and must not assume delivery order across
// goroutines; StateChange.Version orders them.
type Observer interface {
	StateChanged(ctx context.Context, change domain.StateChange)
}

type ObserverFunc func(ctx context.Context, change domain.StateChange)

func (f ObserverFunc) StateChanged(ctx context.Context, change domain.StateChange) {
	f(ctx, change)
}

type Option func(*Scheduler)

func WithLogger(logger application.AppLogger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithIDGenerator(ids pkgDomain.IDGenerator[string]) Option {
	return func(s *Scheduler) { s.ids = ids }
}

type Scheduler struct {
	mu       sync.Mutex
	cfg      Config
	repo     domain.PassengerRepository
	queue    *queue.Queue[domain.Passenger]
	records  map[string]domain.Passenger
	seats    *seating.Engine
	dirty    map[string]bool
	// backfill holds boarding records whose seat or boarding time was
	// filled in locally and still has to reach the store.
	backfill map[string]bool
	version  uint64

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int

	logger application.AppLogger
	clock  func() time.Time
	ids    pkgDomain.IDGenerator[string]
}

func New(cfg Config, repo domain.PassengerRepository, opts ...Option) *Scheduler {
	if cfg.Layout == nil {
		cfg.Layout = seating.DefaultLayout()
	}
	s := &Scheduler{
		cfg:       cfg,
		repo:      repo,
		queue:     queue.New(domain.Less),
		records:   make(map[string]domain.Passenger),
		seats:     seating.NewEngine(cfg.Layout),
		dirty:     make(map[string]bool),
		backfill:  make(map[string]bool),
		observers: make(map[int]Observer),
		logger:    application.NopLogger{},
		clock:     func() time.Time { return time.Now().UTC() },
		ids:       pkgInfra.NewUUIDGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) VehicleID() string {
	return s.cfg.VehicleID
}

// Subscribe registers an observer and returns the function that removes it.
func (s *Scheduler) Subscribe(observer Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = observer
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Attach seeds the scheduler from the store. Waiting records enter the
// queue, boarding records keep their seats, terminal records are kept as
// tombstones.
func (s *Scheduler) Attach(ctx context.Context) error {
	return s.reload(ctx, domain.ReasonSeeded)
}

// Resync re-reads the store and converges local state to it. Local records
// the store no longer has are dropped.
func (s *Scheduler) Resync(ctx context.Context) error {
	return s.reload(ctx, domain.ReasonResynced)
}

func (s *Scheduler) Enqueue(ctx context.Context, in domain.NewPassenger) (domain.Passenger, error) {
	p, change, err := s.enqueue(ctx, in)
	if err != nil {
		return domain.Passenger{}, err
	}
	s.notify(ctx, change)
	return p, nil
}

// BoardNext moves the highest-priority waiting passenger to boarding. ok is
// false, with a nil error, when nobody is waiting.
func (s *Scheduler) BoardNext(ctx context.Context) (p domain.Passenger, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return domain.Passenger{}, false, err
	}

	s.mu.Lock()
	next, found := s.queue.PeekMin()
	if !found {
		s.mu.Unlock()
		return domain.Passenger{}, false, nil
	}
	p, change, err := s.board(ctx, next.ID)
	s.mu.Unlock()
	if err != nil {
		return domain.Passenger{}, false, err
	}

	s.notify(ctx, change)
	return p, true, nil
}

// BoardSpecific moves one waiting passenger to boarding regardless of rank.
func (s *Scheduler) BoardSpecific(ctx context.Context, id string) (domain.Passenger, error) {
	if err := ctx.Err(); err != nil {
		return domain.Passenger{}, err
	}

	s.mu.Lock()
	p, change, err := s.board(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return domain.Passenger{}, err
	}

	s.notify(ctx, change)
	return p, nil
}

// ConfirmBoarded completes boarding: the passenger leaves every active
// structure and the seat returns to the pool.
func (s *Scheduler) ConfirmBoarded(ctx context.Context, id string) (domain.Passenger, error) {
	p, change, err := s.finish(ctx, id, domain.StatusBoarded)
	if err != nil {
		return domain.Passenger{}, err
	}
	s.notify(ctx, change)
	return p, nil
}

// Remove cancels a waiting or boarding passenger. The record stays as a
// cancelled tombstone.
func (s *Scheduler) Remove(ctx context.Context, id string) (domain.Passenger, error) {
	p, change, err := s.finish(ctx, id, domain.StatusCancelled)
	if err != nil {
		return domain.Passenger{}, err
	}
	s.notify(ctx, change)
	return p, nil
}

// ApplyRemote converges the local record to one read from the store without
// writing it back. changed is false when the record already matched.
func (s *Scheduler) ApplyRemote(ctx context.Context, remote domain.Passenger) (changed bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	changed, err = s.converge(ctx, remote)
	if err != nil || !changed {
		s.mu.Unlock()
		return false, err
	}
	s.recomputePositions()
	s.writeBack(ctx)
	change := s.commit(domain.ReasonReconciled, remote.ID)
	s.mu.Unlock()

	s.notify(ctx, change)
	return true, nil
}

// Forget drops a record deleted from the store. Unknown ids are a no-op.
func (s *Scheduler) Forget(ctx context.Context, id string) bool {
	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		return false
	}
	s.drop(id)
	s.recomputePositions()
	s.writeBack(ctx)
	change := s.commit(domain.ReasonDeleted, id)
	s.mu.Unlock()

	s.notify(ctx, change)
	return true
}

func (s *Scheduler) Get(id string) (domain.Passenger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[id]
	if !ok {
		return domain.Passenger{}, &domain.NotFoundError{ID: id}
	}
	return p, nil
}

// Peek returns the passenger BoardNext would pick.
func (s *Scheduler) Peek() (domain.Passenger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.queue.PeekMin()
	if !ok {
		return domain.Passenger{}, false
	}
	return s.records[next.ID], true
}

// Size is the number of waiting passengers.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

func (s *Scheduler) Snapshot() domain.QueueSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.QueueSnapshot{
		VehicleID:      s.cfg.VehicleID,
		Version:        s.version,
		Waiting:        s.waiting(),
		Boarding:       []domain.Passenger{},
		Seats:          s.seats.Assignments(),
		AvailableSeats: s.seats.Available(),
		ByType:         make(map[domain.PassengerType]int, len(domain.PassengerTypes)),
		Capacity:       s.cfg.Capacity,
		Active:         s.activeCount(),
	}
	for _, t := range domain.PassengerTypes {
		snap.ByType[t] = 0
	}
	for _, p := range snap.Waiting {
		snap.ByType[p.Type]++
	}
	for _, p := range s.records {
		if p.Status == domain.StatusBoarding {
			snap.Boarding = append(snap.Boarding, p)
		}
	}
	sort.Slice(snap.Boarding, func(i, j int) bool {
		return boardingBefore(snap.Boarding[i], snap.Boarding[j])
	})
	return snap
}

func (s *Scheduler) enqueue(ctx context.Context, in domain.NewPassenger) (domain.Passenger, domain.StateChange, error) {
	if err := ctx.Err(); err != nil {
		return domain.Passenger{}, domain.StateChange{}, err
	}
	if err := in.Validate(); err != nil {
		return domain.Passenger{}, domain.StateChange{}, err
	}
	if in.SeatPreference != "" {
		if _, known := s.cfg.Layout.Seat(in.SeatPreference); !known {
			return domain.Passenger{}, domain.StateChange{}, &domain.ValidationError{
				Field:   "seatPreference",
				Message: "unknown seat " + in.SeatPreference,
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ID != "" {
		if _, exists := s.records[in.ID]; exists {
			return domain.Passenger{}, domain.StateChange{}, &domain.ValidationError{
				Field:   "id",
				Message: "passenger " + in.ID + " already known",
			}
		}
	}
	if s.cfg.Capacity > 0 && s.activeCount() >= s.cfg.Capacity {
		return domain.Passenger{}, domain.StateChange{}, &domain.CapacityError{
			VehicleID: s.cfg.VehicleID,
			Limit:     s.cfg.Capacity,
		}
	}

	p := domain.Passenger{
		ID:             in.ID,
		VehicleID:      s.cfg.VehicleID,
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		SeatPreference: in.SeatPreference,
		Status:         domain.StatusWaiting,
		ArrivalTime:    s.clock(),
	}
	if p.ID == "" {
		p.ID = s.ids()
	}
	if in.ArrivalTime != nil {
		p.ArrivalTime = in.ArrivalTime.UTC()
	}

	saved := s.save()
	if p.SeatPreference != "" && s.seats.IsFree(p.SeatPreference) {
		if err := s.seats.Claim(p.ID, p.SeatPreference); err == nil {
			p.AssignedSeat = p.SeatPreference
		}
	}
	s.records[p.ID] = p
	s.queue.Insert(p)
	s.recomputePositions()

	stored, err := s.repo.Insert(ctx, s.records[p.ID])
	if err != nil {
		s.restore(saved)
		application.LogError(ctx, s.logger, "enqueue rolled back", err, map[string]interface{}{
			"vehicle_id":   s.cfg.VehicleID,
			"passenger_id": p.ID,
		})
		return domain.Passenger{}, domain.StateChange{}, &domain.PersistenceError{Op: "insert", ID: p.ID, Err: err}
	}
	delete(s.dirty, p.ID)
	if stored.ID != "" {
		s.adoptStored(p.ID, stored)
		p.ID = stored.ID
	}
	s.recomputePositions()
	s.writeBack(ctx)

	application.LogInfo(ctx, s.logger, "passenger enqueued", map[string]interface{}{
		"vehicle_id":     s.cfg.VehicleID,
		"passenger_id":   p.ID,
		"passenger_type": p.Type,
		"queue_position": s.records[p.ID].QueuePosition,
		"assigned_seat":  s.records[p.ID].AssignedSeat,
	})
	return s.records[p.ID], s.commit(domain.ReasonEnqueued, p.ID), nil
}

// adoptStored swaps the provisional record for the stored one. The store
// owns the identifier and the timestamps it normalized; status and seat
// stay local.
func (s *Scheduler) adoptStored(provisionalID string, stored domain.Passenger) {
	local := s.records[provisionalID]
	stored.Status = local.Status
	stored.AssignedSeat = local.AssignedSeat
	stored.QueuePosition = local.QueuePosition
	stored.VehicleID = s.cfg.VehicleID

	if stored.ID == provisionalID && domain.SameOrderingKeys(local, stored) {
		s.records[stored.ID] = stored
		return
	}

	s.queue.RemoveWhere(byID(provisionalID))
	delete(s.records, provisionalID)
	if seat, ok := s.seats.Release(provisionalID); ok {
		_ = s.seats.Claim(stored.ID, seat)
	}
	s.records[stored.ID] = stored
	s.queue.Insert(stored)
}

// board runs waiting -> boarding. The caller holds s.mu.
func (s *Scheduler) board(ctx context.Context, id string) (domain.Passenger, domain.StateChange, error) {
	rec, ok := s.records[id]
	if !ok {
		return domain.Passenger{}, domain.StateChange{}, &domain.NotFoundError{ID: id}
	}
	if rec.Status != domain.StatusWaiting {
		if rec.Status.Terminal() {
			return domain.Passenger{}, domain.StateChange{}, &domain.NotFoundError{ID: id}
		}
		return domain.Passenger{}, domain.StateChange{}, &domain.TransitionError{ID: id, From: rec.Status, To: domain.StatusBoarding}
	}
	_, hasSeat := s.seats.SeatOf(id)
	if !hasSeat && s.cfg.RequireSeat && len(s.seats.Available()) == 0 {
		return domain.Passenger{}, domain.StateChange{}, &domain.NoSeatError{VehicleID: s.cfg.VehicleID}
	}

	saved := s.save()
	seat, _ := s.seats.Assign(id, rec.Type, rec.SeatPreference)
	now := s.clock()
	rec.Status = domain.StatusBoarding
	rec.BoardingTime = &now
	rec.AssignedSeat = seat
	rec.QueuePosition = 0
	s.records[id] = rec
	s.queue.RemoveWhere(byID(id))

	status, position := rec.Status, 0
	_, err := s.repo.Update(ctx, id, domain.PassengerUpdate{
		Status:        &status,
		BoardingTime:  &now,
		AssignedSeat:  &seat,
		QueuePosition: &position,
	})
	if err != nil {
		s.restore(saved)
		application.LogError(ctx, s.logger, "boarding rolled back", err, map[string]interface{}{
			"vehicle_id":   s.cfg.VehicleID,
			"passenger_id": id,
		})
		return domain.Passenger{}, domain.StateChange{}, &domain.PersistenceError{Op: "update", ID: id, Err: err}
	}
	delete(s.dirty, id)
	s.recomputePositions()
	s.writeBack(ctx)

	application.LogInfo(ctx, s.logger, "passenger boarding", map[string]interface{}{
		"vehicle_id":    s.cfg.VehicleID,
		"passenger_id":  id,
		"assigned_seat": seat,
	})
	return rec, s.commit(domain.ReasonBoarding, id), nil
}

// finish runs the transitions into a terminal status.
func (s *Scheduler) finish(ctx context.Context, id string, to domain.Status) (domain.Passenger, domain.StateChange, error) {
	if err := ctx.Err(); err != nil {
		return domain.Passenger{}, domain.StateChange{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status.Terminal() {
		return domain.Passenger{}, domain.StateChange{}, &domain.NotFoundError{ID: id}
	}
	if to == domain.StatusBoarded && rec.Status != domain.StatusBoarding {
		return domain.Passenger{}, domain.StateChange{}, &domain.TransitionError{ID: id, From: rec.Status, To: to}
	}

	saved := s.save()
	s.queue.RemoveWhere(byID(id))
	s.seats.Release(id)
	rec.Status = to
	rec.QueuePosition = 0
	update := domain.PassengerUpdate{Status: &rec.Status, QueuePosition: &rec.QueuePosition}
	if to == domain.StatusCancelled {
		rec.AssignedSeat = ""
		update.AssignedSeat = &rec.AssignedSeat
	}
	s.records[id] = rec

	if _, err := s.repo.Update(ctx, id, update); err != nil {
		s.restore(saved)
		application.LogError(ctx, s.logger, "status change rolled back", err, map[string]interface{}{
			"vehicle_id":   s.cfg.VehicleID,
			"passenger_id": id,
			"status":       to,
		})
		return domain.Passenger{}, domain.StateChange{}, &domain.PersistenceError{Op: "update", ID: id, Err: err}
	}
	delete(s.dirty, id)
	s.recomputePositions()
	s.writeBack(ctx)

	reason := domain.ReasonCancelled
	if to == domain.StatusBoarded {
		reason = domain.ReasonBoarded
	}
	application.LogInfo(ctx, s.logger, "passenger left the queue", map[string]interface{}{
		"vehicle_id":   s.cfg.VehicleID,
		"passenger_id": id,
		"status":       to,
	})
	return rec, s.commit(reason, id), nil
}

func (s *Scheduler) reload(ctx context.Context, reason domain.ChangeReason) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	remote, err := s.repo.FetchAll(ctx, s.cfg.VehicleID)
	if err != nil {
		s.mu.Unlock()
		application.LogError(ctx, s.logger, "fetch passengers failed", err, map[string]interface{}{
			"vehicle_id": s.cfg.VehicleID,
		})
		return &domain.PersistenceError{Op: "fetch", Err: err}
	}

	seen := make(map[string]bool, len(remote))
	for _, p := range remote {
		seen[p.ID] = true
		if _, err := s.converge(ctx, p); err != nil {
			application.LogError(ctx, s.logger, "skipping stored passenger", err, map[string]interface{}{
				"vehicle_id":   s.cfg.VehicleID,
				"passenger_id": p.ID,
			})
		}
	}
	for id := range s.records {
		if !seen[id] {
			s.drop(id)
		}
	}
	s.recomputePositions()
	s.writeBack(ctx)
	change := s.commit(reason, "")
	s.mu.Unlock()

	application.LogInfo(ctx, s.logger, "passengers loaded", map[string]interface{}{
		"vehicle_id": s.cfg.VehicleID,
		"records":    len(remote),
		"waiting":    change.QueueSize,
		"reason":     reason,
	})
	s.notify(ctx, change)
	return nil
}

// recomputePositions re-derives 1..n over the waiting passengers from the
// queue order. Every other record gets position 0. Changed records are
// marked for write-back.
func (s *Scheduler) recomputePositions() {
	waiting := make(map[string]int, s.queue.Size())
	for i, entry := range s.queue.ToOrderedSequence() {
		waiting[entry.ID] = i + 1
	}
	for id, rec := range s.records {
		pos := waiting[id]
		if rec.QueuePosition != pos {
			rec.QueuePosition = pos
			s.records[id] = rec
			s.dirty[id] = true
		}
	}
}

// writeBack persists changed positions and backfilled boarding fields.
// Failures stay marked and are retried after the next mutation; the write
// is not tied to the caller's cancellation since the mutation is already
// committed.
func (s *Scheduler) writeBack(ctx context.Context) {
	if len(s.dirty) == 0 && len(s.backfill) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	pending := make(map[string]bool, len(s.dirty)+len(s.backfill))
	for id := range s.dirty {
		pending[id] = true
	}
	for id := range s.backfill {
		pending[id] = true
	}
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			delete(s.dirty, id)
			delete(s.backfill, id)
			continue
		}
		pos := rec.QueuePosition
		update := domain.PassengerUpdate{QueuePosition: &pos}
		if s.backfill[id] {
			seat := rec.AssignedSeat
			update.AssignedSeat = &seat
			update.BoardingTime = rec.BoardingTime
		}
		if _, err := s.repo.Update(ctx, id, update); err != nil {
			application.LogError(ctx, s.logger, "write-back failed", err, map[string]interface{}{
				"vehicle_id":     s.cfg.VehicleID,
				"passenger_id":   id,
				"queue_position": pos,
				"backfill":       s.backfill[id],
			})
			continue
		}
		delete(s.dirty, id)
		delete(s.backfill, id)
	}
}

func (s *Scheduler) drop(id string) {
	s.queue.RemoveWhere(byID(id))
	s.seats.Release(id)
	delete(s.records, id)
	delete(s.dirty, id)
	delete(s.backfill, id)
}

func (s *Scheduler) commit(reason domain.ChangeReason, passengerID string) domain.StateChange {
	s.version++
	return domain.StateChange{
		VehicleID:   s.cfg.VehicleID,
		Version:     s.version,
		Reason:      reason,
		PassengerID: passengerID,
		QueueSize:   s.queue.Size(),
		At:          s.clock(),
	}
}

func (s *Scheduler) notify(ctx context.Context, change domain.StateChange) {
	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.obsMu.RUnlock()

	for _, o := range observers {
		o.StateChanged(ctx, change)
	}
}

func (s *Scheduler) waiting() []domain.Passenger {
	entries := s.queue.ToOrderedSequence()
	out := make([]domain.Passenger, len(entries))
	for i, e := range entries {
		out[i] = s.records[e.ID]
	}
	return out
}

func (s *Scheduler) activeCount() int {
	n := 0
	for _, p := range s.records {
		if p.Status != domain.StatusCancelled {
			n++
		}
	}
	return n
}

func byID(id string) func(domain.Passenger) bool {
	return func(p domain.Passenger) bool { return p.ID == id }
}

func boardingBefore(a, b domain.Passenger) bool {
	if a.BoardingTime != nil && b.BoardingTime != nil && !a.BoardingTime.Equal(*b.BoardingTime) {
		return a.BoardingTime.Before(*b.BoardingTime)
	}
	return a.ID < b.ID
}
