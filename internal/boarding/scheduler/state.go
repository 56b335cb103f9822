package scheduler

import (
	"context"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/seating"
	"github.com/mateusmacedo/go-boarding/pkg/application"
)

// state is the copy of every mutable structure taken before a mutation.
type state struct {
	waiting  []domain.Passenger
	records  map[string]domain.Passenger
	seats    *seating.Engine
	dirty    map[string]bool
	backfill map[string]bool
}

func (s *Scheduler) save() state {
	saved := state{
		waiting:  s.queue.ToOrderedSequence(),
		records:  make(map[string]domain.Passenger, len(s.records)),
		seats:    s.seats.Clone(),
		dirty:    make(map[string]bool, len(s.dirty)),
		backfill: make(map[string]bool, len(s.backfill)),
	}
	for id, p := range s.records {
		saved.records[id] = p
	}
	for id := range s.dirty {
		saved.dirty[id] = true
	}
	for id := range s.backfill {
		saved.backfill[id] = true
	}
	return saved
}

func (s *Scheduler) restore(saved state) {
	s.queue.Clear()
	for _, p := range saved.waiting {
		s.queue.Insert(p)
	}
	s.records = saved.records
	s.seats = saved.seats
	s.dirty = saved.dirty
	s.backfill = saved.backfill
}

// converge makes the local record match remote. The store is not written.
// Tombstones are final, and a boarding passenger never returns to the
// queue. The caller holds s.mu.
func (s *Scheduler) converge(ctx context.Context, remote domain.Passenger) (bool, error) {
	if remote.VehicleID != "" && remote.VehicleID != s.cfg.VehicleID {
		return false, &domain.ValidationError{Field: "vehicleId", Message: "record belongs to vehicle " + remote.VehicleID}
	}
	remote.VehicleID = s.cfg.VehicleID
	if remote.Status == "" {
		remote.Status = domain.StatusWaiting
	}
	if !remote.Type.Valid() || !remote.Status.Valid() {
		return false, &domain.ValidationError{Field: "passenger", Message: "record " + remote.ID + " has unknown type or status"}
	}

	local, exists := s.records[remote.ID]
	if !exists {
		s.admit(ctx, remote)
		return true, nil
	}

	if local.Status.Terminal() && remote.Status != local.Status {
		return false, &domain.TransitionError{ID: remote.ID, From: local.Status, To: remote.Status}
	}
	if local.Status == domain.StatusBoarding && remote.Status == domain.StatusWaiting {
		return false, &domain.TransitionError{ID: remote.ID, From: local.Status, To: remote.Status}
	}

	merged := remote
	merged.QueuePosition = local.QueuePosition
	merged.AssignedSeat = s.reconcileSeat(ctx, local, remote)

	switch {
	case merged.Status.Terminal():
		s.queue.RemoveWhere(byID(remote.ID))
		if !local.Status.Terminal() {
			s.seats.Release(remote.ID)
		}
		if merged.Status == domain.StatusCancelled && remote.AssignedSeat == "" {
			merged.AssignedSeat = ""
		}
		merged.QueuePosition = 0
	case merged.Status == domain.StatusBoarding:
		s.queue.RemoveWhere(byID(remote.ID))
		merged.QueuePosition = 0
		if merged.BoardingTime == nil {
			merged.BoardingTime = local.BoardingTime
		}
		if local.Status == domain.StatusWaiting {
			s.enterBoarding(ctx, &merged)
		}
	case !domain.SameOrderingKeys(local, merged):
		s.queue.RemoveWhere(byID(remote.ID))
		s.queue.Insert(merged)
	}

	if samePassenger(local, merged) {
		return false, nil
	}
	s.records[remote.ID] = merged
	return true, nil
}

// admit takes in a record this scheduler has never seen.
func (s *Scheduler) admit(ctx context.Context, remote domain.Passenger) {
	if remote.Status == domain.StatusWaiting && s.cfg.Capacity > 0 && s.activeCount() >= s.cfg.Capacity {
		application.LogInfo(ctx, s.logger, "remote passenger exceeds capacity", map[string]interface{}{
			"vehicle_id":   s.cfg.VehicleID,
			"passenger_id": remote.ID,
			"capacity":     s.cfg.Capacity,
		})
	}

	rec := remote
	rec.QueuePosition = 0
	if !rec.Status.Terminal() && rec.AssignedSeat != "" {
		if err := s.seats.Claim(rec.ID, rec.AssignedSeat); err != nil {
			application.LogError(ctx, s.logger, "remote seat not granted", err, map[string]interface{}{
				"vehicle_id":    s.cfg.VehicleID,
				"passenger_id":  rec.ID,
				"assigned_seat": rec.AssignedSeat,
			})
			rec.AssignedSeat = ""
		}
	}
	if rec.Status == domain.StatusBoarding {
		s.enterBoarding(ctx, &rec)
	}
	s.records[rec.ID] = rec
	if rec.Status == domain.StatusWaiting {
		s.queue.Insert(rec)
	}
}

// enterBoarding completes a boarding transition that arrived from the
// store: a passenger without a seat gets one from the engine and a missing
// boarding time is stamped. Filled fields are queued for write-back. The
// store already recorded the transition, so a missing seat is logged
// rather than rejected.
func (s *Scheduler) enterBoarding(ctx context.Context, p *domain.Passenger) {
	filled := false
	if p.AssignedSeat == "" {
		if seat, ok := s.seats.Assign(p.ID, p.Type, p.SeatPreference); ok {
			p.AssignedSeat = seat
			filled = true
		} else {
			fields := map[string]interface{}{
				"vehicle_id":   s.cfg.VehicleID,
				"passenger_id": p.ID,
			}
			if s.cfg.RequireSeat {
				application.LogError(ctx, s.logger, "remote passenger boarding without a seat", &domain.NoSeatError{VehicleID: s.cfg.VehicleID}, fields)
			} else {
				application.LogInfo(ctx, s.logger, "remote passenger boarding unseated", fields)
			}
		}
	}
	if p.BoardingTime == nil {
		now := s.clock()
		p.BoardingTime = &now
		filled = true
	}
	if filled {
		s.backfill[p.ID] = true
	}
}

// reconcileSeat returns the seat the merged record should show. A remote
// record without a seat never frees a local one, and a conflicting remote
// seat leaves the local assignment in place.
func (s *Scheduler) reconcileSeat(ctx context.Context, local, remote domain.Passenger) string {
	if local.Status.Terminal() {
		if remote.AssignedSeat == "" {
			return local.AssignedSeat
		}
		return remote.AssignedSeat
	}

	held, hasSeat := s.seats.SeatOf(remote.ID)
	if remote.AssignedSeat == "" || remote.AssignedSeat == held {
		return held
	}
	if err := s.seats.Claim(remote.ID, remote.AssignedSeat); err != nil {
		application.LogError(ctx, s.logger, "remote seat conflicts with local assignment", err, map[string]interface{}{
			"vehicle_id":    s.cfg.VehicleID,
			"passenger_id":  remote.ID,
			"remote_seat":   remote.AssignedSeat,
			"assigned_seat": held,
		})
		if hasSeat {
			return held
		}
		return ""
	}
	return remote.AssignedSeat
}

func samePassenger(a, b domain.Passenger) bool {
	if a.ID != b.ID || a.VehicleID != b.VehicleID || a.Name != b.Name || a.Type != b.Type ||
		a.SeatPreference != b.SeatPreference || a.AssignedSeat != b.AssignedSeat ||
		a.Status != b.Status || a.QueuePosition != b.QueuePosition {
		return false
	}
	if !a.ArrivalTime.Equal(b.ArrivalTime) {
		return false
	}
	switch {
	case a.BoardingTime == nil && b.BoardingTime == nil:
		return true
	case a.BoardingTime == nil || b.BoardingTime == nil:
		return false
	default:
		return a.BoardingTime.Equal(*b.BoardingTime)
	}
}
