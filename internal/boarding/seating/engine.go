package seating

import (
	"errors"
	"fmt"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
)

var (
	ErrUnknownSeat = errors.New("unknown seat")
	ErrSeatTaken   = errors.New("seat already assigned")
)

// Engine tracks which seats of a layout are held and by whom. It is not
// safe for concurrent use.
type Engine struct {
	layout  *Layout
	holders map[string]string // seat -> passenger
	seats   map[string]string // passenger -> seat
}

func NewEngine(layout *Layout) *Engine {
	return &Engine{
		layout:  layout,
		holders: make(map[string]string),
		seats:   make(map[string]string),
	}
}

// Assign picks a seat for the passenger: the free preference first, then
// the type heuristic. A passenger already holding a seat keeps it. ok is
// false when no seat is free.
func (e *Engine) Assign(passengerID string, typ domain.PassengerType, preference string) (seat string, ok bool) {
	if held, has := e.seats[passengerID]; has {
		return held, true
	}
	if preference != "" && e.free(preference) {
		e.hold(preference, passengerID)
		return preference, true
	}

	seat, ok = e.pick(typ)
	if !ok {
		return "", false
	}
	e.hold(seat, passengerID)
	return seat, true
}

// Claim grants one specific seat.
func (e *Engine) Claim(passengerID, seat string) error {
	if _, known := e.layout.Seat(seat); !known {
		return fmt.Errorf("%w: %s", ErrUnknownSeat, seat)
	}
	holder, held := e.holders[seat]
	if held && holder == passengerID {
		return nil
	}
	if held {
		return fmt.Errorf("%w: %s", ErrSeatTaken, seat)
	}
	if current, has := e.seats[passengerID]; has {
		delete(e.holders, current)
	}
	e.hold(seat, passengerID)
	return nil
}

// Release returns the passenger's seat to the pool.
func (e *Engine) Release(passengerID string) (string, bool) {
	seat, ok := e.seats[passengerID]
	if !ok {
		return "", false
	}
	delete(e.seats, passengerID)
	delete(e.holders, seat)
	return seat, true
}

func (e *Engine) SeatOf(passengerID string) (string, bool) {
	seat, ok := e.seats[passengerID]
	return seat, ok
}

func (e *Engine) IsFree(seat string) bool {
	return e.free(seat)
}

// Available lists the unassigned seats in layout order.
func (e *Engine) Available() []string {
	out := make([]string, 0, e.layout.Len()-len(e.holders))
	for _, s := range e.layout.seats {
		if _, held := e.holders[s.ID]; !held {
			out = append(out, s.ID)
		}
	}
	return out
}

// Assignments lists the active assignments in layout order.
func (e *Engine) Assignments() []domain.SeatAssignment {
	out := make([]domain.SeatAssignment, 0, len(e.holders))
	for _, s := range e.layout.seats {
		if pid, held := e.holders[s.ID]; held {
			out = append(out, domain.SeatAssignment{SeatNumber: s.ID, PassengerID: pid})
		}
	}
	return out
}

// Clone copies the assignment set; the layout is shared.
func (e *Engine) Clone() *Engine {
	c := NewEngine(e.layout)
	for seat, pid := range e.holders {
		c.holders[seat] = pid
		c.seats[pid] = seat
	}
	return c
}

func (e *Engine) free(seat string) bool {
	if _, known := e.layout.Seat(seat); !known {
		return false
	}
	_, held := e.holders[seat]
	return !held
}

func (e *Engine) hold(seat, passengerID string) {
	e.holders[seat] = passengerID
	e.seats[passengerID] = seat
}

func (e *Engine) pick(typ domain.PassengerType) (string, bool) {
	switch typ {
	case domain.TypeVIP:
		for _, group := range e.layout.PremiumGroups() {
			if seat, ok := e.first(func(s Seat) bool { return s.Group == group }); ok {
				return seat, true
			}
		}
	case domain.TypeElderly:
		if seat, ok := e.first(func(s Seat) bool { return s.Class == ClassAccessible }); ok {
			return seat, true
		}
	case domain.TypeRegular:
		if seat, ok := e.first(func(s Seat) bool { return s.Class == ClassInterior }); ok {
			return seat, true
		}
	case domain.TypeStandby:
		return e.last()
	}
	return e.first(func(Seat) bool { return true })
}

func (e *Engine) first(match func(Seat) bool) (string, bool) {
	for _, s := range e.layout.seats {
		if _, held := e.holders[s.ID]; !held && match(s) {
			return s.ID, true
		}
	}
	return "", false
}

func (e *Engine) last() (string, bool) {
	for i := len(e.layout.seats) - 1; i >= 0; i-- {
		s := e.layout.seats[i]
		if _, held := e.holders[s.ID]; !held {
			return s.ID, true
		}
	}
	return "", false
}
