package domain

import (
	"strings"
	"time"
)

type PassengerType string

const (
	TypeVIP     PassengerType = "vip"
	TypeElderly PassengerType = "elderly"
	TypeRegular PassengerType = "regular"
	TypeStandby PassengerType = "standby"
)

// PassengerTypes lists every known type in boarding priority order.
var PassengerTypes = []PassengerType{TypeVIP, TypeElderly, TypeRegular, TypeStandby}

// Rank is the primary ordering key; lower boards sooner. Unknown types rank
// after every known one.
func (t PassengerType) Rank() int {
	switch t {
	case TypeVIP:
		return 0
	case TypeElderly:
		return 1
	case TypeRegular:
		return 2
	case TypeStandby:
		return 3
	default:
		return 4
	}
}

func (t PassengerType) Valid() bool {
	return t.Rank() < 4
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusBoarding  Status = "boarding"
	StatusBoarded   Status = "boarded"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusBoarding, StatusBoarded, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the passenger no longer takes part in ordering.
func (s Status) Terminal() bool {
	return s == StatusBoarded || s == StatusCancelled
}

// Passenger is one record of the passenger_queue table.
type Passenger struct {
	ID             string        `json:"id" gorm:"primaryKey;column:id"`
	VehicleID      string        `json:"vehicleId" gorm:"index;column:vehicle_id;not null"`
	Name           string        `json:"name" gorm:"column:passenger_name;not null"`
	Type           PassengerType `json:"type" gorm:"column:passenger_type;not null"`
	ArrivalTime    time.Time     `json:"arrivalTime" gorm:"column:arrival_time;index"`
	SeatPreference string        `json:"seatPreference,omitempty" gorm:"column:seat_preference"`
	AssignedSeat   string        `json:"assignedSeat,omitempty" gorm:"column:assigned_seat"`
	Status         Status        `json:"status" gorm:"column:status;not null;default:waiting"`
	BoardingTime   *time.Time    `json:"boardingTime,omitempty" gorm:"column:boarding_time"`
	QueuePosition  int           `json:"queuePosition" gorm:"column:queue_position"`
}

func (Passenger) TableName() string {
	return "passenger_queue"
}

// Less is the boarding comparator: type rank, then arrival time. Identical
// keys fall back to the identifier so the order stays total.
func Less(a, b Passenger) bool {
	if ra, rb := a.Type.Rank(), b.Type.Rank(); ra != rb {
		return ra < rb
	}
	if !a.ArrivalTime.Equal(b.ArrivalTime) {
		return a.ArrivalTime.Before(b.ArrivalTime)
	}
	return a.ID < b.ID
}

// SameOrderingKeys reports whether a reorder is needed after replacing a with b.
func SameOrderingKeys(a, b Passenger) bool {
	return a.Type == b.Type && a.ArrivalTime.Equal(b.ArrivalTime)
}

// NewPassenger is the input of an enqueue request. ID and ArrivalTime are
// optional; reconciliation paths supply both.
type NewPassenger struct {
	ID             string        `json:"id,omitempty"`
	Name           string        `json:"name"`
	Type           PassengerType `json:"type"`
	SeatPreference string        `json:"seatPreference,omitempty"`
	ArrivalTime    *time.Time    `json:"arrivalTime,omitempty"`
}

// Validate checks the name and type; it does not know the seat layout.
func (n NewPassenger) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return &ValidationError{Field: "name", Message: "passenger name is required"}
	}
	if !n.Type.Valid() {
		return &ValidationError{Field: "type", Message: "unknown passenger type " + string(n.Type)}
	}
	return nil
}

// SeatAssignment binds a seat to the passenger currently holding it.
type SeatAssignment struct {
	SeatNumber  string `json:"seatNumber"`
	PassengerID string `json:"passengerId"`
}

// PassengerUpdate carries the fields a persistUpdate writes. Nil fields are
// left untouched.
type PassengerUpdate struct {
	Name           *string    `json:"name,omitempty"`
	SeatPreference *string    `json:"seatPreference,omitempty"`
	AssignedSeat   *string    `json:"assignedSeat,omitempty"`
	Status         *Status    `json:"status,omitempty"`
	BoardingTime   *time.Time `json:"boardingTime,omitempty"`
	QueuePosition  *int       `json:"queuePosition,omitempty"`
}

// Apply returns p with the non-nil fields of u written over it.
func (u PassengerUpdate) Apply(p Passenger) Passenger {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.SeatPreference != nil {
		p.SeatPreference = *u.SeatPreference
	}
	if u.AssignedSeat != nil {
		p.AssignedSeat = *u.AssignedSeat
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.BoardingTime != nil {
		t := *u.BoardingTime
		p.BoardingTime = &t
	}
	if u.QueuePosition != nil {
		p.QueuePosition = *u.QueuePosition
	}
	return p
}

// Columns maps the update to passenger_queue column names.
func (u PassengerUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if u.Name != nil {
		cols["passenger_name"] = *u.Name
	}
	if u.SeatPreference != nil {
		cols["seat_preference"] = *u.SeatPreference
	}
	if u.AssignedSeat != nil {
		cols["assigned_seat"] = *u.AssignedSeat
	}
	if u.Status != nil {
		cols["status"] = string(*u.Status)
	}
	if u.BoardingTime != nil {
		cols["boarding_time"] = *u.BoardingTime
	}
	if u.QueuePosition != nil {
		cols["queue_position"] = *u.QueuePosition
	}
	return cols
}
