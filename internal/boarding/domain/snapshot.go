package domain

// QueueSnapshot is a consistent read of one vehicle's scheduling state.
type QueueSnapshot struct {
	VehicleID      string                `json:"vehicleId"`
	Version        uint64                `json:"version"`
	Waiting        []Passenger           `json:"waiting"`
	Boarding       []Passenger           `json:"boarding"`
	Seats          []SeatAssignment      `json:"seats"`
	AvailableSeats []string              `json:"availableSeats"`
	ByType         map[PassengerType]int `json:"byType"`
	Capacity       int                   `json:"capacity"`
	Active         int                   `json:"active"`
}

// Next returns the passenger that would board next.
func (s QueueSnapshot) Next() (Passenger, bool) {
	if len(s.Waiting) == 0 {
		return Passenger{}, false
	}
	return s.Waiting[0], true
}
