package application

import (
	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
)

const BoardingStateChangedEvent = "BoardingStateChanged"

type boardingStateChangedEvent struct {
	data domain.StateChange
}

func (e boardingStateChangedEvent) EventName() string {
	return BoardingStateChangedEvent
}

func (e boardingStateChangedEvent) Payload() domain.StateChange {
	return e.data
}

// NewBoardingStateChangedEvent wraps one committed scheduler mutation.
func NewBoardingStateChangedEvent(data domain.StateChange) pkgDomain.Event[domain.StateChange] {
	return boardingStateChangedEvent{data: data}
}
