package application

import (
	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
)

const ApplyPassengerChangeCommand = "ApplyPassengerChange"

// ApplyPassengerChangeData carries one change pushed by the store.
type ApplyPassengerChangeData struct {
	VehicleID string
	Event     domain.ChangeEvent
}

type applyPassengerChangeCommand struct {
	data ApplyPassengerChangeData
}

func (c applyPassengerChangeCommand) CommandName() string {
	return ApplyPassengerChangeCommand
}

func (c applyPassengerChangeCommand) Payload() ApplyPassengerChangeData {
	return c.data
}

func NewApplyPassengerChangeCommand(data ApplyPassengerChangeData) pkgDomain.Command[ApplyPassengerChangeData] {
	return applyPassengerChangeCommand{data: data}
}
