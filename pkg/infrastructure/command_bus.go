package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"github.com/mateusmacedo/go-boarding/pkg/application"
	"github.com/mateusmacedo/go-boarding/pkg/domain"
)

// ErrNoCommandHandler is returned by Dispatch when nothing handles the command name.
var ErrNoCommandHandler = fmt.Errorf("no handler registered for command")

type simpleCommandBus[C domain.Command[D], D any] struct {
	handlers map[string]application.CommandHandler[C, D]
	mu       sync.RWMutex
	logger   application.AppLogger
}

// NewSimpleCommandBus runs handlers synchronously on the caller's goroutine,
// so commands dispatched from one goroutine are handled in dispatch order.
func NewSimpleCommandBus[C domain.Command[D], D any](logger application.AppLogger) application.CommandBus[C, D] {
	return &simpleCommandBus[C, D]{
		handlers: make(map[string]application.CommandHandler[C, D]),
		logger:   logger,
	}
}

func (bus *simpleCommandBus[C, D]) RegisterHandler(commandName string, handler application.CommandHandler[C, D]) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[commandName] = handler
}

func (bus *simpleCommandBus[C, D]) Dispatch(ctx context.Context, command C) error {
	bus.mu.RLock()
	handler, found := bus.handlers[command.CommandName()]
	bus.mu.RUnlock()

	if !found {
		application.LogError(ctx, bus.logger, "command dispatch failed", ErrNoCommandHandler, map[string]interface{}{
			"command_name": command.CommandName(),
		})
		return fmt.Errorf("%w: %s", ErrNoCommandHandler, command.CommandName())
	}

	return handler.Handle(ctx, command)
}
