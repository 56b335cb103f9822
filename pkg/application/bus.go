package application

import (
	"context"

	"github.com/mateusmacedo/go-boarding/pkg/domain"
)

// CommandHandler define a interface para manipuladores de comando.
type CommandHandler[C domain.Command[T], T any] interface {
	Handle(ctx context.Context, command C) error
}

// CommandBus define a interface para o barramento de comandos.
type CommandBus[C domain.Command[T], T any] interface {
	RegisterHandler(commandName string, handler CommandHandler[C, T])
	Dispatch(ctx context.Context, command C) error
}

// QueryHandler define a interface para manipuladores de consulta.
type QueryHandler[Q domain.Query[T], T any, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}

// QueryBus define a interface para o barramento de consultas.
type QueryBus[Q domain.Query[D], D any, R any] interface {
	RegisterHandler(queryName string, handler QueryHandler[Q, D, R])
	Dispatch(ctx context.Context, query Q) (R, error)
}

type EventHandler[E domain.Event[T], T any] interface {
	Handle(ctx context.Context, event E) error
}

// EventBus fans an event out to every handler registered under its name.
type EventBus[E domain.Event[D], D any] interface {
	RegisterHandler(eventName string, handler EventHandler[E, D])
	Publish(ctx context.Context, event E) error
}
