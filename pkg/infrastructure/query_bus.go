package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"github.com/mateusmacedo/go-boarding/pkg/application"
	"github.com/mateusmacedo/go-boarding/pkg/domain"
)

// ErrNoQueryHandler is returned by Dispatch when nothing handles the query name.
var ErrNoQueryHandler = fmt.Errorf("no handler registered for query")

type simpleQueryBus[Q domain.Query[D], D any, R any] struct {
	handlers map[string]application.QueryHandler[Q, D, R]
	mu       sync.RWMutex
	logger   application.AppLogger
}

func NewSimpleQueryBus[Q domain.Query[D], D any, R any](logger application.AppLogger) application.QueryBus[Q, D, R] {
	return &simpleQueryBus[Q, D, R]{
		handlers: make(map[string]application.QueryHandler[Q, D, R]),
		logger:   logger,
	}
}

func (bus *simpleQueryBus[Q, D, R]) RegisterHandler(queryName string, handler application.QueryHandler[Q, D, R]) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[queryName] = handler
}

// Dispatch runs the handler on its own goroutine so a cancelled context
// returns to the caller without waiting for the handler.
func (bus *simpleQueryBus[Q, D, R]) Dispatch(ctx context.Context, query Q) (R, error) {
	bus.mu.RLock()
	handler, found := bus.handlers[query.QueryName()]
	bus.mu.RUnlock()

	var zero R
	if !found {
		application.LogError(ctx, bus.logger, "query dispatch failed", ErrNoQueryHandler, map[string]interface{}{
			"query_name": query.QueryName(),
		})
		return zero, fmt.Errorf("%w: %s", ErrNoQueryHandler, query.QueryName())
	}

	resultChan := make(chan R, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := handler.Handle(ctx, query)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- result
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case result := <-resultChan:
		return result, nil
	case err := <-errChan:
		return zero, err
	}
}
