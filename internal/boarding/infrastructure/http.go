package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mateusmacedo/go-boarding/internal/boarding/application"
	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/scheduler"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
)

// VehicleRegistry is the registry surface the HTTP layer needs.
type VehicleRegistry interface {
	Attach(ctx context.Context, vehicleID string) (*scheduler.Scheduler, error)
	Detach(vehicleID string) (bool, error)
	Get(vehicleID string) (*scheduler.Scheduler, error)
	Vehicles() []string
}

// Purger drops a passenger row and announces the delete.
type Purger interface {
	Delete(ctx context.Context, vehicleID, id string) error
}

type BoardingHTTPHandler struct {
	registry   VehicleRegistry
	commandBus application.ChangeCommandBus
	queryBus   application.QueueQueryBus
	purger     Purger
	logger     pkgApp.AppLogger
	timeout    time.Duration
}

func NewBoardingHTTPHandler(
	registry VehicleRegistry,
	commandBus application.ChangeCommandBus,
	queryBus application.QueueQueryBus,
	purger Purger,
	logger pkgApp.AppLogger,
	timeout time.Duration,
) *BoardingHTTPHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BoardingHTTPHandler{
		registry:   registry,
		commandBus: commandBus,
		queryBus:   queryBus,
		purger:     purger,
		logger:     logger,
		timeout:    timeout,
	}
}

func (h *BoardingHTTPHandler) RegisterRoutes(router chi.Router) {
	router.Get("/healthz", h.HandleHealth)
	router.Route("/vehicles/{vehicleID}", func(r chi.Router) {
		r.Post("/attach", h.HandleAttach)
		r.Delete("/", h.HandleDetach)
		r.Get("/queue", h.HandleFindQueue)
		r.Post("/resync", h.HandleResync)
		r.Post("/board-next", h.HandleBoardNext)
		r.Post("/changes", h.HandleApplyChange)
		r.Post("/passengers", h.HandleEnqueue)
		r.Post("/passengers/{passengerID}/board", h.HandleBoardSpecific)
		r.Post("/passengers/{passengerID}/boarded", h.HandleConfirmBoarded)
		r.Delete("/passengers/{passengerID}", h.HandleCancel)
		r.Delete("/passengers/{passengerID}/record", h.HandlePurge)
	})
}

func (h *BoardingHTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "vehicles": h.registry.Vehicles()})
}

func (h *BoardingHTTPHandler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, err := h.registry.Attach(ctx, chi.URLParam(r, "vehicleID"))
	if err != nil {
		h.fail(ctx, w, "attach failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *BoardingHTTPHandler) HandleDetach(w http.ResponseWriter, r *http.Request) {
	if _, err := h.registry.Detach(chi.URLParam(r, "vehicleID")); err != nil {
		h.fail(r.Context(), w, "detach failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BoardingHTTPHandler) HandleFindQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	query := application.NewFindBoardingQueueQuery(application.FindBoardingQueueData{
		VehicleID: chi.URLParam(r, "vehicleID"),
	})
	snapshot, err := h.queryBus.Dispatch(ctx, query)
	if err != nil {
		h.fail(ctx, w, "find queue failed", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *BoardingHTTPHandler) HandleResync(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := s.Resync(ctx); err != nil {
		h.fail(ctx, w, "resync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *BoardingHTTPHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scheduler(w, r)
	if !ok {
		return
	}

	var input domain.NewPassenger
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		handleError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := s.Enqueue(ctx, input)
	if err != nil {
		h.fail(ctx, w, "enqueue failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": "Passenger enqueued", "data": p})
}

func (h *BoardingHTTPHandler) HandleBoardNext(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, found, err := s.BoardNext(ctx)
	if err != nil {
		h.fail(ctx, w, "board next failed", err)
		return
	}
	if !found {
		handleError(w, domain.ErrEmptyQueue.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Passenger boarding", "data": p})
}

func (h *BoardingHTTPHandler) HandleBoardSpecific(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Passenger boarding", (*scheduler.Scheduler).BoardSpecific)
}

func (h *BoardingHTTPHandler) HandleConfirmBoarded(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Passenger boarded", (*scheduler.Scheduler).ConfirmBoarded)
}

func (h *BoardingHTTPHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Passenger cancelled", (*scheduler.Scheduler).Remove)
}

// HandleApplyChange accepts a change pushed by the store, for deployments
// where the store calls back over HTTP instead of publishing to the feed.
func (h *BoardingHTTPHandler) HandleApplyChange(w http.ResponseWriter, r *http.Request) {
	var event domain.ChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		handleError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	command := application.NewApplyPassengerChangeCommand(application.ApplyPassengerChangeData{
		VehicleID: chi.URLParam(r, "vehicleID"),
		Event:     event,
	})
	if err := h.commandBus.Dispatch(ctx, command); err != nil {
		h.fail(ctx, w, "apply change failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Change applied"})
}

// HandlePurge deletes the stored row of a boarded or cancelled passenger.
func (h *BoardingHTTPHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	s, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "passengerID")
	p, err := s.Get(id)
	if err != nil {
		h.fail(ctx, w, "purge failed", err)
		return
	}
	if !p.Status.Terminal() {
		h.fail(ctx, w, "purge failed", &domain.ValidationError{Field: "status", Message: "only boarded or cancelled passengers can be purged"})
		return
	}
	if h.purger == nil {
		h.fail(ctx, w, "purge failed", ErrPurgeUnsupported)
		return
	}
	if err := h.purger.Delete(ctx, s.VehicleID(), id); err != nil {
		h.fail(ctx, w, "purge failed", err)
		return
	}
	s.Forget(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(s *scheduler.Scheduler, ctx context.Context, id string) (domain.Passenger, error)

func (h *BoardingHTTPHandler) transition(w http.ResponseWriter, r *http.Request, message string, apply transitionFunc) {
	s, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := apply(s, ctx, chi.URLParam(r, "passengerID"))
	if err != nil {
		h.fail(ctx, w, "status change failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": message, "data": p})
}

func (h *BoardingHTTPHandler) scheduler(w http.ResponseWriter, r *http.Request) (*scheduler.Scheduler, bool) {
	s, err := h.registry.Get(chi.URLParam(r, "vehicleID"))
	if err != nil {
		handleError(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func (h *BoardingHTTPHandler) fail(ctx context.Context, w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		pkgApp.LogError(ctx, h.logger, message, err, map[string]interface{}{"status": status})
	}
	handleError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrUnknownChangeKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrEmptyQueue),
		errors.Is(err, scheduler.ErrNotAttached):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCapacity),
		errors.Is(err, domain.ErrNoSeatAvailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrPurgeUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		handleError(w, err.Error(), http.StatusInternalServerError)
	}
}

func handleError(w http.ResponseWriter, message string, statusCode int) {
	http.Error(w, message, statusCode)
}
