package boarding

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateusmacedo/go-boarding/internal/boarding/application"
	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/internal/boarding/infrastructure"
	pkgApp "github.com/mateusmacedo/go-boarding/pkg/application"
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
	pkgInfra "github.com/mateusmacedo/go-boarding/pkg/infrastructure"
	channelsAdapter "github.com/mateusmacedo/go-boarding/pkg/infrastructure/channels/adapter"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []domain.StateChange
}

func (n *recordingNotifier) Handle(_ context.Context, event pkgDomain.Event[domain.StateChange]) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, event.Payload())
	return nil
}

func (n *recordingNotifier) reasons() []domain.ChangeReason {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.ChangeReason
	for _, c := range n.changes {
		out = append(out, c.Reason)
	}
	return out
}

type fixture struct {
	slice    *BoardingSlice
	router   *chi.Mux
	store    *infrastructure.InMemoryPassengerRepository
	pubsub   *gochannel.GoChannel
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := pkgApp.NopLogger{}
	store := infrastructure.NewInMemoryPassengerRepository(logger)
	ps := channelsAdapter.NewPubSub(64, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	repo := infrastructure.NewPublishingRepository(store, ps, logger)
	t.Cleanup(func() { _ = repo.Close() })

	notifier := &recordingNotifier{}
	slice := NewBoardingSlice(
		SliceConfig{Capacity: 10, RequireSeat: true},
		pkgInfra.NewSimpleCommandBus[pkgDomain.Command[application.ApplyPassengerChangeData], application.ApplyPassengerChangeData](logger),
		pkgInfra.NewSimpleQueryBus[pkgDomain.Query[application.FindBoardingQueueData], application.FindBoardingQueueData, domain.QueueSnapshot](logger),
		pkgInfra.NewSimpleEventBus[pkgDomain.Event[domain.StateChange], domain.StateChange](logger),
		repo,
		ps,
		logger,
		notifier,
	)
	t.Cleanup(slice.Close)

	router := chi.NewRouter()
	slice.RegisterRoutes(router)
	return &fixture{slice: slice, router: router, store: store, pubsub: ps, notifier: notifier}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestBoardingSlice_EndToEnd(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/vehicles/bus-1/attach", nil).Code)
	assert.Equal(t, []string{"bus-1"}, f.slice.Registry().Vehicles())

	rec := f.do(t, http.MethodPost, "/vehicles/bus-1/passengers", map[string]interface{}{"id": "ana", "name": "Ana", "type": "regular"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Another writer stores a row and announces it on the feed.
	outsider := domain.Passenger{
		ID:          "rui",
		VehicleID:   "bus-1",
		Name:        "Rui",
		Type:        domain.TypeVIP,
		Status:      domain.StatusWaiting,
		ArrivalTime: time.Now().UTC().Add(-time.Minute),
	}
	_, err := f.store.Insert(context.Background(), outsider)
	require.NoError(t, err)
	payload, err := json.Marshal(domain.ChangeEvent{Kind: domain.ChangeInsert, Passenger: outsider})
	require.NoError(t, err)
	require.NoError(t, f.pubsub.Publish(domain.FeedTopic("bus-1"), message.NewMessage(watermill.NewUUID(), payload)))

	s, err := f.slice.Registry().Get("bus-1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.Size() == 2 }, 2*time.Second, 10*time.Millisecond)

	next, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, "rui", next.ID)

	rec = f.do(t, http.MethodPost, "/vehicles/bus-1/board-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Eventually(t, func() bool {
		for _, r := range f.notifier.reasons() {
			if r == domain.ReasonBoarding {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	stored := f.store.GetData()["rui"]
	assert.Equal(t, domain.StatusBoarding, stored.Status)
	assert.NotEmpty(t, stored.AssignedSeat)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/vehicles/bus-1", nil).Code)
	assert.Empty(t, f.slice.Registry().Vehicles())
}

func TestBoardingSlice_WithoutFeed(t *testing.T) {
	logger := pkgApp.NopLogger{}
	slice := NewBoardingSlice(
		SliceConfig{},
		pkgInfra.NewSimpleCommandBus[pkgDomain.Command[application.ApplyPassengerChangeData], application.ApplyPassengerChangeData](logger),
		pkgInfra.NewSimpleQueryBus[pkgDomain.Query[application.FindBoardingQueueData], application.FindBoardingQueueData, domain.QueueSnapshot](logger),
		pkgInfra.NewSimpleEventBus[pkgDomain.Event[domain.StateChange], domain.StateChange](logger),
		infrastructure.NewInMemoryPassengerRepository(logger),
		nil,
		logger,
	)
	defer slice.Close()

	router := chi.NewRouter()
	slice.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/vehicles/van-2/attach", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	s, err := slice.Registry().Get("van-2")
	require.NoError(t, err)
	assert.Zero(t, s.Size())

	// The bare memory store cannot announce deletes.
	_, err = s.Enqueue(context.Background(), domain.NewPassenger{ID: "x", Name: "X", Type: domain.TypeRegular})
	require.NoError(t, err)
	_, err = s.Remove(context.Background(), "x")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/vehicles/van-2/passengers/x/record", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
