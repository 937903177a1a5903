package event_api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-eventhub/internal/events"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockStore) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockStore) CreateEvent(ctx context.Context, event *models.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockStore) UpdatePromo(ctx context.Context, eventID, code string, pct float64, limit int) (bool, error) {
	args := m.Called(ctx, eventID, code, pct, limit)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Venue), args.Error(1)
}

func (m *MockStore) CreateVenue(ctx context.Context, venue *models.Venue) error {
	return m.Called(ctx, venue).Error(0)
}

type MockSold struct {
	mock.Mock
}

func (m *MockSold) SumQuantity(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func setupRouter(store *MockStore, sold *MockSold) *chi.Mux {
	h := &Handler{Events: events.NewService(store, sold, logger.NewNop()), Logger: logger.NewNop()}
	r := chi.NewRouter()
	r.Get("/event/{id}", h.GetEvent)
	r.Get("/event/{id}/tickets/count", h.TicketsCount)
	return r
}

type eventResponse struct {
	Success bool `json:"success"`
	Event   struct {
		ID string `json:"id"`
	} `json:"event"`
	Pricing struct {
		BasePrice      float64 `json:"basePrice"`
		DynamicPrice   float64 `json:"dynamicPrice"`
		PercentSold    float64 `json:"percentSold"`
		DaysUntilEvent int     `json:"daysUntilEvent"`
		TicketsSold    int     `json:"ticketsSold"`
	} `json:"pricing"`
}

func TestGetEventReturnsDynamicPrice(t *testing.T) {
	store := new(MockStore)
	sold := new(MockSold)
	ev := &models.Event{
		ID:        "e1",
		Title:     "Jazz Night",
		Price:     100,
		EventDate: time.Now().Add(60 * time.Hour),
		Venue:     &models.Venue{ID: "v1", Capacity: 100},
	}
	store.On("GetEvent", mock.Anything, "e1").Return(ev, nil)
	sold.On("SumQuantity", mock.Anything, "e1").Return(80, nil)

	req := httptest.NewRequest(http.MethodGet, "/event/e1", nil)
	rr := httptest.NewRecorder()
	setupRouter(store, sold).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body eventResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "e1", body.Event.ID)
	assert.Equal(t, 100.0, body.Pricing.BasePrice)
	assert.Equal(t, 187.5, body.Pricing.DynamicPrice)
	assert.Equal(t, 80.0, body.Pricing.PercentSold)
	assert.Equal(t, 2, body.Pricing.DaysUntilEvent)
	assert.Equal(t, 80, body.Pricing.TicketsSold)
}

func TestGetEventNotFound(t *testing.T) {
	store := new(MockStore)
	store.On("GetEvent", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/event/missing", nil)
	rr := httptest.NewRecorder()
	setupRouter(store, new(MockSold)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Event not found!")
}

func TestTicketsCount(t *testing.T) {
	store := new(MockStore)
	sold := new(MockSold)
	store.On("GetEvent", mock.Anything, "e1").Return(&models.Event{ID: "e1"}, nil)
	sold.On("SumQuantity", mock.Anything, "e1").Return(12, nil)

	req := httptest.NewRequest(http.MethodGet, "/event/e1/tickets/count", nil)
	rr := httptest.NewRecorder()
	setupRouter(store, sold).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, 12, body.TotalCount)
}
