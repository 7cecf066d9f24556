package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/museum-booking-backend/internal/admin"
	"github.com/nekogravitycat/museum-booking-backend/internal/auth"
	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
	"github.com/nekogravitycat/museum-booking-backend/internal/booking/bookingtest"
	bookingHttp "github.com/nekogravitycat/museum-booking-backend/internal/booking/http"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/museum-booking-backend/internal/worker"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var fixedNow = time.Date(2025, time.July, 1, 8, 0, 0, 0, time.UTC)

// stubAdmins is an admin.Service backed by a map keyed by id. Passwords are compared as plain text.
type stubAdmins struct {
	admins    map[string]*admin.Admin
	passwords map[string]string
}

func (s *stubAdmins) Login(ctx context.Context, email, password string) (*admin.Admin, error) {
	for _, a := range s.admins {
		if a.Email == email && s.passwords[a.ID] == password {
			if !a.IsActive {
				return nil, admin.ErrInactive
			}
			return a, nil
		}
	}
	return nil, admin.ErrInvalidCredentials
}

func (s *stubAdmins) GetByID(ctx context.Context, id string) (*admin.Admin, error) {
	if a, ok := s.admins[id]; ok {
		return a, nil
	}
	return nil, admin.ErrNotFound
}

func (s *stubAdmins) EnsureSeed(ctx context.Context, email, password, displayName string) (*admin.Admin, bool, error) {
	return nil, false, fmt.Errorf("not supported")
}

type testEnv struct {
	router   *gin.Engine
	repo     *bookingtest.Repository
	notifier *bookingtest.Notifier
	jwt      *auth.JWTManager
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := bookingtest.NewRepository()
	repo.Now = func() time.Time { return fixedNow }
	notifier := &bookingtest.Notifier{}

	seq := 0
	svc := booking.NewService(repo, notifier, booking.DefaultRules(), nil,
		booking.WithClock(func() time.Time { return fixedNow }),
		booking.WithTokenGenerator(func() string {
			seq++
			return fmt.Sprintf("token-%d", seq)
		}),
	)

	admins := &stubAdmins{
		admins: map[string]*admin.Admin{
			"admin-1":  {ID: "admin-1", Email: "curator@museum.example", IsActive: true},
			"inactive": {ID: "inactive", Email: "former@museum.example", IsActive: false},
		},
		passwords: map[string]string{"admin-1": "correct-horse"},
	}

	jwtManager := auth.NewJWTManager("test-secret", 30*time.Minute)
	issued, err := jwtManager.Issue("admin-1", "curator@museum.example")
	require.NoError(t, err)
	token := issued.Token

	router := NewRouter(Config{
		AdminService:   admins,
		BookingService: svc,
		Sweeper:        worker.NewSweeper(svc.Sweep, time.Hour, nil),
		JWTManager:     jwtManager,
	})

	return &testEnv{router: router, repo: repo, notifier: notifier, jwt: jwtManager, token: token}
}

func (e *testEnv) executeRequest(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req, _ := http.NewRequest(method, path, bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedConfirmed(visit time.Time, party int) *booking.Booking {
	return e.repo.Seed(booking.Booking{
		Name:          "Grace",
		Surname:       "Hopper",
		Email:         "grace@example.com",
		VisitDateTime: visit,
		PartySize:     party,
		Status:        booking.StatusConfirmed,
	})
}

func validBookingBody() bookingHttp.CreateBookingRequest {
	return bookingHttp.CreateBookingRequest{
		Name:          "Ada",
		Surname:       "Lovelace",
		Email:         "ada@example.com",
		VisitDateTime: "2025-07-10T09:00",
		PartySize:     2,
		AgeGroup:      "adults",
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.executeRequest("GET", "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Create Booking", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/bookings", validBookingBody(), "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp response.MessageResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Pending confirmation", resp.Status)
		assert.NotEmpty(t, resp.Message)

		sent := env.notifier.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "confirmation", sent[0].Kind)
		assert.Equal(t, "token-1", sent[0].Token)
	})

	t.Run("Pending booking is not counted", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/confirmed-count?date=2025-07-10&start_hour=8&end_hour=9", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp bookingHttp.ConfirmedCountResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
	})

	t.Run("Confirm Booking", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/bookings/confirm/token-1", nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp response.MessageResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Confirmed", resp.Status)
	})

	t.Run("Token is single use", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/bookings/confirm/token-1", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp response.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, booking.ErrInvalidToken.Message, resp.Error)
	})

	t.Run("Confirmed Count", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/confirmed-count?date=2025-07-10&start_hour=8&end_hour=9", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp bookingHttp.ConfirmedCountResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "2025-07-10", resp.Date)
	})

	t.Run("Confirmed Count with camelCase hours", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/confirmed-count?date=2025-07-10&startHour=8&endHour=9", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp bookingHttp.ConfirmedCountResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, 8, resp.StartHour)
		assert.Equal(t, 9, resp.EndHour)

		w = env.executeRequest("GET", "/v1/bookings/confirmed-count?date=2025-07-10&startHour=10&endHour=16", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
	})

	t.Run("Slots of the day", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/confirmed-count?date=2025-07-10", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp bookingHttp.DaySlotsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, map[string]int{"09:00-11:00": 1, "11:00-13:00": 0, "13:00-15:00": 0, "15:00-17:00": 0}, resp.Slots)
	})

	t.Run("Calendar Density", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/calendar-density/2025/7", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]bookingHttp.DayOccupancyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp, 31)

		day := resp["2025-07-10"]
		assert.Equal(t, "partial", day.Status)
		assert.Equal(t, 8, day.TotalSlots)
		assert.Equal(t, 7, day.AvailableSlots)
		assert.Equal(t, "available", resp["2025-07-11"].Status)
	})
}

func TestPublicValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"Only start hour", "GET", "/v1/bookings/confirmed-count?date=2025-07-10&start_hour=9", nil},
		{"Only camelCase start hour", "GET", "/v1/bookings/confirmed-count?date=2025-07-10&startHour=9", nil},
		{"camelCase hour out of range", "GET", "/v1/bookings/confirmed-count?date=2025-07-10&startHour=9&endHour=24", nil},
		{"Start after end", "GET", "/v1/bookings/confirmed-count?date=2025-07-10&start_hour=12&end_hour=9", nil},
		{"Hour out of range", "GET", "/v1/bookings/confirmed-count?date=2025-07-10&start_hour=9&end_hour=24", nil},
		{"Missing date", "GET", "/v1/bookings/confirmed-count", nil},
		{"Bad date", "GET", "/v1/bookings/confirmed-count?date=10-07-2025", nil},
		{"Month thirteen", "GET", "/v1/bookings/calendar-density/2025/13", nil},
		{"Month not a number", "GET", "/v1/bookings/calendar-density/2025/july", nil},
		{"Unknown token", "POST", "/v1/bookings/confirm/nope", nil},
		{"Bad age group", "POST", "/v1/bookings", map[string]any{"name": "Ada", "age_group": "toddlers"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.executeRequest(tt.method, tt.path, tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	t.Run("Invalid booking reports every field", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/bookings", map[string]any{"party_size": 0}, "")
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp response.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "validation failed", resp.Error)
		for _, field := range []string{"name", "surname", "email", "visit_date_time", "party_size"} {
			assert.Contains(t, resp.Fields, field)
		}
		assert.Equal(t, 0, env.repo.Len())
		assert.Empty(t, env.notifier.Sent())
	})

	t.Run("Unparseable visit time", func(t *testing.T) {
		body := validBookingBody()
		body.VisitDateTime = "next tuesday"
		w := env.executeRequest("POST", "/v1/bookings", body, "")
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp response.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Fields, "visit_date_time")
	})
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Login", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/auth/login", LoginRequest{Email: "curator@museum.example", Password: "correct-horse"}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.AccessToken)
		assert.True(t, resp.ExpiresAt.After(time.Now()))
		assert.Equal(t, "admin-1", resp.Admin.ID)

		w = env.executeRequest("GET", "/v1/me", nil, resp.AccessToken)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Wrong password", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/auth/login", LoginRequest{Email: "curator@museum.example", Password: "wrong-pass"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Admin routes require a token", func(t *testing.T) {
		for _, path := range []string{"/v1/bookings", "/v1/bookings/all", "/v1/bookings/pending-count", "/v1/me"} {
			w := env.executeRequest("GET", path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		}
		w := env.executeRequest("POST", "/v1/bookings/sweep", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Garbage token", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings", nil, "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Unknown admin", func(t *testing.T) {
		issued, err := env.jwt.Issue("ghost", "ghost@museum.example")
		require.NoError(t, err)
		w := env.executeRequest("GET", "/v1/bookings", nil, issued.Token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Inactive admin", func(t *testing.T) {
		issued, err := env.jwt.Issue("inactive", "former@museum.example")
		require.NoError(t, err)
		w := env.executeRequest("GET", "/v1/bookings", nil, issued.Token)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAdminBookings(t *testing.T) {
	env := newTestEnv(t)

	confirmed := env.seedConfirmed(time.Date(2025, time.July, 10, 11, 0, 0, 0, time.UTC), 3)
	w := env.executeRequest("POST", "/v1/bookings", validBookingBody(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var pendingID string

	t.Run("List returns confirmed only", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings", nil, env.token)
		require.Equal(t, http.StatusOK, w.Code)

		var resp response.PageResponse[bookingHttp.BookingResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 1)
		assert.Equal(t, confirmed.ID, resp.Items[0].ID)
		assert.Equal(t, "confirmed", resp.Items[0].Status)
	})

	t.Run("List all filters by status", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/all", nil, env.token)
		require.Equal(t, http.StatusOK, w.Code)

		var resp response.PageResponse[bookingHttp.BookingResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)

		w = env.executeRequest("GET", "/v1/bookings/all?status=pending_confirmation", nil, env.token)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "Pending confirmation", resp.Items[0].StatusLabel)
		pendingID = resp.Items[0].ID

		w = env.executeRequest("GET", "/v1/bookings/all?status=lost", nil, env.token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Pending Count", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/pending-count", nil, env.token)
		require.Equal(t, http.StatusOK, w.Code)

		var resp bookingHttp.CountResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("Get Booking", func(t *testing.T) {
		w := env.executeRequest("GET", "/v1/bookings/"+confirmed.ID, nil, env.token)
		require.Equal(t, http.StatusOK, w.Code)

		var resp bookingHttp.BookingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "grace@example.com", resp.Email)

		w = env.executeRequest("GET", "/v1/bookings/00000000-0000-0000-0000-000000000000", nil, env.token)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Update Booking", func(t *testing.T) {
		party := 4
		w := env.executeRequest("PUT", "/v1/bookings", bookingHttp.UpdateBookingRequest{ID: confirmed.ID, PartySize: &party}, env.token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp bookingHttp.BookingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 4, resp.PartySize)

		zero := 0
		w = env.executeRequest("PUT", "/v1/bookings", bookingHttp.UpdateBookingRequest{ID: confirmed.ID, PartySize: &zero}, env.token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Approve Booking", func(t *testing.T) {
		require.NotEmpty(t, pendingID)
		w := env.executeRequest("POST", "/v1/bookings/"+pendingID+"/approve", nil, env.token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp bookingHttp.BookingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "confirmed", resp.Status)

		// Already confirmed.
		w = env.executeRequest("POST", "/v1/bookings/"+pendingID+"/approve", nil, env.token)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Reject Booking", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/bookings/"+confirmed.ID+"/reject", bookingHttp.RejectBookingRequest{Reason: "Gallery closed"}, env.token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp bookingHttp.BookingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "rejected", resp.Status)

		sent := env.notifier.Sent()
		last := sent[len(sent)-1]
		assert.Equal(t, "rejection", last.Kind)
		assert.Equal(t, "Gallery closed", last.Reason)

		w = env.executeRequest("POST", "/v1/bookings/"+confirmed.ID+"/reject", nil, env.token)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Reject without body uses the default reason", func(t *testing.T) {
		w := env.executeRequest("POST", "/v1/bookings/"+pendingID+"/reject", nil, env.token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		sent := env.notifier.Sent()
		assert.Equal(t, booking.DefaultRejectionReason, sent[len(sent)-1].Reason)
	})

	t.Run("Delete Booking", func(t *testing.T) {
		w := env.executeRequest("DELETE", "/v1/bookings/"+confirmed.ID, nil, env.token)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.executeRequest("DELETE", "/v1/bookings/"+confirmed.ID, nil, env.token)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSweepEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// The sweeper runs on the wall clock, so a 2025 visit is always past retention.
	env.seedConfirmed(time.Date(2025, time.July, 10, 9, 0, 0, 0, time.UTC), 2)

	w := env.executeRequest("POST", "/v1/bookings/sweep", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp bookingHttp.SweepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Deleted)
	assert.Equal(t, 0, env.repo.Len())
}
