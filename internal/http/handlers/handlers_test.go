// README: Handler tests: binding and validation mapping, status codes and actor propagation.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"seatshare/internal/apperr"
	"seatshare/internal/http/handlers"
	httpmiddleware "seatshare/internal/http/middleware"
	"seatshare/internal/modules/booking"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/review"
	"seatshare/internal/modules/ride"
	"seatshare/internal/modules/user"
	"seatshare/internal/types"
)

// tokenResolver maps bearer tokens to fixed actors.
type tokenResolver map[string]identity.Actor

func (r tokenResolver) Resolve(_ context.Context, creds identity.Credentials) (identity.Actor, error) {
	if creds.Bearer == "" {
		return identity.Anonymous, nil
	}
	a, ok := r[creds.Bearer]
	if !ok {
		return identity.Actor{}, identity.ErrUnauthenticated
	}
	return a, nil
}

var testActors = tokenResolver{
	"driver": {ID: "driver-1", Role: user.RoleUser},
	"rider":  {ID: "rider-1", Role: user.RoleUser},
	"svc":    {ID: "svc:ops", Role: user.RoleAdmin, Service: true},
}

type stubRides struct {
	created ride.CreateCommand
	updated ride.UpdateCommand
	filter  ride.Filter
	err     error
}

func (s *stubRides) Create(_ context.Context, cmd ride.CreateCommand) (*ride.Ride, error) {
	s.created = cmd
	if s.err != nil {
		return nil, s.err
	}
	return &ride.Ride{ID: types.NewID(), DriverID: cmd.Actor.ID, Capacity: cmd.Capacity, RemainingSeats: cmd.Capacity, Status: ride.StatusActive}, nil
}

func (s *stubRides) Get(_ context.Context, _ identity.Actor, id types.ID) (*ride.Ride, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ride.Ride{ID: id}, nil
}

func (s *stubRides) List(_ context.Context, f ride.Filter) ([]ride.Ride, types.PageInfo, error) {
	s.filter = f
	return nil, types.NewPageInfo(f.Page.Normalize(), 0), s.err
}

func (s *stubRides) Update(_ context.Context, cmd ride.UpdateCommand) (*ride.Ride, error) {
	s.updated = cmd
	if s.err != nil {
		return nil, s.err
	}
	return &ride.Ride{ID: cmd.RideID}, nil
}

func (s *stubRides) Delete(_ context.Context, _ identity.Actor, _ types.ID) error {
	return s.err
}

type stubBookings struct {
	transition booking.TransitionCommand
	err        error
}

func (s *stubBookings) Create(_ context.Context, cmd booking.CreateCommand) (*booking.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &booking.Booking{ID: types.NewID(), RideID: cmd.RideID, PassengerID: cmd.Actor.ID, SeatsBooked: cmd.SeatsBooked, Status: types.BookingPending}, nil
}

func (s *stubBookings) Transition(_ context.Context, cmd booking.TransitionCommand) (*booking.Booking, error) {
	s.transition = cmd
	if s.err != nil {
		return nil, s.err
	}
	return &booking.Booking{ID: cmd.BookingID, Status: cmd.Status}, nil
}

func (s *stubBookings) PassengerCancel(_ context.Context, cmd booking.CancelCommand) (*booking.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &booking.Booking{ID: cmd.BookingID, Status: types.BookingCancelled}, nil
}

func (s *stubBookings) Get(_ context.Context, _ identity.Actor, id types.ID) (*booking.Booking, error) {
	return &booking.Booking{ID: id}, s.err
}

func (s *stubBookings) History(_ context.Context, _ identity.Actor, _ types.ID) ([]booking.Event, error) {
	return nil, s.err
}

func (s *stubBookings) ListMine(_ context.Context, _ identity.Actor, p types.PageRequest) ([]booking.Booking, types.PageInfo, error) {
	return nil, types.NewPageInfo(p, 0), s.err
}

func (s *stubBookings) ListForRide(_ context.Context, _ identity.Actor, _ types.ID, p types.PageRequest) ([]booking.Booking, types.PageInfo, error) {
	return nil, types.NewPageInfo(p, 0), s.err
}

type stubReviews struct {
	userID string
}

func (s *stubReviews) Create(_ context.Context, cmd review.CreateCommand) (*review.Created, error) {
	return &review.Created{Review: review.Review{ID: types.NewID(), Rating: cmd.Rating}, ReviewedRating: float64(cmd.Rating)}, nil
}

func (s *stubReviews) ListForUser(_ context.Context, userID string, p types.PageRequest) ([]review.Review, types.PageInfo, error) {
	s.userID = userID
	return nil, types.NewPageInfo(p, 0), nil
}

type stubUsers struct{}

func (stubUsers) Profile(_ context.Context, id string) (*user.User, error) {
	if id != "driver-1" {
		return nil, user.ErrNotFound
	}
	return &user.User{ID: id, Role: user.RoleUser}, nil
}

func (stubUsers) Self(_ context.Context, id string) (*user.User, error) {
	return &user.User{ID: id, Email: id + "@example.com", Role: user.RoleUser}, nil
}

type fixture struct {
	rides    *stubRides
	bookings *stubBookings
	reviews  *stubReviews
	router   *gin.Engine
}

// buildTestRouter wires a minimal gin engine with the auth middleware and every handler.
func buildTestRouter() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{rides: &stubRides{}, bookings: &stubBookings{}, reviews: &stubReviews{}}
	r := gin.New()
	r.Use(httpmiddleware.Auth(testActors, nil))
	auth := httpmiddleware.RequireActor(nil)

	rides := handlers.NewRideHandler(f.rides, f.bookings, nil)
	r.POST("/rides", auth, rides.Create)
	r.GET("/rides", rides.List)
	r.GET("/rides/:id", rides.Get)
	r.PUT("/rides/:id", auth, rides.Update)
	r.DELETE("/rides/:id", auth, rides.Delete)
	r.GET("/rides/:id/bookings", auth, rides.Bookings)

	bookings := handlers.NewBookingHandler(f.bookings, nil)
	r.POST("/bookings", auth, bookings.Create)
	r.GET("/bookings/:id/events", auth, bookings.Events)
	r.PUT("/bookings/:id", auth, bookings.Update)
	r.DELETE("/bookings/:id", auth, bookings.Cancel)

	reviews := handlers.NewReviewHandler(f.reviews, nil)
	r.POST("/reviews", auth, reviews.Create)
	r.GET("/reviews", reviews.List)

	users := handlers.NewUserHandler(stubUsers{}, nil)
	r.GET("/users/:id", users.Get)
	r.GET("/me", auth, users.Me)
	f.router = r
	return f
}

func doRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error struct {
		Kind    apperr.Kind       `json:"kind"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return env
}

func validRide() map[string]any {
	return map[string]any{
		"origin":         "Lyon",
		"destination":    "Paris",
		"departure_time": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"capacity":       3,
		"price_per_seat": 1500,
	}
}

func TestCreateRide_Unauthenticated(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodPost, "/rides", validRide(), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w = doRequest(f.router, http.MethodPost, "/rides", validRide(), "forged")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", w.Code)
	}
}

func TestCreateRide_Created(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodPost, "/rides", validRide(), "driver")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if f.rides.created.Actor.ID != "driver-1" || f.rides.created.PricePerSeat != 1500 || f.rides.created.Capacity != 3 {
		t.Fatalf("unexpected command: %+v", f.rides.created)
	}
}

func TestCreateRide_ValidationFieldsUseJSONNames(t *testing.T) {
	f := buildTestRouter()
	body := validRide()
	delete(body, "origin")
	body["capacity"] = 9
	w := doRequest(f.router, http.MethodPost, "/rides", body, "driver")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	env := decodeError(t, w)
	if env.Error.Kind != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %s", env.Error.Kind)
	}
	if env.Error.Fields["origin"] != "is required" || env.Error.Fields["capacity"] != "must be <= 8" {
		t.Fatalf("unexpected fields: %v", env.Error.Fields)
	}
}

func TestCreateRide_FreePriceAllowed(t *testing.T) {
	f := buildTestRouter()
	body := validRide()
	body["price_per_seat"] = 0
	w := doRequest(f.router, http.MethodPost, "/rides", body, "driver")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 for a free ride, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateRide_WrongType(t *testing.T) {
	f := buildTestRouter()
	body := validRide()
	body["capacity"] = "three"
	w := doRequest(f.router, http.MethodPost, "/rides", body, "driver")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env := decodeError(t, w); env.Error.Fields["capacity"] == "" {
		t.Fatalf("expected capacity field error, got %v", env.Error.Fields)
	}
}

func TestListRides_Pagination(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodGet, "/rides?origin=Lyon&date=2030-01-02", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data       []ride.Ride    `json:"data"`
		Pagination types.PageInfo `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data == nil || resp.Pagination.Page != 1 || resp.Pagination.Limit != types.DefaultLimit {
		t.Fatalf("unexpected list response: %s", w.Body.String())
	}
	if f.rides.filter.Origin != "Lyon" || f.rides.filter.Date == nil || f.rides.filter.Date.Day() != 2 {
		t.Fatalf("unexpected filter: %+v", f.rides.filter)
	}

	for _, q := range []string{"?page=zero", "?limit=-1", "?date=02/01/2030"} {
		if w := doRequest(f.router, http.MethodGet, "/rides"+q, nil, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestListRides_HugePageIsEmptyNotError(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodGet, "/rides?page=1844674407370955161&limit=50", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.rides.filter.Page.Page != types.MaxPage || f.rides.filter.Page.Offset() < 0 {
		t.Fatalf("expected page clamped with a valid offset, got %+v", f.rides.filter.Page)
	}
	for _, path := range []string{"/reviews?user_id=driver-1&page=1844674407370955161", "/rides/" + string(types.NewID()) + "/bookings?page=1844674407370955161"} {
		if w := doRequest(f.router, http.MethodGet, path, nil, "driver"); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestUpdateRide_PassesOnlyProvidedFields(t *testing.T) {
	f := buildTestRouter()
	id := string(types.NewID())
	w := doRequest(f.router, http.MethodPut, "/rides/"+id, map[string]any{"status": "IN_PROGRESS"}, "driver")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cmd := f.rides.updated
	if cmd.Status == nil || *cmd.Status != ride.StatusInProgress || cmd.Capacity != nil || cmd.Origin != nil {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	w = doRequest(f.router, http.MethodPut, "/rides/"+id, map[string]any{"status": "PAUSED"}, "driver")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestRideErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind apperr.Kind
	}{
		{ride.ErrNotDriver, http.StatusForbidden, apperr.KindNotAuthorized},
		{ride.ErrNotFound, http.StatusNotFound, apperr.KindNotFound},
		{ride.ErrHasConfirmed, http.StatusBadRequest, apperr.KindInvalidState},
		{ride.ErrCapacityBelow, http.StatusBadRequest, apperr.KindSeatConflict},
	}
	for _, tc := range cases {
		f := buildTestRouter()
		f.rides.err = tc.err
		w := doRequest(f.router, http.MethodDelete, "/rides/"+string(types.NewID()), nil, "driver")
		if w.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
			continue
		}
		if env := decodeError(t, w); env.Error.Kind != tc.kind {
			t.Errorf("%v: expected kind %s, got %s", tc.err, tc.kind, env.Error.Kind)
		}
	}
}

func TestDeleteRide_NoContent(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodDelete, "/rides/"+string(types.NewID()), nil, "driver")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestCreateBooking(t *testing.T) {
	f := buildTestRouter()
	rideID := string(types.NewID())
	w := doRequest(f.router, http.MethodPost, "/bookings", map[string]any{"ride_id": rideID, "seats_booked": 2}, "rider")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	f.bookings.err = booking.ErrDuplicate
	w = doRequest(f.router, http.MethodPost, "/bookings", map[string]any{"ride_id": rideID, "seats_booked": 1}, "rider")
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error.Kind != apperr.KindDuplicateBook {
		t.Fatalf("expected duplicate_booking 400, got %d %s", w.Code, w.Body.String())
	}

	f.bookings.err = nil
	w = doRequest(f.router, http.MethodPost, "/bookings", map[string]any{"ride_id": rideID}, "rider")
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error.Fields["seats_booked"] == "" {
		t.Fatalf("expected seats_booked field error, got %d %s", w.Code, w.Body.String())
	}
}

func TestUpdateBooking_ForwardsStatus(t *testing.T) {
	f := buildTestRouter()
	id := types.NewID()
	w := doRequest(f.router, http.MethodPut, "/bookings/"+string(id), map[string]any{"status": "CONFIRMED"}, "driver")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.bookings.transition.BookingID != id || f.bookings.transition.Status != types.BookingConfirmed {
		t.Fatalf("unexpected transition: %+v", f.bookings.transition)
	}

	f.bookings.err = booking.ErrDerivedOnly
	w = doRequest(f.router, http.MethodPut, "/bookings/"+string(id), map[string]any{"status": "COMPLETED"}, "driver")
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error.Kind != apperr.KindInvalidState {
		t.Fatalf("expected invalid state 400, got %d %s", w.Code, w.Body.String())
	}
}

func TestCancelBooking(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodDelete, "/bookings/"+string(types.NewID()), nil, "rider")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	f.bookings.err = booking.ErrNotPassenger
	w = doRequest(f.router, http.MethodDelete, "/bookings/"+string(types.NewID()), nil, "driver")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestBookingEvents_EmptyIsArray(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodGet, "/bookings/"+string(types.NewID())+"/events", nil, "rider")
	if w.Code != http.StatusOK || w.Body.String() != `{"data":[]}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestCreateReview_RatingBounds(t *testing.T) {
	f := buildTestRouter()
	body := map[string]any{"ride_id": string(types.NewID()), "reviewed_user_id": "driver-1", "rating": 6}
	w := doRequest(f.router, http.MethodPost, "/reviews", body, "rider")
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error.Fields["rating"] != "must be <= 5" {
		t.Fatalf("expected rating field error, got %d %s", w.Code, w.Body.String())
	}
	body["rating"] = 4
	w = doRequest(f.router, http.MethodPost, "/reviews", body, "rider")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestListReviews_PassesUser(t *testing.T) {
	f := buildTestRouter()
	w := doRequest(f.router, http.MethodGet, "/reviews?user_id=driver-1&limit=500", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.reviews.userID != "driver-1" {
		t.Fatalf("expected user id forwarded, got %q", f.reviews.userID)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"limit":50`)) {
		t.Fatalf("expected limit clamped to 50, got %s", w.Body.String())
	}
}

func TestUserProfileAndMe(t *testing.T) {
	f := buildTestRouter()
	if w := doRequest(f.router, http.MethodGet, "/users/driver-1", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := doRequest(f.router, http.MethodGet, "/users/nobody", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w := doRequest(f.router, http.MethodGet, "/me", nil, "rider")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("rider-1@example.com")) {
		t.Fatalf("unexpected /me: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(f.router, http.MethodGet, "/me", nil, "svc")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"user":null`)) {
		t.Fatalf("expected null user for service actor, got %d %s", w.Code, w.Body.String())
	}
}
