package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-booking/internal/middleware"
	"github.com/jwalitptl/salon-booking/internal/model"
	"github.com/jwalitptl/salon-booking/internal/service/bookingform"
	"github.com/jwalitptl/salon-booking/pkg/errors"
)

type stubAPI struct {
	mu        sync.Mutex
	times     map[string][]string
	submitted []model.BookingRequest
	createErr error
}

func (s *stubAPI) GetAvailableTimes(ctx context.Context, date string, service model.ServiceName) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.times[date+"|"+string(service)], nil
}

func (s *stubAPI) CreateBooking(ctx context.Context, req model.BookingRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.submitted = append(s.submitted, req)
	return "Booked!", nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type formView struct {
	Name           string   `json:"name"`
	Phone          string   `json:"phone"`
	Service        string   `json:"service"`
	Date           string   `json:"date"`
	Time           string   `json:"time"`
	AvailableTimes []string `json:"available_times"`
	ErrorMessage   string   `json:"error_message"`
	SuccessMessage string   `json:"success_message"`
}

func setupRouter(api *stubAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(func() *bookingform.Controller {
		return bookingform.NewController(api)
	}, time.Minute, time.Minute)

	r := gin.New()
	g := r.Group("/api")
	g.Use(middleware.Visitor(time.Minute, false))
	h.RegisterRoutes(g)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}, cookies []*http.Cookie) (*httptest.ResponseRecorder, envelope, formView) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var view formView
	if len(env.Data) > 0 && env.Data[0] == '{' {
		require.NoError(t, json.Unmarshal(env.Data, &view))
	}
	return w, env, view
}

func tomorrowNotSunday() time.Time {
	d := time.Now().AddDate(0, 0, 1)
	if d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func TestGetForm_IsKeptPerVisitor(t *testing.T) {
	r := setupRouter(&stubAPI{})

	w, env, view := do(t, r, http.MethodGet, "/api/form", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Basic Manicure", view.Service)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	_, _, view = do(t, r, http.MethodPut, "/api/form", map[string]string{"name": "Jane"}, cookies)
	assert.Equal(t, "Jane", view.Name)

	_, _, view = do(t, r, http.MethodGet, "/api/form", nil, cookies)
	assert.Equal(t, "Jane", view.Name)

	// another visitor starts empty
	_, _, view = do(t, r, http.MethodGet, "/api/form", nil, nil)
	assert.Empty(t, view.Name)
}

func TestUpdateForm_RefreshesTimes(t *testing.T) {
	day := tomorrowNotSunday()
	date := day.Format(model.DateLayout)
	api := &stubAPI{times: map[string][]string{date + "|Gel Pedicure": {"9:00", "13:00"}}}
	r := setupRouter(api)

	w, _, view := do(t, r, http.MethodPut, "/api/form", map[string]string{
		"service": "Gel Pedicure",
		"date":    date,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, date, view.Date)
	assert.Equal(t, []string{"9:00", "13:00"}, view.AvailableTimes)
}

func TestUpdateForm_BadDate(t *testing.T) {
	r := setupRouter(&stubAPI{})

	w, env, _ := do(t, r, http.MethodPut, "/api/form", map[string]string{"date": "06/10/2024"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
}

func TestSubmit_ValidationError(t *testing.T) {
	api := &stubAPI{}
	r := setupRouter(api)

	w, _, _ := do(t, r, http.MethodPut, "/api/form", map[string]string{
		"name": "Jane", "phone": "555-1234", "time": "10:00",
		"date": tomorrowNotSunday().Format(model.DateLayout),
	}, nil)
	cookies := w.Result().Cookies()

	w, env, view := do(t, r, http.MethodPost, "/api/form/submit", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, bookingform.MsgInvalidPhone, env.Error.Message)
	assert.Equal(t, bookingform.MsgInvalidPhone, view.ErrorMessage)
	assert.Empty(t, api.submitted)
}

func TestSubmit_Success(t *testing.T) {
	api := &stubAPI{}
	r := setupRouter(api)
	date := tomorrowNotSunday().Format(model.DateLayout)

	w, _, _ := do(t, r, http.MethodPut, "/api/form", map[string]string{
		"name": "Jane Doe", "phone": "5551234567", "time": "10:00", "date": date,
	}, nil)
	cookies := w.Result().Cookies()

	w, env, view := do(t, r, http.MethodPost, "/api/form/submit", nil, cookies)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Booked!", view.SuccessMessage)
	assert.Empty(t, view.Name)

	require.Len(t, api.submitted, 1)
	assert.Equal(t, "Jane Doe", api.submitted[0].Name)
	assert.Equal(t, date, model.FormatDate(api.submitted[0].Date))
}

func TestSubmit_ServerRejection(t *testing.T) {
	api := &stubAPI{createErr: errors.Server(http.StatusConflict, "Slot taken")}
	r := setupRouter(api)

	w, _, _ := do(t, r, http.MethodPut, "/api/form", map[string]string{
		"name": "Jane Doe", "phone": "5551234567", "time": "10:00",
		"date": tomorrowNotSunday().Format(model.DateLayout),
	}, nil)
	cookies := w.Result().Cookies()

	w, env, view := do(t, r, http.MethodPost, "/api/form/submit", nil, cookies)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Slot taken", env.Error.Message)
	assert.Equal(t, "Jane Doe", view.Name)
}

func TestListServices(t *testing.T) {
	r := setupRouter(&stubAPI{})

	w, env, _ := do(t, r, http.MethodGet, "/api/services", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var services []string
	require.NoError(t, json.Unmarshal(env.Data, &services))
	assert.Len(t, services, 6)
	assert.Contains(t, services, "Basic Manicure")
}
