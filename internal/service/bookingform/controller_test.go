package bookingform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-booking/internal/model"
	apperrors "github.com/jwalitptl/salon-booking/pkg/errors"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) GetAvailableTimes(ctx context.Context, date string, service model.ServiceName) ([]string, error) {
	args := m.Called(ctx, date, service)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAPI) CreateBooking(ctx context.Context, req model.BookingRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, eventType string, payload interface{}) {
	m.Called(ctx, eventType, payload)
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// Wednesday.
var testNow = time.Date(2024, 6, 5, 10, 30, 0, 0, time.Local)

func newTestController(t *testing.T, opts ...Option) (*Controller, *MockAPI, *fakeClock) {
	t.Helper()
	api := &MockAPI{}
	clock := &fakeClock{now: testNow}
	c := NewController(api, append([]Option{WithClock(clock)}, opts...)...)
	return c, api, clock
}

func fillValid(c *Controller) {
	c.SetName("Jane Doe")
	c.SetPhone("5551234567")
	c.SetTime("10:00")
	c.mu.Lock()
	c.state.Date = time.Date(2024, 6, 6, 0, 0, 0, 0, time.Local)
	c.mu.Unlock()
}

func TestNewController_Defaults(t *testing.T) {
	c, _, _ := newTestController(t)

	s := c.Snapshot()
	assert.Equal(t, model.ServiceBasicManicure, s.Service)
	assert.Equal(t, "2024-06-05", model.FormatDate(s.Date))
	assert.Empty(t, s.Name)
	assert.False(t, s.Loading)
	assert.False(t, s.Submitting)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Controller)
		wantMsg string
	}{
		{"missing name", func(c *Controller) { c.SetName("") }, MsgFillAllFields},
		{"missing phone", func(c *Controller) { c.SetPhone("") }, MsgFillAllFields},
		{"missing time", func(c *Controller) { c.SetTime("") }, MsgFillAllFields},
		{"missing date", func(c *Controller) { c.state.Date = time.Time{} }, MsgFillAllFields},
		{"missing service", func(c *Controller) { c.state.Service = "" }, MsgFillAllFields},
		{"phone with dash", func(c *Controller) { c.SetPhone("555-1234") }, MsgInvalidPhone},
		{"phone too short", func(c *Controller) { c.SetPhone("123456") }, MsgInvalidPhone},
		{"phone too long", func(c *Controller) { c.SetPhone("1234567890123456") }, MsgInvalidPhone},
		{"phone with letters", func(c *Controller) { c.SetPhone("555123abc") }, MsgInvalidPhone},
		{"name with digits", func(c *Controller) { c.SetName("J4ne") }, MsgInvalidName},
		{"name with apostrophe", func(c *Controller) { c.SetName("O'Brien") }, MsgInvalidName},
		{"name with accent", func(c *Controller) { c.SetName("José") }, MsgInvalidName},
		{"unknown service", func(c *Controller) { c.state.Service = "Hair Cut" }, MsgInvalidService},
		{"past date", func(c *Controller) { c.state.Date = time.Date(2024, 6, 4, 0, 0, 0, 0, time.Local) }, MsgInvalidDate},
		{"sunday", func(c *Controller) { c.state.Date = time.Date(2024, 6, 9, 0, 0, 0, 0, time.Local) }, MsgInvalidDate},
		// name and phone are both bad: phone is reported first
		{"phone before name", func(c *Controller) { c.SetPhone("abc"); c.SetName("123") }, MsgInvalidPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api, _ := newTestController(t)
			fillValid(c)
			tt.mutate(c)

			err := c.Submit(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))

			s := c.Snapshot()
			assert.Equal(t, tt.wantMsg, s.ErrorMessage)
			assert.False(t, s.Submitting)
			api.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_ReportsFirstRuleInFormOrder(t *testing.T) {
	sunday := time.Date(2024, 6, 9, 0, 0, 0, 0, time.Local)
	tests := []struct {
		name    string
		mutate  func(c *Controller)
		wantMsg string
	}{
		{"blank time beats bad phone", func(c *Controller) { c.SetTime(""); c.SetPhone("12") }, MsgFillAllFields},
		{"bad phone beats bad name", func(c *Controller) { c.SetPhone("12"); c.SetName("J4ne") }, MsgInvalidPhone},
		{"bad name beats sunday", func(c *Controller) { c.SetName("J4ne"); c.state.Date = sunday }, MsgInvalidName},
		{"bad service beats past date", func(c *Controller) {
			c.state.Service = "Pedicure Deluxe"
			c.state.Date = time.Date(2024, 6, 4, 0, 0, 0, 0, time.Local)
		}, MsgInvalidService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api, _ := newTestController(t)
			fillValid(c)
			tt.mutate(c)

			err := c.Submit(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantMsg, c.Snapshot().ErrorMessage)
			api.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_TodayAccepted(t *testing.T) {
	c, api, _ := newTestController(t)
	fillValid(c)
	c.mu.Lock()
	c.state.Date = model.StartOfDay(testNow)
	c.mu.Unlock()

	api.On("CreateBooking", mock.Anything, mock.Anything).Return("Booked", nil).Once()

	require.NoError(t, c.Submit(context.Background()))
	api.AssertExpectations(t)
}

func TestSubmit_Success(t *testing.T) {
	rec := &MockRecorder{}
	c, api, clock := newTestController(t, WithRecorder(rec))
	fillValid(c)
	c.mu.Lock()
	c.state.AvailableTimes = []string{"10:00", "11:00"}
	c.state.ErrorMessage = "old error"
	c.mu.Unlock()

	want := model.BookingRequest{
		Name:    "Jane Doe",
		Phone:   "5551234567",
		Service: model.ServiceBasicManicure,
		Date:    time.Date(2024, 6, 6, 0, 0, 0, 0, time.Local),
		Time:    "10:00",
	}
	api.On("CreateBooking", mock.Anything, want).Return("Appointment booked!", nil).Once()
	rec.On("Record", mock.Anything, "booking.submitted", map[string]string{
		"service": "Basic Manicure", "date": "2024-06-06", "time": "10:00",
	}).Once()

	require.NoError(t, c.Submit(context.Background()))

	s := c.Snapshot()
	assert.Equal(t, "Appointment booked!", s.SuccessMessage)
	assert.Empty(t, s.ErrorMessage)
	assert.Empty(t, s.Name)
	assert.Empty(t, s.Phone)
	assert.Empty(t, s.Time)
	assert.Empty(t, s.AvailableTimes)
	assert.Equal(t, model.ServiceBasicManicure, s.Service)
	assert.Equal(t, "2024-06-05", model.FormatDate(s.Date))
	assert.False(t, s.Submitting)

	require.Len(t, clock.delays, 1)
	assert.Equal(t, 3*time.Second, clock.delays[0])

	clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, "Appointment booked!", c.Snapshot().SuccessMessage)

	clock.Advance(time.Millisecond)
	assert.Empty(t, c.Snapshot().SuccessMessage)

	api.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestSubmit_NewerSuccessNotClearedByOlderTimer(t *testing.T) {
	c, api, clock := newTestController(t)
	api.On("CreateBooking", mock.Anything, mock.Anything).Return("first", nil).Once()
	api.On("CreateBooking", mock.Anything, mock.Anything).Return("second", nil).Once()

	fillValid(c)
	require.NoError(t, c.Submit(context.Background()))
	clock.Advance(2 * time.Second)

	fillValid(c)
	require.NoError(t, c.Submit(context.Background()))
	clock.Advance(time.Second)
	assert.Equal(t, "second", c.Snapshot().SuccessMessage)

	clock.Advance(2 * time.Second)
	assert.Empty(t, c.Snapshot().SuccessMessage)
}

func TestSubmit_ServerRejection(t *testing.T) {
	c, api, clock := newTestController(t)
	fillValid(c)

	api.On("CreateBooking", mock.Anything, mock.Anything).
		Return("", apperrors.Server(409, "Slot taken")).Once()

	err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsServer(err))

	s := c.Snapshot()
	assert.Equal(t, "Slot taken", s.ErrorMessage)
	assert.Empty(t, s.SuccessMessage)
	assert.Equal(t, "Jane Doe", s.Name)
	assert.Equal(t, "5551234567", s.Phone)
	assert.Equal(t, "10:00", s.Time)
	assert.False(t, s.Submitting)
	assert.Empty(t, clock.delays)
}

func TestSubmit_ServerRejectionWithoutMessage(t *testing.T) {
	c, api, _ := newTestController(t)
	fillValid(c)

	api.On("CreateBooking", mock.Anything, mock.Anything).
		Return("", apperrors.Server(500, "")).Once()

	require.Error(t, c.Submit(context.Background()))
	assert.Equal(t, MsgServerFallback, c.Snapshot().ErrorMessage)
}

func TestSubmit_TransportFailure(t *testing.T) {
	c, api, _ := newTestController(t)
	fillValid(c)

	api.On("CreateBooking", mock.Anything, mock.Anything).
		Return("", apperrors.Transport("create booking", errors.New("connection refused"))).Once()

	err := c.Submit(context.Background())
	require.Error(t, err)

	s := c.Snapshot()
	assert.Equal(t, MsgTransportFailed, s.ErrorMessage)
	assert.Equal(t, "Jane Doe", s.Name)
	assert.False(t, s.Submitting)
}

func TestSubmit_InProgress(t *testing.T) {
	c, api, _ := newTestController(t)
	fillValid(c)

	entered := make(chan struct{})
	release := make(chan struct{})
	api.On("CreateBooking", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return("ok", nil).Once()

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()

	<-entered
	assert.True(t, c.Snapshot().Submitting)
	assert.ErrorIs(t, c.Submit(context.Background()), ErrSubmitInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Snapshot().Submitting)
	api.AssertNumberOfCalls(t, "CreateBooking", 1)
}

func TestRefreshAvailableTimes(t *testing.T) {
	c, api, _ := newTestController(t)

	api.On("GetAvailableTimes", mock.Anything, "2024-06-07", model.ServiceGelPedicure).
		Return([]string{"9:00", "13:00"}, nil).Once()

	c.mu.Lock()
	c.state.Date = time.Date(2024, 6, 7, 0, 0, 0, 0, time.Local)
	c.mu.Unlock()
	require.NoError(t, c.SelectService(context.Background(), model.ServiceGelPedicure))

	s := c.Snapshot()
	assert.Equal(t, []string{"9:00", "13:00"}, s.AvailableTimes)
	assert.False(t, s.Loading)
}

func TestRefreshAvailableTimes_FailureKeepsPreviousTimes(t *testing.T) {
	c, api, _ := newTestController(t)

	api.On("GetAvailableTimes", mock.Anything, "2024-06-05", model.ServiceBasicManicure).
		Return([]string{"9:00"}, nil).Once()
	api.On("GetAvailableTimes", mock.Anything, "2024-06-05", model.ServiceBasicManicure).
		Return(nil, apperrors.Transport("get available times", errors.New("boom"))).Once()

	require.NoError(t, c.RefreshAvailableTimes(context.Background()))
	require.Error(t, c.RefreshAvailableTimes(context.Background()))

	s := c.Snapshot()
	assert.Equal(t, []string{"9:00"}, s.AvailableTimes)
	assert.False(t, s.Loading)
	assert.Empty(t, s.ErrorMessage)
}

func TestRefreshAvailableTimes_NoDateSkipsRequest(t *testing.T) {
	c, api, _ := newTestController(t)

	require.NoError(t, c.SelectDate(context.Background(), time.Time{}))
	api.AssertNotCalled(t, "GetAvailableTimes", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, c.Snapshot().Loading)
}

func TestRefreshAvailableTimes_StaleResponseDiscarded(t *testing.T) {
	c, api, _ := newTestController(t)

	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	api.On("GetAvailableTimes", mock.Anything, "2024-06-06", model.ServiceBasicManicure).
		Run(func(mock.Arguments) {
			close(firstEntered)
			<-releaseFirst
		}).
		Return([]string{"old"}, nil).Once()
	api.On("GetAvailableTimes", mock.Anything, "2024-06-07", model.ServiceBasicManicure).
		Return([]string{"new"}, nil).Once()

	done := make(chan error, 1)
	go func() {
		done <- c.SelectDate(context.Background(), time.Date(2024, 6, 6, 0, 0, 0, 0, time.Local))
	}()
	<-firstEntered

	require.NoError(t, c.SelectDate(context.Background(), time.Date(2024, 6, 7, 0, 0, 0, 0, time.Local)))
	assert.Equal(t, []string{"new"}, c.Snapshot().AvailableTimes)

	close(releaseFirst)
	require.NoError(t, <-done)

	s := c.Snapshot()
	assert.Equal(t, []string{"new"}, s.AvailableTimes)
	assert.False(t, s.Loading)
	api.AssertExpectations(t)
}

func TestState_MarshalJSON(t *testing.T) {
	c, _, _ := newTestController(t)
	fillValid(c)

	data, err := c.Snapshot().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "Jane Doe",
		"phone": "5551234567",
		"service": "Basic Manicure",
		"date": "2024-06-06",
		"time": "10:00",
		"available_times": null,
		"loading": false,
		"submitting": false
	}`, string(data))
}
