// Package admin implements the admin console: session gate, booking list,
// cancellation, slot assignment and logout.
package admin

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/jwalitptl/salon-booking/internal/model"
	"github.com/jwalitptl/salon-booking/internal/service/audit"
	"github.com/jwalitptl/salon-booking/pkg/errors"
	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
	"github.com/jwalitptl/salon-booking/pkg/validator"
)

const (
	MsgTimesUpdated   = "Available times updated"
	MsgInvalidDate    = "Please select a date"
	MsgCancelFailed   = "Failed to cancel booking. Please try again."
	MsgSetTimesFailed = "Failed to update available times. Please try again."
)

// API is the part of the booking API the console uses. All calls carry the
// admin session.
type API interface {
	CheckAuth(ctx context.Context) (model.SessionStatus, error)
	Logout(ctx context.Context) error
	ListBookings(ctx context.Context) ([]model.Booking, error)
	CancelBooking(ctx context.Context, id model.BookingID) error
	SetAvailableTimes(ctx context.Context, assignment model.AvailableTimesAssignment) error
}

// Navigator moves the admin to another page.
type Navigator interface {
	Redirect(path string)
}

// Notifier shows a blocking acknowledgement.
type Notifier interface {
	Acknowledge(message string)
}

type State struct {
	AuthState    model.AuthState `json:"auth_state"`
	Bookings     []model.Booking `json:"bookings"`
	SelectedDate string          `json:"selected_date"`
	TimesInput   string          `json:"times_input"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type Controller struct {
	api       API
	navigator Navigator
	notifier  Notifier
	validator *validator.Validator
	recorder  audit.Recorder
	metrics   *metrics.Metrics
	logger    *logger.Logger

	sessionOnce sync.Once

	mu       sync.Mutex
	state    State
	fetchSeq uint64
}

type Option func(*Controller)

func WithRecorder(r audit.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(api API, nav Navigator, notifier Notifier, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		navigator: nav,
		notifier:  notifier,
		validator: validator.MustNew(),
		recorder:  audit.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNop()
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	c.state.Bookings = []model.Booking{}
	return c
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Bookings = append([]model.Booking{}, c.state.Bookings...)
	return s
}

// CheckSession asks the server whether the admin is signed in. Only the first
// call makes a request; concurrent callers wait for it and later callers get
// the settled state.
func (c *Controller) CheckSession(ctx context.Context) (model.AuthState, error) {
	var err error
	c.sessionOnce.Do(func() {
		err = c.checkSession(ctx)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.AuthState, err
}

func (c *Controller) checkSession(ctx context.Context) error {
	status, err := c.api.CheckAuth(ctx)
	if err != nil || !status.Authenticated {
		if err != nil {
			c.logger.Error(err, "error checking authentication")
		}
		c.mu.Lock()
		c.state.AuthState = model.AuthUnauthenticated
		c.mu.Unlock()
		c.navigator.Redirect(model.LoginPath)
		return err
	}

	c.mu.Lock()
	c.state.AuthState = model.AuthAuthenticated
	c.mu.Unlock()

	return c.FetchBookings(ctx)
}

// FetchBookings replaces the list with the server's. Only the latest fetch
// is applied. Any failure leaves an empty list.
func (c *Controller) FetchBookings(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireAuthLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	bookings, err := c.api.ListBookings(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.fetchSeq {
		c.metrics.StaleResponses.WithLabelValues("bookings").Inc()
		return nil
	}
	if err != nil {
		c.logger.Error(err, "error fetching bookings")
		c.state.Bookings = []model.Booking{}
		return err
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	c.state.Bookings = bookings
	return nil
}

// CancelBooking drops the booking from the list before asking the server.
// If the server refuses, the booking goes back where it was. A 404 means it
// is already gone and counts as success.
func (c *Controller) CancelBooking(ctx context.Context, id model.BookingID) error {
	c.mu.Lock()
	if err := c.requireAuthLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	idx := indexOf(c.state.Bookings, id)
	var removed model.Booking
	if idx >= 0 {
		removed = c.state.Bookings[idx]
		c.state.Bookings = append(c.state.Bookings[:idx:idx], c.state.Bookings[idx+1:]...)
	}
	// bump so an in-flight fetch cannot resurrect the entry
	c.fetchSeq++
	c.mu.Unlock()

	err := c.api.CancelBooking(ctx, id)
	if err == nil || errors.StatusOf(err) == http.StatusNotFound {
		c.metrics.Cancellations.WithLabelValues("cancelled").Inc()
		c.recorder.Record(ctx, audit.EventBookingCancelled, map[string]string{"id": string(id)})
		return nil
	}

	c.logger.Error(err, "error cancelling booking", "id", string(id))
	c.metrics.Cancellations.WithLabelValues("failed").Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if idx >= 0 && indexOf(c.state.Bookings, id) < 0 {
		if idx > len(c.state.Bookings) {
			idx = len(c.state.Bookings)
		}
		c.state.Bookings = append(c.state.Bookings[:idx], append([]model.Booking{removed}, c.state.Bookings[idx:]...)...)
	}
	c.state.ErrorMessage = MsgCancelFailed
	return err
}

// SetAvailableTimes sends the comma separated slots in rawTimes as the full
// list for date. Tokens are trimmed and otherwise sent as typed.
func (c *Controller) SetAvailableTimes(ctx context.Context, date, rawTimes string) error {
	c.mu.Lock()
	if err := c.requireAuthLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.SelectedDate = date
	c.state.TimesInput = rawTimes

	assignment := model.AvailableTimesAssignment{Date: date, Times: SplitTimes(rawTimes)}
	if err := c.validator.Struct(assignment); err != nil {
		c.state.ErrorMessage = MsgInvalidDate
		c.mu.Unlock()
		return errors.Validation(MsgInvalidDate)
	}
	c.mu.Unlock()

	if err := c.api.SetAvailableTimes(ctx, assignment); err != nil {
		c.logger.Error(err, "error setting available times", "date", date)
		c.mu.Lock()
		c.state.ErrorMessage = MsgSetTimesFailed
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state.ErrorMessage = ""
	c.mu.Unlock()

	c.notifier.Acknowledge(MsgTimesUpdated)
	c.recorder.Record(ctx, audit.EventTimesUpdated, map[string]interface{}{
		"date":  date,
		"times": assignment.Times,
	})
	return nil
}

// Logout ends the session. The server's answer does not matter: the console
// always clears its state and leaves for the login page.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.api.Logout(ctx); err != nil {
		c.logger.Error(err, "error logging out")
	}

	c.mu.Lock()
	c.state.AuthState = model.AuthUnauthenticated
	c.state.Bookings = []model.Booking{}
	c.state.ErrorMessage = ""
	c.fetchSeq++
	c.mu.Unlock()

	c.recorder.Record(ctx, audit.EventAdminLogout, nil)
	c.navigator.Redirect(model.LoginPath)
	return nil
}

func (c *Controller) requireAuthLocked() error {
	if c.state.AuthState != model.AuthAuthenticated {
		return errors.Unauthorized(nil)
	}
	return nil
}

// SplitTimes turns "9:00, 10:00 ,11:00" into ["9:00" "10:00" "11:00"].
// Empty tokens are kept.
func SplitTimes(raw string) []string {
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func indexOf(bookings []model.Booking, id model.BookingID) int {
	for i, b := range bookings {
		if b.ID == id {
			return i
		}
	}
	return -1
}
