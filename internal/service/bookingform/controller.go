// Package bookingform holds the customer-facing booking form: slot lookup,
// validation and submission.
package bookingform

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/salon-booking/internal/model"
	"github.com/jwalitptl/salon-booking/internal/service/audit"
	apperrors "github.com/jwalitptl/salon-booking/pkg/errors"
	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
	"github.com/jwalitptl/salon-booking/pkg/validator"
)

// User-facing messages.
const (
	MsgFillAllFields   = "Please fill all fields"
	MsgInvalidPhone    = "Please enter a valid phone number (numbers only)"
	MsgInvalidName     = "Please enter a valid name (letters only)"
	MsgInvalidService  = "Please select a valid service"
	MsgInvalidDate     = "Please choose a date from today onward, excluding Sundays"
	MsgServerFallback  = "Something went wrong. Please try again later."
	MsgTransportFailed = "There was an error processing your booking. Please try again later."
)

// ErrSubmitInProgress is returned when Submit is called while another submit
// has not finished.
var ErrSubmitInProgress = apperrors.Conflict("booking submission already in progress")

// API is the part of the booking API the form uses.
type API interface {
	GetAvailableTimes(ctx context.Context, date string, service model.ServiceName) ([]string, error)
	CreateBooking(ctx context.Context, req model.BookingRequest) (string, error)
}

// State is a point-in-time copy of the form.
type State struct {
	Name           string            `json:"name"`
	Phone          string            `json:"phone"`
	Service        model.ServiceName `json:"service"`
	Date           time.Time         `json:"-"`
	Time           string            `json:"time"`
	AvailableTimes []string          `json:"available_times"`
	Loading        bool              `json:"loading"`
	Submitting     bool              `json:"submitting"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	SuccessMessage string            `json:"success_message,omitempty"`
}

func (s State) MarshalJSON() ([]byte, error) {
	type alias State
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(s), Date: model.FormatDate(s.Date)})
}

type Controller struct {
	api            API
	validator      *validator.Validator
	clock          Clock
	defaultService model.ServiceName
	dismissAfter   time.Duration
	recorder       audit.Recorder
	metrics        *metrics.Metrics
	logger         *logger.Logger

	mu           sync.Mutex
	state        State
	refreshSeq   uint64
	successGen   uint64
	dismissTimer Timer
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithDefaultService sets the service the form starts with and resets to.
// Unknown names are ignored.
func WithDefaultService(service model.ServiceName) Option {
	return func(c *Controller) {
		if service.Valid() {
			c.defaultService = service
		}
	}
}

// WithSuccessDismiss sets how long a confirmation stays visible.
func WithSuccessDismiss(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.dismissAfter = d
		}
	}
}

func WithRecorder(r audit.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(api API, opts ...Option) *Controller {
	c := &Controller{
		api:            api,
		clock:          realClock{},
		defaultService: model.DefaultService,
		dismissAfter:   3 * time.Second,
		recorder:       audit.Nop{},
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
	c.validator = validator.MustNew(validator.WithRule("salonservice", func(fl playground.FieldLevel) bool {
		return model.ServiceName(fl.Field().String()).Valid()
	}))

	c.state.Service = c.defaultService
	c.state.Date = model.StartOfDay(c.clock.Now())
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	if c.state.AvailableTimes != nil {
		s.AvailableTimes = append([]string(nil), c.state.AvailableTimes...)
	}
	return s
}

func (c *Controller) SetName(name string) {
	c.mu.Lock()
	c.state.Name = name
	c.mu.Unlock()
}

func (c *Controller) SetPhone(phone string) {
	c.mu.Lock()
	c.state.Phone = phone
	c.mu.Unlock()
}

func (c *Controller) SetTime(slot string) {
	c.mu.Lock()
	c.state.Time = slot
	c.mu.Unlock()
}

// SelectDate changes the date and refreshes the slots for it.
func (c *Controller) SelectDate(ctx context.Context, date time.Time) error {
	c.mu.Lock()
	if date.IsZero() {
		c.state.Date = time.Time{}
	} else {
		c.state.Date = model.StartOfDay(date)
	}
	c.mu.Unlock()
	return c.RefreshAvailableTimes(ctx)
}

// SelectService changes the service and refreshes the slots for it.
func (c *Controller) SelectService(ctx context.Context, service model.ServiceName) error {
	c.mu.Lock()
	c.state.Service = service
	c.mu.Unlock()
	return c.RefreshAvailableTimes(ctx)
}

// RefreshAvailableTimes loads the slots for the current date and service.
// Only the most recently issued refresh may change the state; an older
// response that arrives later is dropped. On failure the previous slots are
// kept and the error is returned, not shown on the form.
func (c *Controller) RefreshAvailableTimes(ctx context.Context) error {
	c.mu.Lock()
	c.refreshSeq++
	seq := c.refreshSeq
	date := model.FormatDate(c.state.Date)
	service := c.state.Service
	if date == "" || service == "" {
		c.state.Loading = false
		c.mu.Unlock()
		return nil
	}
	c.state.Loading = true
	c.mu.Unlock()

	times, err := c.api.GetAvailableTimes(ctx, date, service)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.refreshSeq {
		c.metrics.StaleResponses.WithLabelValues("available_times").Inc()
		return nil
	}
	c.state.Loading = false
	if err != nil {
		c.logger.Error(err, "error fetching times", "date", date, "service", string(service))
		return err
	}
	if times == nil {
		times = []string{}
	}
	c.state.AvailableTimes = times
	return nil
}

// Submit validates the form and sends it. Validation failures and server
// answers are reflected in ErrorMessage and also returned.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Submitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}

	req := model.BookingRequest{
		Name:    c.state.Name,
		Phone:   c.state.Phone,
		Service: c.state.Service,
		Date:    c.state.Date,
		Time:    c.state.Time,
	}
	if err := c.validate(req); err != nil {
		c.state.ErrorMessage = err.(*apperrors.AppError).Message
		c.mu.Unlock()
		c.metrics.Submissions.WithLabelValues("invalid").Inc()
		return err
	}

	c.state.Submitting = true
	c.state.ErrorMessage = ""
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state.Submitting = false
		c.mu.Unlock()
	}()

	confirmation, err := c.api.CreateBooking(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case apperrors.IsServer(err):
		var appErr *apperrors.AppError
		errors.As(err, &appErr)
		c.state.ErrorMessage = appErr.Message
		if c.state.ErrorMessage == "" {
			c.state.ErrorMessage = MsgServerFallback
		}
		c.metrics.Submissions.WithLabelValues("rejected").Inc()
		return err
	case err != nil:
		c.logger.Error(err, "error booking appointment")
		c.state.ErrorMessage = MsgTransportFailed
		c.metrics.Submissions.WithLabelValues("failed").Inc()
		return err
	}

	c.metrics.Submissions.WithLabelValues("booked").Inc()
	c.state.SuccessMessage = confirmation
	c.resetLocked()
	c.scheduleDismissLocked()

	c.recorder.Record(ctx, audit.EventBookingSubmitted, map[string]string{
		"service": string(req.Service),
		"date":    model.FormatDate(req.Date),
		"time":    req.Time,
	})
	return nil
}

// validate runs the checks in the order the form reports them.
// ruleMessages lists the user message per failed rule, in the order the form
// reports them.
var ruleMessages = []struct {
	rule    string
	message string
}{
	{"required", MsgFillAllFields},
	{"phone", MsgInvalidPhone},
	{"alphaspace", MsgInvalidName},
	{"salonservice", MsgInvalidService},
	{"notsunday", MsgInvalidDate},
}

func (c *Controller) validate(req model.BookingRequest) error {
	failed, err := c.validator.Fields(req)
	if err != nil {
		return apperrors.Internal(err)
	}
	for _, rm := range ruleMessages {
		for _, f := range failed {
			if f.Rule == rm.rule {
				return apperrors.Validation(rm.message)
			}
		}
	}
	if len(failed) > 0 {
		return apperrors.Validation(MsgFillAllFields)
	}

	today := model.StartOfDay(c.clock.Now().In(req.Date.Location()))
	if model.StartOfDay(req.Date).Before(today) {
		return apperrors.Validation(MsgInvalidDate)
	}
	return nil
}

func (c *Controller) resetLocked() {
	c.state.Name = ""
	c.state.Phone = ""
	c.state.Service = c.defaultService
	c.state.Date = model.StartOfDay(c.clock.Now())
	c.state.Time = ""
	c.state.AvailableTimes = []string{}
	c.state.Loading = false
	// any refresh still in flight belongs to the old date
	c.refreshSeq++
}

func (c *Controller) scheduleDismissLocked() {
	c.successGen++
	gen := c.successGen
	if c.dismissTimer != nil {
		c.dismissTimer.Stop()
	}
	c.dismissTimer = c.clock.AfterFunc(c.dismissAfter, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.successGen == gen {
			c.state.SuccessMessage = ""
		}
	})
}
