package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// DateLayout is the calendar date format exchanged with the booking API.
const DateLayout = "2006-01-02"

// ServiceName is one of the salon services a customer can book.
type ServiceName string

const (
	ServiceAcrylicManicure ServiceName = "Acrylic Manicure"
	ServiceGelManicure     ServiceName = "Gel Manicure"
	ServiceBasicManicure   ServiceName = "Basic Manicure"
	ServiceAcrylicPedicure ServiceName = "Acrylic Pedicure"
	ServiceGelPedicure     ServiceName = "Gel Pedicure"
	ServiceBasicPedicure   ServiceName = "Basic Pedicure"
)

// DefaultService is what the booking form resets to.
const DefaultService = ServiceBasicManicure

// Services lists the bookable services in display order.
var Services = []ServiceName{
	ServiceAcrylicManicure,
	ServiceGelManicure,
	ServiceBasicManicure,
	ServiceAcrylicPedicure,
	ServiceGelPedicure,
	ServiceBasicPedicure,
}

func (s ServiceName) Valid() bool {
	for _, known := range Services {
		if s == known {
			return true
		}
	}
	return false
}

// BookingRequest is what a customer submits. Date has no time component on
// the wire.
type BookingRequest struct {
	Name    string      `json:"name" validate:"required,alphaspace"`
	Phone   string      `json:"phone" validate:"required,phone"`
	Service ServiceName `json:"service" validate:"required,salonservice"`
	Date    time.Time   `json:"-" validate:"required,notsunday"`
	Time    string      `json:"time" validate:"required"`
}

type bookingRequestWire struct {
	Name    string      `json:"name"`
	Phone   string      `json:"phone"`
	Service ServiceName `json:"service"`
	Date    string      `json:"date"`
	Time    string      `json:"time"`
}

// MarshalJSON encodes the date as a calendar date in the date's own location.
func (r BookingRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingRequestWire{
		Name:    r.Name,
		Phone:   r.Phone,
		Service: r.Service,
		Date:    FormatDate(r.Date),
		Time:    r.Time,
	})
}

// BookingID is the opaque server-assigned identifier. The API may send it as
// a string or a number.
type BookingID string

func (id *BookingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = BookingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = BookingID(n.String())
	return nil
}

// Booking is a server-confirmed reservation as listed for the admin. Date is
// kept as the server sent it.
type Booking struct {
	ID      BookingID `json:"id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone,omitempty"`
	Service string    `json:"service"`
	Date    string    `json:"date"`
	Time    string    `json:"time"`
}

// AvailableTimesAssignment overwrites the slots of one date on the server.
type AvailableTimesAssignment struct {
	Date  string   `json:"date" validate:"required,datetime=2006-01-02"`
	Times []string `json:"times"`
}

// MessageResponse is the body of /api/book in both outcomes.
type MessageResponse struct {
	Message string `json:"message"`
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
