package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jwalitptl/salon-booking/internal/model"
	"github.com/jwalitptl/salon-booking/pkg/errors"
)

// The calls below carry session credentials.

func (c *Client) CheckAuth(ctx context.Context) (model.SessionStatus, error) {
	const op = "check_auth"

	resp, err := c.do(ctx, op, http.MethodGet, "/api/check-auth", nil, nil, true)
	if err != nil {
		return model.SessionStatus{}, err
	}
	if !resp.ok() {
		return model.SessionStatus{}, errors.Server(resp.status, resp.message())
	}

	var status model.SessionStatus
	if err := json.Unmarshal(resp.body, &status); err != nil {
		return model.SessionStatus{}, errors.Transport(op, err)
	}
	return status, nil
}

func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil, true)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return errors.Server(resp.status, resp.message())
	}
	return nil
}

// ListBookings returns every booking. A body that is valid JSON but not an
// array yields an empty list.
func (c *Client) ListBookings(ctx context.Context) ([]model.Booking, error) {
	const op = "list_bookings"

	resp, err := c.do(ctx, op, http.MethodGet, "/api/bookings", nil, nil, true)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, errors.Server(resp.status, resp.message())
	}

	bookings := []model.Booking{}
	if _, err := decodeArray(op, resp.body, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (c *Client) CancelBooking(ctx context.Context, id model.BookingID) error {
	path := "/api/bookings/" + url.PathEscape(string(id))

	resp, err := c.do(ctx, "cancel_booking", http.MethodDelete, path, nil, nil, true)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return errors.Server(resp.status, resp.message())
	}
	return nil
}

func (c *Client) SetAvailableTimes(ctx context.Context, assignment model.AvailableTimesAssignment) error {
	resp, err := c.do(ctx, "set_available_times", http.MethodPost, "/api/set-available-times", nil, assignment, true)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return errors.Server(resp.status, resp.message())
	}
	return nil
}
