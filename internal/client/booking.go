package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jwalitptl/salon-booking/internal/model"
	"github.com/jwalitptl/salon-booking/pkg/errors"
)

// GetAvailableTimes returns the slots for a date and service. Any valid JSON
// that is not an array, whatever the status, yields an empty slice.
func (c *Client) GetAvailableTimes(ctx context.Context, date string, service model.ServiceName) ([]string, error) {
	const op = "get_available_times"

	query := url.Values{}
	query.Set("date", date)
	query.Set("service", string(service))

	resp, err := c.do(ctx, op, http.MethodGet, "/api/available-times", query, nil, false)
	if err != nil {
		return nil, err
	}

	times := []string{}
	if _, err := decodeArray(op, resp.body, &times); err != nil {
		return nil, err
	}
	return times, nil
}

// CreateBooking submits req and returns the server's confirmation message. A
// non-2xx JSON answer is an errors.Server carrying the server message, if
// any. A non-2xx answer that is not JSON, such as a proxy error page, is a
// transport failure.
func (c *Client) CreateBooking(ctx context.Context, req model.BookingRequest) (string, error) {
	const op = "create_booking"

	resp, err := c.do(ctx, op, http.MethodPost, "/api/book", nil, req, false)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		if !json.Valid(bytes.TrimSpace(resp.body)) {
			return "", errors.Transport(op, fmt.Errorf("status %d with a non-JSON body", resp.status))
		}
		return "", errors.Server(resp.status, resp.message())
	}

	var body model.MessageResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return "", errors.Transport(op, err)
	}
	return body.Message, nil
}
