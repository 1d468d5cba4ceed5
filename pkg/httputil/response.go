package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-booking/pkg/errors"
)

// Response wraps all web front responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response with the status matching err.
func RespondWithError(c *gin.Context, err error) {
	RespondWithErrorData(c, err, nil)
}

// RespondWithErrorData also carries data, for callers that return the state
// the error left behind.
func RespondWithErrorData(c *gin.Context, err error, data interface{}) {
	status := StatusFor(err)
	message := "Internal server error"

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && status != http.StatusInternalServerError {
		message = appErr.Message
	}

	c.JSON(status, Response{
		Success: false,
		Data:    data,
		Error: &Error{
			Code:    status,
			Message: message,
		},
	})
}

// StatusFor maps an error code to the status the web front answers with.
func StatusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrBadRequest, errors.ErrValidation:
		return http.StatusBadRequest
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrTransport:
		return http.StatusBadGateway
	case errors.ErrServer:
		if s := errors.StatusOf(err); s >= 400 && s < 600 {
			return s
		}
		return http.StatusBadGateway
	case errors.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
