package middleware

// ErrorResponse is written by middleware that aborts before a handler runs.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}
