package http

import "github.com/gofiber/fiber/v2"

// APIError is the error response shape the dashboard expects: a top-level
// "error" string, nothing else mandatory.
type APIError struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Error:     message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, msg)
}

// errInternal returns a 500 error. The message is the short error text,
// never a stack trace.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, msg)
}
