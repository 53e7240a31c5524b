package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/dispatch"
)

// ErrNotFound is returned when the requested entity is not cached (for cached
// reads) or the API answered 404.
var ErrNotFound = errors.New("resource: not found")

// APIError reports a response with a non-success status code.
type APIError struct {
	Op   dispatch.Type
	Code int
	Body []byte
	// Message is the decoded error body, when the API sent one.
	Message *discordgo.APIErrorMessage
}

func newAPIError(op dispatch.Type, resp dispatch.Response) *APIError {
	e := &APIError{Op: op, Code: resp.StatusCode, Body: resp.Body}
	var msg discordgo.APIErrorMessage
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &msg) == nil && (msg.Code != 0 || msg.Message != "") {
		e.Message = &msg
	}
	return e
}

func (e *APIError) Error() string {
	if e.Message != nil {
		return fmt.Sprintf("resource: %s: HTTP %d: %s (code %d)", e.Op, e.Code, e.Message.Message, e.Message.Code)
	}
	return fmt.Sprintf("resource: %s: HTTP %d", e.Op, e.Code)
}

// Is reports a 404 APIError as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Kind classifies the outcome of an operation.
type Kind int

const (
	OK Kind = iota
	NotFound
	Transport
	Application
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case Transport:
		return "transport"
	default:
		return "application"
	}
}

// KindOf classifies err. A nil error is OK; a 404 is NotFound rather than
// Application.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrNotFound):
		return NotFound
	case dispatch.IsTransport(err):
		return Transport
	default:
		return Application
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// OrEmpty returns v when it is non-nil, otherwise a pointer to the zero value.
// It restores the "default entity on any failure" behaviour for callers that
// do not need to tell a miss from a failure.
func OrEmpty[T any](v *T, _ error) *T {
	if v != nil {
		return v
	}
	return new(T)
}
