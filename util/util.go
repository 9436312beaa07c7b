package util

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

// ErrorResponse is the structured error body returned by every failure path.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// SuccessResponse represents a true or false success response for an endpoint
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrInvalidInput is an error response for an invalid input
type ErrInvalidInput struct {
	Reason string `json:"reason"`
}

func (e ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// ErrHTTP represents an error returned from an HTTP request
type ErrHTTP struct {
	URL    string
	Status int
	Err    error
}

func (h ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP Error Status - %d | URL - %s | Error: %s", h.Status, h.URL, h.Err)
}

// ErrResponse sends the structured error body for an error during endpoint execution
func ErrResponse(c *gin.Context, code int, kind string, err error) {
	c.Error(err)
	c.JSON(code, ErrorResponse{Error: kind, Message: err.Error()})
}

// MustExist panics if an environment variable is not set.
func MustExist(envVar string) {
	if viper.GetString(envVar) == "" {
		panic(fmt.Sprintf("%s must be set", envVar))
	}
}

// Contains reports whether str is present in s.
func Contains[T comparable](s []T, str T) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}

// ContainsString checks whether an item exists in a slice
func ContainsString(s []string, str string) bool {
	return Contains(s, str)
}

// FromPointer returns the value of a pointer, or the zero value if nil.
func FromPointer[T comparable](s *T) T {
	if s == nil {
		return *new(T)
	}
	return *s
}

// ToPointer returns a pointer to the given value.
func ToPointer[T any](v T) *T {
	return &v
}

// TruncateWithEllipsis truncates a string to a given length, adding an
// ellipsis when anything was cut.
func TruncateWithEllipsis(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length] + "..."
}

// HealthCheckHandler returns a 200 with a success body.
func HealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true})
	}
}
