package apierror

import (
	"github.com/gin-gonic/gin"
)

// ContextKeyRequestID is the gin context key under which the request
// annotation middleware stores the request id.
const ContextKeyRequestID = "request_id"

// envelope is the JSON error body returned to callers.
type envelope struct {
	Error     bool   `json:"error"`
	ErrorType Kind   `json:"error_type"`
	Message   string `json:"message"`
	Code      string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Severity  string `json:"severity"`
}

// Respond writes the structured error envelope and aborts the request.
func Respond(c *gin.Context, err *Error) {
	if err == nil {
		err = Internal()
	}
	c.AbortWithStatusJSON(err.Status(), envelope{
		Error:     true,
		ErrorType: err.Kind,
		Message:   err.Message,
		Code:      err.Code,
		RequestID: c.GetString(ContextKeyRequestID),
		Severity:  err.Severity(),
	})
}
