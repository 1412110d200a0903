// Package dto defines the request and response shapes of the admin HTTP API.
package dto

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
)

// APIResponse is the envelope every admin endpoint returns.
type APIResponse struct {
	Success   bool                  `json:"success"`
	Data      interface{}           `json:"data,omitempty"`
	Error     *errors.ErrorResponse `json:"error,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// SuccessResponse builds a success envelope.
func SuccessResponse(data interface{}, requestID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorEnvelope builds an error envelope from any error.
func ErrorEnvelope(err error, requestID string) *APIResponse {
	return &APIResponse{
		Success:   false,
		Error:     errors.ToErrorResponse(err),
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}

// SendSuccess writes a success envelope with the given status code.
func SendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse(data, RequestIDFrom(c)))
}

// SendError writes an error envelope with the status derived from the error.
func SendError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatusOf(err), ErrorEnvelope(err, RequestIDFrom(c)))
}

// RequestIDFrom returns the request id placed in the context by the request
// id middleware, or empty when absent.
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(string(constants.ContextKeyRequestID)); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
