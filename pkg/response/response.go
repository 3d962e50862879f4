package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// LegacyError mirrors the flat error body of the original /generate contract.
type LegacyError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JSON sends a success response with optional metadata.
func JSON(c *gin.Context, status int, data interface{}, meta map[string]interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Meta: meta})
}

// Accepted responds with HTTP 202 Accepted.
func Accepted(c *gin.Context, data interface{}) {
	JSON(c, http.StatusAccepted, data, nil)
}

// Error sends an error response converting the error to the common structure.
// Internal errors never expose their wrapped cause.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// Flat writes an unenveloped body, used by the legacy routes.
func Flat(c *gin.Context, status int, body interface{}) {
	noStore(c)
	c.JSON(status, body)
}

// LegacyFailure writes {status:"error", message} for the legacy routes. Server errors always
// carry the generic message.
func LegacyFailure(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	message := appErr.Message
	if appErr.Status >= http.StatusInternalServerError && appErr.Status != http.StatusGatewayTimeout {
		message = "Internal Server Error"
	}
	Flat(c, appErr.Status, LegacyError{Status: "error", Message: message})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
