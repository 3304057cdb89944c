package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orrange/orrange-api/pkg/apperrors"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handle processes the error and returns the appropriate response. Coded
// errors map onto their own HTTP status; anything uncoded is reported as an
// internal error without leaking the underlying message.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		Coded(c, appErr)
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Coded sends the response for a coded application error.
func Coded(c *gin.Context, err *apperrors.Error) {
	c.JSON(apperrors.HTTPStatus(err.Code()), Response{
		Success: false,
		Error: &Error{
			Code:    string(err.Code()),
			Message: err.Message(),
		},
	})
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error: &Error{
			Code:    string(apperrors.CodeNotFound),
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    string(apperrors.CodeValidation),
			Message: message,
		},
	})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &Error{
			Code:    string(apperrors.CodeUnauthenticated),
			Message: message,
		},
	})
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Success: false,
		Error: &Error{
			Code:    string(apperrors.CodeUnauthorized),
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    string(apperrors.CodeInternal),
			Message: message,
		},
	})
}
