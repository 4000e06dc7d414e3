package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/logger"
)

// Response is the envelope every /api endpoint answers with.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo is the client-facing part of an AppError. Fields carries per-field validation messages.
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Meta describes a page of a listing.
type Meta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewMeta builds pagination metadata. There is always at least one page.
func NewMeta(page, perPage int, total int64) *Meta {
	pages := 1
	if perPage > 0 && total > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return &Meta{Page: page, PerPage: perPage, Total: int(total), TotalPages: pages}
}

// Success writes data with the given status.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

// SuccessWithMeta writes a page of data.
func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error renders err. Anything that is not an AppError becomes INTERNAL_SERVER_ERROR and is logged.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
			Fields:  appErr.Fields,
		},
	})
}
