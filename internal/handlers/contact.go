package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/payload"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/logger"
)

// DefaultMaxIntakeBytes bounds the size of a posted contact form.
const DefaultMaxIntakeBytes int64 = 1 << 20

const maxMultipartMemory = 8 << 20

// ContactHandler accepts public contact form posts.
type ContactHandler struct {
	submissions *services.SubmissionService
	debug       bool
	maxBytes    int64
}

// NewContactHandler builds the intake handler. In debug mode failure
// responses include the underlying error.
func NewContactHandler(submissions *services.SubmissionService, debug bool, maxBytes int64) *ContactHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxIntakeBytes
	}
	return &ContactHandler{submissions: submissions, debug: debug, maxBytes: maxBytes}
}

// POST /contact/:station
func (h *ContactHandler) Submit(c *gin.Context) {
	station, ok := models.ParseStation(c.Param("station"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Unknown station"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	p, err := h.readPayload(c)
	if err != nil {
		status := http.StatusUnprocessableEntity
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		body := gin.H{"success": false, "message": "The submitted form data is invalid"}
		if h.debug {
			body["error"] = err.Error()
		}
		c.JSON(status, body)
		return
	}

	submission, err := h.submissions.Create(requestContext(c), services.CreateSubmissionInput{
		Category:  station,
		Payload:   p,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		logger.WithModule("intake").Error("store contact submission",
			zap.String("station", string(station)),
			zap.Error(err))
		body := gin.H{"success": false, "message": "Failed to submit contact form"}
		if h.debug {
			body["error"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"message":       "Contact form submitted successfully",
		"submission_id": submission.ID,
	})
}

// readPayload decodes a JSON object body, or form fields for any other
// content type.
func (h *ContactHandler) readPayload(c *gin.Context) (*payload.Payload, error) {
	contentType := strings.ToLower(c.ContentType())
	if contentType == "" || strings.Contains(contentType, "json") {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return payload.New(), nil
		}
		return payload.Parse(raw)
	}

	if strings.HasPrefix(contentType, "multipart/") {
		if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, err
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	return payload.FromForm(c.Request.PostForm), nil
}
