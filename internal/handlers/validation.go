package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/response"
	appValidator "github.com/charlesng35/formdesk/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, a 422 response listing every failing field is written
// and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		if ve, ok := err.(appValidator.ValidationErrors); ok {
			response.Error(c, appErrors.NewValidation(ve.Messages()))
			return false
		}
		response.Error(c, appErrors.NewBadRequest("invalid request payload"))
		return false
	}

	return true
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// optionalQuery distinguishes an absent query parameter from an empty one.
func optionalQuery(c *gin.Context, key string) *string {
	value, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)
	return &value
}
