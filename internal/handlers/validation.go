package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/l2cache/pkg/errors"
	"github.com/charlesng35/l2cache/pkg/response"
	appValidator "github.com/charlesng35/l2cache/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

var validationMessages = map[string]string{
	"required":   "%s is required",
	"min":        "%s must be at least %s",
	"max":        "%s must be at most %s characters",
	"oneof":      "%s must be one of [%s]",
	"identifier": "%s must be a mapped identifier",
}

func formatValidationError(err error) string {
	ve, ok := err.(appValidator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := prettifyFieldName(failure.Field)
		format, known := validationMessages[failure.Tag]
		switch {
		case !known && failure.Param != "":
			messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
		case !known:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
		case strings.Count(format, "%s") == 2:
			messages = append(messages, fmt.Sprintf(format, field, failure.Param))
		default:
			messages = append(messages, fmt.Sprintf(format, field))
		}
	}
	return strings.Join(messages, "; ")
}

// prettifyFieldName drops the root struct name from a validator namespace.
func prettifyFieldName(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
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

// parseBoolQuery accepts the strconv.ParseBool spellings; anything else is false.
func parseBoolQuery(c *gin.Context, key string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && parsed
}
