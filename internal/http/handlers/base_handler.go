// README: Base handler utilities (request binding, validation mapping, paging and path params).
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"seatshare/internal/apperr"
	"seatshare/internal/types"
)

const dateLayout = "2006-01-02"

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json tag so error
// fields match the request body.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindJSON decodes the body into dst and converts binding failures into validation errors.
func bindJSON(c *gin.Context, dst any) error {
	useJSONFieldNames()
	if err := c.ShouldBindJSON(dst); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return &apperr.ValidationError{Fields: fields}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Invalid(typeErr.Field, "must be a "+typeErr.Type.String())
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return apperr.Invalid("departure_time", "must be an RFC 3339 timestamp")
	}
	if errors.Is(err, io.EOF) {
		return apperr.Invalid("body", "is required")
	}
	return apperr.Invalid("body", "must be valid JSON")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be >= " + fe.Param()
	case "max":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// parsePage reads page and limit query parameters; absent values take defaults.
func parsePage(c *gin.Context) (types.PageRequest, error) {
	var p types.PageRequest
	fields := map[string]string{}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields["page"] = "must be a positive integer"
		}
		p.Page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields["limit"] = "must be a positive integer"
		}
		p.Limit = n
	}
	if len(fields) > 0 {
		return p, &apperr.ValidationError{Fields: fields}
	}
	return p.Normalize(), nil
}

// parseDate reads an optional YYYY-MM-DD query parameter as a UTC day.
func parseDate(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return nil, apperr.Invalid(key, "must be YYYY-MM-DD")
	}
	return &d, nil
}

func idParam(c *gin.Context) types.ID {
	return types.ID(c.Param("id"))
}
