package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const dateOnlyLayout = "2006-01-02"

var errInvalidParam = errors.New("invalid parameter")

// optional returns nil for blank input and wraps parse failures in
// errInvalidParam.
func optional[T any](value string, parse func(string) (T, error)) (*T, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := parse(trimmed)
	if err != nil {
		return nil, errInvalidParam
	}
	return &parsed, nil
}

func parseOptionalBool(value string) (*bool, error) {
	return optional(value, strconv.ParseBool)
}

func parseOptionalInt(value string) (*int, error) {
	return optional(value, strconv.Atoi)
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	return optional(value, func(s string) (snowflake.ID, error) {
		id, err := snowflake.ParseString(s)
		if err == nil && id <= 0 {
			err = errInvalidParam
		}
		return id, err
	})
}

// parseOptionalTime accepts RFC 3339 or a bare date, which resolves to UTC
// midnight.
func parseOptionalTime(value string) (*time.Time, error) {
	return optional(value, parseInstant)
}

// parseRangeEnd reads the exclusive end of a [from, to) range. A bare date
// covers that whole day, so it resolves to the following midnight.
func parseRangeEnd(value string) (*time.Time, error) {
	return optional(value, func(s string) (time.Time, error) {
		if day, err := time.Parse(dateOnlyLayout, s); err == nil {
			return day.AddDate(0, 0, 1), nil
		}
		return time.Parse(time.RFC3339, s)
	})
}

func parseInstant(s string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return parsed, nil
	}
	return time.Parse(dateOnlyLayout, s)
}

// pathID reads the :id route parameter and reports a validation error when
// it is not a snowflake.
func pathID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return *id, true
}
