package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

func parseSnowflakeID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, ErrInvalidRequest
	}
	return parsed, nil
}

func parseLimit(value string, def, max int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed <= 0 {
		return def
	}
	if parsed > max {
		return max
	}
	return parsed
}
