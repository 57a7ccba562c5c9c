package handlers

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/losol/eventuras-sub008/internal/utils"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func parseBoolDefault(s string, fallback bool) (bool, bool) {
	if s == "" {
		return fallback, true
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// cursorFrom returns the keyset start for an empty cursor.
func cursorFrom(raw string) (utils.Cursor, error) {
	if raw == "" {
		return utils.Start(), nil
	}
	return utils.DecodeCursor(raw)
}
