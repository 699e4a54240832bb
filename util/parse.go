package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

func ParseInt(str string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
		return v
	}
	return fallback
}

func ParseBool(str string, fallback bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
		return v
	}
	return fallback
}

// ParseBytes parses sizes such as "100", "10k", "20MB" or "1GiB" the way docker's
// max-size log option does: every unit is binary, so "10MB" is 10 MiB.
func ParseBytes(str string) (int64, error) {
	s := strings.TrimSpace(str)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", str, err)
	}
	// RAMInBytes converts through float64; out of range values come back
	// negative or saturated depending on the platform
	if n < 0 || n == math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows int64", str)
	}
	return n, nil
}
