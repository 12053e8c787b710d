// Package security provides validation, sanitization, and limits for the jobs package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobIDLength is the maximum length for job IDs
	MaxJobIDLength = 128

	// MaxJobTypeLength is the maximum length for driver type names
	MaxJobTypeLength = 64

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxRecorderWorkers is the hard limit for history recorder concurrency
	MaxRecorderWorkers = 64

	// MaxSpeed is the hard limit for a job's bytes-per-second rate limit
	MaxSpeed = 1 << 40
)

// wellFormedID matches a letter followed by alphanumerics, hyphens, underscores and dots
var wellFormedID = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobID validates a user-supplied job ID
func ValidateJobID(id string) error {
	if id == "" {
		return core.ErrInvalidID
	}
	if len(id) > MaxJobIDLength {
		return core.ErrJobIDTooLong
	}
	if !wellFormedID.MatchString(id) {
		return core.ErrInvalidID
	}
	return nil
}

// ValidJobType reports whether name is usable as a driver type name
func ValidJobType(name string) bool {
	return name != "" && len(name) <= MaxJobTypeLength && wellFormedID.MatchString(name)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampWorkers ensures recorder concurrency is within limits
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxRecorderWorkers {
		return MaxRecorderWorkers
	}
	return n
}

// ValidateSpeed checks a bytes-per-second limit; zero means unlimited
func ValidateSpeed(speed int64) error {
	if speed < 0 || speed > MaxSpeed {
		return core.ErrInvalidSpeed
	}
	return nil
}
