package version

import (
	"time"
)

var (
	// Set at build time using ldflags.
	version   = "unknown"
	buildDate = "1970-01-01T00:00:00Z"
)

func Version() string {
	return version
}

func BuildTime() (time.Time, error) {
	return time.Parse(time.RFC3339, buildDate)
}
