package session

import "os"

// Whoami resolves an OS username for audit attribution, falling back
// through the usual environment variables before giving up.
func Whoami() string {
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}
