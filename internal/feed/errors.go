package feed

import "fmt"

// DataError is raised at load time for OHLC consistency violations,
// non-monotonic timestamps, spacing mismatches, or missing required
// series. It aborts the run before the hot loop ever starts.
type DataError struct {
	Role    string
	Message string
}

func (e *DataError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("feed: data error on role %s: %s", e.Role, e.Message)
	}
	return fmt.Sprintf("feed: data error: %s", e.Message)
}

func dataGap(role, format string, args ...any) error {
	return &DataError{Role: role, Message: fmt.Sprintf(format, args...)}
}
