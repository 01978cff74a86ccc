package domain

import (
	"fmt"
	"time"
)

// ConfigError reports a parameter that makes a run impossible or
// meaningless. It is returned before any bar is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// DataError reports a malformed price series. Index is the offending bar's
// position in the series, or -1 when the series as a whole is unusable.
type DataError struct {
	Index  int
	Date   time.Time
	Reason string
}

func (e *DataError) Error() string {
	if e.Index < 0 {
		return "invalid price data: " + e.Reason
	}
	return fmt.Sprintf("invalid price data at bar %d (%s): %s",
		e.Index, e.Date.Format("2006-01-02"), e.Reason)
}
