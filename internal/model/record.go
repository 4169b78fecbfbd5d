package model

import "strings"

// Canonical level tokens. The set is open-ended: records keep whatever
// level the source sent, these are just the ones the emitters we know
// about actually use.
const (
	LevelDebug   = "DEBUG"
	LevelInfo    = "INFO"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"
	LevelSuccess = "SUCCESS"
)

// Record is a single normalized log line. Immutable once created; the
// store stamps Line at insertion and nothing mutates it afterwards.
type Record struct {
	ID          string `json:"id"`
	Line        int64  `json:"line"`
	Timestamp   string `json:"timestamp"`
	Level       string `json:"level"`
	Message     string `json:"message"`
	Structured  bool   `json:"structured"`
	FromHistory bool   `json:"history"`
}

// CanonicalLevel upper-cases a level token and folds the WARNING alias
// into WARN so menus and counters treat them as one level.
func CanonicalLevel(level string) string {
	up := strings.ToUpper(strings.TrimSpace(level))
	if up == "WARNING" {
		return LevelWarn
	}
	return up
}
