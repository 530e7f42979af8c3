package db

import "strings"

// IsUniqueViolation reports whether the provided error is a unique-constraint
// violation. Postgres names the violated constraint in the message; sqlite
// (used by the test suite) reports "UNIQUE constraint failed" without it, so a
// constraint match falls through to the driver-level wording.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
