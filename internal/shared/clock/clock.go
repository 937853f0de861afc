// Package clock provides the timestamp formatting shared by the
// action-protocol envelope builders and the signal mirrors.
package clock

import "time"

// Stamp returns the current UTC time in RFC3339Nano form, the "ts"
// field shape used throughout the action protocol's reply envelopes.
func Stamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
