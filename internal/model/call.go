package model

import "time"

// IncomingCallEvent is delivered once per call by the telephony side.
// A nil RawNumber means the caller withheld their number.
type IncomingCallEvent struct {
	RawNumber *string   `json:"number"`
	Timestamp time.Time `json:"timestamp"`
}

// LookupOutcome records how a call's caller attributes were resolved.
type LookupOutcome string

const (
	LookupFound       LookupOutcome = "found"
	LookupNotFound    LookupOutcome = "not_found"
	LookupWithheld    LookupOutcome = "withheld"
	LookupUnavailable LookupOutcome = "unavailable"
	LookupTimeout     LookupOutcome = "timeout"
)

// CallLogEntry is one processed call. Entries are immutable once appended
// to the call log.
type CallLogEntry struct {
	ID            string        `json:"id"`
	PhoneNumber   *string       `json:"phone_number"`
	Timestamp     time.Time     `json:"timestamp"`
	CallerName    *string       `json:"caller_name"`
	CallerCompany *string       `json:"caller_company"`
	IsSpam        bool          `json:"is_spam"`
	Disposition   Disposition   `json:"disposition"`
	Lookup        LookupOutcome `json:"lookup"`
	Deferred      bool          `json:"deferred,omitempty"`
}
