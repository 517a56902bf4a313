// Package model defines the core call screening data types.
package model

// CallerRecord is the stored reputation of a single phone number.
type CallerRecord struct {
	PhoneNumber string  `json:"phone_number"`
	Name        *string `json:"name,omitempty"`
	Company     *string `json:"company,omitempty"`
	IsSpam      bool    `json:"is_spam"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
