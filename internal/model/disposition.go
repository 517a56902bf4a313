package model

import "fmt"

// Disposition is the screening decision for a call.
type Disposition int

const (
	// Allow lets the call ring through.
	Allow Disposition = iota
	// Block rejects the call without notifying the user.
	Block
	// Silence lets the call through with the ringer muted. No current
	// rule emits it.
	Silence
)

var dispositionNames = map[Disposition]string{
	Allow:   "allow",
	Block:   "block",
	Silence: "silence",
}

// DispositionFor maps a caller's spam flag to a disposition.
func DispositionFor(isSpam bool) Disposition {
	if isSpam {
		return Block
	}
	return Allow
}

func (d Disposition) String() string {
	if name, ok := dispositionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

// ParseDisposition parses the lower-case name produced by String.
func ParseDisposition(s string) (Disposition, error) {
	for d, name := range dispositionNames {
		if name == s {
			return d, nil
		}
	}
	return Allow, fmt.Errorf("unknown disposition %q (valid: allow, block, silence)", s)
}

func (d Disposition) MarshalText() ([]byte, error) {
	if _, ok := dispositionNames[d]; !ok {
		return nil, fmt.Errorf("invalid disposition %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Disposition) UnmarshalText(b []byte) error {
	parsed, err := ParseDisposition(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CallResponse holds the flags returned to the telephony side for one call.
type CallResponse struct {
	DisallowCall     bool `json:"disallow_call"`
	RejectCall       bool `json:"reject_call"`
	SilenceCall      bool `json:"silence_call"`
	SkipCallLog      bool `json:"skip_call_log"`
	SkipNotification bool `json:"skip_notification"`
}

// Response converts a disposition into telephony response flags.
func (d Disposition) Response() CallResponse {
	switch d {
	case Block:
		return CallResponse{
			DisallowCall:     true,
			RejectCall:       true,
			SkipCallLog:      true,
			SkipNotification: true,
		}
	case Silence:
		return CallResponse{SilenceCall: true}
	default:
		return CallResponse{}
	}
}
