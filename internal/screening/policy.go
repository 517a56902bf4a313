package screening

import "fmt"

// Policy selects when Screen answers relative to the reputation lookup.
type Policy string

const (
	// PolicyAwait answers after the lookup completes or times out. Spam
	// callers are blocked; the answer can take up to the lookup timeout.
	PolicyAwait Policy = "await"

	// PolicyImmediate answers Allow at once and logs the looked-up result
	// when it arrives. The answer never waits, and spam is never blocked.
	PolicyImmediate Policy = "immediate"
)

// ParsePolicy validates a policy name. The empty string selects PolicyAwait.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAwait:
		return PolicyAwait, nil
	case PolicyImmediate:
		return PolicyImmediate, nil
	}
	return "", fmt.Errorf("invalid policy %q (valid: await, immediate)", s)
}
