package audit

import "strings"

// ActionResource holds the action and resource recorded for a transition.
type ActionResource struct {
	Action   string
	Resource string
}

// ForTransition maps an intent kind and the state an attempt entered to an audit action and resource.
// Action is the snake_case target state (otp_requested, committed, ...); resource is derived from the kind.
func ForTransition(kind, toState string) ActionResource {
	return ActionResource{Action: stateToAction(toState), Resource: kindToResource(kind)}
}

func kindToResource(kind string) string {
	switch kind {
	case "SEND":
		return "transfer"
	case "ADD":
		return "deposit"
	case "PASSWORD_CHANGE":
		return "password"
	case "LOGIN":
		return "session"
	default:
		return "unknown"
	}
}

// stateToAction converts CamelCase state names to snake_case: OTPRequested -> otp_requested.
func stateToAction(state string) string {
	if state == "" {
		return "unknown"
	}
	var b strings.Builder
	runes := []rune(state)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
