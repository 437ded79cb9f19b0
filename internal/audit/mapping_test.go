package audit

import "testing"

func TestForTransition(t *testing.T) {
	cases := []struct {
		kind, state      string
		action, resource string
	}{
		{"SEND", "OTPRequested", "otp_requested", "transfer"},
		{"SEND", "OTPVerified", "otp_verified", "transfer"},
		{"ADD", "Committed", "committed", "deposit"},
		{"PASSWORD_CHANGE", "Failed", "failed", "password"},
		{"LOGIN", "Cancelled", "cancelled", "session"},
		{"REFUND", "Draft", "draft", "unknown"},
		{"SEND", "", "unknown", "transfer"},
	}
	for _, tc := range cases {
		got := ForTransition(tc.kind, tc.state)
		if got.Action != tc.action || got.Resource != tc.resource {
			t.Errorf("ForTransition(%q, %q) = %+v, want %s/%s", tc.kind, tc.state, got, tc.action, tc.resource)
		}
	}
}
