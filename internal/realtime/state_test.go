package realtime

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateDisconnected, StateAcquiringCredential, true},
		{StateDisconnected, StateConnected, false},
		{StateDisconnected, StateNegotiating, false},
		{StateAcquiringCredential, StateNegotiating, true},
		{StateAcquiringCredential, StateFailed, true},
		{StateAcquiringCredential, StateConnected, false},
		{StateNegotiating, StateConnected, true},
		{StateNegotiating, StateFailed, true},
		{StateNegotiating, StateDisconnected, true},
		{StateConnected, StateDisconnected, true},
		{StateConnected, StateFailed, true},
		{StateConnected, StateNegotiating, false},
		{StateFailed, StateDisconnected, true},
		{StateFailed, StateConnected, false},
		{StateFailed, StateAcquiringCredential, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := isValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
