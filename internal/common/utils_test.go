package common

import "testing"

func TestHasAny(t *testing.T) {
	tests := []struct {
		s    string
		subs []string
		want bool
	}{
		{"Unknown station", []string{"Unknown station", "Invalid key"}, true},
		{"over quota", []string{"Unknown station"}, false},
		{"anything", nil, false},
	}
	for _, tc := range tests {
		if got := HasAny(tc.s, tc.subs...); got != tc.want {
			t.Errorf("HasAny(%q, %v) = %v, want %v", tc.s, tc.subs, got, tc.want)
		}
	}
}
