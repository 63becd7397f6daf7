package util

import "testing"

func TestHideSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sk_live_abcdef123456", "sk_l...3456"},
		{"abcdef", "ab...ef"},
		{"abcd", "a...d"},
		{"ab", "ab"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := HideSecret(tc.in); got != tc.want {
			t.Fatalf("HideSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	if got := MaskEmail("buyer@example.test"); got != "b***@example.test" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskEmail("a@example.test"); got != "a@example.test" {
		t.Fatalf("short local parts pass through, got %q", got)
	}
	if got := MaskEmail("not-an-email"); got != "not-an-email" {
		t.Fatalf("non-emails pass through, got %q", got)
	}
}
