package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{
			name:    "plain text untouched",
			in:      "add buy milk",
			want:    "add buy milk",
			changed: false,
		},
		{
			name:    "email masked",
			in:      "remind me to mail alice@example.com",
			want:    "remind me to mail [REDACTED_EMAIL]",
			changed: true,
		},
		{
			name:    "card number masked before phone rule",
			in:      "pay card 4111 1111 1111 1111 tomorrow",
			want:    "pay card [REDACTED_CARD] tomorrow",
			changed: true,
		},
		{
			name:    "phone masked",
			in:      "call +1 (555) 123-4567 about the rent",
			want:    "call [REDACTED_PHONE] about the rent",
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := RedactPII(tt.in)
			if got != tt.want {
				t.Fatalf("RedactPII(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if changed != tt.changed {
				t.Fatalf("changed = %v, want %v", changed, tt.changed)
			}
		})
	}
}

func TestRedactPIIKeepsTaskIDs(t *testing.T) {
	got, changed := RedactPII("mark task 7 done")
	if changed || strings.Contains(got, "REDACTED") {
		t.Fatalf("RedactPII() = %q, want short ids untouched", got)
	}
}
