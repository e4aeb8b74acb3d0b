package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"ada@example.com", "Ada"},
		{"ada.lovelace@example.com", "Ada Lovelace"},
		{"ada_lovelace@example.com", "Ada Lovelace"},
		{"ada-lovelace+tag@example.com", "Ada Lovelace Tag"},
		{"ADA@example.com", "ADA"},
		{"...@example.com", "User"},
		{"no-at-sign", "No At Sign"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveNameFromEmail(tt.email), "email %q", tt.email)
	}
}
