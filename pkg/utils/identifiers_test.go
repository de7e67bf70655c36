package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeChannelName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Grimbold", "grimbold"},
		{"Night Elf.Hunter", "night-elf-hunter"},
		{"__weird__", "weird"},
		{"日本語", "member"},
		{"  a b  ", "a-b"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeChannelName(tt.in), "in=%q", tt.in)
	}
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "processing-grimbold", ProcessingChannelName("Grimbold"))
	assert.Equal(t, "ticket-grimbold", TicketChannelName("Grimbold"))
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestTokenCounterFallback(t *testing.T) {
	var tc *TokenCounter
	assert.Equal(t, len("12345678")/4, tc.CountTokens("12345678"))

	counter, err := NewTokenCounter()
	assert.NoError(t, err)
	assert.Greater(t, counter.CountTokens("hello there, recruit"), 0)
	assert.True(t, counter.WithinLimit("hi", 10))
}
