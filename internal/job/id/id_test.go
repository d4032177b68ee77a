package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]struct{}, 500)
	for range 500 {
		got := Generate()
		assert.True(t, Valid(got), "Generate() = %q", got)
		_, dup := seen[got]
		assert.False(t, dup, "duplicate ID %q", got)
		seen[got] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	tests := map[string]bool{
		"job-3f1c2a9e-8d4b-4c1e-9a57-0b6f2d9e4c11": true,
		"3f1c2a9e-8d4b-4c1e-9a57-0b6f2d9e4c11":     false,
		"job-":                                     false,
		"job-../../etc/passwd":                     false,
		"JOB-3f1c2a9e-8d4b-4c1e-9a57-0b6f2d9e4c11": false,
		"":                                         false,
	}
	for in, want := range tests {
		assert.Equal(t, want, Valid(in), "Valid(%q)", in)
	}
}
