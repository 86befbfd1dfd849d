package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"API Error: 429 Too Many Requests", true},
		{"Rate limit exceeded, retry later", true},
		{"upstream overloaded", true},
		{"You have hit your usage limit", true},
		{"rate_limit_error", true},
		{"syntax error in generated code", false},
		{"context deadline exceeded", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRateLimited(tt.msg), "msg=%q", tt.msg)
	}
}
