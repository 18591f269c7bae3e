package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"HTTP://LocalHost:8080", " ", "not a url", "https://app.neurogrid.io"}, zap.NewNop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:8080", true},
		{"https://app.neurogrid.io", true},
		{"https://APP.neurogrid.io", true},
		{"http://app.neurogrid.io", false},
		{"http://evil.example", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, p.check(r), tt.origin)
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, zap.NewNop())
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anything.example")
	assert.True(t, p.check(r))
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Hour)
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	var disabled *rateLimiter
	assert.True(t, disabled.allow())
}
