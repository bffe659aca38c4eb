package avoidance

import (
	"context"
	"testing"
	"time"

	"go-tube-download/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectIdentityFromPool(t *testing.T) {
	p := NewPolicy(Options{})

	pool := map[string]bool{}
	for _, id := range Identities() {
		pool[id.UserAgent] = true
	}

	for i := 0; i < 50; i++ {
		id := p.SelectIdentity()
		assert.True(t, pool[id.UserAgent], "identity %q not in pool", id.UserAgent)
	}
}

func TestHeadersSelfConsistent(t *testing.T) {
	for _, id := range Identities() {
		h := Headers(id)
		assert.Equal(t, id.UserAgent, h["User-Agent"])
		assert.NotEmpty(t, h["Accept"])
		assert.NotEmpty(t, h["Accept-Language"])
		assert.Equal(t, "1", h["DNT"])
	}

	// Same identity twice yields identical headers
	id := Identities()[0]
	assert.Equal(t, Headers(id), Headers(id))
}

func TestCookieHeader(t *testing.T) {
	tests := []struct {
		name    string
		cookies []models.Cookie
		want    string
	}{
		{"Empty", nil, ""},
		{"Single", []models.Cookie{{Name: "SID", Value: "abc123"}}, "SID=abc123"},
		{
			"Multiple preserve order",
			[]models.Cookie{
				{Name: "SID", Value: "abc123"},
				{Name: "HSID", Value: "def456"},
				{Name: "SSID", Value: "ghi789"},
			},
			"SID=abc123; HSID=def456; SSID=ghi789",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CookieHeader(tt.cookies))
		})
	}
}

func TestRateLimitAllowsBurstWithinWindow(t *testing.T) {
	p := NewPolicy(Options{MaxRequests: 3, Window: time.Minute, JitterMin: 0, JitterMax: 0})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.BeforeRequest(context.Background()))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond, "first three requests should not block")
}

func TestRateLimitSuspendsFourthRequest(t *testing.T) {
	window := 300 * time.Millisecond
	p := NewPolicy(Options{MaxRequests: 3, Window: window, JitterMin: 0, JitterMax: 0})

	for i := 0; i < 3; i++ {
		require.NoError(t, p.BeforeRequest(context.Background()))
	}

	start := time.Now()
	require.NoError(t, p.BeforeRequest(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, window/2, "fourth request should wait for the window to slide")
}

func TestRateLimitWindowSlides(t *testing.T) {
	window := 200 * time.Millisecond
	p := NewPolicy(Options{MaxRequests: 1, Window: window, JitterMin: 0, JitterMax: 0})

	require.NoError(t, p.BeforeRequest(context.Background()))
	time.Sleep(window + 50*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.BeforeRequest(context.Background()))
	assert.Less(t, time.Since(start), window, "request after the window expired should not block")
}

func TestBeforeRequestRespectsContext(t *testing.T) {
	p := NewPolicy(Options{MaxRequests: 1, Window: time.Hour, JitterMin: 0, JitterMax: 0})
	require.NoError(t, p.BeforeRequest(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.BeforeRequest(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJitterAlwaysApplied(t *testing.T) {
	p := NewPolicy(Options{MaxRequests: 100, Window: time.Hour, JitterMin: 30 * time.Millisecond, JitterMax: 60 * time.Millisecond})

	start := time.Now()
	require.NoError(t, p.BeforeRequest(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "delay below jitter floor")
}
