package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    Limit
		wantErr bool
	}{
		{"5/second", Limit{N: 5, Window: time.Second}, false},
		{"2/minute", Limit{N: 2, Window: time.Minute}, false},
		{" 10 / second ", Limit{N: 10, Window: time.Second}, false},
		{"0/second", Limit{}, true},
		{"-1/second", Limit{}, true},
		{"5/hour", Limit{}, true},
		{"second", Limit{}, true},
		{"", Limit{}, true},
	}
	for _, tt := range tests {
		got, err := ParseLimit(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	l, err := New(map[string]string{
		"/ask_rag": "1/second",
		"/search":  "3/second",
	}, "20/second")
	require.NoError(t, err)

	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("10.0.0.1", "/search")
		assert.True(t, ok, "request %d", i)
	}
	ok, retryAfter := l.Allow("10.0.0.1", "/search")
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Second)
}

func TestAllowWindowSlides(t *testing.T) {
	l, now := newTestLimiter(t)

	ok, _ := l.Allow("10.0.0.1", "/ask_rag")
	require.True(t, ok)
	ok, _ = l.Allow("10.0.0.1", "/ask_rag")
	require.False(t, ok)

	*now = now.Add(1100 * time.Millisecond)
	ok, _ = l.Allow("10.0.0.1", "/ask_rag")
	assert.True(t, ok, "slot frees after the window slides")
}

func TestAllowIsolatesClients(t *testing.T) {
	l, _ := newTestLimiter(t)

	ok, _ := l.Allow("10.0.0.1", "/ask_rag")
	require.True(t, ok)

	ok, _ = l.Allow("10.0.0.2", "/ask_rag")
	assert.True(t, ok, "second client has its own window")
}

func TestAllowIsolatesEndpoints(t *testing.T) {
	l, _ := newTestLimiter(t)

	ok, _ := l.Allow("10.0.0.1", "/ask_rag")
	require.True(t, ok)

	ok, _ = l.Allow("10.0.0.1", "/search")
	assert.True(t, ok, "endpoints have separate windows")
}

func TestAllowFallbackRule(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 20; i++ {
		ok, _ := l.Allow("10.0.0.1", "/health")
		require.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow("10.0.0.1", "/health")
	assert.False(t, ok)
}

func TestTrimDropsIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(t)

	l.Allow("10.0.0.1", "/search")
	l.Allow("10.0.0.2", "/search")

	*now = now.Add(2 * time.Hour)
	l.Allow("10.0.0.2", "/search")

	removed := l.Trim(time.Hour)
	assert.Equal(t, 1, removed)
}

func TestNewRejectsBadRules(t *testing.T) {
	_, err := New(map[string]string{"/x": "banana"}, "")
	assert.Error(t, err)

	_, err = New(nil, "nope")
	assert.Error(t, err)
}

func TestDefaultRulesParse(t *testing.T) {
	for endpoint, rule := range DefaultRules() {
		_, err := ParseLimit(rule)
		assert.NoError(t, err, endpoint)
	}
	_, err := ParseLimit(DefaultFallback)
	assert.NoError(t, err)
}
