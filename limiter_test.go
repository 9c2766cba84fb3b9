package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	require.Equal(t, "rl", o.KeyPrefix)
	require.True(t, o.FailOpen)
	require.NotNil(t, o.Clock)
	require.Nil(t, o.Store)
}

func TestKey_DefaultPrefix(t *testing.T) {
	o := defaultOptions()
	require.Equal(t, "rl:sw:user:123", o.key("sw", "user:123"))
}

func TestKey_CustomPrefix(t *testing.T) {
	o := applyOptions([]Option{WithKeyPrefix("myapp")})
	require.Equal(t, "myapp:tb:ip:10.0.0.1", o.key("tb", "ip:10.0.0.1"))
}

func TestApplyOptions_Composes(t *testing.T) {
	o := applyOptions([]Option{
		WithKeyPrefix("gw"),
		WithFailOpen(false),
	})
	require.Equal(t, "gw", o.KeyPrefix)
	require.False(t, o.FailOpen)
}

func TestRetryAfter_ClampsToAtLeastOneSecond(t *testing.T) {
	require.Equal(t, int64(1), *retryAfter(0))
	require.Equal(t, int64(1), *retryAfter(-5))
	require.Equal(t, int64(3), *retryAfter(3))
}
