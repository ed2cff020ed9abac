package seencache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeduplication(t *testing.T) {
	c := New(10, 5*time.Minute)
	require.False(t, c.Seen("a"))
	c.Add("a")
	require.True(t, c.Seen("a"))
	require.False(t, c.Seen("b"))
}

func TestExpiry(t *testing.T) {
	c := New(10, 1*time.Minute)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }
	c.Add("a")
	require.True(t, c.Seen("a"))

	current = current.Add(2 * time.Minute)
	require.False(t, c.Seen("a"))
}

func TestSizeBound(t *testing.T) {
	c := New(2, time.Hour)
	c.Add("a")
	c.Add("b")
	c.Add("c") // evicts "a"
	require.False(t, c.Seen("a"))
	require.True(t, c.Seen("b"))
	require.True(t, c.Seen("c"))
	require.Equal(t, 2, c.Len())
}
