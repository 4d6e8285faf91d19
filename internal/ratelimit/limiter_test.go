package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurst(t *testing.T) {
	l := New("ISBNdb", ISBNdbPerSecond)

	for i := 0; i < ISBNdbPerSecond; i++ {
		assert.True(t, l.Allow(), "request %d within burst should pass", i)
	}
	assert.False(t, l.Allow(), "request beyond burst should be throttled")
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	l := New("OpenLibrary", OpenLibraryPerSecond)

	// Drain the bucket so the next Wait would block.
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenLibrary")
}

func TestName(t *testing.T) {
	assert.Equal(t, "Google Books", New("Google Books", GoogleBooksPerSecond).Name())
}
