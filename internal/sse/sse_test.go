package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedSplitAcrossChunks(t *testing.T) {
	var r LineReader

	lines := r.Feed([]byte("data: hel"))
	assert.Empty(t, lines)

	lines = r.Feed([]byte("lo\ndata: wor"))
	assert.Equal(t, []string{"data: hello"}, lines)

	lines = r.Feed([]byte("ld\n\n"))
	assert.Equal(t, []string{"data: world", ""}, lines)
}

func TestFeedStripsTrailingCR(t *testing.T) {
	var r LineReader
	lines := r.Feed([]byte("event: message_start\r\ndata: {}\r\n"))
	assert.Equal(t, []string{"event: message_start", "data: {}"}, lines)
}

func TestFeedMultipleLinesInOneChunk(t *testing.T) {
	var r LineReader
	lines := r.Feed([]byte("a\nb\nc\n"))
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestFeedRemainderPersistsWithNoTrailingNewline(t *testing.T) {
	var r LineReader
	lines := r.Feed([]byte("partial"))
	assert.Empty(t, lines)
	assert.Equal(t, "partial", r.rem)
}
