package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCandidate(t *testing.T) {
	assert.True(t, Candidate("mp4"))
	assert.True(t, Candidate("mov"))
	assert.True(t, Candidate("m4a"))
	assert.False(t, Candidate("mkv"))
	assert.False(t, Candidate("txt"))
}

func TestExtract_NonexistentFileReturnsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	info, err := Extract(ctx, "/nonexistent/path/movie.mp4")
	assert.Error(t, err)
	assert.Nil(t, info)
}

func TestExtract_RespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, "/nonexistent/path/movie.mp4")
	assert.Error(t, err)
}
