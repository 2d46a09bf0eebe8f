package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/pkg/logger"
)

type fakeRebuilder struct {
	calls int
	err   error
}

func (r *fakeRebuilder) Rebuild(ctx context.Context) error {
	r.calls++
	return r.err
}

func quietRebuildJob(r Rebuilder) *RebuildLeaderboardJob {
	return NewRebuildLeaderboardJob(r, logger.New(logger.Options{Output: io.Discard}), time.Minute)
}

func TestRebuildLeaderboardJob_Run(t *testing.T) {
	rebuilder := &fakeRebuilder{}
	job := quietRebuildJob(rebuilder)

	assert.Nil(t, job.LastRebuildStats())
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, rebuilder.calls)

	stats := job.LastRebuildStats()
	assert.NotNil(t, stats)
	assert.NoError(t, stats.Err)
	assert.False(t, stats.CompletedAt.Before(stats.StartedAt))
}

func TestRebuildLeaderboardJob_RunFailure(t *testing.T) {
	rebuildErr := errors.New("redis unavailable")
	job := quietRebuildJob(&fakeRebuilder{err: rebuildErr})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, rebuildErr)
	assert.ErrorIs(t, job.LastRebuildStats().Err, rebuildErr)
}
