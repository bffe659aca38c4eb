package queue

import (
	"errors"
	"testing"

	"go-tube-download/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueueOne(t *testing.T, q *Queue) string {
	t.Helper()
	return q.Enqueue(models.DownloadRequest{
		URL:       "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		OutputDir: "/tmp",
	}, "Test Video", "1080p")
}

func TestEnqueueStartsPending(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)

	e, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "Test Video", e.Title)
	assert.Zero(t, e.Progress)
}

func TestHappyPathLifecycle(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)

	require.NoError(t, q.MarkDownloading(id))

	q.ApplyProgress(id, 10, "1.00MiB/s", "01:00")
	q.ApplyProgress(id, 45, "2.00MiB/s", "00:30")
	q.ApplyProgress(id, 80, "2.50MiB/s", "00:10")

	e, _ := q.Get(id)
	assert.Equal(t, StatusDownloading, e.Status)
	assert.Equal(t, 80.0, e.Progress)

	snap, err := q.Complete(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.Progress)
	assert.Empty(t, snap.Speed)
	assert.Empty(t, snap.ETA)
}

func TestProgressMonotonic(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)
	require.NoError(t, q.MarkDownloading(id))

	q.ApplyProgress(id, 50, "", "")
	q.ApplyProgress(id, 30, "", "") // stale, must be dropped

	e, _ := q.Get(id)
	assert.Equal(t, 50.0, e.Progress)
}

func TestProgressIgnoredUnlessDownloading(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)

	q.ApplyProgress(id, 40, "", "")
	e, _ := q.Get(id)
	assert.Zero(t, e.Progress, "progress must not apply to Pending entries")

	require.NoError(t, q.MarkDownloading(id))
	_, err := q.Complete(id)
	require.NoError(t, err)

	q.ApplyProgress(id, 40, "", "")
	e, _ = q.Get(id)
	assert.Equal(t, 100.0, e.Progress, "progress must not apply after a terminal status")
}

func TestSingleTerminalTransition(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)
	require.NoError(t, q.MarkDownloading(id))

	_, err := q.Complete(id)
	require.NoError(t, err)

	_, err = q.Complete(id)
	assert.ErrorIs(t, err, ErrBadTransition)
	assert.ErrorIs(t, q.Fail(id, errors.New("late failure")), ErrBadTransition)
}

func TestFailRecordsCause(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)
	require.NoError(t, q.MarkDownloading(id))

	require.NoError(t, q.Fail(id, errors.New("network error")))

	e, _ := q.Get(id)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "network error", e.Error)
}

func TestRetryAfterFailure(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)
	require.NoError(t, q.MarkDownloading(id))
	require.NoError(t, q.Fail(id, errors.New("boom")))

	require.NoError(t, q.MarkDownloading(id))
	e, _ := q.Get(id)
	assert.Equal(t, StatusDownloading, e.Status)
	assert.Empty(t, e.Error)
	assert.Zero(t, e.Progress)
}

func TestCancelReturnsToPending(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)
	require.NoError(t, q.MarkDownloading(id))
	q.ApplyProgress(id, 60, "1.00MiB/s", "00:20")

	require.NoError(t, q.CancelToPending(id))

	e, _ := q.Get(id)
	assert.Equal(t, StatusPending, e.Status)
	assert.Zero(t, e.Progress)
	assert.Empty(t, e.Speed)

	// Entry stays in the queue and can be restarted
	require.NoError(t, q.MarkDownloading(id))
}

func TestCancelCompletedRejected(t *testing.T) {
	q := New()
	id := enqueueOne(t, q)
	require.NoError(t, q.MarkDownloading(id))
	_, err := q.Complete(id)
	require.NoError(t, err)

	assert.ErrorIs(t, q.CancelToPending(id), ErrBadTransition)
}

func TestRemoveAndListOrder(t *testing.T) {
	q := New()
	first := enqueueOne(t, q)
	second := q.Enqueue(models.DownloadRequest{URL: "https://youtu.be/abc"}, "Second", "")
	third := q.Enqueue(models.DownloadRequest{URL: "https://youtu.be/def"}, "Third", "")

	list := q.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{first, second, third}, []string{list[0].ID, list[1].ID, list[2].ID})

	require.NoError(t, q.Remove(second))
	list = q.List()
	require.Len(t, list, 2)
	assert.Equal(t, []string{first, third}, []string{list[0].ID, list[1].ID})

	assert.ErrorIs(t, q.Remove(second), ErrNotFound)
}

func TestUnknownEntryErrors(t *testing.T) {
	q := New()
	assert.ErrorIs(t, q.MarkDownloading("nope"), ErrNotFound)
	assert.ErrorIs(t, q.Fail("nope", errors.New("x")), ErrNotFound)
	assert.ErrorIs(t, q.CancelToPending("nope"), ErrNotFound)
	_, err := q.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
