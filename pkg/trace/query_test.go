package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueryTrace(t *testing.T) *Trace {
	t.Helper()
	entries := sessionEntries()
	entries[1].Response.StatusCode = 404
	entries[3].Response.StatusCode = 304
	tr, err := New(entries)
	require.NoError(t, err)
	return tr
}

func TestQuery_SelectByStatus(t *testing.T) {
	tr := newQueryTrace(t)

	got, err := tr.Query(context.Background(), `select(.status == 200)`)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, e := range got {
		assert.Equal(t, 200, e.Response.StatusCode)
	}
}

func TestQuery_BooleanExpression(t *testing.T) {
	tr := newQueryTrace(t)

	got, err := tr.Query(context.Background(), `.mime_type == "video/mp2t"`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}

func TestQuery_PathMatch(t *testing.T) {
	tr := newQueryTrace(t)

	got, err := tr.Query(context.Background(), `select(.path | endswith(".m3u8"))`)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQuery_NoMatches(t *testing.T) {
	tr := newQueryTrace(t)

	got, err := tr.Query(context.Background(), `select(.status == 503)`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_InvalidExpression(t *testing.T) {
	tr := newQueryTrace(t)

	_, err := tr.Query(context.Background(), `select(`)
	assert.Error(t, err)
}

func TestQuery_ContextCancellation(t *testing.T) {
	tr := newQueryTrace(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Query(ctx, `select(.status == 200)`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery_TypeMismatchIsNoMatch(t *testing.T) {
	tr := newQueryTrace(t)

	// startswith on a number errors per entry; that entry just does not match.
	got, err := tr.Query(context.Background(), `select(.status | startswith("2"))`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_DurationWindow(t *testing.T) {
	entries := sessionEntries()
	for i, e := range entries {
		e.Timeline.ResponseEnd = e.Timeline.RequestStart.Add(time.Duration(i*50) * time.Millisecond)
	}
	tr, err := New(entries)
	require.NoError(t, err)

	got, err := tr.Query(context.Background(), `select(.duration_ms >= 100)`)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
