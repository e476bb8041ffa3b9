package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	_, child := StartSpan(ctx, "execute", "ignored")
	child.SetAttr("candidates", 12)
	child.End()
	root.End()

	require.Len(t, root.Children(), 1)
	assert.Equal(t, "req-1", root.Children()[0].TraceID)
	assert.Same(t, root, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}

func TestLogIfSlow(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, root := StartSpan(context.Background(), "search", "req-2")
	_, child := StartSpan(ctx, "cache", "")
	child.End()
	root.End()

	assert.False(t, root.LogIfSlow(logger, 0))
	assert.False(t, root.LogIfSlow(logger, time.Hour))
	assert.Empty(t, buf.String())

	root.Duration = time.Second
	assert.True(t, root.LogIfSlow(logger, time.Millisecond))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "slow query span"))
	assert.Contains(t, out, "span=cache")
	assert.Contains(t, out, "trace_id=req-2")
}

func TestNilSpanIsInert(t *testing.T) {
	var s *Span
	s.End()
	s.SetAttr("k", "v")
	assert.False(t, s.LogIfSlow(slog.Default(), time.Nanosecond))
}
