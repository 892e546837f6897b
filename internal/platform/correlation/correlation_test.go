package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID_Length(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 8)
}

func TestNewID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range make([]struct{}, 100) {
		ids[NewID()] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestWithID_and_ID_Roundtrip(t *testing.T) {
	ctx := WithID(context.Background(), "abc12345")
	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)
}

func TestID_Missing(t *testing.T) {
	id, ok := ID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestID_EmptyString(t *testing.T) {
	ctx := WithID(context.Background(), "")
	id, ok := ID(ctx)
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestEnsure_KeepsExisting(t *testing.T) {
	ctx := WithID(context.Background(), "keep1234")
	id, ok := ID(Ensure(ctx))
	assert.True(t, ok)
	assert.Equal(t, "keep1234", id)
}

func TestEnsure_AddsWhenMissing(t *testing.T) {
	id, ok := ID(Ensure(context.Background()))
	assert.True(t, ok)
	assert.Len(t, id, 8)
}

func newBufferedLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(inner)), &buf
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	logger, buf := newBufferedLogger()

	ctx := WithID(context.Background(), "test1234")
	logger.InfoContext(ctx, "Linked records", "count", 3)

	output := buf.String()
	assert.Contains(t, output, "correlation_id=test1234")
	assert.Contains(t, output, "count=3")
}

func TestHandler_NoCorrelationID_WhenMissing(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.InfoContext(context.Background(), "no correlation")
	assert.NotContains(t, buf.String(), "correlation_id")
}

func TestHandler_WithAttrs_PreservesCorrelation(t *testing.T) {
	logger, buf := newBufferedLogger()

	ctx := WithID(context.Background(), "attr1234")
	logger.With("component", "discovery").InfoContext(ctx, "with attrs")

	output := buf.String()
	assert.Contains(t, output, "correlation_id=attr1234")
	assert.Contains(t, output, "component=discovery")
}
