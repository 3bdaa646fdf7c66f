package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_WithoutClient(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "IngestionService.ProcessDocument", SpanAttributes{
		OwnerKind: "document",
		OwnerID:   "doc-1",
		ActorID:   "alice",
		Operation: "ingest",
	})
	require.NotNil(t, span)
	assert.NotNil(t, sentry.SpanFromContext(ctx))

	child, childSpan := StartSpan(ctx, "RetrievalService.Retrieve", SpanAttributes{})
	assert.NotNil(t, sentry.SpanFromContext(child))

	childSpan.SetError(errors.New("boom"))
	childSpan.End()
	span.SetStatus(sentry.SpanStatusOK)
	span.End()
}

func TestNilSpanIsSafe(t *testing.T) {
	var s Span
	s.End()
	s.SetStatus(sentry.SpanStatusOK)
	s.SetError(errors.New("ignored"))
}

func TestCaptureHelpersWithoutClient(t *testing.T) {
	ctx, span := StartTransaction(context.Background(), "EmbeddingWorker.processJob", "backfill.job")
	defer span.End()

	AddBreadcrumb(ctx, "backfill", "retry 1")
	CaptureError(ctx, errors.New("not sent"))
}
