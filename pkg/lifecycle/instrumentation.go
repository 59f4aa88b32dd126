package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/harunnryd/mimo/pkg/errorsx"
	"github.com/harunnryd/mimo/pkg/events"
)

const scopeName = "github.com/harunnryd/mimo/pkg/lifecycle"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)

var (
	acquisitions metric.Int64Counter
	failures     metric.Int64Counter
)

func init() {
	var err error
	acquisitions, err = meter.Int64Counter("mimo.media.acquisitions",
		metric.WithDescription("Capture resource acquisitions that reached the active state"))
	if err != nil {
		otel.Handle(err)
	}
	failures, err = meter.Int64Counter("mimo.media.failures",
		metric.WithDescription("Lifecycle entries into the error state"))
	if err != nil {
		otel.Handle(err)
	}
}

func recordAcquired(ctx context.Context, m events.Modality) {
	if acquisitions == nil {
		return
	}
	acquisitions.Add(ctx, 1, metric.WithAttributes(attribute.String("modality", string(m))))
}

func recordFailure(ctx context.Context, m events.Modality, kind errorsx.Kind) {
	if failures == nil {
		return
	}
	failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("modality", string(m)),
		attribute.String("error.kind", string(kind)),
	))
}
