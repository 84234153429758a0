package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "automachine"

// startInitializeSpan creates the span covering Initialize. Uses the global
// tracer provider installed by the telemetry package.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startInitializeSpan[T Enum](ctx context.Context, core *Core[T]) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "automachine.initialize")
	addMachineAttributes(span, core)
	span.SetAttributes(attribute.Int("states", len(core.states.states)))

	return ctx, span
}

// startSwitchSpan creates the span covering one state switch.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startSwitchSpan[T Enum](
	ctx context.Context,
	core *Core[T],
	from, to string,
	firstRun bool,
) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "automachine.change_state")
	addMachineAttributes(span, core)
	span.SetAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.Bool("first_run", firstRun),
	)

	return ctx, span
}

func addMachineAttributes[T Enum](span trace.Span, core *Core[T]) {
	span.SetAttributes(
		attribute.String("machine", core.name),
		attribute.String("machine_id", core.id.String()),
		attribute.String("entity_hash", core.metrics.entityHash),
	)
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
