package relay

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/syncboard/pkg/room"
	"github.com/tokmz/syncboard/pkg/tracing"
)

const relayTracerName = "syncboard.relay"

// tracedPublisher 链路追踪装饰器
type tracedPublisher struct {
	Publisher
	driver DriverType
	tracer trace.Tracer
}

// NewTracing 创建带链路追踪的发布器
func NewTracing(p Publisher, driver DriverType) Publisher {
	return &tracedPublisher{
		Publisher: p,
		driver:    driver,
		tracer:    otel.Tracer(relayTracerName),
	}
}

// Publish 发布更新并记录 Span
func (t *tracedPublisher) Publish(ctx context.Context, u *room.Update) error {
	ctx, span := t.tracer.Start(ctx, "relay.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", string(t.driver)),
			attribute.String("room.name", u.Room),
			attribute.Int64("room.seq", int64(u.Seq)),
		),
	)
	defer span.End()

	err := t.Publisher.Publish(ctx, u)
	tracing.RecordError(span, err)
	return err
}
