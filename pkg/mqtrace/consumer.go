// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mqtrace

import (
	"context"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go/ext"
)

// MessageHandler consumes a delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscriber registers a handler for a topic on the consumer side.
type Subscriber interface {
	Subscribe(topic string, expression string, handler MessageHandler) error
}

// TracedHandler wraps a message handler with consumption tracing. The
// parent context injected at send time is extracted from the message
// properties, so the receive span continues the producer's trace.
func TracedHandler(tracer *tracing.Tracer, conf *traceconf.Config, handler MessageHandler) MessageHandler {
	cm := newConsumerMetrics()

	return func(ctx context.Context, msg *Message) error {
		if !conf.ShouldTrace(Component, msg.Topic) {
			return handler(ctx, msg)
		}

		parent := tracer.ExtractCarrier(msg.Properties)
		if parent == nil {
			parent = tracing.ParentContext(ctx)
		}

		span := tracer.StartSpan("RECEIVE "+msg.Topic, parent)
		ext.SpanKindConsumer.Set(span)
		ext.Component.Set(span, Component)
		ext.MessageBusDestination.Set(span, msg.Topic)
		span.SetTag("rocketmq.topic", msg.Topic)
		if msg.MsgID != "" {
			span.SetTag("rocketmq.msg_id", msg.MsgID)
		}
		if msg.QueueID > 0 {
			span.SetTag("rocketmq.queue_id", msg.QueueID)
		}
		if msg.BornTimestamp > 0 {
			span.SetTag("rocketmq.born_timestamp", msg.BornTimestamp)
		}
		tagMessage(span, msg, conf.Options(Component))
		cm.TotalConsumed.Inc()

		started := time.Now()
		err := handler(tracing.PushSpan(ctx, span), msg)
		cm.ConsumeDuration.Observe(time.Since(started).Seconds())

		if err != nil {
			span.SetTag("rocketmq.consume_status", "failed")
			tracing.TagError(span, err)
			cm.TotalErrors.Inc()
		} else {
			span.SetTag("rocketmq.consume_status", "success")
		}
		tracing.FinishSpan(span, started, 0)
		return err
	}
}

// TracedSubscribe registers handler on sub with consumption tracing
// applied.
func TracedSubscribe(sub Subscriber, tracer *tracing.Tracer, conf *traceconf.Config, topic, expression string, handler MessageHandler) error {
	return sub.Subscribe(topic, expression, TracedHandler(tracer, conf, handler))
}
