// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mqtrace instruments message queue traffic. A producer wrapper
// opens a send span per message and injects the trace context into the
// message properties; a consumer wrapper extracts it on delivery and opens
// a receive span around the subscriber callback.
package mqtrace

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/lcoolcool/jaegertrace-go/pkg/logging"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Component is the tracing configuration section consulted per message.
const Component = traceconf.RocketMQ

// SendStatus reports the broker's acceptance of a message.
type SendStatus int

const (
	SendOK SendStatus = iota
	SendFlushDiskTimeout
	SendFlushSlaveTimeout
	SendSlaveNotAvailable
)

// Message is the unit crossing the broker. Properties is the trace
// carrier; the broker must deliver it with the message unchanged.
type Message struct {
	Topic      string
	Body       []byte
	Tags       string
	Keys       string
	Properties map[string]string

	// consumer-side metadata, set by the broker
	MsgID         string
	QueueID       int
	BornTimestamp int64
}

// SendResult is the broker's response to a send.
type SendResult struct {
	Status SendStatus
	MsgID  string
}

// Producer hands messages to the broker.
type Producer interface {
	SendSync(ctx context.Context, msg *Message) (*SendResult, error)
	SendAsync(ctx context.Context, msg *Message, callback func(*SendResult, error)) error
	SendOneway(ctx context.Context, msg *Message) error
}

// TracedProducer traces message sends through a wrapped Producer.
type TracedProducer struct {
	next    Producer
	tracer  *tracing.Tracer
	conf    *traceconf.Config
	logger  logging.Logger
	metrics metrics
}

// NewProducer wraps next with send tracing.
func NewProducer(next Producer, tracer *tracing.Tracer, conf *traceconf.Config, logger logging.Logger) *TracedProducer {
	return &TracedProducer{
		next:    next,
		tracer:  tracer,
		conf:    conf,
		logger:  logger,
		metrics: newMetrics(),
	}
}

// SendSync sends a message and finishes the send span when the broker
// responds. A non-OK status tags the span as failed.
func (p *TracedProducer) SendSync(ctx context.Context, msg *Message) (*SendResult, error) {
	if !p.conf.ShouldTrace(Component, msg.Topic) {
		return p.next.SendSync(ctx, msg)
	}

	span := p.openSpan(ctx, msg, "send_sync")
	started := time.Now()

	result, err := p.next.SendSync(tracing.PushSpan(ctx, span), msg)
	switch {
	case err != nil:
		tracing.TagError(span, err)
		p.metrics.TotalErrors.Inc()
	case result != nil:
		p.tagResult(span, result)
	}
	tracing.FinishSpan(span, started, 0)
	return result, err
}

// SendAsync sends a message and transfers span ownership to the broker
// callback: the span finishes when the broker reports the outcome. The
// caller's callback runs after the span is finished.
func (p *TracedProducer) SendAsync(ctx context.Context, msg *Message, callback func(*SendResult, error)) error {
	if !p.conf.ShouldTrace(Component, msg.Topic) {
		return p.next.SendAsync(ctx, msg, callback)
	}

	span := p.openSpan(ctx, msg, "send_async")
	finisher := tracing.NewFinisher(span, 0)

	err := p.next.SendAsync(tracing.PushSpan(ctx, span), msg, func(result *SendResult, serr error) {
		if serr == nil && result != nil {
			p.tagResult(span, result)
			if result.Status != SendOK {
				p.metrics.TotalErrors.Inc()
			}
		} else if serr != nil {
			p.metrics.TotalErrors.Inc()
		}
		finisher.Finish(serr)
		if callback != nil {
			callback(result, serr)
		}
	})
	if err != nil {
		// send never reached the broker, the callback will not fire
		p.metrics.TotalErrors.Inc()
		finisher.Finish(err)
	}
	return err
}

// SendOneway sends a message without waiting for a broker response. The
// span finishes as soon as the send returns.
func (p *TracedProducer) SendOneway(ctx context.Context, msg *Message) error {
	if !p.conf.ShouldTrace(Component, msg.Topic) {
		return p.next.SendOneway(ctx, msg)
	}

	span := p.openSpan(ctx, msg, "send_oneway")
	started := time.Now()

	err := p.next.SendOneway(tracing.PushSpan(ctx, span), msg)
	if err != nil {
		tracing.TagError(span, err)
		p.metrics.TotalErrors.Inc()
	} else {
		span.SetTag("rocketmq.send_status", "oneway")
	}
	tracing.FinishSpan(span, started, 0)
	return err
}

func (p *TracedProducer) openSpan(ctx context.Context, msg *Message, operation string) opentracing.Span {
	span := p.tracer.StartSpan("SEND "+msg.Topic, tracing.ParentContext(ctx))
	ext.SpanKindProducer.Set(span)
	ext.Component.Set(span, Component)
	ext.MessageBusDestination.Set(span, msg.Topic)
	span.SetTag("rocketmq.operation", operation)
	span.SetTag("rocketmq.topic", msg.Topic)
	tagMessage(span, msg, p.conf.Options(Component))

	if msg.Properties == nil {
		msg.Properties = make(map[string]string)
	}
	p.tracer.InjectCarrier(span.Context(), msg.Properties)

	p.metrics.TotalSent.Inc()
	return span
}

func (p *TracedProducer) tagResult(span opentracing.Span, result *SendResult) {
	if result.Status == SendOK {
		span.SetTag("rocketmq.send_status", "success")
		if result.MsgID != "" {
			span.SetTag("rocketmq.msg_id", result.MsgID)
		}
	} else {
		span.SetTag("rocketmq.send_status", "failed")
		ext.Error.Set(span, true)
	}
}

func tagMessage(span opentracing.Span, msg *Message, opts traceconf.Options) {
	if msg.Tags != "" {
		span.SetTag("rocketmq.tags", msg.Tags)
	}
	if msg.Keys != "" {
		span.SetTag("rocketmq.keys", msg.Keys)
	}
	if len(msg.Body) == 0 {
		return
	}
	span.SetTag("rocketmq.body_size", len(msg.Body))
	if opts.TraceMessageBody && len(msg.Body) <= opts.MaxMessageSize {
		span.SetTag("rocketmq.body", bodyString(msg.Body))
	}
}

func bodyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return fmt.Sprintf("%q", b)
}
