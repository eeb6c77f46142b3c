// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package traceconf resolves the per-component tracing configuration
// consulted by every instrumentation adapter. A Config is resolved once at
// start-up and is immutable afterwards, so lookups are safe from any number
// of concurrent call chains without synchronization.
package traceconf

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Component names recognized by the instrumentation adapters. The set is
// open: unknown components resolve to default options and stay enabled.
const (
	Database     = "database"
	Redis        = "redis"
	HTTPRequests = "http_requests"
	Celery       = "celery"
	RocketMQ     = "rocketmq"
)

// Options is the resolved knob set of one component. Zero values are
// replaced by per-component defaults at resolution time.
type Options struct {
	Enabled bool
	// Ignore lists operation names excluded from tracing.
	Ignore []string
	// Allow, when non-empty, restricts tracing to the listed names.
	Allow []string

	// database
	SlowQueryThreshold time.Duration
	MaxQueryLength     int
	LogSQL             bool

	// redis
	MaxValueLength int

	// http_requests
	TraceHeaders bool

	// celery
	TraceTaskArgs bool
	TraceResult   bool

	// rocketmq
	TraceMessageBody bool
	MaxMessageSize   int
}

func defaultOptions(component string) Options {
	o := Options{Enabled: true}
	switch component {
	case Database:
		o.SlowQueryThreshold = 100 * time.Millisecond
		o.MaxQueryLength = 1000
		o.LogSQL = true
	case Redis:
		o.MaxValueLength = 500
	case HTTPRequests:
		o.TraceHeaders = true
	case RocketMQ:
		o.MaxMessageSize = 1024
	}
	return o
}

// Config is the immutable per-component tracing configuration. The zero
// value and a nil Config behave as "everything enabled with defaults".
type Config struct {
	components map[string]Options
}

// New resolves a Config from a nested mapping keyed by component name. All
// invalid option values are reported together.
func New(raw map[string]map[string]interface{}) (*Config, error) {
	components := make(map[string]Options, len(raw))
	var merr *multierror.Error

	for component, options := range raw {
		o := defaultOptions(component)
		for key, value := range options {
			if err := applyOption(&o, component, key, value); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		components[component] = o
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &Config{components: components}, nil
}

// Parse resolves a Config from raw YAML, the same nested mapping shape as New.
func Parse(b []byte) (*Config, error) {
	var raw map[string]map[string]interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal tracing config: %w", err)
	}
	return New(raw)
}

// FromViper resolves a Config from the given viper key, which must hold the
// nested component mapping.
func FromViper(v *viper.Viper, key string) (*Config, error) {
	sub := v.GetStringMap(key)
	raw := make(map[string]map[string]interface{}, len(sub))
	var merr *multierror.Error
	for component, options := range sub {
		m, err := cast.ToStringMapE(options)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("component %q: %w", component, err))
			continue
		}
		raw[component] = m
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return New(raw)
}

func applyOption(o *Options, component, key string, value interface{}) error {
	var err error
	switch key {
	case "enabled":
		o.Enabled, err = cast.ToBoolE(value)
	case "ignore", "ignore_sqls", "ignore_commands", "ignore_urls", "ignore_tasks", "ignore_topics":
		var list []string
		if list, err = cast.ToStringSliceE(value); err == nil {
			o.Ignore = append(o.Ignore, list...)
		}
	case "allow", "log_commands":
		var list []string
		if list, err = cast.ToStringSliceE(value); err == nil {
			o.Allow = append(o.Allow, list...)
		}
	case "slow_query_threshold":
		var ms int
		if ms, err = cast.ToIntE(value); err == nil {
			o.SlowQueryThreshold = time.Duration(ms) * time.Millisecond
		}
	case "max_query_length":
		o.MaxQueryLength, err = cast.ToIntE(value)
	case "log_sql":
		o.LogSQL, err = cast.ToBoolE(value)
	case "max_value_length":
		o.MaxValueLength, err = cast.ToIntE(value)
	case "trace_headers":
		o.TraceHeaders, err = cast.ToBoolE(value)
	case "trace_task_args":
		o.TraceTaskArgs, err = cast.ToBoolE(value)
	case "trace_result":
		o.TraceResult, err = cast.ToBoolE(value)
	case "trace_message_body":
		o.TraceMessageBody, err = cast.ToBoolE(value)
	case "max_message_size":
		o.MaxMessageSize, err = cast.ToIntE(value)
	default:
		// unknown knobs are tolerated for forward compatibility
		return nil
	}
	if err != nil {
		return fmt.Errorf("component %q option %q: %w", component, key, err)
	}
	return nil
}

// IsEnabled reports whether the component is traced at all. Components
// default to enabled unless explicitly disabled.
func (c *Config) IsEnabled(component string) bool {
	return c.Options(component).Enabled
}

// Options returns the resolved knob set of the component, falling back to
// per-component defaults when the component was not configured.
func (c *Config) Options(component string) Options {
	if c != nil {
		if o, ok := c.components[component]; ok {
			return o
		}
	}
	return defaultOptions(component)
}

// ShouldTrace reports whether the named operation of the component should
// produce a span: false when the component is disabled or name is ignored;
// when an allow list is present, only listed names are traced. Name matching
// is case-insensitive.
func (c *Config) ShouldTrace(component, name string) bool {
	o := c.Options(component)
	if !o.Enabled {
		return false
	}
	for _, ignored := range o.Ignore {
		if strings.EqualFold(ignored, name) {
			return false
		}
	}
	if len(o.Allow) > 0 {
		for _, allowed := range o.Allow {
			if strings.EqualFold(allowed, name) {
				return true
			}
		}
		return false
	}
	return true
}
