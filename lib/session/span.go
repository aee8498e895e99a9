// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/finchvox/finchvox/lib/platform"
)

// Span is the subset of an OTLP span record the reader needs. The
// ingestion writers serialize spans with protobuf field names, so
// timestamps arrive as decimal strings; bare JSON numbers are accepted
// too.
type Span struct {
	Name         string      `json:"name"`
	SpanID       string      `json:"span_id_hex,omitempty"`
	ParentSpanID string      `json:"parent_span_id_hex,omitempty"`
	ParentLegacy string      `json:"parent_span_id,omitempty"`
	StartTime    *Nanos      `json:"start_time_unix_nano,omitempty"`
	EndTime      *Nanos      `json:"end_time_unix_nano,omitempty"`
	Resource     Resource    `json:"resource"`
	Scope        Scope       `json:"instrumentation_scope"`
	Attributes   []Attribute `json:"attributes"`
}

// Resource carries resource-level attributes such as service.name.
type Resource struct {
	Attributes []Attribute `json:"attributes"`
}

// Scope is the instrumentation scope that emitted the span.
type Scope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Attribute is one OTLP key/value pair. Only string values are decoded;
// other value kinds are ignored.
type Attribute struct {
	Key   string         `json:"key"`
	Value AttributeValue `json:"value"`
}

type AttributeValue struct {
	StringValue *string `json:"string_value,omitempty"`
}

// IsRoot reports whether the span has no parent reference.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == "" && s.ParentLegacy == ""
}

// Ended reports whether the span carries a non-zero end timestamp.
func (s *Span) Ended() bool {
	return s.EndTime != nil && *s.EndTime > 0
}

// ServiceName returns the service.name resource attribute, if set.
func (s *Span) ServiceName() (string, bool) {
	for _, attribute := range s.Resource.Attributes {
		if attribute.Key == "service.name" && attribute.Value.StringValue != nil {
			return *attribute.Value.StringValue, true
		}
	}
	return "", false
}

// Signals extracts the platform-detection evidence from the span.
func (s *Span) Signals() platform.Signals {
	keys := make([]string, len(s.Attributes))
	for i, attribute := range s.Attributes {
		keys[i] = attribute.Key
	}
	return platform.Signals{ScopeName: s.Scope.Name, AttributeKeys: keys}
}

// Nanos is a Unix timestamp in nanoseconds.
type Nanos int64

// UnmarshalJSON accepts a JSON number or a string holding one.
func (n *Nanos) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	text := string(data)
	if value, err := strconv.ParseInt(text, 10, 64); err == nil {
		*n = Nanos(value)
		return nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid nanosecond timestamp %q", text)
	}
	*n = Nanos(value)
	return nil
}

// MarshalJSON writes the decimal-string form used by the OTLP JSON
// encoding.
func (n Nanos) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(n), 10))
}

// Seconds converts to floating-point Unix seconds.
func (n Nanos) Seconds() float64 {
	return float64(n) / 1e9
}
