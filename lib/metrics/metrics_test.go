// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFinalization(OutcomeFinalized, time.Second)
	m.ObserveAudio("opus")
	m.ObserveUpload(UploadFailed)
	m.ObservePass(3)
	m.ObserveEnvironment()
	if m.Registry() != nil {
		t.Error("nil Metrics returned a registry")
	}
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveFinalization(OutcomeFinalized, 2*time.Second)
	m.ObserveFinalization(OutcomeMissing, 0)
	m.ObserveAudio("opus")
	m.ObserveAudio("")
	m.ObserveUpload(UploadSucceeded)
	m.ObservePass(4)

	if got := testutil.ToFloat64(m.Finalizations.WithLabelValues(OutcomeFinalized)); got != 1 {
		t.Errorf("finalized = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Finalizations.WithLabelValues(OutcomeMissing)); got != 1 {
		t.Errorf("missing = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.AudioArtifacts); got != 1 {
		t.Errorf("audio series = %d, want 1 (empty format ignored)", got)
	}
	if got := testutil.ToFloat64(m.SessionsPending); got != 4 {
		t.Errorf("pending = %v, want 4", got)
	}
	if got := testutil.CollectAndCount(m.FinalizationDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObservePass(1)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(recorder.Result().Body)

	for _, name := range []string{"finchvox_scheduler_passes_total 1", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("/metrics is missing %q", name)
		}
	}
}
