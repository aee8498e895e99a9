// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/finchvox/finchvox/lib/session"
	"github.com/finchvox/finchvox/lib/storage"
)

const traceHex = "4bf92f3577b34da6a3ce929d0e0e4736"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	root := t.TempDir()
	local := storage.NewLocal(root, session.NewReader(quietLogger()), quietLogger())
	return NewRecorder(local, nil, quietLogger()), root
}

func TestRecordWritesOnce(t *testing.T) {
	recorder, root := newRecorder(t)
	ctx := context.Background()

	written, err := recorder.Record(ctx, traceHex, []byte(`{"python":{"version":"3.12.1"},"os":{"system":"Linux"}}`))
	if err != nil || !written {
		t.Fatalf("first Record = %v, %v", written, err)
	}
	path := filepath.Join(root, traceHex, "environment_"+traceHex+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"os":{"system":"Linux"},"python":{"version":"3.12.1"}}`; string(data) != want {
		t.Errorf("stored %s, want canonical %s", data, want)
	}

	written, err = recorder.Record(ctx, traceHex, []byte(`{"other":true}`))
	if err != nil || written {
		t.Fatalf("second Record = %v, %v", written, err)
	}
	if after, _ := os.ReadFile(path); string(after) != string(data) {
		t.Error("second Record overwrote the environment")
	}
}

func TestRecordRespectsExistingFile(t *testing.T) {
	recorder, root := newRecorder(t)
	path := filepath.Join(root, traceHex, FileName(traceHex))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"from":"earlier run"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	written, err := recorder.Record(context.Background(), traceHex, []byte(`{"new":1}`))
	if err != nil || written {
		t.Fatalf("Record = %v, %v", written, err)
	}
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		traceHex string
		body     string
		want     error
	}{
		{"zero trace ID", "00000000000000000000000000000000", `{}`, ErrInvalidTraceID},
		{"short trace ID", "abc", `{}`, ErrInvalidTraceID},
		{"non-hex trace ID", "zzf92f3577b34da6a3ce929d0e0e4736", `{}`, ErrInvalidTraceID},
		{"array body", traceHex, `[1,2]`, ErrInvalidDocument},
		{"empty body", traceHex, ``, ErrInvalidDocument},
		{"broken JSON", traceHex, `{"a":`, ErrInvalidDocument},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder, _ := newRecorder(t)
			written, err := recorder.Record(context.Background(), test.traceHex, []byte(test.body))
			if written || !errors.Is(err, test.want) {
				t.Errorf("Record = %v, %v; want %v", written, err, test.want)
			}
		})
	}
}

type failingStore struct {
	mu     sync.Mutex
	fail   bool
	writes int
}

func (s *failingStore) WriteFile(context.Context, storage.SessionFile, []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.fail {
		return errors.New("disk full")
	}
	return nil
}

func (s *failingStore) FileExists(context.Context, storage.SessionFile) (bool, error) {
	return false, nil
}

func TestRecordRetriesAfterStorageFailure(t *testing.T) {
	store := &failingStore{fail: true}
	recorder := NewRecorder(store, nil, quietLogger())
	ctx := context.Background()

	if _, err := recorder.Record(ctx, traceHex, []byte(`{}`)); err == nil {
		t.Fatal("Record succeeded despite a storage failure")
	}
	store.fail = false
	written, err := recorder.Record(ctx, traceHex, []byte(`{}`))
	if err != nil || !written {
		t.Fatalf("retry Record = %v, %v", written, err)
	}
	if store.writes != 2 {
		t.Errorf("writes = %d, want 2", store.writes)
	}
}

func TestRecordConcurrentPostsWriteOnce(t *testing.T) {
	store := &failingStore{}
	recorder := NewRecorder(store, nil, quietLogger())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Record(context.Background(), traceHex, []byte(`{"n":1}`))
		}()
	}
	wg.Wait()
	if store.writes != 1 {
		t.Errorf("writes = %d, want 1", store.writes)
	}
}
