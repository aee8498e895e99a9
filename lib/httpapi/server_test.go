// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/finchvox/finchvox/lib/testutil"
)

func TestServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "hello")
	})
	server := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Handler: handler,
		Logger:  quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")

	response, err := http.Get("http://" + server.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "server shutdown"); err != nil {
		t.Errorf("Serve: %v", err)
	}
}

func TestServerBindFailure(t *testing.T) {
	server := NewServer(ServerConfig{
		Address: "127.0.0.1:99999",
		Handler: http.NotFoundHandler(),
		Logger:  quietLogger(),
	})
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("Serve succeeded on an invalid address")
	}
}

func TestNewServerRequiresHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewServer without a handler did not panic")
		}
	}()
	NewServer(ServerConfig{Address: ":0", Logger: quietLogger()})
}
