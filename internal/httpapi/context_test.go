package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPredictContext_EndsOnShutdown(t *testing.T) {
	base, shutdown := context.WithCancel(context.Background())
	SetBaseContext(base)
	t.Cleanup(func() { SetBaseContext(nil) })

	type key struct{}
	r := httptest.NewRequest(http.MethodPost, "/predict", nil)
	r = r.WithContext(context.WithValue(r.Context(), key{}, "req-1"))
	ctx, cancel := predictContext(r)
	defer cancel()
	if ctx.Value(key{}) != "req-1" {
		t.Fatal("request values must reach the inference context")
	}
	shutdown()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("prediction context not canceled on shutdown")
	}
	if !errors.Is(context.Cause(ctx), errShuttingDown) {
		t.Fatalf("cause=%v", context.Cause(ctx))
	}
}

func TestPredictContext_EndsWithClient(t *testing.T) {
	reqCtx, disconnect := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodPost, "/predict", nil).WithContext(reqCtx)
	ctx, cancel := predictContext(r)
	defer cancel()
	disconnect()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("prediction context not canceled with the client")
	}
}

func TestPredictContext_Timeout(t *testing.T) {
	SetPredictTimeout(time.Millisecond)
	t.Cleanup(func() { SetPredictTimeout(0) })
	ctx, cancel := predictContext(httptest.NewRequest(http.MethodPost, "/predict", nil))
	defer cancel()
	<-ctx.Done()
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatalf("err=%v", ctx.Err())
	}
}

func TestSetBaseContext_Nil(t *testing.T) {
	SetBaseContext(nil)
	if serverBaseCtx != context.Background() {
		t.Fatal("expected Background after nil")
	}
}

func TestSetMaxBodyBytes(t *testing.T) {
	SetMaxBodyBytes(10)
	if maxBodyBytes != 10 {
		t.Fatalf("maxBodyBytes=%d", maxBodyBytes)
	}
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default, got %d", maxBodyBytes)
	}
}
