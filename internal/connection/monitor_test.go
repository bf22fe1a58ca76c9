package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"zapfacil/pkg/logx"
)

// fakeDriver only implements the readiness probes; the monitor never
// touches the messaging primitives.
type fakeDriver struct {
	ready      atomic.Bool
	qr         atomic.Bool
	readyCalls atomic.Int32
}

func (f *fakeDriver) IsReady(context.Context) bool {
	f.readyCalls.Add(1)
	return f.ready.Load()
}
func (f *fakeDriver) HasQRPrompt(context.Context) bool            { return f.qr.Load() }
func (f *fakeDriver) OpenDirectChat(context.Context, string) error { return nil }
func (f *fakeDriver) OpenChatByTitle(context.Context, string) error {
	return nil
}
func (f *fakeDriver) OpenChatTitle(context.Context) string       { return "" }
func (f *fakeDriver) SendText(context.Context, string) error      { return nil }
func (f *fakeDriver) AttachFile(context.Context, string) error    { return nil }

func TestIsReadyRequiresPanelAndNoQR(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	m := NewMonitor(Config{Attempts: 1, Wait: time.Millisecond}, drv, nil, logx.Nop())

	if m.IsReady(context.Background()) {
		t.Fatal("not ready driver reported ready")
	}
	drv.ready.Store(true)
	if !m.IsReady(context.Background()) {
		t.Fatal("ready driver reported not ready")
	}
	drv.qr.Store(true)
	if m.IsReady(context.Background()) {
		t.Fatal("QR prompt must veto readiness")
	}
}

func TestReconnectExhaustsAttempts(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{} // never ready
	m := NewMonitor(Config{Attempts: 3, Wait: 5 * time.Millisecond}, drv, nil, logx.Nop())

	start := time.Now()
	err := m.Reconnect(context.Background())
	if !errors.Is(err, ErrReconnectFailed) {
		t.Fatalf("err = %v, want ErrReconnectFailed", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expected at least 3 wait intervals, elapsed %v", elapsed)
	}
	if got := drv.readyCalls.Load(); got != 3 {
		t.Fatalf("readiness probes = %d, want 3", got)
	}
}

func TestReconnectSucceedsMidway(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	m := NewMonitor(Config{Attempts: 10, Wait: 5 * time.Millisecond}, drv, nil, logx.Nop())

	go func() {
		time.Sleep(12 * time.Millisecond)
		drv.ready.Store(true)
	}()
	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
}

func TestReconnectCancelledEarly(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	m := NewMonitor(Config{Attempts: 100, Wait: 50 * time.Millisecond}, drv, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := m.Reconnect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
