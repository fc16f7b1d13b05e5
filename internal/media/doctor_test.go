package media

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

type fakeProber struct {
	probeFn func(ctx context.Context) (*Capabilities, error)
}

func (f *fakeProber) Probe(ctx context.Context) (*Capabilities, error) {
	return f.probeFn(ctx)
}

func TestCachedProber_TTL(t *testing.T) {
	calls := 0
	fake := &fakeProber{
		probeFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{CaptureAvailable: true, ProbedAt: time.Now()}, nil
		},
	}

	p := NewCachedProber(fake, nil)
	p.ttl = 100 * time.Millisecond
	ctx := context.Background()

	caps1, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if !caps1.CaptureAvailable {
		t.Error("expected CaptureAvailable=true")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}

	caps2, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if caps2.ProbedAt != caps1.ProbedAt {
		t.Error("expected cached result on second call")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (cached), got %d", calls)
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := p.Get(ctx); err != nil {
		t.Fatalf("third Get (after TTL): %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls after TTL expiry, got %d", calls)
	}
}

func TestCachedProber_StaleOnError(t *testing.T) {
	calls := 0
	fake := &fakeProber{
		probeFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("probe exploded")
			}
			return &Capabilities{CaptureAvailable: true, ProbedAt: time.Now()}, nil
		},
	}

	p := NewCachedProber(fake, nil)
	ctx := context.Background()

	first, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}

	stale, err := p.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh after failure should fall back to stale cache: %v", err)
	}
	if stale.ProbedAt != first.ProbedAt {
		t.Error("expected stale capabilities returned on probe failure")
	}
}

func TestCachedProber_Invalidate(t *testing.T) {
	calls := 0
	fake := &fakeProber{
		probeFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{ProbedAt: time.Now()}, nil
		},
	}

	p := NewCachedProber(fake, nil)
	ctx := context.Background()

	p.Get(ctx)
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}

	p.Invalidate()
	if p.Peek() != nil {
		t.Error("Peek after Invalidate should be nil")
	}
	p.Get(ctx)
	if calls != 2 {
		t.Errorf("expected 2 calls after Invalidate, got %d", calls)
	}
}

func TestStubSurface_CaptureFailAfter(t *testing.T) {
	s := &StubSurface{
		Dur:         3,
		CaptureData: []byte("0123456789"),
		FailAfter:   4,
	}

	rc, err := s.Capture(context.Background(), 0)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err == nil {
		t.Fatal("expected mid-stream error, got clean EOF")
	}
	if string(data) != "0123" {
		t.Fatalf("partial data = %q, want %q", data, "0123")
	}
}

func TestStubOpener_RecordsOpens(t *testing.T) {
	o := NewStubOpener(nil)
	o.Dur = 2.5

	surf, err := o.Open(context.Background(), "/trials/a.mp4")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if surf.Duration() != 2.5 {
		t.Errorf("Duration = %v, want 2.5", surf.Duration())
	}
	if got := o.LastOpened(); got == nil || got.Path != "/trials/a.mp4" {
		t.Errorf("LastOpened = %+v, want path /trials/a.mp4", got)
	}
}
