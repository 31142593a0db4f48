package ports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/laurarmit/DogBarkProject/internal/adapters/memory"
	"github.com/laurarmit/DogBarkProject/internal/domain"
	"github.com/laurarmit/DogBarkProject/internal/metrics"
)

const testDeviceID = "aa:bb:cc:dd:ee:ff"

// scriptedMeter returns resp or err on every query
type scriptedMeter struct {
	resp  []byte
	err   error
	panic bool

	mu      sync.Mutex
	queries int
}

func (m *scriptedMeter) Query(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	m.queries++
	m.mu.Unlock()
	if m.panic {
		panic("usb stack exploded")
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *scriptedMeter) Close() error { return nil }

type published struct {
	topic   string
	payload []byte
	at      time.Time
}

// recordingPublisher captures every publish call
type recordingPublisher struct {
	err error

	mu    sync.Mutex
	calls []published
	sent  chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{sent: make(chan struct{}, 100)}
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	p.calls = append(p.calls, published{topic: topic, payload: payload, at: time.Now()})
	p.mu.Unlock()
	select {
	case p.sent <- struct{}{}:
	default:
	}
	return p.err
}

func (p *recordingPublisher) snapshot() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.calls...)
}

// syncBuffer is a log sink safe for use from the loop goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) errorLines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), `"level":"error"`)
}

func newTestPoller(meter SoundMeter, pub Publisher, opts ...Option) (*Poller, *syncBuffer) {
	logs := &syncBuffer{}
	opts = append([]Option{WithLogger(zerolog.New(logs))}, opts...)
	return NewPoller(testDeviceID, meter, pub, opts...), logs
}

func TestRunOnce_PublishesReading(t *testing.T) {
	pub := newRecordingPublisher()
	p, _ := newTestPoller(&scriptedMeter{resp: []byte{0, 0, 0xFF}}, pub)

	reading, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if reading.Decibels != 30 {
		t.Errorf("decibels = %v, want 30", reading.Decibels)
	}

	calls := pub.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(calls))
	}
	if calls[0].topic != "dogbark/reading/"+testDeviceID {
		t.Errorf("topic = %q", calls[0].topic)
	}
	if !regexp.MustCompile(`^dogbark/reading/[0-9a-f]{2}(:[0-9a-f]{2}){5}$`).MatchString(calls[0].topic) {
		t.Errorf("topic %q does not end in a device identifier", calls[0].topic)
	}

	var payload map[string]string
	if err := json.Unmarshal(calls[0].payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if len(payload) != 3 {
		t.Errorf("expected 3 payload fields, got %v", payload)
	}
	if payload["device_id"] != testDeviceID {
		t.Errorf("device_id = %q", payload["device_id"])
	}
	if payload["decibels"] != "30.0" {
		t.Errorf("decibels = %q, want %q", payload["decibels"], "30.0")
	}
	if _, err := time.ParseInLocation(domain.TimestampLayout, payload["timestamp"], time.Local); err != nil {
		t.Errorf("timestamp %q does not parse: %v", payload["timestamp"], err)
	}
}

func TestRunOnce_Failures(t *testing.T) {
	tests := []struct {
		name     string
		meter    *scriptedMeter
		pubErr   error
		wantKind domain.FailureKind
		wantIs   error
		wantPubs int
	}{
		{
			name:     "device absent",
			meter:    &scriptedMeter{err: fmt.Errorf("open: %w", domain.ErrDeviceNotFound)},
			wantKind: domain.KindDeviceNotFound,
			wantIs:   domain.ErrDeviceNotFound,
		},
		{
			name:     "transfer error",
			meter:    &scriptedMeter{err: errors.New("libusb: pipe error")},
			wantKind: domain.KindDeviceIO,
			wantIs:   domain.ErrDeviceIO,
		},
		{
			name:     "short response",
			meter:    &scriptedMeter{resp: []byte{1}},
			wantKind: domain.KindDeviceIO,
			wantIs:   domain.ErrShortResponse,
		},
		{
			name:     "meter panics",
			meter:    &scriptedMeter{panic: true},
			wantKind: domain.KindDeviceIO,
			wantIs:   domain.ErrDeviceIO,
		},
		{
			name:     "broker rejects",
			meter:    &scriptedMeter{resp: []byte{10, 1}},
			pubErr:   errors.New("connection down"),
			wantKind: domain.KindPublish,
			wantIs:   domain.ErrPublish,
			wantPubs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newRecordingPublisher()
			pub.err = tt.pubErr
			p, _ := newTestPoller(tt.meter, pub)

			reading, err := p.RunOnce(context.Background())
			if reading != nil {
				t.Errorf("expected no reading, got %+v", reading)
			}
			kind, ok := domain.KindOf(err)
			if !ok || kind != tt.wantKind {
				t.Errorf("kind = %q (%v), want %q", kind, err, tt.wantKind)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("expected errors.Is(err, %v), got %v", tt.wantIs, err)
			}
			if got := len(pub.snapshot()); got != tt.wantPubs {
				t.Errorf("publishes = %d, want %d", got, tt.wantPubs)
			}
		})
	}
}

func TestRunOnce_JournalsPublishedReadings(t *testing.T) {
	repo := memory.NewReadingRepository()
	ctx := context.Background()

	p, _ := newTestPoller(&scriptedMeter{resp: []byte{100, 0}}, newRecordingPublisher(), WithJournal(repo, 0))
	if _, err := p.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	latest, err := repo.GetLatestReading(ctx)
	if err != nil {
		t.Fatalf("GetLatestReading failed: %v", err)
	}
	if latest.DeviceID != testDeviceID || latest.Decibels != 40 {
		t.Errorf("journaled %+v", latest)
	}

	failing := newRecordingPublisher()
	failing.err = errors.New("down")
	p, _ = newTestPoller(&scriptedMeter{resp: []byte{200, 0}}, failing, WithJournal(repo, 0))
	_, _ = p.RunOnce(ctx)

	latest, _ = repo.GetLatestReading(ctx)
	if latest.Decibels != 40 {
		t.Errorf("unpublished reading was journaled: %+v", latest)
	}
}

func TestStart_DeviceAbsentKeepsScheduling(t *testing.T) {
	meter := &scriptedMeter{err: domain.ErrDeviceNotFound}
	pub := newRecordingPublisher()
	m := metrics.New()
	p, logs := newTestPoller(meter, pub, WithInterval(10*time.Millisecond), WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		meter.mu.Lock()
		n := meter.queries
		meter.mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d cycles ran", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop after cancel")
	}

	if got := len(pub.snapshot()); got != 0 {
		t.Errorf("publishes = %d, want 0", got)
	}

	meter.mu.Lock()
	queries := meter.queries
	meter.mu.Unlock()
	if got := logs.errorLines(); got != queries {
		t.Errorf("error log lines = %d, want one per cycle (%d)", got, queries)
	}
}

func TestStart_FixedDelayBetweenCycles(t *testing.T) {
	const interval = 30 * time.Millisecond
	pub := newRecordingPublisher()
	p, _ := newTestPoller(&scriptedMeter{resp: []byte{1, 1}}, pub, WithInterval(interval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-pub.sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for publish %d", i+1)
		}
	}
	cancel()

	calls := pub.snapshot()
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].at.Sub(calls[i-1].at); gap < interval {
			t.Errorf("cycle %d started %v after the previous one, want at least %v", i, gap, interval)
		}
	}
}

func TestStart_StopsOnCancelledContext(t *testing.T) {
	p, _ := newTestPoller(&scriptedMeter{resp: []byte{0, 0}}, newRecordingPublisher(), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return for a cancelled context")
	}
}
