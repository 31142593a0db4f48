package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/laurarmit/DogBarkProject/internal/domain"
	"github.com/laurarmit/DogBarkProject/internal/metrics"
)

const (
	// DefaultInterval is the delay between the end of one cycle and the start of the next
	DefaultInterval = 5 * time.Second

	// DefaultPublishTimeout bounds a single publish call
	DefaultPublishTimeout = 10 * time.Second

	cleanupInterval = 24 * time.Hour
)

// Poller samples the meter and publishes each reading
type Poller struct {
	deviceID       string
	meter          SoundMeter
	publisher      Publisher
	repo           domain.ReadingRepository
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	interval       time.Duration
	publishTimeout time.Duration
	retention      time.Duration
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval sets the delay between cycles
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithPublishTimeout sets the deadline for each publish
func WithPublishTimeout(d time.Duration) Option {
	return func(p *Poller) { p.publishTimeout = d }
}

// WithJournal records published readings in repo and prunes entries older
// than retention once a day. A zero retention keeps everything.
func WithJournal(repo domain.ReadingRepository, retention time.Duration) Option {
	return func(p *Poller) {
		p.repo = repo
		p.retention = retention
	}
}

// WithMetrics records cycle outcomes in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithLogger replaces the global logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a poll-and-publish loop for one device
func NewPoller(deviceID string, meter SoundMeter, publisher Publisher, opts ...Option) *Poller {
	p := &Poller{
		deviceID:       deviceID,
		meter:          meter,
		publisher:      publisher,
		logger:         log.Logger,
		interval:       DefaultInterval,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs cycles until ctx is cancelled. The first cycle runs
// immediately; each later one starts a full interval after the previous
// one finished.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info().
		Str("device_id", p.deviceID).
		Dur("interval", p.interval).
		Msg("starting poll loop")

	var cleanup <-chan time.Time
	if p.repo != nil && p.retention > 0 {
		cleanupTicker := time.NewTicker(cleanupInterval)
		defer cleanupTicker.Stop()
		cleanup = cleanupTicker.C
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			p.runCycle(ctx)
			timer.Reset(p.interval)

		case <-cleanup:
			p.prune(ctx)

		case <-ctx.Done():
			p.logger.Info().Msg("stopping poll loop")
			return
		}
	}
}

// runCycle performs one cycle and logs its failure, if any
func (p *Poller) runCycle(ctx context.Context) {
	start := time.Now()
	reading, err := p.RunOnce(ctx)
	p.metrics.ObserveCycle(reading, err, time.Since(start))

	if err != nil {
		kind, _ := domain.KindOf(err)
		p.logger.Error().
			Err(err).
			Str("kind", string(kind)).
			Msg("poll cycle failed")
		return
	}

	p.logger.Info().
		Str("decibels", domain.FormatDecibels(reading.Decibels)).
		Str("topic", reading.Topic()).
		Msg("published sound level reading")
}

// RunOnce queries the meter and publishes a single reading. The returned
// error is always a *domain.CycleError; nothing is published unless the
// query succeeded.
func (p *Poller) RunOnce(ctx context.Context) (reading *domain.Reading, err error) {
	stage := domain.KindDeviceIO
	defer func() {
		if r := recover(); r != nil {
			reading = nil
			err = domain.NewCycleError(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	p.logger.Debug().Msg("querying sound level meter")

	resp, err := p.meter.Query(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrDeviceNotFound) {
			return nil, domain.NewCycleError(domain.KindDeviceNotFound, err)
		}
		return nil, domain.NewCycleError(domain.KindDeviceIO, err)
	}

	db, err := domain.DecibelsFromResponse(resp)
	if err != nil {
		return nil, domain.NewCycleError(domain.KindDeviceIO, err)
	}

	stage = domain.KindSerialize
	reading = domain.NewReading(p.deviceID, db)
	payload, err := reading.MarshalPayload()
	if err != nil {
		return nil, domain.NewCycleError(domain.KindSerialize, err)
	}

	stage = domain.KindPublish
	if err := p.publish(ctx, reading.Topic(), payload); err != nil {
		return nil, domain.NewCycleError(domain.KindPublish, err)
	}

	p.journal(ctx, reading)
	return reading, nil
}

func (p *Poller) publish(ctx context.Context, topic string, payload []byte) error {
	if p.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}
	return p.publisher.Publish(ctx, topic, payload)
}

// journal saves a published reading; failures are logged only
func (p *Poller) journal(ctx context.Context, reading *domain.Reading) {
	if p.repo == nil {
		return
	}
	if err := p.repo.SaveReading(ctx, reading); err != nil {
		p.logger.Warn().Err(err).Msg("failed to journal reading")
	}
}

func (p *Poller) prune(ctx context.Context) {
	if err := p.repo.DeleteOldReadings(ctx, p.retention); err != nil {
		p.logger.Error().Err(err).Msg("failed to delete old readings")
		return
	}
	p.logger.Info().Dur("retention", p.retention).Msg("deleted old readings")
}
