package podcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bryan-buckman/cringecast/internal/logging"
)

// MinPollingInterval is the shortest interval the poller will wait between
// runs.
const MinPollingInterval = 15 * time.Minute

// PollStatus describes the poller's most recent run.
type PollStatus struct {
	Running    bool      `json:"running"`
	Runs       int       `json:"runs"`
	LastStart  time.Time `json:"last_start,omitempty"`
	LastFinish time.Time `json:"last_finish,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	NextRun    time.Time `json:"next_run,omitempty"`
}

// Poller runs continuous syncing.
type Poller struct {
	run         func(ctx context.Context) error
	interval    func() time.Duration
	logger      *slog.Logger
	minInterval time.Duration

	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.Mutex
	status PollStatus
}

// NewPoller creates a background poller. interval is consulted before every
// wait so configuration changes take effect on the next cycle.
func NewPoller(run func(ctx context.Context) error, interval func() time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		run:         run,
		interval:    interval,
		logger:      logger,
		minInterval: MinPollingInterval,
		trigger:     make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
}

// Start begins the polling loop. The first run starts immediately.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			p.runOnce(ctx)

			interval := p.interval()
			if interval < p.minInterval {
				interval = p.minInterval
			}
			p.mu.Lock()
			p.status.NextRun = time.Now().Add(interval)
			p.mu.Unlock()
			p.logger.Debug("poller waiting", "interval", interval)

			timer := time.NewTimer(interval)
			select {
			case <-p.stopChan:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case <-p.trigger:
				timer.Stop()
				p.logger.Info("poller triggered")
			case <-timer.C:
			}
		}
	}()
}

func (p *Poller) runOnce(ctx context.Context) {
	p.mu.Lock()
	p.status.Running = true
	p.status.LastStart = time.Now()
	p.mu.Unlock()

	err := p.run(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Running = false
	p.status.Runs++
	p.status.LastFinish = time.Now()
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
		p.logger.Error("poller run failed", "error", err)
	}
}

// Trigger asks for a run as soon as the current one, if any, finishes.
// Requests made while one is already pending are coalesced; Trigger reports
// whether this call queued a new one.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the poller's state.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Stop stops the poller gracefully, waiting for an in-flight run.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}
