package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/streamflow/pkg/schema"
)

// Recorder persists health snapshots produced by the periodic runner.
type Recorder interface {
	RecordHealthSnapshot(ctx context.Context, s SystemHealth) error
}

// Cron runs the monitor's checks on a cron schedule, optionally
// persisting each snapshot through a Recorder.
type Cron struct {
	monitor  *Monitor
	recorder Recorder
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCron parses the cron expression (five-field, minute resolution) and
// builds the runner. The recorder may be nil.
func NewCron(monitor *Monitor, cronExpr string, recorder Recorder, logger *slog.Logger) (*Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "invalid cron expression %q", cronExpr).WithCause(err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cron{
		monitor:  monitor,
		recorder: recorder,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start launches the background loop. It runs one immediate tick, then
// follows the schedule.
func (c *Cron) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return schema.NewError(schema.ErrCodeConflict, "health cron already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.loop(runCtx)
	c.logger.Info("health cron started")
	return nil
}

func (c *Cron) loop(ctx context.Context) {
	defer close(c.done)

	c.tick(ctx)
	for {
		next := c.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.tick(ctx)
		}
	}
}

func (c *Cron) tick(ctx context.Context) {
	snapshot := c.monitor.RunChecks(ctx)
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordHealthSnapshot(ctx, snapshot); err != nil {
		c.logger.Error("failed to record health snapshot", slog.String("error", err.Error()))
	}
}

// Stop gracefully shuts down the loop.
func (c *Cron) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
	c.logger.Info("health cron stopped")
}
