package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Trigger(name string) error
	Start(ctx context.Context)
	Stop()
}

type entry struct {
	id  cron.EntryID
	run func()
}

type CronScheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]entry
	ctx     context.Context
	runs    sync.WaitGroup
	stopped bool
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]entry),
		ctx:     context.Background(),
	}
}

// AddJob schedules job by a five field cron spec or a descriptor such as
// @hourly. An empty spec registers the job for Trigger only.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	run := c.wrap(job, spec)
	var id cron.EntryID
	if spec != "" {
		entryID, err := c.cron.AddFunc(spec, run)
		if err != nil {
			logger.Error("schedule job failed", zap.Error(err))
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		id = entryID
	}
	c.mu.Lock()
	c.entries[name] = entry{id: id, run: run}
	c.mu.Unlock()
	logger.Info("job registered")
	return nil
}

// Trigger runs a registered job now in the background. A run still in
// progress makes it a no-op. Stop waits for triggered runs.
func (c *CronScheduler) Trigger(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return fmt.Errorf("scheduler stopped, job %s not triggered", name)
	}
	e, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		e.run()
	}()
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.runs.Wait()
}

func (c *CronScheduler) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(context.Background()).With(
				zap.String("job", job.Name()),
				zap.String("spec", spec),
			).Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := c.runContext()
		logger := logutil.GetLogger(ctx).With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)
		start := time.Now()
		logger.Info("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("job finished", zap.Duration("duration", elapsed))
	}
}
