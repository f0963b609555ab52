package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/air-quality-forecast/internal/collector"
)

// DefaultTrainSchedule runs training every Monday at 03:00 UTC.
const DefaultTrainSchedule = "0 0 3 * * 1"

// Collector is the batch collection job.
type Collector interface {
	CollectAllActive(ctx context.Context) (int, []collector.Result)
}

// Trainer is the retraining job.
type Trainer interface {
	TrainAll(ctx context.Context) error
}

// Scheduler periodically collects readings for active locations and
// retrains the models out of band.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cron      *cron.Cron
	collector Collector
	trainer   Trainer
	interval  time.Duration
	trainSpec string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. trainer may be nil to disable retraining.
func New(collector Collector, interval time.Duration, trainer Trainer, trainSpec string) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	if trainSpec == "" {
		trainSpec = DefaultTrainSchedule
	}
	return &Scheduler{
		scheduler: s,
		// Prevent overlapping training runs
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		collector: collector,
		trainer:   trainer,
		interval:  interval,
		trainSpec: trainSpec,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the jobs and starts the underlying schedulers.
func (s *Scheduler) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 3600
	}

	_, err := s.scheduler.Every(seconds).Seconds().SingletonMode().Do(func() {
		s.RunCollect(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule collection: %w", err)
	}

	if s.trainer != nil {
		if _, err := s.cron.AddFunc(s.trainSpec, func() {
			if err := s.RunTrain(s.ctx); err != nil {
				log.Printf("scheduler: training run failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to add training job %q: %w", s.trainSpec, err)
		}
		s.cron.Start()
		log.Printf("scheduler: training scheduled with %q", s.trainSpec)
	}

	s.scheduler.StartAsync()
	log.Printf("scheduler: collecting every %ds", seconds)
	return nil
}

// RunCollect runs one collection pass over the active locations.
func (s *Scheduler) RunCollect(ctx context.Context) int {
	log.Println("scheduler: running collection job")
	start := time.Now()
	ok, results := s.collector.CollectAllActive(ctx)
	log.Printf("scheduler: completed collection job (%d/%d) in %s", ok, len(results), time.Since(start).Round(time.Millisecond))
	return ok
}

// RunTrain retrains every horizon.
func (s *Scheduler) RunTrain(ctx context.Context) error {
	log.Println("scheduler: running training job")
	start := time.Now()
	if err := s.trainer.TrainAll(ctx); err != nil {
		return err
	}
	log.Printf("scheduler: completed training job in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// Stop stops the schedulers and cancels any running job.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
