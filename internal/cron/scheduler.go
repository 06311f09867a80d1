package cron

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/research"
)

// DefaultRunTimeout bounds one scheduled research run.
const DefaultRunTimeout = 10 * time.Minute

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrAlreadyPaused  = errors.New("job is already paused")
	ErrAlreadyRunning = errors.New("job is already running")
)

// Runner runs one research query.
type Runner interface {
	Run(ctx context.Context, query string) (*research.Result, error)
}

// Scheduler runs research jobs on cron schedules and saves every result to
// the history store.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	store   history.Store
	jobs    map[string]*Job
	mu      sync.RWMutex
	log     *slog.Logger
	timeout time.Duration
}

// NewScheduler creates a scheduler. store may be nil, in which case results
// are only logged.
func NewScheduler(runner Runner, store history.Store, log *slog.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		runner:  runner,
		store:   store,
		jobs:    make(map[string]*Job),
		log:     log,
		timeout: DefaultRunTimeout,
	}
}

// normalizeCron prepends "0 " to standard 5-field cron expressions
// so they work with the 6-field (with seconds) parser.
func normalizeCron(schedule string) string {
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load adds every configured schedule. Disabled entries are registered paused.
func (s *Scheduler) Load(schedules []config.ScheduleConfig) error {
	for _, sc := range schedules {
		job, err := s.AddJob(sc.Name, sc.Schedule, sc.Query)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		if !sc.Enabled {
			if err := s.PauseJob(job.ID); err != nil {
				return fmt.Errorf("schedule %q: %w", sc.Name, err)
			}
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("[CRON] scheduler started", "jobs", len(s.ListJobs()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("[CRON] scheduler stopped")
}

// AddJob validates and schedules a new enabled job.
func (s *Scheduler) AddJob(name, schedule, query string) (*Job, error) {
	if strings.TrimSpace(query) == "" {
		return nil, research.ErrEmptyQuery
	}
	job := &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Schedule:  normalizeCron(schedule),
		Query:     query,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
	if job.Name == "" {
		job.Name = query
	}
	if _, err := parser.Parse(job.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scheduleJob(job); err != nil {
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}
	s.jobs[job.ID] = job

	s.log.Info("[CRON] job created", "id", job.ID, "name", job.Name, "schedule", job.Schedule)
	return job.Clone(), nil
}

func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.EntryID != 0 {
		s.cron.Remove(job.EntryID)
	}
	delete(s.jobs, id)
	s.log.Info("[CRON] job removed", "id", id, "name", job.Name)
	return nil
}

func (s *Scheduler) PauseJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !job.Enabled {
		return ErrAlreadyPaused
	}
	if job.EntryID != 0 {
		s.cron.Remove(job.EntryID)
		job.EntryID = 0
	}
	job.Enabled = false
	s.log.Info("[CRON] job paused", "id", id, "name", job.Name)
	return nil
}

func (s *Scheduler) ResumeJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Enabled {
		return ErrAlreadyRunning
	}
	if err := s.scheduleJob(job); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	job.Enabled = true
	s.log.Info("[CRON] job resumed", "id", id, "name", job.Name)
	return nil
}

// FindJob resolves a job by ID, falling back to its name.
func (s *Scheduler) FindJob(ref string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if job, ok := s.jobs[ref]; ok {
		return job.Clone(), nil
	}
	for _, job := range s.jobs {
		if job.Name == ref {
			return job.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, ref)
}

// ListJobs returns copies of all jobs ordered by name.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
	return jobs
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s.executeJob(ctx, job)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return job.Clone(), nil
}

// scheduleJob must be called with s.mu held.
func (s *Scheduler) scheduleJob(job *Job) error {
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.executeJob(ctx, job)
	})
	if err != nil {
		return err
	}
	job.EntryID = entryID
	return nil
}

func (s *Scheduler) executeJob(ctx context.Context, job *Job) {
	now := time.Now()
	s.mu.Lock()
	job.LastRun = &now
	query, name := job.Query, job.Name
	s.mu.Unlock()

	s.log.Info("[CRON] running job", "id", job.ID, "name", name, "query", query)

	res, err := s.runner.Run(ctx, query)
	var reportID int64
	if err == nil && s.store != nil {
		reportID, err = s.store.Save(ctx, history.ParamsFromResult(res, 0))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		job.LastError = err.Error()
		s.log.Error("[CRON] job failed", "id", job.ID, "name", name, "error", err)
		return
	}
	job.LastError = ""
	job.LastReportID = reportID

	hash := insightsHash(res.Insights)
	job.Changed = job.insightsHash != "" && job.insightsHash != hash
	job.insightsHash = hash
	if job.Changed {
		s.log.Info("[CRON] insights changed since last run", "name", name, "report_id", reportID)
	}
	s.log.Info("[CRON] job completed", "id", job.ID, "name", name, "report_id", reportID, "duration", time.Since(now))
}

func insightsHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
