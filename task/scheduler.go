// ffwatcher/task/scheduler.go

// Package task schedules transcode jobs: a dedup-aware FIFO queue feeding a
// bounded pool of worker goroutines, with delayed re-submission for files
// that are not yet safe to process.
package task

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ffwatcher/config"

	"github.com/lithammer/shortuuid/v4"
)

// Gate decides whether a file is fully written and decodable. A false
// result with a nil error is retryable.
type Gate interface {
	Check(ctx context.Context, path string) (durationSeconds float64, valid bool, err error)
}

// Runner executes one encode.
type Runner interface {
	Run(ctx context.Context, input, output string, preset *config.Preset, durationSeconds float64) error
}

// transienter is implemented by runner errors that warrant a retry.
type transienter interface {
	Transient() bool
}

type Scheduler struct {
	cfg    *config.Config
	gate   Gate
	runner Runner
	log    *slog.Logger

	// Backoff before re-submitting a job that failed transiently.
	Backoff time.Duration

	// HistoryTTL bounds how long finished and failed records stay in the
	// status view before eviction.
	HistoryTTL time.Duration

	mu      sync.Mutex
	states  map[string]State // single-flight table: queued|active only
	queue   []string
	records map[string]*Job

	wake chan struct{}
	sem  chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(cfg *config.Config, gate Gate, runner Runner, log *slog.Logger) *Scheduler {
	ttl := cfg.JobHistoryTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Scheduler{
		cfg:        cfg,
		gate:       gate,
		runner:     runner,
		log:        log,
		Backoff:    cfg.RetryBackoff,
		HistoryTTL: ttl,
		states:     make(map[string]State),
		records:    make(map[string]*Job),
		wake:       make(chan struct{}, 1),
		sem:        make(chan struct{}, cfg.MaxParallelJobs),
	}
}

// Start launches the dispatcher and cleanup loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", "maxParallelJobs", cap(s.sem))
	go s.dispatch(ctx)
	go s.cleanupLoop(ctx)
}

// cleanupLoop evicts terminal records older than HistoryTTL so the status
// view stays bounded on long-running installs. Queued and active records
// are never touched.
func (s *Scheduler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.HistoryTTL / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneRecords()
		}
	}
}

func (s *Scheduler) pruneRecords() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, rec := range s.records {
		if rec.State != StateDone && rec.State != StateFailed {
			continue
		}
		if time.Since(rec.FinishedAt) > s.HistoryTTL {
			delete(s.records, path)
		}
	}
}

// Wait blocks until all spawned workers have exited.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Submit enqueues the canonical form of path. It is non-blocking and
// idempotent: paths already queued or active, and paths no configured input
// matches, are silently ignored.
func (s *Scheduler) Submit(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		s.log.Warn("cannot resolve path", "path", path, "error", err)
		return
	}
	canonical := filepath.Clean(abs)

	if _, ok := s.cfg.MatchInput(canonical); !ok {
		s.log.Debug("no matching input, ignoring", "path", canonical)
		return
	}

	s.mu.Lock()
	if _, busy := s.states[canonical]; busy {
		s.mu.Unlock()
		s.log.Debug("already queued or active", "path", canonical)
		return
	}
	s.states[canonical] = StateQueued
	s.queue = append(s.queue, canonical)

	rec := s.records[canonical]
	if rec != nil && rec.State == StateRequeued {
		rec.State = StateQueued
		rec.Attempts++
		rec.SubmittedAt = time.Now()
	} else {
		rec = &Job{
			ID:          shortuuid.New(),
			Path:        canonical,
			State:       StateQueued,
			Attempts:    1,
			SubmittedAt: time.Now(),
		}
		s.records[canonical] = rec
	}
	id, attempt := rec.ID, rec.Attempts
	s.mu.Unlock()

	s.log.Info("job queued", "job", id, "path", canonical, "attempt", attempt)

	// Duplicate wake-ups are harmless, the dispatcher re-drains the whole
	// queue each time.
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch waits for a wake-up, drains the queue spawning one worker per
// job, and goes back to waiting.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("dispatcher shutting down")
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			path := s.queue[0]
			s.queue = s.queue[1:]
			if s.states[path] != StateQueued {
				s.mu.Unlock()
				continue
			}
			s.states[path] = StateActive
			s.mu.Unlock()

			s.wg.Add(1)
			go s.worker(ctx, path)
		}
	}
}

// worker runs the per-file pipeline for one active job. The single-flight
// marker and the concurrency slot are released on every exit path.
func (s *Scheduler) worker(ctx context.Context, path string) {
	defer s.wg.Done()
	defer s.clearFlight(path)

	// Sole backpressure point: excess jobs block here, in the queue's
	// goroutines, instead of spawning unbounded processes.
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	if s.process(ctx, path) && ctx.Err() == nil {
		s.log.Info("job requeued", "path", path, "backoff", s.Backoff)
		time.AfterFunc(s.Backoff, func() { s.Submit(path) })
	}
}

func (s *Scheduler) clearFlight(path string) {
	s.mu.Lock()
	delete(s.states, path)
	s.mu.Unlock()
}

// process runs gate → preset/output resolution → idempotence check →
// executor. The return value reports whether the job should be re-submitted
// after the backoff.
func (s *Scheduler) process(ctx context.Context, path string) (requeue bool) {
	in, ok := s.cfg.MatchInput(path)
	if !ok {
		// The input set is immutable, so a submitted path always matches.
		s.fail(path, errors.New("no matching input"))
		return false
	}

	id := s.setStarted(path)
	s.log.Info("job started", "job", id, "path", path)

	duration, valid, err := s.gate.Check(ctx, path)
	if err != nil {
		s.fail(path, err)
		return false
	}
	if !valid {
		s.markRequeued(path, "file not yet stable or decodable")
		return true
	}

	preset, ok := s.cfg.Presets[in.Preset]
	if !ok {
		s.fail(path, errors.New("preset not found: "+in.Preset))
		return false
	}
	out, ok := s.cfg.Outputs[in.Output]
	if !ok {
		s.fail(path, errors.New("output not found: "+in.Output))
		return false
	}

	outputPath := out.OutputPath(path)
	s.setOutput(path, outputPath)

	if _, err := os.Stat(outputPath); err == nil {
		s.log.Info("output already exists, skipping", "job", id, "path", path, "output", outputPath)
		s.succeed(path)
		return false
	} else if !errors.Is(err, os.ErrNotExist) {
		s.fail(path, err)
		return false
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		s.fail(path, err)
		return false
	}

	if err := s.runner.Run(ctx, path, outputPath, &preset, duration); err != nil {
		var tr transienter
		if errors.As(err, &tr) && tr.Transient() {
			s.markRequeued(path, err.Error())
			return true
		}
		s.removePartial(outputPath)
		s.fail(path, err)
		return false
	}

	s.log.Info("job succeeded", "job", id, "path", path, "output", outputPath)
	s.succeed(path)
	return false
}

func (s *Scheduler) removePartial(outputPath string) {
	if _, err := os.Stat(outputPath); err != nil {
		return
	}
	if err := os.Remove(outputPath); err != nil {
		s.log.Error("failed to remove incomplete output", "output", outputPath, "error", err)
	} else {
		s.log.Info("removed incomplete output", "output", outputPath)
	}
}

func (s *Scheduler) setStarted(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[path]
	if rec == nil {
		return ""
	}
	rec.State = StateActive
	rec.StartedAt = time.Now()
	return rec.ID
}

func (s *Scheduler) setOutput(path, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.records[path]; rec != nil {
		rec.Output = output
	}
}

func (s *Scheduler) markRequeued(path, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.records[path]; rec != nil {
		rec.State = StateRequeued
		rec.Error = reason
	}
}

func (s *Scheduler) succeed(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.records[path]; rec != nil {
		rec.State = StateDone
		rec.Error = ""
		rec.FinishedAt = time.Now()
	}
}

func (s *Scheduler) fail(path string, err error) {
	s.mu.Lock()
	rec := s.records[path]
	var id string
	if rec != nil {
		rec.State = StateFailed
		rec.Error = err.Error()
		rec.FinishedAt = time.Now()
		id = rec.ID
	}
	s.mu.Unlock()
	s.log.Error("job failed", "job", id, "path", path, "error", err)
}

// Jobs returns a snapshot of all job records, newest first.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.records))
	for _, rec := range s.records {
		jobs = append(jobs, *rec)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmittedAt.After(jobs[j].SubmittedAt)
	})
	return jobs
}
