// Package jobmgr runs units of work on their own goroutines and keeps track
// of the ones still running, with cancellation and status callbacks.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(msg string) {
//	    log.Println("JOB:", msg)
//	})
//
//	// fire and forget; the key is generated
//	key := jm.Go(ctx, "invoke", func(ctx context.Context) error {
//	    return run(ctx)
//	})
//
//	fmt.Println(jm.Status())
//
//	// on shutdown
//	_ = jm.Wait(ctx)
//
// There is no retry logic and no persistence. Jobs are removed on completion.
package jobmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Job represents a running unit of work.
// Jobs are added and removed by Manager automatically.
type Job struct {
	Name   string
	Cancel context.CancelFunc
}

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:invoke:3f2a...
//	error:invoke:3f2a...:boom
//	done:invoke:3f2a...
type StatusReporter func(string)

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	wg       sync.WaitGroup
	Reporter StatusReporter
}

// NewManager creates a new Manager.
// The reporter callback may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// Go runs runner on a new goroutine under a generated key derived from name
// and returns the key immediately. The job context is derived from ctx.
func (m *Manager) Go(ctx context.Context, name string, runner func(ctx context.Context) error) string {
	key := name + ":" + uuid.NewString()

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{Name: key, Cancel: cancel}
	m.mu.Lock()
	m.jobs[key] = job
	m.mu.Unlock()

	m.run(jobCtx, job, runner)
	return key
}

func (m *Manager) run(ctx context.Context, job *Job, runner func(ctx context.Context) error) {
	name := job.Name
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer job.Cancel()

		m.report("running:" + name)
		if err := runner(ctx); err != nil {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
}

// Wait blocks until every job has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the number of jobs still running.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of active jobs.
// Example:
//
//	"Running jobs: get, analyze"
//
// If none are running: "No jobs are running."
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

// report delivers lifecycle messages to the reporter if present.
func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
