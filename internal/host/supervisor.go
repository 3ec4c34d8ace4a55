package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RestartPolicy controls whether a supervised task is restarted after it
// returns.
type RestartPolicy string

const (
	// RestartAlways restarts the task whenever it returns, error or not.
	RestartAlways RestartPolicy = "always"
	// RestartOnError restarts the task only when it returns a non-nil error.
	RestartOnError RestartPolicy = "on_error"
	// RestartNever runs the task exactly once.
	RestartNever RestartPolicy = "never"
)

type SupervisorPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	MaxRestarts    int
}

func defaultSupervisorPolicy() SupervisorPolicy {
	return SupervisorPolicy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxRestarts:    0,
	}
}

func normalizePolicy(policy SupervisorPolicy) SupervisorPolicy {
	def := defaultSupervisorPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	return policy
}

type TaskStatus struct {
	Name         string        `json:"name"`
	Restart      RestartPolicy `json:"restart_policy"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
	Failed       bool          `json:"failed"`
}

// Supervisor keeps the host's long-running tasks (the tick loop, evolution
// runs) alive under a restart policy with exponential backoff.
type Supervisor struct {
	policy    SupervisorPolicy
	onRestart func(name string, err error, restarts int)

	mu    sync.Mutex
	tasks map[string]*supervisedTask
}

type supervisedTask struct {
	cancel  context.CancelFunc
	done    chan struct{}
	name    string
	restart RestartPolicy

	restartCount int
	lastErr      error
	failed       bool
}

func NewSupervisor(policy SupervisorPolicy, onRestart func(name string, err error, restarts int)) *Supervisor {
	return &Supervisor{
		policy:    normalizePolicy(policy),
		onRestart: onRestart,
		tasks:     make(map[string]*supervisedTask),
	}
}

func (s *Supervisor) Start(name string, restart RestartPolicy, run func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if run == nil {
		return errors.New("task runner is required")
	}
	switch restart {
	case RestartAlways, RestartOnError, RestartNever:
	default:
		restart = RestartOnError
	}

	s.mu.Lock()
	if _, exists := s.tasks[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &supervisedTask{
		cancel:  cancel,
		done:    make(chan struct{}),
		name:    name,
		restart: restart,
	}
	s.tasks[name] = task
	s.mu.Unlock()

	go s.runTask(ctx, task, run)
	return nil
}

func (s *Supervisor) runTask(ctx context.Context, task *supervisedTask, run func(ctx context.Context) error) {
	defer func() {
		s.mu.Lock()
		if current, ok := s.tasks[task.name]; ok && current == task {
			delete(s.tasks, task.name)
		}
		s.mu.Unlock()
		close(task.done)
	}()

	backoff := s.policy.InitialBackoff
	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		restart := task.restart == RestartAlways || (task.restart == RestartOnError && err != nil)
		if !restart {
			return
		}

		s.mu.Lock()
		task.lastErr = err
		restarts := task.restartCount
		s.mu.Unlock()
		if s.policy.MaxRestarts > 0 && restarts >= s.policy.MaxRestarts {
			s.mu.Lock()
			task.failed = true
			s.mu.Unlock()
			return
		}
		restarts++
		s.mu.Lock()
		task.restartCount = restarts
		s.mu.Unlock()
		if s.onRestart != nil {
			s.onRestart(task.name, err, restarts)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = time.Duration(float64(backoff) * s.policy.BackoffFactor)
		if backoff > s.policy.MaxBackoff {
			backoff = s.policy.MaxBackoff
		}
	}
}

func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*supervisedTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

func (s *Supervisor) Tasks() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TaskStatus, 0, len(names))
	for _, name := range names {
		task := s.tasks[name]
		status := TaskStatus{
			Name:         task.name,
			Restart:      task.restart,
			RestartCount: task.restartCount,
			Failed:       task.failed,
		}
		if task.lastErr != nil {
			status.LastError = task.lastErr.Error()
		}
		out = append(out, status)
	}
	return out
}
