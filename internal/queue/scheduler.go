package queue

import (
	"sync"
	"time"
)

// DefaultFlushDelay is the deferral of a flush when no scheduler is configured
const DefaultFlushDelay = time.Millisecond

// Scheduler runs a callback on the next tick
type Scheduler interface {
	Next(fn func())
}

// TimerScheduler runs callbacks after a fixed delay on their own goroutine
type TimerScheduler struct {
	delay time.Duration
}

// NewTimerScheduler creates a scheduler with the given delay
func NewTimerScheduler(delay time.Duration) *TimerScheduler {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	return &TimerScheduler{delay: delay}
}

// Next schedules fn
func (s *TimerScheduler) Next(fn func()) {
	time.AfterFunc(s.delay, fn)
}

// ManualScheduler holds callbacks until RunPending is called
type ManualScheduler struct {
	tasks []func()
	mu    sync.Mutex
}

// NewManualScheduler creates an empty manual scheduler
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Next queues fn
func (s *ManualScheduler) Next(fn func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, fn)
	s.mu.Unlock()
}

// Pending returns the number of queued callbacks
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunPending runs the queued callbacks on the calling goroutine and returns how many ran
func (s *ManualScheduler) RunPending() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}
