package devmeter

import (
	"errors"
	"log/slog"
	"sync"
)

// CorrelationID correlates a trigger with its completion notification.
type CorrelationID int

// TagNone marks a readiness-only probe: the worker wakes up and runs an empty
// cycle without touching the device, and no completion notification is sent.
const TagNone CorrelationID = -1

var ErrWorkerClosed = errors.New("worker: already shut down")

// ProbeTarget is the set of device operations the worker drives. Measure is
// never called before Prepare has returned, Cleanup is called exactly once
// after the worker loop exits, and nothing is called after Cleanup.
type ProbeTarget interface {
	Prepare() error
	Measure() error
	Cleanup() error
}

// Worker runs expensive device probes on a dedicated goroutine. Triggers from
// any number of callers coalesce into a single pending request slot where the
// latest tag wins; there is no queue. The goroutine starts lazily on the
// first trigger and Shutdown blocks until it has fully exited.
type Worker struct {
	target ProbeTarget

	mu         sync.Mutex
	readyCond  *sync.Cond // preparation finished
	wakeCond   *sync.Cond // a request is pending
	startCond  *sync.Cond // a probe cycle started
	finishCond *sync.Cond // a probe cycle finished

	running bool
	ready   bool
	busy    bool
	abort   bool

	pending    bool
	pendingTag CorrelationID

	runs    uint64
	lastTag CorrelationID

	onCompleted func(tag CorrelationID)

	done chan struct{}
}

func NewWorker(target ProbeTarget) *Worker {

	this := &Worker{
		target:  target,
		lastTag: TagNone,
	}

	this.readyCond = sync.NewCond(&this.mu)
	this.wakeCond = sync.NewCond(&this.mu)
	this.startCond = sync.NewCond(&this.mu)
	this.finishCond = sync.NewCond(&this.mu)

	return this
}

// OnCompleted registers the completion callback. At most one subscriber is
// supported; set it before the first trigger.
func (this *Worker) OnCompleted(fn func(tag CorrelationID)) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.onCompleted = fn
}

// LastTag returns the tag of the most recently completed cycle, or TagNone.
func (this *Worker) LastTag() CorrelationID {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.lastTag
}

// Start launches the worker goroutine without requesting a probe. Calling it
// is optional; the first trigger starts the worker too.
func (this *Worker) Start() error {

	this.mu.Lock()
	defer this.mu.Unlock()

	if this.abort {
		return ErrWorkerClosed
	}

	this.startLocked()
	return nil
}

func (this *Worker) startLocked() {

	if this.running {
		return
	}

	this.running = true
	this.done = make(chan struct{})
	go this.run()
}

// Trigger requests a probe cycle and returns as soon as the worker is ready.
// It blocks only until preparation has finished at least once, never for the
// probe itself. A trigger issued while a previous request is still pending
// simply overwrites its tag.
func (this *Worker) Trigger(tag CorrelationID) error {

	this.mu.Lock()
	defer this.mu.Unlock()

	_, err := this.triggerLocked(tag)
	return err
}

// triggerLocked records the request and waits for readiness. It returns the
// cycle count latched at the moment the request was recorded: any cycle
// completed past that mark happened after this trigger.
func (this *Worker) triggerLocked(tag CorrelationID) (uint64, error) {

	if this.abort {
		return 0, ErrWorkerClosed
	}

	this.pending = true
	this.pendingTag = tag
	mark := this.runs

	this.startLocked()

	for !this.ready && !this.abort {
		this.readyCond.Wait()
	}

	if this.abort {
		return 0, ErrWorkerClosed
	}

	this.wakeCond.Broadcast()
	return mark, nil
}

// TriggerAndWait requests a probe cycle and blocks until the worker has gone
// through a busy true -> false transition after the trigger. The wait is
// backed by a cycle counter so a probe that completes before the caller
// starts waiting is still accounted for.
func (this *Worker) TriggerAndWait(tag CorrelationID) error {

	this.mu.Lock()
	defer this.mu.Unlock()

	mark, err := this.triggerLocked(tag)
	if err != nil {
		return err
	}

	for !this.busy && this.runs <= mark && !this.abort {
		this.startCond.Wait()
	}

	for this.runs <= mark && !this.abort {
		this.finishCond.Wait()
	}

	// a wait satisfied by a completed cycle counts even when teardown
	// started in the meantime
	if this.runs <= mark {
		return ErrWorkerClosed
	}

	return nil
}

// Shutdown terminates the worker and blocks until its goroutine has exited.
// Safe to call at any point, idempotent, and guarantees that every caller
// parked inside Trigger or TriggerAndWait unblocks. If the worker never ran,
// the target is still cleaned up here.
func (this *Worker) Shutdown() {

	this.mu.Lock()

	if this.abort {
		started, done := this.running, this.done
		this.mu.Unlock()
		if started {
			<-done
		}
		return
	}

	this.abort = true
	this.readyCond.Broadcast()
	this.wakeCond.Broadcast()
	this.startCond.Broadcast()
	this.finishCond.Broadcast()

	started, done := this.running, this.done
	this.mu.Unlock()

	if started {
		<-done
		return
	}

	if err := this.target.Cleanup(); err != nil {
		slog.Warn("worker: target cleanup failed",
			slog.String("err", err.Error()))
	}
}

func (this *Worker) run() {

	defer close(this.done)

	slog.Debug("worker: started")

	// a dead device must not leave callers hanging: readiness is signaled
	// even when preparation fails, but Measure is never called on such a
	// target; the failure surfaces via the target's own state
	var prepFailed bool
	if err := this.target.Prepare(); err != nil {
		prepFailed = true
		slog.Error("worker: target preparation failed",
			slog.String("err", err.Error()))
	}

	this.mu.Lock()
	this.ready = true
	this.readyCond.Broadcast()

	for {

		for !this.pending && !this.abort {
			this.wakeCond.Wait()
		}

		if this.abort {
			break
		}

		tag := this.pendingTag
		this.pending = false

		this.busy = true
		this.startCond.Broadcast()
		this.mu.Unlock()

		if tag != TagNone && !prepFailed {
			if err := this.target.Measure(); err != nil {
				slog.Warn("worker: probe failed",
					slog.String("err", err.Error()))
			}
		}

		this.mu.Lock()
		this.busy = false
		this.lastTag = tag
		this.runs++
		this.finishCond.Broadcast()

		// a completed measurement is always announced, even when teardown
		// started while it was running
		if tag != TagNone && this.onCompleted != nil {
			notify := this.onCompleted
			this.mu.Unlock()
			notify(tag)
			this.mu.Lock()
		}

		if this.abort {
			break
		}
	}

	this.ready = false
	this.mu.Unlock()

	if err := this.target.Cleanup(); err != nil {
		slog.Warn("worker: target cleanup failed",
			slog.String("err", err.Error()))
	}

	slog.Debug("worker: stopped")
}
