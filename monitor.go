package devmeter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval matches the classic 2 s benchmark refresh period.
const DefaultRefreshInterval = 2 * time.Second

// Monitor owns one benchmark worker per device, re-triggers the active
// device on a refresh ticker and fans completed samples out to the
// configured storage writers.
type Monitor struct {
	RefreshEvery time.Duration
	AutoRefresh  bool
	HeavyMode    bool
	Writers      []StorageWriter

	devices []Device
	workers []*Worker

	mu        sync.RWMutex
	active    int
	snapshots []DeviceInfo

	ticker *time.Ticker
}

func NewMonitor(devices []Device) *Monitor {

	this := &Monitor{
		AutoRefresh: true,
		devices:     devices,
		workers:     make([]*Worker, len(devices)),
		snapshots:   make([]DeviceInfo, len(devices)),
	}

	for idx, device := range devices {

		this.snapshots[idx] = device.Info()

		worker := NewWorker(device)
		worker.OnCompleted(func(tag CorrelationID) {
			this.completed(idx, tag)
		})

		this.workers[idx] = worker
	}

	return this
}

func (this *Monitor) completed(idx int, tag CorrelationID) {

	info := this.devices[idx].Info()

	this.mu.Lock()
	this.snapshots[idx] = info
	this.mu.Unlock()

	slog.Debug("monitor: sample completed",
		slog.Int("device", idx),
		slog.Int("tag", int(tag)))

	entry := NewSampleEntry(info, tag)

	for _, writer := range this.Writers {

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

		if err := writer.WriteSample(ctx, entry); err != nil {
			slog.Error("monitor: failed to store sample",
				slog.String("writer", writer.Type()),
				slog.String("err", err.Error()))
		}

		cancel()
	}
}

// SetActiveDevice selects the device the refresh ticker keeps measuring.
func (this *Monitor) SetActiveDevice(idx int) error {

	if idx < 0 || idx >= len(this.devices) {
		return fmt.Errorf("device index %d out of range", idx)
	}

	this.mu.Lock()
	this.active = idx
	this.mu.Unlock()

	return nil
}

func (this *Monitor) ActiveDevice() int {
	this.mu.RLock()
	defer this.mu.RUnlock()
	return this.active
}

// Refresh requests a fresh measurement of the given device and returns
// without waiting for it.
func (this *Monitor) Refresh(idx int) error {

	if idx < 0 || idx >= len(this.devices) {
		return fmt.Errorf("device index %d out of range", idx)
	}

	this.devices[idx].SetHeavyMode(this.HeavyMode)

	return this.workers[idx].Trigger(CorrelationID(idx))
}

// RefreshWait requests a fresh measurement and blocks until it completes.
func (this *Monitor) RefreshWait(idx int) error {

	if idx < 0 || idx >= len(this.devices) {
		return fmt.Errorf("device index %d out of range", idx)
	}

	this.devices[idx].SetHeavyMode(this.HeavyMode)

	return this.workers[idx].TriggerAndWait(CorrelationID(idx))
}

// Snapshot returns the latest completed measurement of one device.
func (this *Monitor) Snapshot(idx int) (DeviceInfo, bool) {

	this.mu.RLock()
	defer this.mu.RUnlock()

	if idx < 0 || idx >= len(this.snapshots) {
		return DeviceInfo{}, false
	}

	return this.snapshots[idx], true
}

func (this *Monitor) Snapshots() []DeviceInfo {

	this.mu.RLock()
	defer this.mu.RUnlock()

	result := make([]DeviceInfo, len(this.snapshots))
	copy(result, this.snapshots)

	return result
}

// Run drives the refresh ticker until the context is cancelled, then shuts
// every worker down and returns.
func (this *Monitor) Run(ctx context.Context) {

	if this.ticker != nil {
		panic("Monitor.Run() called more than once")
	}

	if this.RefreshEvery <= 0 {
		this.RefreshEvery = DefaultRefreshInterval
	}

	this.ticker = time.NewTicker(this.RefreshEvery)

	// first pass measures every device so exporters have data right away
	for idx := range this.devices {
		if err := this.Refresh(idx); err != nil {
			slog.Error("monitor: initial refresh failed",
				slog.Int("device", idx),
				slog.String("err", err.Error()))
		}
	}

	for {
		select {

		case <-this.ticker.C:

			if !this.AutoRefresh {
				slog.Debug("monitor: timer shot -> update ignored")
				continue
			}

			idx := this.ActiveDevice()

			slog.Debug("monitor: timer shot -> update performance",
				slog.Int("device", idx),
				slog.Bool("heavy", this.HeavyMode))

			if err := this.Refresh(idx); err != nil {
				slog.Error("monitor: refresh failed",
					slog.Int("device", idx),
					slog.String("err", err.Error()))
			}

		case <-ctx.Done():

			this.ticker.Stop()

			for idx, worker := range this.workers {
				worker.Shutdown()
				slog.Debug("monitor: worker stopped",
					slog.Int("device", idx))
			}

			return
		}
	}
}
