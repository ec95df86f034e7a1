package devmeter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	mu       sync.Mutex
	info     DeviceInfo
	prepared int
	measured int
	cleaned  int
}

func (this *fakeDevice) Info() DeviceInfo {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.info
}

func (this *fakeDevice) SetHeavyMode(on bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.info.HeavyMode = on
}

func (this *fakeDevice) Prepare() error {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.prepared++
	return nil
}

func (this *fakeDevice) Measure() error {

	this.mu.Lock()
	defer this.mu.Unlock()

	this.measured++
	this.info.Bandwidth.Copy = float64(1024 * this.measured)
	this.info.Measured = time.Now()

	return nil
}

func (this *fakeDevice) Cleanup() error {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.cleaned++
	return nil
}

type memWriter struct {
	mu      sync.Mutex
	entries []SampleEntry
}

func (this *memWriter) Type() string {
	return "memory"
}

func (this *memWriter) Close() error {
	return nil
}

func (this *memWriter) WriteSample(ctx context.Context, entry SampleEntry) error {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.entries = append(this.entries, entry)
	return nil
}

func (this *memWriter) stored() []SampleEntry {
	this.mu.Lock()
	defer this.mu.Unlock()
	return append([]SampleEntry(nil), this.entries...)
}

func TestMonitorPeriodicRefresh(t *testing.T) {

	device := &fakeDevice{info: DeviceInfo{Index: 0, Name: "fake-0"}}
	writer := &memWriter{}

	monitor := NewMonitor([]Device{device})
	monitor.RefreshEvery = 20 * time.Millisecond
	monitor.Writers = []StorageWriter{writer}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(writer.stored()) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	snapshot, ok := monitor.Snapshot(0)
	require.True(t, ok)
	assert.False(t, snapshot.Measured.IsZero())
	assert.Equal(t, "fake-0", snapshot.Name)

	entry := writer.stored()[0]
	assert.Equal(t, "fake-0", entry.Label)
	assert.Equal(t, 0, entry.Device)
	assert.True(t, entry.CopyRate.Valid)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}

	device.mu.Lock()
	defer device.mu.Unlock()
	assert.Equal(t, 1, device.cleaned)
}

func TestMonitorRefreshWait(t *testing.T) {

	device := &fakeDevice{info: DeviceInfo{Index: 0, Name: "fake-0"}}
	writer := &memWriter{}

	monitor := NewMonitor([]Device{device})
	monitor.AutoRefresh = false
	monitor.HeavyMode = true
	monitor.Writers = []StorageWriter{writer}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	require.NoError(t, monitor.RefreshWait(0))

	require.Eventually(t, func() bool {
		return len(writer.stored()) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, writer.stored()[0].Heavy)

	assert.Error(t, monitor.Refresh(-1))
	assert.Error(t, monitor.RefreshWait(99))
	assert.Error(t, monitor.SetActiveDevice(99))

	cancel()
	<-done
}

func TestMonitorActiveDevice(t *testing.T) {

	devices := []Device{
		&fakeDevice{info: DeviceInfo{Index: 0, Name: "fake-0"}},
		&fakeDevice{info: DeviceInfo{Index: 1, Name: "fake-1"}},
	}

	monitor := NewMonitor(devices)

	assert.Equal(t, 0, monitor.ActiveDevice())
	require.NoError(t, monitor.SetActiveDevice(1))
	assert.Equal(t, 1, monitor.ActiveDevice())

	snapshots := monitor.Snapshots()
	require.Len(t, snapshots, 2)
	assert.Equal(t, "fake-1", snapshots[1].Name)
}
