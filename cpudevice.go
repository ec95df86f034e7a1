package devmeter

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

const (
	cpuBufferSize      = 16 << 20
	cpuBufferSizeHeavy = 64 << 20
	cpuComputeOps      = 1 << 22
	cpuComputeOpsHeavy = 1 << 24
)

// EnumerateDevices lists the compute devices available to this process. The
// current build knows how to probe the host CPU; device plugins for
// accelerators implement the same Device interface.
func EnumerateDevices() []Device {
	return []Device{newCpuDevice(0)}
}

func newCpuDevice(index int) *cpuDevice {
	return &cpuDevice{
		info: DeviceInfo{
			Index:      index,
			Name:       fmt.Sprintf("Host CPU (%s/%s)", runtime.GOOS, runtime.GOARCH),
			Capability: Capability{Major: 2, Minor: 0},
			Core: CoreInfo{
				Processors: runtime.NumCPU(),
				ThreadsMax: runtime.NumCPU() * 2,
			},
			Memory: MemoryInfo{CacheLine: 64},
		},
	}
}

type cpuDevice struct {
	mu   sync.Mutex
	info DeviceInfo

	src []byte
	dst []byte
}

// benchSink keeps measurement loops observable so they are not elided.
var benchSink uint64

func (this *cpuDevice) Info() DeviceInfo {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.info
}

func (this *cpuDevice) SetHeavyMode(on bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.info.HeavyMode = on
}

func (this *cpuDevice) Prepare() error {

	this.mu.Lock()
	defer this.mu.Unlock()

	if this.src != nil {
		return errors.New("cpu device: already prepared")
	}

	this.src = make([]byte, cpuBufferSizeHeavy)
	this.dst = make([]byte, cpuBufferSizeHeavy)

	for idx := range this.src {
		this.src[idx] = byte(idx)
	}

	return nil
}

func (this *cpuDevice) Cleanup() error {

	this.mu.Lock()
	defer this.mu.Unlock()

	this.src = nil
	this.dst = nil

	return nil
}

func (this *cpuDevice) Measure() error {

	this.mu.Lock()

	if this.src == nil {
		this.info.ProbeError = "device not prepared"
		this.mu.Unlock()
		return errors.New("cpu device: not prepared")
	}

	size := cpuBufferSize
	ops := cpuComputeOps
	if this.info.HeavyMode {
		size = cpuBufferSizeHeavy
		ops = cpuComputeOpsHeavy
	}

	src, dst := this.src[:size], this.dst[:size]
	this.mu.Unlock()

	band := BandwidthInfo{
		Copy:  measureCopyRate(dst, src),
		Read:  measureReadRate(src),
		Write: measureWriteRate(dst),
	}

	perf := PerformanceInfo{
		SingleFloat: measureFloat32Rate(ops),
		DoubleFloat: measureFloat64Rate(ops),
		Int32:       measureInt32Rate(ops),
		Int64:       measureInt64Rate(ops),
	}

	this.mu.Lock()
	this.info.Bandwidth = band
	this.info.Performance = perf
	this.info.Measured = time.Now()
	this.info.ProbeError = ""
	this.mu.Unlock()

	return nil
}

// kbRate converts bytes moved over elapsed time into KB/s.
func kbRate(bytes int, elapsed time.Duration) float64 {

	if elapsed <= 0 {
		return 0
	}

	return float64(bytes) / 1024 / elapsed.Seconds()
}

// kopRate converts operations over elapsed time into Kop/s.
func kopRate(ops int, elapsed time.Duration) float64 {

	if elapsed <= 0 {
		return 0
	}

	return float64(ops) / 1000 / elapsed.Seconds()
}

func measureCopyRate(dst, src []byte) float64 {

	const passes = 4

	started := time.Now()
	for range passes {
		copy(dst, src)
	}

	return kbRate(passes*len(src), time.Since(started))
}

func measureReadRate(src []byte) float64 {

	var acc uint64

	started := time.Now()
	for idx := 0; idx+8 <= len(src); idx += 8 {
		acc += uint64(src[idx]) | uint64(src[idx+4])<<32
	}
	elapsed := time.Since(started)

	benchSink += acc

	return kbRate(len(src), elapsed)
}

func measureWriteRate(dst []byte) float64 {

	started := time.Now()
	for idx := range dst {
		dst[idx] = byte(idx >> 3)
	}

	return kbRate(len(dst), time.Since(started))
}

func measureFloat32Rate(ops int) float64 {

	acc, step := float32(1.0), float32(1.000001)

	started := time.Now()
	for range ops {
		acc = acc*step + step
	}
	elapsed := time.Since(started)

	benchSink += uint64(acc)

	// one multiply plus one add per iteration
	return kopRate(ops*2, elapsed)
}

func measureFloat64Rate(ops int) float64 {

	acc, step := 1.0, 1.000001

	started := time.Now()
	for range ops {
		acc = acc*step + step
	}
	elapsed := time.Since(started)

	benchSink += uint64(acc)

	return kopRate(ops*2, elapsed)
}

func measureInt32Rate(ops int) float64 {

	acc, step := int32(1), int32(3)

	started := time.Now()
	for range ops {
		acc = acc*step + step
	}
	elapsed := time.Since(started)

	benchSink += uint64(uint32(acc))

	return kopRate(ops*2, elapsed)
}

func measureInt64Rate(ops int) float64 {

	acc, step := int64(1), int64(3)

	started := time.Now()
	for range ops {
		acc = acc*step + step
	}
	elapsed := time.Since(started)

	benchSink += uint64(acc)

	return kopRate(ops*2, elapsed)
}
