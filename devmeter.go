// Package devmeter enumerates compute devices, measures their memory
// bandwidth and arithmetic throughput in background workers and serves the
// results to pollable exporters and report files.
package devmeter

import "time"

// Device is a probe target with a display surface on top: the probe
// operations the worker drives plus a snapshot accessor for exporters.
type Device interface {
	ProbeTarget
	Info() DeviceInfo
	SetHeavyMode(on bool)
}

type DeviceInfo struct {
	Index      int        `json:"index"`
	Name       string     `json:"name"`
	Capability Capability `json:"capability"`

	Core        CoreInfo        `json:"core"`
	Memory      MemoryInfo      `json:"memory"`
	Bandwidth   BandwidthInfo   `json:"bandwidth"`
	Performance PerformanceInfo `json:"performance"`

	HeavyMode bool      `json:"heavy_mode"`
	Measured  time.Time `json:"measured"`

	// last probe error, empty when the device is healthy
	ProbeError string `json:"probe_error,omitempty"`
}

type Capability struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// DoublePrecision reports whether the device supports double precision
// arithmetic (capability 1.3 and up).
func (this Capability) DoublePrecision() bool {
	return this.Major > 1 || (this.Major == 1 && this.Minor >= 3)
}

type CoreInfo struct {
	ClockRateKHz int `json:"clock_rate_khz"`
	Processors   int `json:"processors"`
	ThreadsMax   int `json:"threads_max"`
}

type MemoryInfo struct {
	TotalGlobal int64 `json:"total_global"`
	TotalShared int64 `json:"total_shared"`
	CacheLine   int   `json:"cache_line"`
}

// BandwidthInfo holds memory transfer rates in KB/s. A zero value means the
// rate has not been measured yet or the probe failed.
type BandwidthInfo struct {
	Copy  float64 `json:"copy"`
	Read  float64 `json:"read"`
	Write float64 `json:"write"`
}

// PerformanceInfo holds arithmetic throughput in Kop/s. A zero value means
// the rate has not been measured yet or the probe failed.
type PerformanceInfo struct {
	SingleFloat float64 `json:"single_float"`
	DoubleFloat float64 `json:"double_float"`
	Int32       float64 `json:"int32"`
	Int64       float64 `json:"int64"`
}
