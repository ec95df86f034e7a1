package devmeter

import (
	"context"
	"time"

	"github.com/guregu/null"
)

// SampleEntry is one completed measurement flattened for storage. Rate
// columns are null when the reading was unavailable.
type SampleEntry struct {
	ID          null.Int
	Time        time.Time
	Label       string
	Device      int
	Tag         int
	Heavy       bool
	CopyRate    null.Float
	ReadRate    null.Float
	WriteRate   null.Float
	SingleFloat null.Float
	DoubleFloat null.Float
	Int32Rate   null.Float
	Int64Rate   null.Float
}

type StorageWriter interface {
	Type() string
	WriteSample(ctx context.Context, entry SampleEntry) error
	Close() error
}

// Storage is a writer that can also serve history back to exporters.
type Storage interface {
	StorageWriter
	QuerySampleRange(from time.Time, to time.Time) ([]SampleEntry, error)
}

// NewSampleEntry flattens a device snapshot into a storage entry, mapping
// zero readings to nulls.
func NewSampleEntry(info DeviceInfo, tag CorrelationID) SampleEntry {

	var rate = func(val float64) null.Float {
		if val == 0 {
			return null.Float{}
		}
		return null.FloatFrom(val)
	}

	timestamp := info.Measured
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return SampleEntry{
		Time:        timestamp,
		Label:       info.Name,
		Device:      info.Index,
		Tag:         int(tag),
		Heavy:       info.HeavyMode,
		CopyRate:    rate(info.Bandwidth.Copy),
		ReadRate:    rate(info.Bandwidth.Read),
		WriteRate:   rate(info.Bandwidth.Write),
		SingleFloat: rate(info.Performance.SingleFloat),
		DoubleFloat: rate(info.Performance.DoubleFloat),
		Int32Rate:   rate(info.Performance.Int32),
		Int64Rate:   rate(info.Performance.Int64),
	}
}
