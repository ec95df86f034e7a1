package devmeter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/guregu/null"
)

// WebExporter serves the data a polling web page needs: the latest device
// snapshots and the stored sample history.
type WebExporter struct {
	Monitor *Monitor
	History Storage

	muxOnce sync.Once
	mux     *http.ServeMux
}

func (this *WebExporter) ServeHTTP(wrt http.ResponseWriter, req *http.Request) {

	this.muxOnce.Do(func() {
		this.mux = http.NewServeMux()
		this.mux.Handle("GET /devices", http.HandlerFunc(this.handleDevices))
		this.mux.Handle("GET /series", http.HandlerFunc(this.handleSeries))
	})

	this.mux.ServeHTTP(wrt, req)
}

func (this *WebExporter) handleDevices(wrt http.ResponseWriter, req *http.Request) {

	snapshots := this.Monitor.Snapshots()

	wrt.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(wrt).Encode(snapshots); err != nil {
		slog.Error("Failed to serialize device snapshots",
			slog.String("err", err.Error()))
	}
}

func (this *WebExporter) handleSeries(wrt http.ResponseWriter, req *http.Request) {

	if this.History == nil {
		wrt.WriteHeader(http.StatusNotImplemented)
		wrt.Write([]byte("sample history storage not configured"))
		return
	}

	rangeFrom := time.Now().Add(-6 * time.Hour)
	rangeTo := time.Now()
	var rangeInterval time.Duration

	var handleInvalidInput = func(err error) {
		wrt.WriteHeader(http.StatusBadRequest)
		wrt.Write([]byte("invalid query input: " + err.Error()))
	}

	if val := req.URL.Query().Get("from"); val != "" {
		point, err := time.Parse(time.RFC3339, val)
		if err != nil {
			handleInvalidInput(errors.New("invalid 'from' parameter format: " + err.Error()))
			return
		}
		rangeFrom = point
	}

	if val := req.URL.Query().Get("to"); val != "" {
		point, err := time.Parse(time.RFC3339, val)
		if err != nil {
			handleInvalidInput(errors.New("invalid 'to' parameter format: " + err.Error()))
			return
		}
		rangeTo = point
	}

	if val := req.URL.Query().Get("interval"); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			handleInvalidInput(errors.New("invalid 'interval' parameter format: " + err.Error()))
			return
		}
		rangeInterval = interval
	}

	if !rangeTo.After(rangeFrom) {
		handleInvalidInput(errors.New("'from' must come before 'to'"))
		return
	}

	entries, err := this.History.QuerySampleRange(rangeFrom, rangeTo)
	if err != nil {
		slog.Error("Failed to query data for series exporter",
			slog.String("err", err.Error()))
		wrt.WriteHeader(http.StatusInternalServerError)
		return
	}

	if rangeInterval > 0 {
		entries = aggregateSampleEntries(entries, rangeInterval)
	}

	wrt.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(wrt).Encode(seriesResponse(entries)); err != nil {
		slog.Error("Failed to serialize sample series",
			slog.String("err", err.Error()))
	}
}

type seriesPoint struct {
	Time        time.Time  `json:"time"`
	Label       string     `json:"label"`
	Device      int        `json:"device"`
	Heavy       bool       `json:"heavy"`
	CopyRate    null.Float `json:"copy_rate"`
	ReadRate    null.Float `json:"read_rate"`
	WriteRate   null.Float `json:"write_rate"`
	SingleFloat null.Float `json:"single_float"`
	DoubleFloat null.Float `json:"double_float"`
	Int32Rate   null.Float `json:"int32_rate"`
	Int64Rate   null.Float `json:"int64_rate"`
}

func seriesResponse(entries []SampleEntry) []seriesPoint {

	result := make([]seriesPoint, len(entries))
	for idx, entry := range entries {
		result[idx] = seriesPoint{
			Time:        entry.Time,
			Label:       entry.Label,
			Device:      entry.Device,
			Heavy:       entry.Heavy,
			CopyRate:    entry.CopyRate,
			ReadRate:    entry.ReadRate,
			WriteRate:   entry.WriteRate,
			SingleFloat: entry.SingleFloat,
			DoubleFloat: entry.DoubleFloat,
			Int32Rate:   entry.Int32Rate,
			Int64Rate:   entry.Int64Rate,
		}
	}

	return result
}

func aggregateSampleEntries(entries []SampleEntry, interval time.Duration) []SampleEntry {

	if len(entries) < 2 {
		return entries
	}

	var result []SampleEntry

	var group []SampleEntry
	groupTime := entries[0].Time

	for _, entry := range entries {

		if entry.Time.Sub(groupTime) > interval {
			result = append(result, mergeLabeledSampleEntries(group)...)
			group = []SampleEntry{}
			groupTime = entry.Time
		}

		group = append(group, entry)
	}

	if len(group) > 0 {
		result = append(result, mergeLabeledSampleEntries(group)...)
	}

	return result
}

func mergeLabeledSampleEntries(entries []SampleEntry) []SampleEntry {

	byLabel := map[string][]SampleEntry{}
	for _, entry := range entries {
		byLabel[entry.Label] = append(byLabel[entry.Label], entry)
	}

	var result []SampleEntry
	for _, labelEntries := range byLabel {
		result = append(result, mergeSampleEntries(labelEntries))
	}

	return result
}

func mergeSampleEntries(entries []SampleEntry) SampleEntry {

	merged := entries[0]

	var average = func(pick func(entry SampleEntry) null.Float) null.Float {

		var sum float64
		var count int

		for _, entry := range entries {
			if val := pick(entry); val.Valid {
				sum += val.Float64
				count++
			}
		}

		if count == 0 {
			return null.Float{}
		}

		return null.FloatFrom(sum / float64(count))
	}

	merged.CopyRate = average(func(entry SampleEntry) null.Float { return entry.CopyRate })
	merged.ReadRate = average(func(entry SampleEntry) null.Float { return entry.ReadRate })
	merged.WriteRate = average(func(entry SampleEntry) null.Float { return entry.WriteRate })
	merged.SingleFloat = average(func(entry SampleEntry) null.Float { return entry.SingleFloat })
	merged.DoubleFloat = average(func(entry SampleEntry) null.Float { return entry.DoubleFloat })
	merged.Int32Rate = average(func(entry SampleEntry) null.Float { return entry.Int32Rate })
	merged.Int64Rate = average(func(entry SampleEntry) null.Float { return entry.Int64Rate })

	return merged
}
