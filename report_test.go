package devmeter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportFixture() DeviceInfo {
	return DeviceInfo{
		Index:      0,
		Name:       "Test Device",
		Capability: Capability{Major: 2, Minor: 0},
		Core: CoreInfo{
			ClockRateKHz: 2400000,
			Processors:   8,
			ThreadsMax:   16,
		},
		Memory: MemoryInfo{
			TotalGlobal: 8 << 30,
			TotalShared: 2 << 30,
			CacheLine:   64,
		},
		Bandwidth: BandwidthInfo{
			Copy: 10 * 1024 * 1024,
			Read: 12 * 1024 * 1024,
		},
		Performance: PerformanceInfo{
			SingleFloat: 2_000_000,
			DoubleFloat: 1_000_000,
			Int32:       3_000_000,
		},
	}
}

func TestWriteTextReport(t *testing.T) {

	var out strings.Builder
	require.NoError(t, WriteTextReport(&out, reportFixture()))

	report := out.String()

	assert.Contains(t, report, "devmeter Report")
	assert.Contains(t, report, "Name: Test Device")
	assert.Contains(t, report, "Compute Capability: 2.0")
	assert.Contains(t, report, "Clock Rate: 2400.00 MHz")
	assert.Contains(t, report, "Total Global: 8192.00 MB")
	assert.Contains(t, report, "Total Shared: 2048.00 MB")
	assert.Contains(t, report, "Copy: 10240.00 MB/s")
	assert.Contains(t, report, "Single-precision Float: 2000.00 Mflop/s")

	// unmeasured rates render as placeholders
	assert.Contains(t, report, "Write: --")
	assert.Contains(t, report, "64-bit Integer: --")
}

func TestWriteTextReportNoDoublePrecision(t *testing.T) {

	info := reportFixture()
	info.Capability = Capability{Major: 1, Minor: 2}

	var out strings.Builder
	require.NoError(t, WriteTextReport(&out, info))

	assert.Contains(t, out.String(), "Double-precision Float: Not Supported")
}

func TestWriteHTMLReport(t *testing.T) {

	var out strings.Builder
	require.NoError(t, WriteHTMLReport(&out, reportFixture()))

	report := out.String()

	assert.Contains(t, report, "<!DOCTYPE html>")
	assert.Contains(t, report, "</html>")
	assert.Contains(t, report, "<th>Name</th><td>Test Device</td>")
	assert.Contains(t, report, "<th>Copy</th><td>10240.00 MB/s</td>")
	assert.Contains(t, report, "<th>Write</th><td>--</td>")
}

func TestWriteHTMLReportEscaping(t *testing.T) {

	info := reportFixture()
	info.Name = `<script>alert("x")</script>`

	var out strings.Builder
	require.NoError(t, WriteHTMLReport(&out, info))

	assert.NotContains(t, out.String(), "<script>")
}
