package devmeter

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"
)

// WriteTextReport renders a plain text report for one device in the classic
// underlined-section format.
func WriteTextReport(wrt io.Writer, info DeviceInfo) error {

	out := &reportWriter{wrt: wrt}

	title := "devmeter Report"
	out.line(title)
	out.line(strings.Repeat("=", len(title)))
	out.line("Version: %s", Version)
	out.line("")

	out.section("Core Information")
	out.field("Name", info.Name)
	out.field("Compute Capability", fmt.Sprintf("%d.%d", info.Capability.Major, info.Capability.Minor))
	out.field("Clock Rate", textClockRate(info.Core.ClockRateKHz))
	out.field("Processors", textCount(info.Core.Processors))
	out.field("Threads Max", textCount(info.Core.ThreadsMax))
	out.line("")

	out.section("Memory Information")
	out.field("Total Global", textMemSize(info.Memory.TotalGlobal))
	out.field("Total Shared", textMemSize(info.Memory.TotalShared))
	out.field("Cache Line", textCount(info.Memory.CacheLine))
	out.line("")

	out.section("Performance Information")
	out.line("Memory Transfers")
	out.field("Copy", textBandRate(info.Bandwidth.Copy))
	out.field("Read", textBandRate(info.Bandwidth.Read))
	out.field("Write", textBandRate(info.Bandwidth.Write))
	out.line("Core Performance")
	out.field("Single-precision Float", textCalcRate(info.Performance.SingleFloat, "Mflop/s"))
	if info.Capability.DoublePrecision() {
		out.field("Double-precision Float", textCalcRate(info.Performance.DoubleFloat, "Mflop/s"))
	} else {
		out.field("Double-precision Float", "Not Supported")
	}
	out.field("32-bit Integer", textCalcRate(info.Performance.Int32, "Miop/s"))
	out.field("64-bit Integer", textCalcRate(info.Performance.Int64, "Miop/s"))
	out.line("")

	out.line("Generated: %s", time.Now().Format(time.RFC1123))

	return out.err
}

// WriteHTMLReport renders the same report as a standalone HTML page.
func WriteHTMLReport(wrt io.Writer, info DeviceInfo) error {

	out := &reportWriter{wrt: wrt}

	title := "devmeter Report"

	out.line(`<!DOCTYPE html>`)
	out.line(`<html lang="en">`)
	out.line(`<head>`)
	out.line(`<meta charset="utf-8" />`)
	out.line(`<title>%s</title>`, html.EscapeString(title))
	out.line(`<style>`)
	out.line(`body { font-size: 12px; font-family: Verdana, Arial, Helvetica, sans-serif; }`)
	out.line(`h1 { font-size: 15px; color: #690; }`)
	out.line(`h2 { font-size: 13px; color: #690; }`)
	out.line(`table { border-collapse: collapse; border: 1px solid #000; width: 500px; }`)
	out.line(`th { background-color: #deb; text-align: left; }`)
	out.line(`td { width: 50%%; }`)
	out.line(`</style>`)
	out.line(`</head>`)
	out.line(`<body>`)

	out.line(`<h1>%s</h1>`, html.EscapeString(title))
	out.line(`<p><small><b>Version:</b> %s</small></p>`, html.EscapeString(Version))

	out.line(`<h2>Core Information</h2>`)
	out.line(`<table border="1">`)
	out.row("Name", info.Name)
	out.row("Compute Capability", fmt.Sprintf("%d.%d", info.Capability.Major, info.Capability.Minor))
	out.row("Clock Rate", textClockRate(info.Core.ClockRateKHz))
	out.row("Processors", textCount(info.Core.Processors))
	out.row("Threads Max", textCount(info.Core.ThreadsMax))
	out.line(`</table>`)

	out.line(`<h2>Memory Information</h2>`)
	out.line(`<table border="1">`)
	out.row("Total Global", textMemSize(info.Memory.TotalGlobal))
	out.row("Total Shared", textMemSize(info.Memory.TotalShared))
	out.row("Cache Line", textCount(info.Memory.CacheLine))
	out.line(`</table>`)

	out.line(`<h2>Performance Information</h2>`)
	out.line(`<table border="1">`)
	out.line(`<tr><th colspan="2">Memory Transfers</th></tr>`)
	out.row("Copy", textBandRate(info.Bandwidth.Copy))
	out.row("Read", textBandRate(info.Bandwidth.Read))
	out.row("Write", textBandRate(info.Bandwidth.Write))
	out.line(`<tr><th colspan="2">Core Performance</th></tr>`)
	out.row("Single-precision Float", textCalcRate(info.Performance.SingleFloat, "Mflop/s"))
	if info.Capability.DoublePrecision() {
		out.row("Double-precision Float", textCalcRate(info.Performance.DoubleFloat, "Mflop/s"))
	} else {
		out.row("Double-precision Float", "Not Supported")
	}
	out.row("32-bit Integer", textCalcRate(info.Performance.Int32, "Miop/s"))
	out.row("64-bit Integer", textCalcRate(info.Performance.Int64, "Miop/s"))
	out.line(`</table>`)

	out.line(`<p><small><b>Generated:</b> %s</small></p>`, time.Now().Format(time.RFC1123))

	out.line(`</body>`)
	out.line(`</html>`)

	return out.err
}

type reportWriter struct {
	wrt io.Writer
	err error
}

func (this *reportWriter) line(format string, args ...any) {

	if this.err != nil {
		return
	}

	_, this.err = fmt.Fprintf(this.wrt, format+"\n", args...)
}

func (this *reportWriter) section(name string) {
	this.line(name)
	this.line(strings.Repeat("-", len(name)))
}

func (this *reportWriter) field(name string, value string) {
	this.line("\t%s: %s", name, value)
}

func (this *reportWriter) row(name string, value string) {
	this.line(`<tr><th>%s</th><td>%s</td></tr>`,
		html.EscapeString(name), html.EscapeString(value))
}

func textBandRate(rate float64) string {

	if rate == 0 {
		return "--"
	}

	return fmt.Sprintf("%.2f MB/s", rate/1024)
}

func textCalcRate(rate float64, unit string) string {

	if rate == 0 {
		return "--"
	}

	return fmt.Sprintf("%.2f %s", rate/1000, unit)
}

func textClockRate(khz int) string {

	if khz == 0 {
		return "Unknown"
	}

	return fmt.Sprintf("%.2f MHz", float64(khz)/1000)
}

func textCount(val int) string {

	if val == 0 {
		return "Unknown"
	}

	return fmt.Sprintf("%d", val)
}

func textMemSize(bytes int64) string {

	if bytes == 0 {
		return "Unknown"
	}

	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}
