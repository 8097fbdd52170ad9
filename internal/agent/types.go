// Package agent defines the host-metrics types a distributed agent samples
// and reports to its controller, giving the controller context on how
// loaded each load-generating box is.
package agent

// HostMetrics contains system-level gauges sampled from the agent's host.
// Fields a platform cannot provide stay zero; cpu_percent, mem_total and
// mem_used are encoded even when zero, the rest are omitted from JSON.
type HostMetrics struct {
	// CPUPercent is the overall CPU usage percentage (0-100).
	CPUPercent float64 `json:"cpu_percent"`

	// MemTotal is the total system memory in bytes.
	MemTotal uint64 `json:"mem_total"`

	// MemUsed is the used system memory in bytes.
	MemUsed uint64 `json:"mem_used"`

	// MemAvailable is the available system memory in bytes.
	MemAvailable uint64 `json:"mem_available,omitempty"`

	// SwapUsed is the used swap memory in bytes. A swapping agent produces
	// unreliable latency numbers.
	SwapUsed uint64 `json:"swap_used,omitempty"`

	// LoadAvg1, LoadAvg5 and LoadAvg15 are the 1/5/15-minute load averages
	// (Unix only).
	LoadAvg1  float64 `json:"load_avg_1,omitempty"`
	LoadAvg5  float64 `json:"load_avg_5,omitempty"`
	LoadAvg15 float64 `json:"load_avg_15,omitempty"`
}

// Overloaded reports whether the host looks too busy to produce trustworthy
// latency measurements: CPU near saturation or swap in active use.
func (h HostMetrics) Overloaded() bool {
	return h.CPUPercent >= 90 || h.SwapUsed > 0
}
