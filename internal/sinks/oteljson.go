package sinks

import (
	"encoding/json"
	"time"

	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/metrics"
)

// OTelJSON renders the frame as a single OTLP-shaped JSON document: one
// resource with gauge/sum datapoints, the shape the collector's file
// receiver ingests.
type OTelJSON struct {
	Path string
}

// NewOTelJSON builds a sink writing to path.
func NewOTelJSON(path string) *OTelJSON {
	return &OTelJSON{Path: path}
}

func (s *OTelJSON) Name() string { return "otel-json" }

type otelDataPoint struct {
	TimeUnixNano int64             `json:"timeUnixNano"`
	AsDouble     float64           `json:"asDouble"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

type otelMetric struct {
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
	Sum  *struct {
		DataPoints  []otelDataPoint `json:"dataPoints"`
		IsMonotonic bool            `json:"isMonotonic"`
	} `json:"sum,omitempty"`
	Gauge *struct {
		DataPoints []otelDataPoint `json:"dataPoints"`
	} `json:"gauge,omitempty"`
}

type otelDocument struct {
	Resource map[string]string `json:"resource"`
	Metrics  []otelMetric      `json:"metrics"`
}

func sum(name, unit string, ts int64, value float64, attrs map[string]string) otelMetric {
	m := otelMetric{Name: name, Unit: unit}
	m.Sum = &struct {
		DataPoints  []otelDataPoint `json:"dataPoints"`
		IsMonotonic bool            `json:"isMonotonic"`
	}{DataPoints: []otelDataPoint{{TimeUnixNano: ts, AsDouble: value, Attributes: attrs}}, IsMonotonic: true}
	return m
}

func gauge(name, unit string, ts int64, value float64, attrs map[string]string) otelMetric {
	m := otelMetric{Name: name, Unit: unit}
	m.Gauge = &struct {
		DataPoints []otelDataPoint `json:"dataPoints"`
	}{DataPoints: []otelDataPoint{{TimeUnixNano: ts, AsDouble: value, Attributes: attrs}}}
	return m
}

func (s *OTelJSON) Write(frame *metrics.SummaryFrame) error {
	ts := time.Now().UnixNano()
	pAll := metrics.ComputePercentiles(frame.HistAll)
	pOk := metrics.ComputePercentiles(frame.HistOk)

	doc := otelDocument{
		Resource: map[string]string{
			"service.name": "strest",
			"run.id":       frame.RunID,
		},
		Metrics: []otelMetric{
			sum("strest.requests", "1", ts, float64(frame.TotalRequests), nil),
			sum("strest.requests.ok", "1", ts, float64(frame.TotalOk), nil),
			sum("strest.errors", "1", ts, float64(frame.TotalErrors), nil),
			sum("strest.bytes", "By", ts, float64(frame.TotalBytes), nil),
			gauge("strest.rate", "1/s", ts, frame.RatePerSecond(), nil),
			gauge("strest.inflight.max", "1", ts, float64(frame.MaxInFlight), nil),
			gauge("strest.latency.p50", "ns", ts, float64(pAll.P50), map[string]string{"track": "all"}),
			gauge("strest.latency.p90", "ns", ts, float64(pAll.P90), map[string]string{"track": "all"}),
			gauge("strest.latency.p99", "ns", ts, float64(pAll.P99), map[string]string{"track": "all"}),
			gauge("strest.latency.p50", "ns", ts, float64(pOk.P50), map[string]string{"track": "ok"}),
			gauge("strest.latency.p90", "ns", ts, float64(pOk.P90), map[string]string{"track": "ok"}),
			gauge("strest.latency.p99", "ns", ts, float64(pOk.P99), map[string]string{"track": "ok"}),
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.New("OTelJSON.Write", errs.Sink, s.Path, err)
	}
	if err := writeAtomic(s.Path, data); err != nil {
		return errs.New("OTelJSON.Write", errs.Sink, s.Path, err)
	}
	return nil
}
