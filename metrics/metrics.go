// Package metrics exposes run statistics as a Prometheus textfile, for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdok/catchment/catchment"
)

type Recorder struct {
	registry *prometheus.Registry

	Sites     prometheus.Gauge
	Islands   prometheus.Gauge
	Rounds    prometheus.Gauge
	Buffer    prometheus.Gauge
	Areas     prometheus.Gauge
	Fragments prometheus.Gauge
	Anomalies *prometheus.GaugeVec
	Duration  prometheus.Gauge
	LastRun   prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Sites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_sites",
			Help: "Number of sites in the last run",
		}),
		Islands: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_islands",
			Help: "Number of islands in the last run",
		}),
		Rounds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_assignment_rounds",
			Help: "Buffer rounds needed to place every site on an island",
		}),
		Buffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_buffer_distance",
			Help: "Cumulative island buffer when assignment converged",
		}),
		Areas: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_areas",
			Help: "Catchment areas written",
		}),
		Fragments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_unresolved_fragments",
			Help: "Clipped parts that did not hold their site",
		}),
		Anomalies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catchment_anomalies",
			Help: "Sites skipped, by kind",
		}, []string{"kind"}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catchment_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
	r.registry.MustRegister(r.Sites, r.Islands, r.Rounds, r.Buffer, r.Areas, r.Fragments, r.Anomalies, r.Duration, r.LastRun)
	return r
}

// Observe records the outcome of a pipeline run.
func (r *Recorder) Observe(sites, islands int, result *catchment.Result, took time.Duration) {
	r.Sites.Set(float64(sites))
	r.Islands.Set(float64(islands))
	if final, ok := result.Summary.FinalRound(); ok {
		r.Rounds.Set(float64(len(result.Summary.Rounds)))
		r.Buffer.Set(final.Buffer)
	}
	r.Areas.Set(float64(len(result.Areas)))
	r.Fragments.Set(float64(len(result.Fragments)))
	for _, kind := range []catchment.AnomalyKind{catchment.GeometryIntersectionEmpty, catchment.InvalidGeometry} {
		r.Anomalies.WithLabelValues(string(kind)).Set(0)
	}
	for _, a := range result.Summary.Anomalies {
		r.Anomalies.WithLabelValues(string(a.Kind)).Inc()
	}
	r.Duration.Set(took.Seconds())
	r.LastRun.SetToCurrentTime()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format, atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
