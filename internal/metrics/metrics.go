// Package metrics counts calendar activity with OpenTelemetry instruments
// and keeps the readings in process for the API to report.
package metrics

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"eventcal/internal/calendar"
	"eventcal/internal/model"
)

// Recorder owns a meter provider backed by a manual reader. A nil
// *Recorder records nothing.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	added       metric.Int64Counter
	modified    metric.Int64Counter
	rejected    metric.Int64Counter
	saves       metric.Int64Counter
	saveLatency metric.Float64Histogram
}

// New creates a Recorder with its own provider.
func New() (*Recorder, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("eventcal")

	r := &Recorder{provider: provider, reader: reader}
	var err error
	if r.added, err = meter.Int64Counter("eventcal.events.added",
		metric.WithDescription("Occurrences indexed by event creation"),
	); err != nil {
		return nil, err
	}
	if r.modified, err = meter.Int64Counter("eventcal.events.modified",
		metric.WithDescription("Committed event updates"),
	); err != nil {
		return nil, err
	}
	if r.rejected, err = meter.Int64Counter("eventcal.requests.rejected",
		metric.WithDescription("Operations refused by a calendar"),
	); err != nil {
		return nil, err
	}
	if r.saves, err = meter.Int64Counter("eventcal.store.calendars_saved",
		metric.WithDescription("Calendars handed to save passes"),
	); err != nil {
		return nil, err
	}
	if r.saveLatency, err = meter.Float64Histogram("eventcal.store.save_latency_ms",
		metric.WithDescription("Save pass latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return r, nil
}

// Listener returns a calendar listener counting changes to the calendar
// titled title.
func (r *Recorder) Listener(title string) calendar.Listener {
	if r == nil {
		return nil
	}
	attrs := metric.WithAttributes(attribute.String("calendar", title))
	return &calendar.ListenerFuncs{
		Added:    func(model.Event) { r.added.Add(context.Background(), 1, attrs) },
		Modified: func(model.Event) { r.modified.Add(context.Background(), 1, attrs) },
	}
}

// RecordRejected counts an operation a calendar refused.
func (r *Recorder) RecordRejected(ctx context.Context, title, op string, err error) {
	if r == nil {
		return
	}
	r.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("calendar", title),
		attribute.String("op", op),
		attribute.String("reason", Reason(err)),
	))
}

// RecordSave records one save pass over n calendars. The latency
// histogram's count is the number of passes.
func (r *Recorder) RecordSave(ctx context.Context, n int, d time.Duration, err error) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	r.saves.Add(ctx, int64(n), attrs)
	r.saveLatency.Record(ctx, float64(d.Milliseconds()), attrs)
}

// Reason classifies a calendar error for reporting.
func Reason(err error) string {
	switch {
	case errors.Is(err, calendar.ErrConflict):
		return "conflict"
	case errors.Is(err, calendar.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, calendar.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidEvent), errors.Is(err, calendar.ErrInvalidUpdate),
		errors.Is(err, calendar.ErrNilEvent):
		return "invalid"
	default:
		return "other"
	}
}

// Point is one reading. Counters report their total in Value; histograms
// report the sum of samples in Value and the sample count in Count.
type Point struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
}

// Snapshot collects the current readings, ordered by name.
func (r *Recorder) Snapshot(ctx context.Context) ([]Point, error) {
	if r == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	var out []Point
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, Point{Name: m.Name, Attributes: attrMap(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Point{Name: m.Name, Attributes: attrMap(dp.Attributes), Value: dp.Sum, Count: dp.Count})
				}
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Point) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Attributes["calendar"], b.Attributes["calendar"]))
	})
	return out, nil
}

// Shutdown releases the provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

func attrMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	out := make(map[string]string, set.Len())
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
