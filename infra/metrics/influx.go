package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	coremetrics "github.com/ncharlet/bessopt/core/metrics"
	"github.com/ncharlet/bessopt/infra/logger"
)

// InfluxSink writes planning events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a missing database never
// blocks a planning run.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSolve writes a solve point.
func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	p := influxdb2.NewPoint("milp_solve",
		map[string]string{"status": ev.Status},
		map[string]any{
			"period":           ev.Period,
			"steps":            ev.Steps,
			"duration_seconds": ev.Duration.Seconds(),
		},
		time.Now(),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPeriod writes the completed period's cost figures.
func (s *InfluxSink) RecordPeriod(ev coremetrics.PeriodEvent) error {
	p := influxdb2.NewPoint("dispatch_period",
		map[string]string{"run_id": ev.RunID},
		map[string]any{
			"period":               ev.Period,
			"final_soc_kwh":        ev.FinalSOC,
			"cost_without_battery": ev.CostWithoutBattery,
			"cost_with_battery":    ev.CostWithBattery,
			"money_saved":          ev.MoneySaved,
		},
		ev.Start,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRun writes the horizon aggregate.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	p := influxdb2.NewPoint("dispatch_run",
		map[string]string{"run_id": ev.RunID},
		map[string]any{
			"periods":              ev.Periods,
			"cost_without_battery": ev.CostWithoutBattery,
			"cost_with_battery":    ev.CostWithBattery,
			"score_percent":        ev.ScorePercent,
			"money_saved":          ev.MoneySaved,
		},
		time.Now(),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
