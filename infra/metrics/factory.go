package metrics

import (
	coremetrics "github.com/ncharlet/bessopt/core/metrics"
	"github.com/ncharlet/bessopt/infra/logger"
)

// FromConfig assembles the configured sinks into a single Sink. With
// nothing enabled it returns a NopSink.
func FromConfig(cfg coremetrics.Config, log logger.Logger) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		sink, err := NewPromSink()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
		go func() {
			if err := StartPromServer(cfg.PrometheusPort); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
