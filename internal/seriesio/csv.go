// Package seriesio reads load series from CSV files for the CLI. The
// planning core itself only ever sees in-memory series.
package seriesio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ncharlet/bessopt/core/model"
)

// ReadCSV loads a series from a CSV file with the columns
// time,demand_kwh,generation_kwh,buy_price,sell_price. Timestamps are
// RFC 3339 and must be contiguous at dt.
func ReadCSV(path string, dt time.Duration) (*model.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, dt)
}

// Read parses the CSV stream into a validated series.
func Read(r io.Reader, dt time.Duration) (*model.Series, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"time", "demand_kwh", "generation_kwh", "buy_price", "sell_price"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var steps []model.TimeStep
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := time.Parse(time.RFC3339, rec[col["time"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp: %w", line, err)
		}
		step := model.TimeStep{Time: ts}
		for name, dst := range map[string]*float64{
			"demand_kwh":     &step.DemandKWh,
			"generation_kwh": &step.GenKWh,
			"buy_price":      &step.BuyPrice,
			"sell_price":     &step.SellPrice,
		} {
			v, err := strconv.ParseFloat(rec[col[name]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s: %w", line, name, err)
			}
			*dst = v
		}
		steps = append(steps, step)
	}
	return model.NewSeries(steps, dt)
}
