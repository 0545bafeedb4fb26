// Package export serializes horizon runs for downstream reporting and
// plotting collaborators.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/ncharlet/bessopt/core/plan"
)

// WriteJSON writes the horizon run to w in JSON format.
func WriteJSON(w io.Writer, run *plan.HorizonRun) error {
	enc := json.NewEncoder(w)
	return enc.Encode(run)
}

// WriteCSV writes the per-step decision channels to w, one row per
// timestep, in the fixed channel order.
func WriteCSV(w io.Writer, run *plan.HorizonRun) error {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, plan.ChannelNames()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, step := range run.Steps() {
		rec := make([]string, 0, len(header))
		rec = append(rec, step.Time.Format(time.RFC3339))
		for _, v := range step.Channels() {
			rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
