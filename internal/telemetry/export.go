package telemetry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
)

// ExportJSON writes a timestamped snapshot as indented JSON.
func (r *Recorder) ExportJSON(w io.Writer) error {
	payload := struct {
		Timestamp string `json:"timestamp"`
		Stats     Stats  `json:"stats"`
	}{
		Timestamp: time.Now().Format(time.RFC3339),
		Stats:     r.Snapshot(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(payload), "telemetry: export json")
}

// ExportCSV writes one row per probe with its summary statistics.
func (r *Recorder) ExportCSV(w io.Writer) error {
	s := r.Snapshot()
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"# colortrack telemetry export"},
		{fmt.Sprintf("# date: %s", time.Now().Format(time.RFC3339))},
		{fmt.Sprintf("# fps: %.2f", s.FPS)},
		{fmt.Sprintf("# missed frames: %d", s.MissedFrames)},
		{"probe", "count", "mean_ms", "p50_ms", "p99_ms", "worst_ms"},
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "telemetry: export csv")
		}
	}
	for _, ps := range s.Probes {
		row := []string{
			ps.Name,
			fmt.Sprintf("%d", ps.Count),
			fmt.Sprintf("%.3f", ps.Mean),
			fmt.Sprintf("%.3f", ps.P50),
			fmt.Sprintf("%.3f", ps.P99),
			fmt.Sprintf("%.3f", ps.Worst),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "telemetry: export csv")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "telemetry: export csv")
}
