package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecordAndSnapshot(t *testing.T) {
	r := NewRecorderSize(8)
	r.Record("scan", 2*time.Millisecond)
	r.Record("scan", 4*time.Millisecond)

	s := r.Snapshot()
	ps, ok := s.Probes["scan"]
	if !ok {
		t.Fatal("scan probe missing from snapshot")
	}
	if ps.Count != 2 {
		t.Errorf("count = %d, want 2", ps.Count)
	}
	if ps.Mean < 2.9 || ps.Mean > 3.1 {
		t.Errorf("mean = %v ms, want ~3", ps.Mean)
	}
	if ps.Worst < 3.9 || ps.Worst > 4.1 {
		t.Errorf("worst = %v ms, want ~4", ps.Worst)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRecorderSize(4)
	for i := 1; i <= 10; i++ {
		r.Record("x", time.Duration(i)*time.Millisecond)
	}

	ps := r.Snapshot().Probes["x"]
	if ps.Count != 10 {
		t.Errorf("count = %d, want 10", ps.Count)
	}
	if len(ps.Samples) != 4 {
		t.Errorf("retained samples = %d, want ring size 4", len(ps.Samples))
	}
	for _, v := range ps.Samples {
		if v < 6.9 {
			t.Errorf("sample %v ms predates the last ring generation", v)
		}
	}
}

func TestStartStopProbe(t *testing.T) {
	r := NewRecorder()
	r.StartProbe("stage")
	time.Sleep(2 * time.Millisecond)
	r.StopProbe("stage")

	ps := r.Snapshot().Probes["stage"]
	if ps.Count != 1 {
		t.Fatalf("count = %d, want 1", ps.Count)
	}
	if ps.Worst < 1.0 {
		t.Errorf("recorded %v ms for a 2ms stage", ps.Worst)
	}

	// Stop without a matching start records nothing.
	r.StopProbe("stage")
	if got := r.Snapshot().Probes["stage"].Count; got != 1 {
		t.Errorf("unmatched stop recorded a sample, count = %d", got)
	}
}

func TestFrameAggregates(t *testing.T) {
	r := NewRecorderSize(32)
	r.RecordFrame(2*time.Millisecond, false)
	r.RecordFrame(9*time.Millisecond, true)
	r.RecordFrame(3*time.Millisecond, false)

	s := r.Snapshot()
	if s.TotalFrames != 3 {
		t.Errorf("total = %d, want 3", s.TotalFrames)
	}
	if s.MissedFrames != 1 {
		t.Errorf("missed = %d, want 1", s.MissedFrames)
	}
	if s.WorstFrameMs < 8.9 {
		t.Errorf("worst = %v ms, want ~9", s.WorstFrameMs)
	}
	if s.AvgFrameMs < 4.0 || s.AvgFrameMs > 5.5 {
		t.Errorf("avg = %v ms, want ~4.7", s.AvgFrameMs)
	}

	r.ResetAggregates()
	s = r.Snapshot()
	if s.MissedFrames != 0 || s.WorstFrameMs != 0 {
		t.Errorf("aggregates survived reset: %+v", s)
	}
	if s.TotalFrames != 3 {
		t.Errorf("reset cleared total frames: %d", s.TotalFrames)
	}
}

func TestSnapshotDuringWrites(t *testing.T) {
	r := NewRecorderSize(64)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			r.Record("hot", time.Duration(i%10)*time.Millisecond)
			r.RecordFrame(time.Millisecond, i%7 == 0)
		}
	}()

	for i := 0; i < 100; i++ {
		s := r.Snapshot()
		for _, ps := range s.Probes {
			for _, v := range ps.Samples {
				if v < 0 || v > 1000 {
					t.Errorf("torn sample %v ms", v)
				}
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestExportJSON(t *testing.T) {
	r := NewRecorderSize(8)
	r.Record("scan", 3*time.Millisecond)
	r.RecordFrame(4*time.Millisecond, false)

	var buf bytes.Buffer
	if err := r.ExportJSON(&buf); err != nil {
		t.Fatal(err)
	}

	var payload struct {
		Timestamp string `json:"timestamp"`
		Stats     Stats  `json:"stats"`
	}
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if payload.Timestamp == "" {
		t.Error("export missing timestamp")
	}
	if _, ok := payload.Stats.Probes["scan"]; !ok {
		t.Error("export missing scan probe")
	}
}

func TestExportCSV(t *testing.T) {
	r := NewRecorderSize(8)
	r.Record("scan", 3*time.Millisecond)
	r.RecordFrame(4*time.Millisecond, true)

	var buf bytes.Buffer
	if err := r.ExportCSV(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "scan") {
		t.Error("CSV missing scan probe row")
	}
	if !strings.Contains(out, "probe,count,mean_ms") {
		t.Error("CSV missing header row")
	}
	if !strings.Contains(out, "# missed frames: 1") {
		t.Error("CSV missing missed-frames comment")
	}
}
