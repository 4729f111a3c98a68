package main

import (
	"fmt"
	"io"

	"github.com/ashita-ai/salesbench/internal/progress"
)

// progressPrinter renders stream events as one line each on w.
func progressPrinter(w io.Writer) progress.Emitter {
	return progress.EmitterFunc(func(ev progress.Event) error {
		switch e := ev.(type) {
		case progress.UnitEvent:
			id := e.CheckpointID
			if id == "" {
				id = e.TaskID
			}
			status := "ok"
			if e.Failed {
				status = "FAILED"
			}
			_, err := fmt.Fprintf(w, "[%d/%d] %s %s %.0f/%.0f %dms %s\n",
				e.Progress.Completed, e.Progress.Total, e.AgentID, id,
				e.TotalScore, e.MaxScore, e.LatencyMs, status)
			return err
		case progress.AgentCompleteEvent:
			_, err := fmt.Fprintf(w, "agent %s finished: %d%% (%d/%d agents)\n",
				e.AgentID, e.Percentage, e.Progress.Completed, e.Progress.Total)
			return err
		case progress.ErrorEvent:
			_, err := fmt.Fprintf(w, "error: %s\n", e.Message)
			return err
		}
		return nil
	})
}
