// Package report renders leaderboards and run summaries for the CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
)

// Formats accepted by the writers. Anything else renders as a table.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ValidFormat reports whether f is a known output format.
func ValidFormat(f string) bool {
	return f == FormatTable || f == FormatMarkdown || f == FormatJSON
}

// Leaderboard writes leaderboard entries in the given format.
func Leaderboard(entries []model.LeaderboardEntry, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return writeJSON(entries, w)
	case FormatMarkdown:
		fmt.Fprintln(w, "| Rank | Agent | Score | Max | Percentage | Run | Date |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
		for _, e := range entries {
			fmt.Fprintf(w, "| %d | %s | %.1f | %.0f | %d%% | %d | %s |\n",
				e.Rank, agentLabel(e.AgentID, e.AgentName), e.TotalScore, e.MaxScore,
				e.Percentage, e.RunID, e.CreatedAt.Format("2006-01-02"))
		}
		return nil
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tAGENT\tSCORE\tMAX\tPCT\tRUN\tDATE")
		fmt.Fprintln(tw, strings.Repeat("-", 72))
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.0f\t%d%%\t%d\t%s\n",
				e.Rank, agentLabel(e.AgentID, e.AgentName), e.TotalScore, e.MaxScore,
				e.Percentage, e.RunID, e.CreatedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	}
}

// Runs writes one line per evaluated agent.
func Runs(summaries []progress.RunSummary, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return writeJSON(summaries, w)
	case FormatMarkdown:
		fmt.Fprintln(w, "| Agent | Score | Max | Percentage | Avg Latency | Failed | Persisted |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
		for _, s := range summaries {
			fmt.Fprintf(w, "| %s | %.1f | %.0f | %d%% | %dms | %d/%d | %s |\n",
				agentLabel(s.AgentID, s.AgentName), s.FinalScore, s.MaxScore, s.Percentage,
				s.AvgLatencyMs, s.FailedCount, s.ScenarioCount, persisted(s))
		}
		return nil
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AGENT\tSCORE\tMAX\tPCT\tAVG LATENCY\tFAILED\tPERSISTED")
		fmt.Fprintln(tw, strings.Repeat("-", 80))
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%.1f\t%.0f\t%d%%\t%dms\t%d/%d\t%s\n",
				agentLabel(s.AgentID, s.AgentName), s.FinalScore, s.MaxScore, s.Percentage,
				s.AvgLatencyMs, s.FailedCount, s.ScenarioCount, persisted(s))
		}
		return tw.Flush()
	}
}

// Dimensions writes the per-dimension averages of one run, in a fixed order.
func Dimensions(s progress.RunSummary, w io.Writer) error {
	if len(s.DimensionAverages) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIMENSION\tAVERAGE")
	for _, tt := range []model.TaskType{model.TaskAnalysis, model.TaskSummary} {
		for _, d := range model.Dimensions(tt) {
			if v, ok := s.DimensionAverages[d]; ok {
				fmt.Fprintf(tw, "%s\t%.1f\n", d, v)
			}
		}
	}
	return tw.Flush()
}

// History writes an agent's persisted runs, newest first.
func History(runs []model.Run, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return writeJSON(runs, w)
	case FormatMarkdown:
		fmt.Fprintln(w, "| Run | Mode | Score | Max | Percentage | Failed | Date |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
		for _, r := range runs {
			fmt.Fprintf(w, "| %s | %s | %.1f | %.0f | %d%% | %d/%d | %s |\n",
				runID(r.ID), runMode(r), r.TotalScore, r.MaxScore, r.Percentage,
				r.FailedCount, r.ScenarioCount, r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tMODE\tSCORE\tMAX\tPCT\tFAILED\tDATE")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.0f\t%d%%\t%d/%d\t%s\n",
				runID(r.ID), runMode(r), r.TotalScore, r.MaxScore, r.Percentage,
				r.FailedCount, r.ScenarioCount, r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	}
}

// Agents writes the registry. API keys are never printed.
func Agents(agents []model.Agent, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return writeJSON(agents, w)
	case FormatMarkdown:
		fmt.Fprintln(w, "| Agent | Endpoint | Registered |")
		fmt.Fprintln(w, "|---|---|---|")
		for _, a := range agents {
			fmt.Fprintf(w, "| %s | %s | %s |\n", agentLabel(a.ID, a.Name), a.Endpoint, a.CreatedAt.Format("2006-01-02"))
		}
		return nil
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AGENT\tENDPOINT\tREGISTERED")
		for _, a := range agents {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", agentLabel(a.ID, a.Name), a.Endpoint, a.CreatedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	}
}

// Scenarios lists scenario metadata. Ground truth and deal context are
// never printed.
func Scenarios(scenarios []model.Scenario, format string, w io.Writer) error {
	type row struct {
		ID         string           `json:"checkpointId"`
		DealID     string           `json:"dealId"`
		DealName   string           `json:"dealName,omitempty"`
		Visibility model.Visibility `json:"visibility"`
		TaskType   model.TaskType   `json:"taskType"`
		Artifacts  int              `json:"artifacts"`
	}
	rows := make([]row, 0, len(scenarios))
	for _, sc := range scenarios {
		rows = append(rows, row{
			ID:         sc.ID,
			DealID:     sc.DealID,
			DealName:   sc.DealName,
			Visibility: sc.Visibility,
			TaskType:   sc.EffectiveTaskType(),
			Artifacts:  len(sc.Artifacts),
		})
	}

	switch format {
	case FormatJSON:
		return writeJSON(rows, w)
	case FormatMarkdown:
		fmt.Fprintln(w, "| Checkpoint | Deal | Visibility | Task | Artifacts |")
		fmt.Fprintln(w, "|---|---|---|---|---|")
		for _, r := range rows {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %d |\n",
				r.ID, agentLabel(r.DealID, r.DealName), r.Visibility, r.TaskType, r.Artifacts)
		}
		return nil
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHECKPOINT\tDEAL\tVISIBILITY\tTASK\tARTIFACTS")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
				r.ID, agentLabel(r.DealID, r.DealName), r.Visibility, r.TaskType, r.Artifacts)
		}
		return tw.Flush()
	}
}

func persisted(s progress.RunSummary) string {
	switch {
	case s.Persisted && s.RunID != nil:
		return fmt.Sprintf("run %d", *s.RunID)
	case s.Reason != "":
		return "no (" + s.Reason + ")"
	default:
		return "no"
	}
}

func runID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

func runMode(r model.Run) string {
	if r.MultiTurn {
		return string(r.Mode) + "/multi-turn"
	}
	return string(r.Mode)
}

func agentLabel(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return name + " (" + id + ")"
}

func writeJSON(v any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
