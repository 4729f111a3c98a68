package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashita-ai/salesbench/internal/model"
)

var dimensionRubric = map[model.Dimension]string{
	model.DimRiskIdentification:   "Did the assistant identify the risks that actually materialized, with sensible severities?",
	model.DimNextStepQuality:      "Are the recommended next steps specific, actionable and likely to move the deal forward?",
	model.DimPrioritization:       "Are the most important risks and actions ranked first?",
	model.DimOutcomeAlignment:     "Would following this advice have improved the actual outcome of the deal?",
	model.DimInformationSynthesis: "Does the answer condense the deal history into the facts that matter?",
	model.DimStakeholderMapping:   "Are the key stakeholders, their roles and their stances correctly identified?",
	model.DimAccuracy:             "Is every claim supported by the deal context, with nothing invented?",
}

// BuildPrompt renders the judge prompt for one scenario and candidate answer.
// Qualitative comparison lists are requested only for public scenarios.
func BuildPrompt(s model.Scenario, resp model.CandidateResponse) string {
	var b strings.Builder
	task := s.EffectiveTaskType()

	switch task {
	case model.TaskSummary:
		b.WriteString("You are an experienced sales leader grading an AI assistant's summary of a B2B deal.\n\n")
	default:
		b.WriteString("You are an experienced sales leader grading an AI assistant's risk analysis of a B2B deal.\n\n")
	}

	b.WriteString("## Deal context given to the assistant\n")
	writeContext(&b, s.Context)
	fmt.Fprintf(&b, "Question: %s\n\n", s.EffectiveQuestion())

	b.WriteString("## What actually happened (never shown to the assistant)\n")
	writeGroundTruth(&b, s.GroundTruth)

	b.WriteString("\n## Assistant's answer\n")
	answer, _ := json.MarshalIndent(struct {
		Risks      []model.Risk     `json:"risks"`
		NextSteps  []model.NextStep `json:"next_steps"`
		Confidence float64          `json:"confidence"`
		Reasoning  string           `json:"reasoning"`
	}{resp.Risks, resp.NextSteps, resp.Confidence, resp.Reasoning}, "", "  ")
	b.Write(answer)
	b.WriteString("\n\n## Scoring\nScore each dimension as a number from 0 to 10:\n")

	dims := model.Dimensions(task)
	for _, d := range dims {
		fmt.Fprintf(&b, "- %s: %s\n", d, dimensionRubric[d])
	}

	b.WriteString("\nRespond with ONLY a JSON object of this shape:\n{\"scores\": {")
	for i, d := range dims {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: 0-10", d)
	}
	b.WriteString(`}, "feedback": "two or three sentences for the agent's author"`)
	if s.Visibility == model.VisibilityPublic {
		b.WriteString(`, "risks_identified": ["actual risks the assistant caught"]`)
		b.WriteString(`, "risks_missed": ["actual risks the assistant missed"]`)
		b.WriteString(`, "helpful_recommendations": ["recommendations that matched what worked"]`)
		b.WriteString(`, "unhelpful_recommendations": ["recommendations that were wrong or generic"]`)
	}
	b.WriteString("}\n")
	return b.String()
}

func writeContext(b *strings.Builder, c model.DealContext) {
	fmt.Fprintf(b, "Company: %s\n", c.Company)
	fmt.Fprintf(b, "Stage: %s\n", c.Stage)
	if c.Amount > 0 {
		fmt.Fprintf(b, "Amount: %.0f\n", c.Amount)
	}
	if c.LastInteraction != "" {
		fmt.Fprintf(b, "Last interaction: %s\n", c.LastInteraction)
	}
	writeList(b, "Pain points", c.PainPoints)
	if len(c.Stakeholders) > 0 {
		b.WriteString("Stakeholders:\n")
		for _, s := range c.Stakeholders {
			fmt.Fprintf(b, "- %s (%s)", s.Name, s.Role)
			if s.Sentiment != "" {
				fmt.Fprintf(b, ", %s", s.Sentiment)
			}
			b.WriteString("\n")
		}
	}
	if c.History != "" {
		fmt.Fprintf(b, "History: %s\n", c.History)
	}
	if c.Notes != "" {
		fmt.Fprintf(b, "Notes: %s\n", c.Notes)
	}
}

func writeGroundTruth(b *strings.Builder, g model.GroundTruth) {
	fmt.Fprintf(b, "Outcome: %s\n", g.Outcome)
	writeList(b, "Risks that materialized", g.ActualRisks)
	writeList(b, "Next steps that were actually taken", g.ActualNextSteps)
	if g.Summary != "" {
		fmt.Fprintf(b, "Summary: %s\n", g.Summary)
	}
	writeList(b, "Key stakeholders", g.KeyStakeholders)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
