package pagetrace

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pagetrace/pagetrace/reporting"
	"github.com/pagetrace/pagetrace/types"
)

// PrintResultsTable renders the end-of-run summary to stdout.
func PrintResultsTable(data *reporting.ReportData) {
	RenderResultsTable(data, os.Stdout)
}

// RenderResultsTable renders the summary table to the given writer. Scenarios
// are grouped under their feature in first-seen order, with per-step rows
// nested below each scenario.
func RenderResultsTable(data *reporting.ReportData, out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("Acceptance Test Results %s (%s)", data.ExecutionID, data.DurationText))

	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Steps", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Steps", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, feature := range featureOrder(data) {
		scenarios := scenariosOfFeature(data, feature)

		var featurePassed, featureFailed, featureSkipped int
		featureStatus := types.StatusPassed
		for _, sc := range scenarios {
			switch sc.Status {
			case types.StatusPassed:
				featurePassed++
			case types.StatusFailed:
				featureFailed++
				featureStatus = types.StatusFailed
			case types.StatusSkipped:
				featureSkipped++
			}
		}

		t.AppendRow(table.Row{
			"Feature",
			feature,
			"",
			"-",
			featurePassed,
			featureFailed,
			featureSkipped,
			getResultString(featureStatus),
			"",
		})

		for i, sc := range scenarios {
			prefix := "├──"
			last := i == len(scenarios)-1
			if last {
				prefix = "└──"
			}

			var stepsPassed, stepsFailed, stepsSkipped int
			for _, step := range sc.Steps {
				switch step.Status {
				case types.StatusPassed:
					stepsPassed++
				case types.StatusFailed:
					stepsFailed++
				case types.StatusSkipped:
					stepsSkipped++
				}
			}

			t.AppendRow(table.Row{
				"Scenario",
				fmt.Sprintf("%s %s", prefix, sc.Name),
				sc.DurationText,
				len(sc.Steps),
				stepsPassed,
				stepsFailed,
				stepsSkipped,
				getResultString(sc.Status),
				sc.FailureReason,
			})

			for j, step := range sc.Steps {
				stepPrefix := stepRowPrefix(last, j == len(sc.Steps)-1)
				t.AppendRow(table.Row{
					"",
					fmt.Sprintf("%s %s %s", stepPrefix, step.Keyword, step.Name),
					step.DurationText,
					"1",
					boolToInt(step.Status == types.StatusPassed),
					boolToInt(step.Status == types.StatusFailed),
					boolToInt(step.Status == types.StatusSkipped),
					getResultString(step.Status),
					step.Error,
				})
			}
		}

		t.AppendSeparator()
	}

	if data.IsSuccessful {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	overall := types.StatusPassed
	if !data.IsSuccessful {
		overall = types.StatusFailed
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		data.DurationText,
		"",
		data.Stats.Passed,
		data.Stats.Failed,
		"",
		getResultString(overall),
		"",
	})

	t.Render()
}

func stepRowPrefix(lastScenario, lastStep bool) string {
	switch {
	case lastScenario && lastStep:
		return "    └──"
	case lastScenario:
		return "    ├──"
	case lastStep:
		return "│   └──"
	default:
		return "│   ├──"
	}
}

// featureOrder lists feature names in first-seen order.
func featureOrder(data *reporting.ReportData) []string {
	seen := make(map[string]bool)
	var order []string
	for _, sc := range data.Scenarios {
		if !seen[sc.Feature] {
			seen[sc.Feature] = true
			order = append(order, sc.Feature)
		}
	}
	return order
}

func scenariosOfFeature(data *reporting.ReportData, feature string) []reporting.ReportScenario {
	var out []reporting.ReportScenario
	for _, sc := range data.Scenarios {
		if sc.Feature == feature {
			out = append(out, sc)
		}
	}
	return out
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a short string representing a result
func getResultString(status types.Status) string {
	switch status {
	case types.StatusPassed:
		return "✓ pass"
	case types.StatusSkipped:
		return "- skip"
	case types.StatusPending, types.StatusRunning:
		return "… " + string(status)
	default:
		return "✗ fail"
	}
}
