package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextSummaryFilename is the human-skimmable plain-text summary.
const TextSummaryFilename = "summary.txt"

// TextSink writes a plain-text summary of the run.
type TextSink struct{}

// Write implements Sink.
func (s *TextSink) Write(data *ReportData, logsDir string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Execution: %s\n", data.ExecutionID)
	fmt.Fprintf(&b, "Duration:  %s\n", data.DurationText)
	fmt.Fprintf(&b, "Result:    %s\n", resultWord(data.IsSuccessful))
	fmt.Fprintf(&b, "Scenarios: %d total, %d passed, %d failed (%.1f%% pass rate)\n",
		data.Stats.Total, data.Stats.Passed, data.Stats.Failed, data.Stats.PassRate)
	b.WriteString("\n")

	for _, sc := range data.Scenarios {
		fmt.Fprintf(&b, "[%s] %s / %s (%s)\n", strings.ToUpper(string(sc.Status)), sc.Feature, sc.Name, sc.DurationText)
		if sc.FailureReason != "" {
			fmt.Fprintf(&b, "    reason: %s\n", sc.FailureReason)
		}
		for _, step := range sc.Steps {
			fmt.Fprintf(&b, "    %-7s %s %s (%s)\n", string(step.Status), step.Keyword, step.Name, step.DurationText)
			if step.Error != "" {
				fmt.Fprintf(&b, "            %s\n", step.Error)
			}
		}
	}

	if len(data.FailedScenarioNames) > 0 {
		b.WriteString("\nFailed scenarios:\n")
		for _, name := range data.FailedScenarioNames {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}

	path := filepath.Join(logsDir, TextSummaryFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write text summary %s: %w", path, err)
	}
	return nil
}

func resultWord(successful bool) string {
	if successful {
		return "PASSED"
	}
	return "FAILED"
}
