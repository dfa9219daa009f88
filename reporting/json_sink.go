package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONReportFilename is the machine-readable report artifact.
const JSONReportFilename = "report.json"

// JSONSink writes the report as indented JSON for downstream tooling.
type JSONSink struct{}

// Write implements Sink.
func (s *JSONSink) Write(data *ReportData, logsDir string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(logsDir, JSONReportFilename)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report %s: %w", path, err)
	}
	return nil
}

// LoadReport reads a previously written JSON report artifact.
func LoadReport(logsDir string) (*ReportData, error) {
	path := filepath.Join(logsDir, JSONReportFilename)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}

	var data ReportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &data, nil
}
