package reporting

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
)

// HTMLReportFilename is the browsable report artifact.
const HTMLReportFilename = "report.html"

//go:embed templates/report.tmpl.html
var templateFS embed.FS

// HTMLSink renders the report through the embedded HTML template.
type HTMLSink struct {
	tmpl *template.Template
}

// NewHTMLSink parses the embedded template up front so a template error
// surfaces at construction time, not at the end of a run.
func NewHTMLSink() (*HTMLSink, error) {
	raw, err := templateFS.ReadFile("templates/report.tmpl.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read HTML template: %w", err)
	}

	tmpl, err := template.New("report").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &HTMLSink{tmpl: tmpl}, nil
}

// Write implements Sink.
func (s *HTMLSink) Write(data *ReportData, logsDir string) error {
	path := filepath.Join(logsDir, HTMLReportFilename)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create HTML report %s: %w", path, err)
	}
	defer f.Close()

	if err := s.tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}
