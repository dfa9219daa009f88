package types

// AttachmentType classifies an artifact captured during a run. The value
// doubles as the policy key in the attachment configuration.
type AttachmentType string

const (
	AttachmentScreenshot  AttachmentType = "screenshot"
	AttachmentVideo       AttachmentType = "video"
	AttachmentTrace       AttachmentType = "trace"
	AttachmentNetwork     AttachmentType = "network"
	AttachmentPerformance AttachmentType = "performance"
	AttachmentConsole     AttachmentType = "console"
	AttachmentMetrics     AttachmentType = "metrics"
)

// AttachmentTypes lists every attachment type with its own directory gate.
var AttachmentTypes = []AttachmentType{
	AttachmentScreenshot,
	AttachmentVideo,
	AttachmentTrace,
	AttachmentNetwork,
	AttachmentPerformance,
	AttachmentConsole,
}

// Subdir returns the run-directory subfolder for the attachment type.
// Metrics snapshots live alongside performance data.
func (t AttachmentType) Subdir() string {
	switch t {
	case AttachmentScreenshot:
		return "screenshots"
	case AttachmentVideo:
		return "videos"
	case AttachmentTrace:
		return "traces"
	case AttachmentMetrics:
		return string(AttachmentPerformance)
	default:
		return string(t)
	}
}

// Attachment records a single artifact produced during a run.
type Attachment struct {
	Path        string         `json:"path"`
	Type        AttachmentType `json:"type"`
	Description string         `json:"description,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
}
