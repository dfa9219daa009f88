package collectors

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/types"
)

// Entry is one buffered telemetry record. Entries are appended in event order
// and never mutated after the fact.
type Entry struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		fields := make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			fields[k] = v
		}
		out[i] = Entry{Type: e.Type, Timestamp: e.Timestamp, Fields: fields}
	}
	return out
}

// saveEntries serializes a buffer snapshot through the artifacts service.
// ok=false means the attachment type is disabled and the save was skipped.
func saveEntries(svc *artifacts.Service, executionID string, t types.AttachmentType, name, description string, entries []Entry) (types.Attachment, bool, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return types.Attachment{}, false, fmt.Errorf("failed to marshal %s entries: %w", t, err)
	}
	return svc.WriteAttachment(executionID, t, name, description, data)
}
