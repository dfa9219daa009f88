// Package artifacts resolves and lazily creates the on-disk layout for a run.
//
// Layout: {reports_dir}/{execution_id}/{logs|screenshots|videos|traces|network|performance|console}/...
// The logs directory is created eagerly when local reporting is enabled; every
// other directory appears on the first write of a file of its type.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/types"
)

// LogsDirName is the subdirectory for execution logs and report artifacts.
const LogsDirName = "logs"

// Policy decides which attachment types get a directory at all. A type is
// active only when local reporting is enabled AND the type itself is enabled.
type Policy struct {
	LocalEnabled bool
	Enabled      map[types.AttachmentType]bool
}

// DefaultPolicy returns the default per-type enablement. Videos are off by
// default because recording them is resource-intensive.
func DefaultPolicy() Policy {
	return Policy{
		LocalEnabled: true,
		Enabled: map[types.AttachmentType]bool{
			types.AttachmentScreenshot:  true,
			types.AttachmentVideo:       false,
			types.AttachmentTrace:       true,
			types.AttachmentNetwork:     true,
			types.AttachmentPerformance: true,
			types.AttachmentConsole:     true,
			types.AttachmentMetrics:     true,
		},
	}
}

// Allows reports whether the policy permits the given attachment type.
func (p Policy) Allows(t types.AttachmentType) bool {
	return p.LocalEnabled && p.Enabled[t]
}

// Service materializes run directories on demand. Directory creation is
// memoized per absolute path for the lifetime of the service instance. A
// creation failure disables the affected attachment type for the rest of the
// run rather than failing the caller.
type Service struct {
	baseDir string
	policy  Policy
	log     *zap.SugaredLogger

	mu       sync.Mutex
	created  map[string]bool
	disabled map[types.AttachmentType]bool
}

// NewService creates a directory service rooted at baseDir.
func NewService(baseDir string, policy Policy, log *zap.SugaredLogger) *Service {
	return &Service{
		baseDir:  baseDir,
		policy:   policy,
		log:      log,
		created:  make(map[string]bool),
		disabled: make(map[types.AttachmentType]bool),
	}
}

// BaseDir returns the reports root directory.
func (s *Service) BaseDir() string { return s.baseDir }

// Policy returns the active attachment policy.
func (s *Service) Policy() Policy { return s.policy }

// RunDir returns the directory for an execution without creating it.
func (s *Service) RunDir(executionID string) string {
	return filepath.Join(s.baseDir, executionID)
}

// EnsureLogsDir creates the logs directory for an execution. Unlike the
// attachment directories this one is created eagerly when local reporting is
// enabled, since every run writes logs.
func (s *Service) EnsureLogsDir(executionID string) (string, error) {
	if !s.policy.LocalEnabled {
		return "", fmt.Errorf("local reporting is disabled")
	}
	dir := filepath.Join(s.RunDir(executionID), LogsDirName)
	if err := s.ensureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// AttachmentPath resolves the on-disk path for a new attachment and creates
// its parent directory lazily. It returns ok=false when the attachment type is
// disabled by policy or was disabled for this run after a filesystem failure;
// callers treat that as "skip", not as an error.
func (s *Service) AttachmentPath(executionID string, t types.AttachmentType, filename string) (string, bool) {
	if !s.policy.Allows(t) {
		return "", false
	}

	s.mu.Lock()
	runDisabled := s.disabled[t]
	s.mu.Unlock()
	if runDisabled {
		return "", false
	}

	dir := filepath.Join(s.RunDir(executionID), t.Subdir())
	if err := s.ensureDir(dir); err != nil {
		s.log.Warnw("Failed to create attachment directory, disabling type for this run",
			"type", t, "dir", dir, "error", err)
		s.mu.Lock()
		s.disabled[t] = true
		s.mu.Unlock()
		return "", false
	}

	return filepath.Join(dir, filename), true
}

// WriteAttachment writes data to the resolved attachment path and returns the
// attachment record. ok=false mirrors AttachmentPath's skip semantics.
func (s *Service) WriteAttachment(executionID string, t types.AttachmentType, filename, description string, data []byte) (types.Attachment, bool, error) {
	path, ok := s.AttachmentPath(executionID, t, filename)
	if !ok {
		return types.Attachment{}, false, nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.Attachment{}, false, fmt.Errorf("failed to write attachment %s: %w", path, err)
	}
	return types.Attachment{
		Path:        path,
		Type:        t,
		Description: description,
		SizeBytes:   int64(len(data)),
	}, true, nil
}

// ensureDir creates a directory once per service instance.
func (s *Service) ensureDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[abs] {
		return nil
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", abs, err)
	}
	s.created[abs] = true
	return nil
}
