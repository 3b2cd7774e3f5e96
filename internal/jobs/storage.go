package jobs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/porticus-lab/viewcapture"
)

// LocalStorage lays out job files under <BaseDir>/jobs/<id>.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// InitJob creates the job directory.
func (s *LocalStorage) InitJob(jobID string) (string, error) {
	path := s.JobPath(jobID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	return path, nil
}

// JobPath returns the path for a job directory.
func (s *LocalStorage) JobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "jobs", jobID)
}

// ArtifactPath returns the path of the assembled document of a job.
func (s *LocalStorage) ArtifactPath(jobID string) string {
	return filepath.Join(s.JobPath(jobID), viewcapture.ArtifactName)
}

// Remove deletes the job directory and everything in it.
func (s *LocalStorage) Remove(jobID string) error {
	if err := os.RemoveAll(s.JobPath(jobID)); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}
	return nil
}
