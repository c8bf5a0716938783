package report

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/forPelevin/yt2text/internal/types"
)

// Path returns where the report for runID lives under stateDir.
func Path(stateDir, runID string) string {
	return filepath.Join(stateDir, "reports", runID+".yaml")
}

// Write stores r as YAML under stateDir/reports and returns the file path.
func Write(stateDir string, r types.BatchReport) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	path := Path(stateDir, r.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func Read(path string) (types.BatchReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.BatchReport{}, err
	}
	var r types.BatchReport
	if err := yaml.Unmarshal(data, &r); err != nil {
		return types.BatchReport{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return r, nil
}
