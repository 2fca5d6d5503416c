package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/trybotster/botster-orchestrator/internal/registry"
)

// LoadCheckpoint reads a previously saved registry.Checkpoint from path. A
// missing file is not an error; callers get a zero-value Checkpoint, the
// same "file absent means defaults" treatment Load() gives the main config.
func LoadCheckpoint(path string) (registry.Checkpoint, error) {
	var cp registry.Checkpoint

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, nil
		}
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}

	if err := yaml.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, nil
}

// SaveCheckpoint writes a registry.Checkpoint to path, creating its parent
// directory if necessary.
func SaveCheckpoint(path string, cp registry.Checkpoint) error {
	data, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
