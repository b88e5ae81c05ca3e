package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Sessions []sessionSchema `toml:"sessions"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported sessions schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type sessionSchema struct {
	ID           string  `toml:"id"`
	SavedContent string  `toml:"saved_content"`
	PendingEdit  *string `toml:"pending_edit,omitempty"`
	CreatedAt    string  `toml:"created_at"`
	LastActivity string  `toml:"last_activity"`
}
