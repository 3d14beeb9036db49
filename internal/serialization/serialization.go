package serialization

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format selects the encoding of a saved state.
type Format int

// Encodings.
const (
	FormatBinary Format = iota
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "binary"
}

// FormatForPath picks YAML for .yaml and .yml files and binary for everything else.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatBinary
	}
}

// Marshal encodes s in the given format.
func Marshal(s StateDict, f Format) ([]byte, error) {
	if f == FormatYAML {
		return MarshalYAML(s)
	}
	return MarshalBinary(s)
}

// Unmarshal decodes data in the given format.
func Unmarshal(data []byte, f Format) (StateDict, error) {
	if f == FormatYAML {
		return UnmarshalYAML(data)
	}
	return UnmarshalBinary(data)
}

// Save writes s to path in the format chosen by FormatForPath.
// The file is written to a temporary sibling first and renamed into place.
func Save(s StateDict, path string) error {
	data, err := Marshal(s, FormatForPath(path))
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move state into place: %w", err)
	}
	return nil
}

// Load reads a state written by Save.
func Load(path string) (StateDict, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-chosen path
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	s, err := Unmarshal(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return s, nil
}
