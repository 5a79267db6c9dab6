package pack

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFixture installs a package into a workshop directory: its manifest and
// one bundle file per payload, named bundle0.json, bundle1.json and so on.
func WriteFixture(workshopDir, steamID string, m Manifest, payloads ...Payload) (string, error) {
	dir := filepath.Join(workshopDir, steamID)
	if err := os.MkdirAll(filepath.Join(dir, BundleDir), 0o755); err != nil {
		return "", fmt.Errorf("create package dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), m); err != nil {
		return "", err
	}
	for i, p := range payloads {
		if err := writeJSON(filepath.Join(dir, BundleDir, fmt.Sprintf("bundle%d.json", i)), p); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
