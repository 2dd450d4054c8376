package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"detectd/pkg/types"
)

// Manifest is the on-disk detector catalog. One entry per detector; IDs
// must be unique across the file.
type Manifest struct {
	Detectors []ManifestEntry `yaml:"detectors"`
}

// ManifestEntry mirrors DetectorDescriptor with yaml field names.
type ManifestEntry struct {
	ID                string  `yaml:"id"`
	DisplayName       string  `yaml:"display_name"`
	EstimatedMemoryMB int     `yaml:"estimated_memory_mb"`
	Category          string  `yaml:"category"`
	Accuracy          float64 `yaml:"accuracy"`
	Provenance        string  `yaml:"provenance"`
	ArtifactURL       string  `yaml:"artifact_url"`
	Priority          int     `yaml:"priority"`
}

// LoadManifest reads and parses a detector manifest file.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Detectors) == 0 {
		return m, fmt.Errorf("manifest %s: no detectors", path)
	}
	return m, nil
}

// BuildTable turns a manifest into a validated table of artifact-backed
// detectors sharing the given collaborators.
func BuildTable(m Manifest, deps Deps) (*Table, error) {
	t := NewTable()
	for _, e := range m.Detectors {
		desc := e.descriptor()
		if desc.ArtifactURL == "" {
			return nil, fmt.Errorf("detector %s: missing artifact_url", desc.ID)
		}
		if err := t.Add(desc, NewArtifactDetector(desc, deps)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (e ManifestEntry) descriptor() types.DetectorDescriptor {
	cat := types.Category(e.Category)
	if cat == "" {
		cat = types.CategoryFullImage
	}
	return types.DetectorDescriptor{
		ID:                e.ID,
		DisplayName:       e.DisplayName,
		EstimatedMemoryMB: e.EstimatedMemoryMB,
		Category:          cat,
		Accuracy:          e.Accuracy,
		Provenance:        e.Provenance,
		ArtifactURL:       e.ArtifactURL,
		Priority:          e.Priority,
	}
}
