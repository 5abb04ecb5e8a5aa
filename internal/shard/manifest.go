package shard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Manifest lists the shards of a split database. Relative prefixes are
// resolved against the manifest's directory.
//
//	kmer_size = 16
//	shards = ["db.0", "db.1"]
type Manifest struct {
	KmerSize int      `toml:"kmer_size"`
	Shards   []string `toml:"shards"`
}

// ReadManifest parses a TOML manifest.
func ReadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Shards) == 0 {
		return nil, fmt.Errorf("manifest %s: %w", path, ErrNoTemplates)
	}
	dir := filepath.Dir(path)
	for i, p := range m.Shards {
		if !filepath.IsAbs(p) {
			m.Shards[i] = filepath.Join(dir, p)
		}
	}
	return &m, nil
}

// WriteManifest stores m as TOML.
func WriteManifest(path string, m *Manifest) error {
	b, err := toml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
