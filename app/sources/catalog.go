package sources

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_sources.yml
var defaultCatalog []byte

// CatalogEntry is one source in a seed catalog file.
type CatalogEntry struct {
	Name                 string `yaml:"name"`
	Category             string `yaml:"category"`
	Type                 string `yaml:"type"`
	URL                  string `yaml:"url"`
	ContentType          string `yaml:"content_type"`
	Enabled              *bool  `yaml:"enabled"`
	FetchIntervalMinutes int    `yaml:"fetch_interval_minutes"`
}

type catalogFile struct {
	Sources []CatalogEntry `yaml:"sources"`
}

// LoadCatalog reads the seed catalog from path, or the built-in catalog when
// path is empty.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) ([]CatalogEntry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, entry := range file.Sources {
		if strings.TrimSpace(entry.Name) == "" || strings.TrimSpace(entry.URL) == "" {
			return nil, fmt.Errorf("catalog entry at index %d must have a name and URL", i)
		}
	}

	return file.Sources, nil
}

func (e CatalogEntry) toInput() Input {
	return Input{
		Name:                 e.Name,
		Category:             optional(e.Category),
		Type:                 e.Type,
		URL:                  e.URL,
		ContentType:          optional(e.ContentType),
		Enabled:              e.Enabled,
		FetchIntervalMinutes: e.FetchIntervalMinutes,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
