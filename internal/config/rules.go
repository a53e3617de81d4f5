package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules tune filtering and tagging without a rebuild.
type Rules struct {
	// SpamMarkers replace the built-in username markers when set.
	SpamMarkers []string `yaml:"spam_markers"`

	// ExtraStopwords are never emitted as tags, in addition to the
	// built-in stoplist.
	ExtraStopwords []string `yaml:"extra_stopwords"`
}

// LoadRules reads a rules file. An empty path yields empty rules, so the
// built-in defaults apply.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return &Rules{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return &rules, nil
}
