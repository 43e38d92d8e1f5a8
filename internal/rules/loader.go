package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-sustainability/heron/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadDir reads every rule set file (.yaml, .yml, .json) in dir, sorted by
// file name for deterministic load order. Files must carry `enabled: true`
// to be served; a file that fails to parse or validate fails the whole
// load, so the process refuses to start on a bad rule set.
func LoadDir(dir string) ([]*domain.RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rule set dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	ruleSets := make([]*domain.RuleSet, 0, len(files))
	for _, name := range files {
		rs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		ruleSets = append(ruleSets, rs)
	}
	return ruleSets, nil
}

// LoadFile reads and validates a single rule set file.
func LoadFile(path string) (*domain.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set %s: %w", path, err)
	}

	var rs domain.RuleSet
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rs)
	} else {
		err = yaml.Unmarshal(data, &rs)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidRuleSet, path, err)
	}

	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &rs, nil
}
