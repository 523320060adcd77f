// Package config loads a sandbox's configuration surface (the read and
// write filesystem rule lists, plus the writable-FD allowlist) from a flat
// JSON file.
//
// Kept deliberately on stdlib encoding/json rather than a templating
// format: a short, flat rule list doesn't need one (see DESIGN.md). The
// injectable afero.Fs and doublestar glob expansion below carry the real
// third-party weight of this package instead.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/dmoj-sandbox/cptbox-go/domain"
)

// RuleSpec is one JSON rule-list entry.
type RuleSpec struct {
	// Kind is "file", "dir", or "recursive", mapping onto
	// domain.ExactFile/ExactDir/RecursiveDir.
	Kind string `json:"kind"`
	// Path is either a literal absolute path, or, when Glob is true, a
	// doublestar glob pattern expanded against the filesystem at load time.
	Path string `json:"path"`
	// Glob, when true, expands Path as a doublestar pattern into zero or
	// more ExactFile rules (Kind is ignored for glob entries: every match
	// becomes an ExactFile rule, since a glob match is always a concrete,
	// already-existing path).
	Glob bool `json:"glob"`
}

// rawConfig is the on-disk JSON shape.
type rawConfig struct {
	Read  []RuleSpec `json:"read"`
	Write []RuleSpec `json:"write"`
	// WritableFDs lists fd numbers pre-opened by the launcher that are
	// pre-authorized for writes. They are carried through to
	// JailConfig.WritableFDs; the path-based write jail does not consult
	// them.
	WritableFDs []int `json:"writable_fds"`
}

// JailConfig is the parsed, glob-expanded configuration.
type JailConfig struct {
	ReadRules   []domain.Rule
	WriteRules  []domain.Rule
	WritableFDs []int
}

// Load reads and parses the JSON rule-list file at path from fs, expanding
// any glob entries against fs as well.
func Load(fs afero.Fs, path string) (*JailConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	readRules, err := expandRules(fs, raw.Read)
	if err != nil {
		return nil, fmt.Errorf("config: expanding read rules: %w", err)
	}
	writeRules, err := expandRules(fs, raw.Write)
	if err != nil {
		return nil, fmt.Errorf("config: expanding write rules: %w", err)
	}

	return &JailConfig{
		ReadRules:   readRules,
		WriteRules:  writeRules,
		WritableFDs: raw.WritableFDs,
	}, nil
}

func expandRules(fs afero.Fs, specs []RuleSpec) ([]domain.Rule, error) {
	rules := make([]domain.Rule, 0, len(specs))
	iofs := afero.NewIOFS(fs)

	for _, spec := range specs {
		if spec.Glob {
			matches, err := doublestar.Glob(iofs, spec.Path)
			if err != nil {
				return nil, fmt.Errorf("expanding glob %q: %w", spec.Path, err)
			}
			for _, m := range matches {
				rules = append(rules, domain.ExactFileRule("/"+m))
			}
			continue
		}

		rule, err := ruleFromSpec(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

func ruleFromSpec(spec RuleSpec) (domain.Rule, error) {
	switch spec.Kind {
	case "file":
		return domain.ExactFileRule(spec.Path), nil
	case "dir":
		return domain.ExactDirRule(spec.Path), nil
	case "recursive":
		return domain.RecursiveDirRule(spec.Path), nil
	default:
		return domain.Rule{}, fmt.Errorf("config: unknown rule kind %q for path %q", spec.Kind, spec.Path)
	}
}
