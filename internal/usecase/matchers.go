package usecase

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SynonymSet holds the expansion rules the keyword filter applies on top of
// the literal profile values. Keys are trigger substrings of the normalized
// profile value; values are the matchers added when the trigger fires.
type SynonymSet struct {
	Industry map[string][]string `yaml:"industry"`
	Size     map[string][]string `yaml:"size"`
	Stage    map[string][]string `yaml:"stage"`
}

// DefaultSynonyms returns the built-in expansion rules.
func DefaultSynonyms() SynonymSet {
	return SynonymSet{
		Industry: map[string][]string{
			"tech": {"technology", "tech", "software", "it", "information technology"},
		},
		Size: map[string][]string{
			"small":   {"small", "startup", "small business", "sme"},
			"startup": {"small", "startup", "small business", "sme"},
		},
		Stage: map[string][]string{
			"start": {"early stage", "startup", "beginning", "initial"},
			"early": {"early stage", "startup", "beginning", "initial"},
		},
	}
}

// LoadSynonyms reads expansion rules from a YAML file, or returns the
// defaults when path is empty.
func LoadSynonyms(path string) (SynonymSet, error) {
	if path == "" {
		return DefaultSynonyms(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return SynonymSet{}, fmt.Errorf("synonyms read %s: %w", path, err)
	}
	var s SynonymSet
	if err := yaml.Unmarshal(b, &s); err != nil {
		return SynonymSet{}, fmt.Errorf("synonyms parse: %w", err)
	}
	return s, nil
}

// wildcardMatchers are accepted by every attribute; a record tagged "all" or
// "any" places no constraint on that attribute.
var wildcardMatchers = []string{"all", "any"}

// expand builds the matcher list for one normalized profile value: the
// literal value, the wildcards, and any triggered synonym expansions.
func expand(value string, rules map[string][]string) []string {
	matchers := make([]string, 0, 8)
	matchers = append(matchers, value)
	matchers = append(matchers, wildcardMatchers...)
	for trigger, expansions := range rules {
		if strings.Contains(value, trigger) {
			matchers = append(matchers, expansions...)
		}
	}
	return matchers
}

// normalize lowercases and trims a profile value.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
