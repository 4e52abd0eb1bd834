package genapi

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"studio/internal/domain"
)

// StatusUnknown is reported when the provider sends no status at all.
const StatusUnknown domain.Status = "unknown"

// VocabularyConfig is the declarative form of a Vocabulary. Each entry is a
// regular expression matched case-insensitively against the whole status.
type VocabularyConfig struct {
	Completed []string `yaml:"completed"`
	Failed    []string `yaml:"failed"`
}

// DefaultVocabularyConfig lists the status words known from current providers.
func DefaultVocabularyConfig() VocabularyConfig {
	return VocabularyConfig{
		Completed: []string{"completed", "succeeded", "success", "done"},
		Failed:    []string{"failed", "error", "canceled", "cancelled"},
	}
}

// Vocabulary maps provider status strings onto canonical statuses.
type Vocabulary struct {
	completed []*regexp.Regexp
	failed    []*regexp.Regexp
}

// NewVocabulary compiles cfg.
func NewVocabulary(cfg VocabularyConfig) (*Vocabulary, error) {
	completed, err := compilePatterns(cfg.Completed)
	if err != nil {
		return nil, fmt.Errorf("genapi: completed vocabulary: %w", err)
	}
	failed, err := compilePatterns(cfg.Failed)
	if err != nil {
		return nil, fmt.Errorf("genapi: failed vocabulary: %w", err)
	}
	return &Vocabulary{completed: completed, failed: failed}, nil
}

// DefaultVocabulary returns the built-in table.
func DefaultVocabulary() *Vocabulary {
	v, err := NewVocabulary(DefaultVocabularyConfig())
	if err != nil {
		panic(err)
	}
	return v
}

// LoadVocabulary reads a YAML table from path and appends it to the defaults.
// An empty path yields the defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	cfg := DefaultVocabularyConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return NewVocabulary(cfg)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genapi: read vocabulary: %w", err)
	}
	var extra VocabularyConfig
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("genapi: parse vocabulary %s: %w", path, err)
	}
	cfg.Completed = append(cfg.Completed, extra.Completed...)
	cfg.Failed = append(cfg.Failed, extra.Failed...)
	return NewVocabulary(cfg)
}

func compilePatterns(entries []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)^(?:` + e + `)$`)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", e, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Normalize maps a raw status word. Unknown words are returned verbatim and
// an empty status becomes StatusUnknown.
func (v *Vocabulary) Normalize(raw string) domain.Status {
	s := strings.TrimSpace(raw)
	if s == "" {
		return StatusUnknown
	}
	for _, re := range v.completed {
		if re.MatchString(s) {
			return domain.StatusCompleted
		}
	}
	for _, re := range v.failed {
		if re.MatchString(s) {
			return domain.StatusFailed
		}
	}
	return domain.Status(s)
}

// Map normalizes raw and then lets progress override ambiguous text: a
// non-failed task at 100% with a result URL is completed.
func (v *Vocabulary) Map(raw string, progress int, resultURL string) domain.Status {
	status := v.Normalize(raw)
	if strings.TrimSpace(resultURL) != "" && status != domain.StatusFailed && status != domain.StatusCompleted && progress >= 100 {
		return domain.StatusCompleted
	}
	return status
}
