package tags

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Vocabulary maps normalized aliases to canonical tags.
type Vocabulary struct {
	aliases map[string]string
}

type vocabularyFile struct {
	Tags map[string][]string `yaml:"tags"`
}

var folder = cases.Fold()

// Normalize folds case, applies NFKC, strips a leading '#', and collapses
// internal whitespace and underscores to single spaces.
func Normalize(tag string) string {
	tag = norm.NFKC.String(tag)
	tag = folder.String(tag)
	tag = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#"))
	fields := strings.FieldsFunc(tag, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_'
	})
	return strings.Join(fields, " ")
}

// NewVocabulary builds a vocabulary from canonical tag → aliases.
func NewVocabulary(entries map[string][]string) (*Vocabulary, error) {
	v := &Vocabulary{aliases: make(map[string]string)}
	canonicals := make([]string, 0, len(entries))
	for canonical := range entries {
		canonicals = append(canonicals, canonical)
	}
	sort.Strings(canonicals)

	for _, raw := range canonicals {
		canonical := Normalize(raw)
		if canonical == "" {
			return nil, fmt.Errorf("vocabulary: blank canonical tag %q", raw)
		}
		if err := v.add(canonical, canonical); err != nil {
			return nil, err
		}
		for _, alias := range entries[raw] {
			normalized := Normalize(alias)
			if normalized == "" {
				continue
			}
			if err := v.add(normalized, canonical); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

func (v *Vocabulary) add(alias, canonical string) error {
	if existing, ok := v.aliases[alias]; ok && existing != canonical {
		return fmt.Errorf("vocabulary: alias %q maps to both %q and %q", alias, existing, canonical)
	}
	v.aliases[alias] = canonical
	return nil
}

// LoadVocabulary reads a YAML vocabulary file. A missing file yields an empty
// vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return &Vocabulary{aliases: map[string]string{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Vocabulary{aliases: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	return NewVocabulary(file.Tags)
}

// Len returns the number of known aliases, canonical tags included.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.aliases)
}

// Result is the outcome of canonicalizing one tag list.
type Result struct {
	Tags     []string
	Unmapped []string
}

// Canonicalize maps raw tags onto the vocabulary, deduplicating and keeping
// first-seen order. At most limit tags are returned when limit > 0.
func (v *Vocabulary) Canonicalize(raw []string, limit int) Result {
	var result Result
	seen := make(map[string]struct{}, len(raw))
	seenUnmapped := make(map[string]struct{})
	passThrough := v.Len() == 0

	for _, tag := range raw {
		normalized := Normalize(tag)
		if normalized == "" {
			continue
		}
		canonical := normalized
		if !passThrough {
			mapped, ok := v.aliases[normalized]
			if !ok {
				if _, dup := seenUnmapped[normalized]; !dup {
					seenUnmapped[normalized] = struct{}{}
					result.Unmapped = append(result.Unmapped, normalized)
				}
				continue
			}
			canonical = mapped
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		if limit > 0 && len(result.Tags) >= limit {
			continue
		}
		seen[canonical] = struct{}{}
		result.Tags = append(result.Tags, canonical)
	}
	return result
}
