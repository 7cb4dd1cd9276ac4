// Package routing decides which editorial sections an article belongs to and
// groups the included articles into synthesis stories.
package routing

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"horse.fit/atlas/internal/textnorm"
)

const defaultMinMentions = 1

var sectionKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Watchlist lists the catalog entities a section follows.
type Watchlist struct {
	Persons      []int64 `yaml:"persons"`
	Institutions []int64 `yaml:"institutions"`
}

// Contract is the inclusion rule of one editorial section.
type Contract struct {
	Key              string
	Title            string
	Order            int
	Watchlist        Watchlist
	IncludeChildren  bool
	PositiveKeywords []string
	NegativeKeywords []string
	MinScore         float64
	MinMentions      int

	positive []string
	negative []string
}

type contractYAML struct {
	Key              string    `yaml:"key"`
	Title            string    `yaml:"title"`
	Order            int       `yaml:"order"`
	Watchlist        Watchlist `yaml:"watchlist"`
	IncludeChildren  bool      `yaml:"include_children"`
	PositiveKeywords []string  `yaml:"positive_keywords"`
	NegativeKeywords []string  `yaml:"negative_keywords"`
	MinScore         float64   `yaml:"min_score"`
	MinMentions      *int      `yaml:"min_mentions"`
}

type contractFile struct {
	Sections []contractYAML `yaml:"sections"`
}

// LoadContracts reads and validates the section contracts in path.
func LoadContracts(path string) ([]Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sections file %s: %w", path, err)
	}
	contracts, err := ParseContracts(data)
	if err != nil {
		return nil, fmt.Errorf("sections file %s: %w", path, err)
	}
	return contracts, nil
}

// ParseContracts decodes a sections document. Unknown keys are rejected and
// contracts are returned by order, then key.
func ParseContracts(data []byte) ([]Contract, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file contractFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse sections YAML: %w", err)
	}
	if len(file.Sections) == 0 {
		return nil, errors.New("no sections defined")
	}

	contracts := make([]Contract, 0, len(file.Sections))
	seen := make(map[string]struct{}, len(file.Sections))
	for i, raw := range file.Sections {
		contract := NewContract(raw.Key, raw.Title)
		contract.Order = raw.Order
		contract.Watchlist = raw.Watchlist
		contract.IncludeChildren = raw.IncludeChildren
		contract.PositiveKeywords = raw.PositiveKeywords
		contract.NegativeKeywords = raw.NegativeKeywords
		contract.MinScore = raw.MinScore
		if raw.MinMentions != nil {
			contract.MinMentions = *raw.MinMentions
		}
		contract = contract.Compile()

		if err := contract.Validate(); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		if _, dup := seen[contract.Key]; dup {
			return nil, fmt.Errorf("section %q defined twice", contract.Key)
		}
		seen[contract.Key] = struct{}{}
		contracts = append(contracts, contract)
	}

	sort.SliceStable(contracts, func(i, j int) bool {
		if contracts[i].Order != contracts[j].Order {
			return contracts[i].Order < contracts[j].Order
		}
		return contracts[i].Key < contracts[j].Key
	})
	return contracts, nil
}

// NewContract returns a contract with default thresholds.
func NewContract(key, title string) Contract {
	return Contract{
		Key:         strings.TrimSpace(key),
		Title:       strings.TrimSpace(title),
		MinMentions: defaultMinMentions,
	}
}

// Compile normalizes the keyword lists. Route calls it lazily for contracts
// built in code.
func (c Contract) Compile() Contract {
	c.positive = normalizeKeywords(c.PositiveKeywords)
	c.negative = normalizeKeywords(c.NegativeKeywords)
	return c
}

func (c Contract) compiled() bool {
	return c.positive != nil && c.negative != nil
}

func (c Contract) Validate() error {
	switch {
	case c.Key == "":
		return errors.New("key is required")
	case !sectionKeyPattern.MatchString(c.Key):
		return fmt.Errorf("key %q must be lowercase letters, digits, '-' or '_'", c.Key)
	case c.MinScore < 0 || c.MinScore > 1:
		return fmt.Errorf("section %q: min_score %.2f outside [0,1]", c.Key, c.MinScore)
	case c.MinMentions < 0:
		return fmt.Errorf("section %q: min_mentions must be >= 0", c.Key)
	}
	if len(c.Watchlist.Persons) == 0 && len(c.Watchlist.Institutions) == 0 && len(c.PositiveKeywords) == 0 {
		return fmt.Errorf("section %q: needs a watchlist or positive keywords", c.Key)
	}
	for _, id := range append(append([]int64(nil), c.Watchlist.Persons...), c.Watchlist.Institutions...) {
		if id <= 0 {
			return fmt.Errorf("section %q: watchlist id %d must be positive", c.Key, id)
		}
	}
	for _, keyword := range append(append([]string(nil), c.PositiveKeywords...), c.NegativeKeywords...) {
		if textnorm.Normalize(keyword) == "" {
			return fmt.Errorf("section %q: keyword %q is empty after normalization", c.Key, keyword)
		}
	}
	return nil
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		normalized := textnorm.Normalize(keyword)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
