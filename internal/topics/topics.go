// Package topics serves blind-date icebreakers from a YAML catalogue.
package topics

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"peerzee/backend/internal/models"
)

//go:embed default.yaml
var defaultCatalogue []byte

// ErrEmptyCatalogue is returned when no topic is available for a mode.
var ErrEmptyCatalogue = errors.New("topics: catalogue has no topics for this mode")

type catalogueFile struct {
	General []string            `yaml:"general"`
	Modes   map[string][]string `yaml:"modes"`
}

// Catalogue hands out topics in a fixed rotation per intent mode.
type Catalogue struct {
	general []string
	byMode  map[models.IntentMode][]string
}

// Parse reads a catalogue from YAML. Blank entries are dropped and mode
// keys are matched case-insensitively.
func Parse(data []byte) (*Catalogue, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("topics: parse catalogue: %w", err)
	}

	c := &Catalogue{
		general: clean(f.General),
		byMode:  make(map[models.IntentMode][]string, len(f.Modes)),
	}
	for key, list := range f.Modes {
		mode := models.IntentMode(strings.ToUpper(strings.TrimSpace(key)))
		if !mode.Valid() {
			return nil, fmt.Errorf("topics: unknown intent mode %q", key)
		}
		c.byMode[mode] = append(c.byMode[mode], clean(list)...)
	}
	return c, nil
}

// Load reads the catalogue at path, or the built-in one when path is empty.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topics: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalogue.
func Default() *Catalogue {
	c, err := Parse(defaultCatalogue)
	if err != nil {
		panic(err)
	}
	return c
}

// NextTopic returns the topic after previousIndex. Indexes keep growing;
// the text wraps around the list.
func (c *Catalogue) NextTopic(_ context.Context, mode models.IntentMode, previousIndex int) (models.Topic, error) {
	list := c.byMode[mode]
	if len(list) == 0 {
		list = c.general
	}
	if len(list) == 0 {
		return models.Topic{}, ErrEmptyCatalogue
	}
	index := previousIndex + 1
	if index < 0 {
		index = 0
	}
	return models.Topic{Index: index, Text: list[index%len(list)]}, nil
}

// Size returns how many topics mode rotates through.
func (c *Catalogue) Size(mode models.IntentMode) int {
	if n := len(c.byMode[mode]); n > 0 {
		return n
	}
	return len(c.general)
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
