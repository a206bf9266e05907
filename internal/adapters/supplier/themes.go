// Package supplier refills the rotating item queue: themes come from a static
// table and questions are generated by a language model per theme.
package supplier

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
)

// Themes supplies the static theme list of each category.
type Themes struct {
	lists map[string][]string
}

var _ itemqueue.Supplier = (*Themes)(nil)

// DefaultThemes returns the built-in theme lists.
func DefaultThemes() *Themes {
	return &Themes{lists: map[string][]string{
		itemqueue.CategoryText: {
			"Love and relationships", "Nature and environment", "Art and creativity",
			"Technology and innovation", "Health and wellness", "History and culture",
			"Science and discovery", "Philosophy and ethics", "Education and learning",
			"Music and rhythm", "Sports and athleticism", "Food and nutrition",
			"Travel and adventure", "Fashion and style", "Books and literature",
			"Movies and entertainment", "Politics and governance", "Business and entrepreneurship",
			"Mind and consciousness", "Family and parenting", "Friendship and social life",
			"Mathematics and logic", "Economics and finance", "Space and astronomy",
		},
		itemqueue.CategoryImages: {
			"The Inner Journey", "Urban Dreamscapes", "Nature's Symphony",
			"Ephemeral Moments", "Cultural Mosaics", "Retro Futurism",
			"Ocean Depths", "Ancient Ruins", "Mythical Creatures",
			"Light and Shadow", "Abstract Emotions", "Celestial Wonders",
			"Seasons Changing", "Mechanical Marvels", "Portraits of Solitude",
		},
	}}
}

// themesFile is the YAML layout of a themes file:
//
//	text: [..]
//	images: [..]
type themesFile map[string][]string

// LoadThemes reads theme lists from a YAML file. Categories missing from the
// file keep their defaults.
func LoadThemes(path string) (*Themes, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read themes file: %w", err)
	}
	var f themesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse themes file %s: %w", path, err)
	}
	t := DefaultThemes()
	for category, list := range f {
		clean := make([]string, 0, len(list))
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				clean = append(clean, s)
			}
		}
		if len(clean) > 0 {
			t.lists[category] = clean
		}
	}
	return t, nil
}

// Supply implements itemqueue.Supplier for the "themes" kind.
func (t *Themes) Supply(_ context.Context, category, kind, _ string) ([]model.WorkItem, error) {
	if kind != itemqueue.KindThemes {
		return nil, fmt.Errorf("%w: %q", ErrUnhandledKind, kind)
	}
	list, ok := t.lists[category]
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoThemes, category)
	}
	out := make([]model.WorkItem, len(list))
	for i, s := range list {
		out[i] = model.Text(s)
	}
	return out, nil
}

// Categories returns the categories with at least one theme.
func (t *Themes) Categories() []string {
	out := make([]string, 0, len(t.lists))
	for c, l := range t.lists {
		if len(l) > 0 {
			out = append(out, c)
		}
	}
	return out
}
