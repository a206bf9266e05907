package itemqueue

import (
	"fmt"
	"slices"

	"github.com/okian/ryno/internal/domain/model"
)

// Item categories.
const (
	CategoryText   = "text"
	CategoryImages = "images"
)

// Item kinds.
const (
	KindThemes    = "themes"
	KindQuestions = "questions"
)

// Categories lists every category the store keeps, in persistence order.
var Categories = []string{CategoryText, CategoryImages}

// CategoryState holds the lists and refill counters of one category. Its JSON
// form is the persisted shape {"themes", "questions", "theme_counter", "question_counter"}.
type CategoryState struct {
	Themes          []model.WorkItem `json:"themes"`
	Questions       []model.WorkItem `json:"questions"`
	ThemeCounter    int              `json:"theme_counter"`
	QuestionCounter int              `json:"question_counter"`
}

// State maps category name to its lists.
type State map[string]*CategoryState

// NewState returns the empty shape: every category with empty lists and zero counters.
func NewState() State {
	s := make(State, len(Categories))
	for _, c := range Categories {
		s[c] = &CategoryState{Themes: []model.WorkItem{}, Questions: []model.WorkItem{}}
	}
	return s
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for name, cs := range s {
		if cs == nil {
			continue
		}
		out[name] = &CategoryState{
			Themes:          cloneItems(cs.Themes),
			Questions:       cloneItems(cs.Questions),
			ThemeCounter:    cs.ThemeCounter,
			QuestionCounter: cs.QuestionCounter,
		}
	}
	return out
}

func cloneItems(in []model.WorkItem) []model.WorkItem {
	if in == nil {
		return []model.WorkItem{}
	}
	return slices.Clone(in)
}

func (cs *CategoryState) list(kind string) []model.WorkItem {
	if kind == KindThemes {
		return cs.Themes
	}
	return cs.Questions
}

// setList stores items as the list for kind; nil is stored as an empty list.
func (cs *CategoryState) setList(kind string, items []model.WorkItem) {
	if items == nil {
		items = []model.WorkItem{}
	}
	if kind == KindThemes {
		cs.Themes = items
		return
	}
	cs.Questions = items
}

func (cs *CategoryState) bump(kind string) {
	if kind == KindThemes {
		cs.ThemeCounter++
		return
	}
	cs.QuestionCounter++
}

func checkCategory(category string) error {
	if !slices.Contains(Categories, category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return nil
}

func checkKind(kind string) error {
	if kind != KindThemes && kind != KindQuestions {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return nil
}
