package supplier

import (
	"context"
	"fmt"

	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
)

// Composite routes "themes" refills to Themes and "questions" refills to
// Questions.
type Composite struct {
	Themes    itemqueue.Supplier
	Questions itemqueue.Supplier
}

// Supply implements itemqueue.Supplier.
func (c Composite) Supply(ctx context.Context, category, kind, theme string) ([]model.WorkItem, error) {
	switch {
	case kind == itemqueue.KindThemes && c.Themes != nil:
		return c.Themes.Supply(ctx, category, kind, theme)
	case kind == itemqueue.KindQuestions && c.Questions != nil:
		return c.Questions.Supply(ctx, category, kind, theme)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnhandledKind, kind)
}
