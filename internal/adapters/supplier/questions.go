package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/okian/ryno/internal/adapters/llm"
	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
)

const defaultQuestionsPerBatch = 10

var (
	numberedItem = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)
	bulletItem   = regexp.MustCompile(`^\s*[-*•]\s+(.+)$`)
)

// Questions generates questions for a theme with a language model.
type Questions struct {
	completer llm.Completer
	model     string
	count     int
	logger    logger.Logger
}

var _ itemqueue.Supplier = (*Questions)(nil)

// QuestionsOption configures Questions.
type QuestionsOption func(*Questions)

// WithModel sets the model used for generation; empty uses the provider default.
func WithModel(name string) QuestionsOption {
	return func(q *Questions) { q.model = name }
}

// WithBatchSize sets how many questions are requested per refill.
func WithBatchSize(n int) QuestionsOption {
	return func(q *Questions) {
		if n > 0 {
			q.count = n
		}
	}
}

// WithQuestionsLogger sets the logger.
func WithQuestionsLogger(l logger.Logger) QuestionsOption {
	return func(q *Questions) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQuestions creates a question generator on c.
func NewQuestions(c llm.Completer, opts ...QuestionsOption) *Questions {
	q := &Questions{completer: c, count: defaultQuestionsPerBatch, logger: logger.Nop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Supply implements itemqueue.Supplier for the "questions" kind.
func (q *Questions) Supply(ctx context.Context, category, kind, theme string) ([]model.WorkItem, error) {
	if kind != itemqueue.KindQuestions {
		return nil, fmt.Errorf("%w: %q", ErrUnhandledKind, kind)
	}
	out, err := q.completer.Complete(ctx, llm.Request{
		Model:       q.model,
		Temperature: 0.9,
		Messages:    []model.Message{{Role: "user", Content: prompt(category, theme, q.count)}},
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s questions: %w", category, err)
	}
	list, err := ExtractList(out)
	if err != nil {
		q.logger.Warn(ctx, "could not parse generated questions",
			logger.String("category", category),
			logger.String("theme", theme),
			logger.Error(err))
		return nil, err
	}
	items := make([]model.WorkItem, len(list))
	for i, s := range list {
		items[i] = model.Text(s)
	}
	q.logger.Debug(ctx, "questions generated",
		logger.String("category", category),
		logger.String("theme", theme),
		logger.Int("count", len(items)))
	return items, nil
}

func prompt(category, theme string, n int) string {
	if category == itemqueue.CategoryImages {
		return fmt.Sprintf("Generate a list of %d detailed, vivid descriptions of images about the theme %q. "+
			"Each description should be one or two sentences a painter could work from. "+
			"Return only a JSON array of strings.", n, theme)
	}
	return fmt.Sprintf("Generate a list of %d varied, open-ended questions about the theme %q. "+
		"Questions should need a few sentences to answer well. "+
		"Return only a JSON array of strings.", n, theme)
}

// ExtractList pulls a list of strings out of model output. It accepts a
// numbered or bulleted list, or a bracketed JSON array anywhere in the text.
func ExtractList(text string) ([]string, error) {
	if items := lineItems(text); len(items) > 0 {
		return items, nil
	}
	start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil, ErrNoList
	}
	var raw []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoList, err)
	}
	out := raw[:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoList
	}
	return out, nil
}

func lineItems(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := numberedItem.FindStringSubmatch(line)
		if m == nil {
			m = bulletItem.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		if s := strings.Trim(strings.TrimSpace(m[1]), `"`); s != "" {
			out = append(out, s)
		}
	}
	return out
}
