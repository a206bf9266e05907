package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
	"github.com/okian/ryno/pkg/metrics"
)

// persistedCategory mirrors itemqueue.CategoryState with pointers so that
// missing keys can be told apart from empty values.
type persistedCategory struct {
	Themes          *[]model.WorkItem `json:"themes" validate:"required"`
	Questions       *[]model.WorkItem `json:"questions" validate:"required"`
	ThemeCounter    *int              `json:"theme_counter" validate:"required,gte=0"`
	QuestionCounter *int              `json:"question_counter" validate:"required,gte=0"`
}

type persistedState struct {
	Text   *persistedCategory `json:"text" validate:"required"`
	Images *persistedCategory `json:"images" validate:"required"`
}

// StateFile persists the item queue state as JSON.
type StateFile struct {
	path     string
	logger   logger.Logger
	validate *validator.Validate
}

// NewStateFile creates a state file at path.
func NewStateFile(path string, opts ...StateOption) *StateFile {
	f := &StateFile{path: path, logger: logger.Nop(), validate: validator.New()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the file location.
func (f *StateFile) Path() string { return f.path }

// Load reads the state. A missing file yields the empty state. A file that
// cannot be parsed or has the wrong shape is deleted and the empty state is
// returned; only a failure to delete it is an error.
func (f *StateFile) Load(ctx context.Context) (itemqueue.State, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Debug(ctx, "no state file, starting empty", logger.String("path", f.path))
		return itemqueue.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	state, err := f.decode(raw)
	if err == nil {
		f.logger.Info(ctx, "state loaded", logger.String("path", f.path))
		return state, nil
	}

	f.logger.Warn(ctx, "state file invalid, deleting and resetting",
		logger.String("path", f.path),
		logger.Error(err))
	metrics.RecordErrorByComponent("state", "invalid")
	if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove invalid state file: %w", rmErr)
	}
	return itemqueue.NewState(), nil
}

func (f *StateFile) decode(raw []byte) (itemqueue.State, error) {
	var p persistedState
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if err := f.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return itemqueue.State{
		itemqueue.CategoryText:   p.Text.toState(),
		itemqueue.CategoryImages: p.Images.toState(),
	}, nil
}

func (p *persistedCategory) toState() *itemqueue.CategoryState {
	cs := &itemqueue.CategoryState{
		Themes:          *p.Themes,
		Questions:       *p.Questions,
		ThemeCounter:    *p.ThemeCounter,
		QuestionCounter: *p.QuestionCounter,
	}
	if cs.Themes == nil {
		cs.Themes = []model.WorkItem{}
	}
	if cs.Questions == nil {
		cs.Questions = []model.WorkItem{}
	}
	return cs
}

// Save writes state atomically through a temporary file in the same directory.
func (f *StateFile) Save(ctx context.Context, state itemqueue.State) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStateSave(err == nil, float64(time.Since(start).Microseconds())/1000.0, time.Now().Unix())
	}()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	f.logger.Debug(ctx, "state saved", logger.String("path", f.path), logger.Int("bytes", len(data)))
	return nil
}
