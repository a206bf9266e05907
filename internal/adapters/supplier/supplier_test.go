package supplier_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ryno/internal/adapters/llm"
	"github.com/okian/ryno/internal/adapters/supplier"
	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
)

type cannedCompleter struct {
	out  string
	err  error
	last llm.Request
}

func (c *cannedCompleter) Provider() string { return "canned" }

func (c *cannedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.last = req
	return c.out, c.err
}

func prompts(items []model.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Prompt
	}
	return out
}

func TestExtractList(t *testing.T) {
	Convey("ExtractList", t, func() {
		Convey("reads numbered lists", func() {
			got, err := supplier.ExtractList("Here you go:\n1. What is love?\n2) Why do we dream?\n")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{"What is love?", "Why do we dream?"})
		})

		Convey("reads bulleted lists", func() {
			got, err := supplier.ExtractList("- first\n* second")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{"first", "second"})
		})

		Convey("reads a JSON array surrounded by prose", func() {
			got, err := supplier.ExtractList("Sure! [\"a question\", \" \", \"another\"] Hope it helps.")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{"a question", "another"})
		})

		Convey("rejects text without a list", func() {
			_, err := supplier.ExtractList("I cannot help with that.")
			So(errors.Is(err, supplier.ErrNoList), ShouldBeTrue)

			_, err = supplier.ExtractList("[not json]")
			So(errors.Is(err, supplier.ErrNoList), ShouldBeTrue)
		})
	})
}

func TestThemes(t *testing.T) {
	Convey("Default themes cover both categories", t, func() {
		th := supplier.DefaultThemes()
		for _, c := range itemqueue.Categories {
			items, err := th.Supply(context.Background(), c, itemqueue.KindThemes, "")
			So(err, ShouldBeNil)
			So(len(items), ShouldBeGreaterThan, 0)
		}

		_, err := th.Supply(context.Background(), "audio", itemqueue.KindThemes, "")
		So(errors.Is(err, supplier.ErrNoThemes), ShouldBeTrue)

		_, err = th.Supply(context.Background(), "text", itemqueue.KindQuestions, "")
		So(errors.Is(err, supplier.ErrUnhandledKind), ShouldBeTrue)
	})

	Convey("A themes file overrides the categories it names", t, func() {
		path := filepath.Join(t.TempDir(), "themes.yaml")
		So(os.WriteFile(path, []byte("text:\n  - Rivers\n  - \"  \"\n  - Mountains\n"), 0o600), ShouldBeNil)

		th, err := supplier.LoadThemes(path)
		So(err, ShouldBeNil)

		items, err := th.Supply(context.Background(), "text", itemqueue.KindThemes, "")
		So(err, ShouldBeNil)
		So(prompts(items), ShouldResemble, []string{"Rivers", "Mountains"})

		images, err := th.Supply(context.Background(), "images", itemqueue.KindThemes, "")
		So(err, ShouldBeNil)
		So(len(images), ShouldBeGreaterThan, 0)
	})

	Convey("A broken themes file is an error", t, func() {
		path := filepath.Join(t.TempDir(), "themes.yaml")
		So(os.WriteFile(path, []byte("text: [unclosed"), 0o600), ShouldBeNil)
		_, err := supplier.LoadThemes(path)
		So(err, ShouldNotBeNil)

		_, err = supplier.LoadThemes(filepath.Join(t.TempDir(), "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestQuestions(t *testing.T) {
	Convey("Given a question generator", t, func() {
		c := &cannedCompleter{out: `["What shapes a river?", "Why do rivers bend?"]`}
		q := supplier.NewQuestions(c, supplier.WithModel("gpt-4o-mini"), supplier.WithBatchSize(2))

		Convey("It asks for the batch size about the theme", func() {
			items, err := q.Supply(context.Background(), "text", itemqueue.KindQuestions, "Rivers")
			So(err, ShouldBeNil)
			So(prompts(items), ShouldResemble, []string{"What shapes a river?", "Why do rivers bend?"})
			So(c.last.Model, ShouldEqual, "gpt-4o-mini")
			So(c.last.Messages[0].Content, ShouldContainSubstring, `"Rivers"`)
			So(c.last.Messages[0].Content, ShouldContainSubstring, "2 ")
		})

		Convey("Provider errors are returned", func() {
			c.err = errors.New("quota")
			_, err := q.Supply(context.Background(), "text", itemqueue.KindQuestions, "Rivers")
			So(err, ShouldNotBeNil)
		})

		Convey("Unparseable output is an error", func() {
			c.out = "no list today"
			_, err := q.Supply(context.Background(), "images", itemqueue.KindQuestions, "Rivers")
			So(errors.Is(err, supplier.ErrNoList), ShouldBeTrue)
		})
	})
}

func TestCompositeWithStore(t *testing.T) {
	Convey("A composite supplier feeds the item store end to end", t, func() {
		c := &cannedCompleter{out: "1. Q one\n2. Q two"}
		sup := supplier.Composite{
			Themes:    supplier.DefaultThemes(),
			Questions: supplier.NewQuestions(c),
		}
		store := itemqueue.New(itemqueue.NewState(), sup)

		item, ok, err := store.Next(context.Background(), "text", itemqueue.KindQuestions, false, "")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(item.Prompt, ShouldEqual, "Q one")

		snap := store.Snapshot()
		So(snap["text"].QuestionCounter, ShouldEqual, 1)

		_, err = supplier.Composite{}.Supply(context.Background(), "text", "themes", "")
		So(errors.Is(err, supplier.ErrUnhandledKind), ShouldBeTrue)
	})
}
