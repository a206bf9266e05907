package supplier_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ryno/internal/adapters/supplier"
	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
)

type fixedImages struct {
	urls  []string
	err   error
	asked int
}

func (f *fixedImages) ImageURLs(_ context.Context, n int) ([]string, error) {
	f.asked = n
	return f.urls, f.err
}

func TestPixabay(t *testing.T) {
	Convey("Given a Pixabay endpoint", t, func() {
		var query map[string]string
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = map[string]string{
				"key":      r.URL.Query().Get("key"),
				"per_page": r.URL.Query().Get("per_page"),
				"order":    r.URL.Query().Get("order"),
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"hits":[{"webformatURL":"https://cdn.pixabay.com/a.jpg"},{"webformatURL":""},{"webformatURL":"https://cdn.pixabay.com/b.jpg"}]}`))
		}))
		defer srv.Close()

		p := supplier.NewPixabay("secret", supplier.WithPixabayEndpoint(srv.URL), supplier.WithHTTPClient(srv.Client()))

		Convey("It returns the image URLs of popular hits", func() {
			urls, err := p.ImageURLs(context.Background(), 2)
			So(err, ShouldBeNil)
			So(urls, ShouldResemble, []string{"https://cdn.pixabay.com/a.jpg", "https://cdn.pixabay.com/b.jpg"})
			So(query["key"], ShouldEqual, "secret")
			So(query["order"], ShouldEqual, "popular")
			So(query["per_page"], ShouldEqual, "3")
		})

		Convey("It stops at the requested count", func() {
			urls, err := p.ImageURLs(context.Background(), 1)
			So(err, ShouldBeNil)
			So(urls, ShouldHaveLength, 1)
		})

		Convey("A non-200 status is an error", func() {
			status = http.StatusTooManyRequests
			_, err := p.ImageURLs(context.Background(), 2)
			So(errors.Is(err, supplier.ErrImageFetch), ShouldBeTrue)
		})

		Convey("Zero images asks nothing", func() {
			query = nil
			urls, err := p.ImageURLs(context.Background(), 0)
			So(err, ShouldBeNil)
			So(urls, ShouldBeEmpty)
			So(query, ShouldBeNil)
		})
	})
}

func TestWithImages(t *testing.T) {
	Convey("Given question batches decorated with images", t, func() {
		ctx := context.Background()
		questions := itemqueue.SupplierFunc(func(context.Context, string, string, string) ([]model.WorkItem, error) {
			return []model.WorkItem{model.Text("q1"), model.Text("q2"), model.Text("q3")}, nil
		})
		images := &fixedImages{urls: []string{"https://img/1.jpg", "https://img/2.jpg"}}
		sup := supplier.WithImages{Next: questions, Source: images}

		Convey("Images questions get one URL per item in order", func() {
			items, err := sup.Supply(ctx, itemqueue.CategoryImages, itemqueue.KindQuestions, "Nature")
			So(err, ShouldBeNil)
			So(images.asked, ShouldEqual, 3)
			So(items[0].Image, ShouldEqual, "https://img/1.jpg")
			So(items[1].Image, ShouldEqual, "https://img/2.jpg")
			So(items[2].HasMedia(), ShouldBeFalse)
		})

		Convey("Text questions are left alone", func() {
			items, err := sup.Supply(ctx, itemqueue.CategoryText, itemqueue.KindQuestions, "Science")
			So(err, ShouldBeNil)
			So(images.asked, ShouldEqual, 0)
			for _, it := range items {
				So(it.HasMedia(), ShouldBeFalse)
			}
		})

		Convey("A failed fetch keeps the batch plain", func() {
			images.err = supplier.ErrImageFetch
			items, err := sup.Supply(ctx, itemqueue.CategoryImages, itemqueue.KindQuestions, "Nature")
			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 3)
			So(items[0].HasMedia(), ShouldBeFalse)
		})

		Convey("The item store skips bound items for plain consumers and pops them for terminal ones", func() {
			store := itemqueue.New(itemqueue.NewState(), sup)

			item, ok, err := store.Next(ctx, itemqueue.CategoryImages, itemqueue.KindQuestions, false, "Nature")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(item.Prompt, ShouldEqual, "q3")
			So(item.HasMedia(), ShouldBeFalse)

			item, ok, err = store.Next(ctx, itemqueue.CategoryImages, itemqueue.KindQuestions, true, "Nature")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(item.Prompt, ShouldEqual, "q2")
			So(item.Image, ShouldEqual, "https://img/2.jpg")
		})
	})
}
