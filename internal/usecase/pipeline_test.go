package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/usecase"
)

type fakeSource struct {
	results []domain.FetchResult
}

func (f *fakeSource) FetchAll(_ context.Context) []domain.FetchResult {
	return f.results
}

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(_ domain.Source, rec domain.RawRecord) (domain.Event, error) {
	if rec["malformed"] == true {
		return domain.Event{}, errors.New("missing required fields")
	}
	ev, ok := rec["event"].(domain.Event)
	if !ok {
		return domain.Event{}, errors.New("missing required fields")
	}
	return ev, nil
}

// fakeClassifier tags everything except titles in its skip set.
type fakeClassifier struct {
	skip map[string]bool
}

func (f *fakeClassifier) Classify(ev domain.Event) domain.Event {
	if f.skip[ev.Title] {
		return ev
	}
	ev.AddRelevanceTag(domain.TagSouthAsian)
	ev.AddCategory(domain.CategoryCommunity)
	return ev
}

// fakeDeduper folds events sharing a title, keeping the first.
type fakeDeduper struct{}

func (fakeDeduper) Merge(events []domain.Event) ([]domain.Event, int) {
	seen := map[string]bool{}
	out := make([]domain.Event, 0, len(events))
	folded := 0
	for _, ev := range events {
		if seen[ev.Title] {
			folded++
			continue
		}
		seen[ev.Title] = true
		out = append(out, ev)
	}
	return out, folded
}

type fakeGeocoder struct {
	coords     map[string]domain.Coordinates
	warmErr    error
	resolveErr error
	queries    []string
	warms      int
	flushes    int
}

func (f *fakeGeocoder) Warm(_ context.Context) error {
	f.warms++
	return f.warmErr
}

func (f *fakeGeocoder) Resolve(_ context.Context, address string) (*domain.Coordinates, error) {
	f.queries = append(f.queries, address)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if c, ok := f.coords[address]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeGeocoder) Flush(_ context.Context) error {
	f.flushes++
	return nil
}

type fakeRepository struct {
	events []domain.Event
	err    error
	calls  int
}

func (f *fakeRepository) UpsertEvents(_ context.Context, events []domain.Event) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.events = events
	return nil
}

type fakeExporter struct {
	events  []domain.Event
	updated time.Time
	err     error
	calls   int
}

func (f *fakeExporter) WriteSnapshot(_ context.Context, events []domain.Event, updated time.Time) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.events = events
	f.updated = updated
	return nil
}

type fakeNotifier struct {
	summaries []domain.RunSummary
	err       error
}

func (f *fakeNotifier) PublishSummary(_ context.Context, summary domain.RunSummary) error {
	if f.err != nil {
		return f.err
	}
	f.summaries = append(f.summaries, summary)
	return nil
}

func wrap(ev domain.Event) domain.RawRecord {
	return domain.RawRecord{"event": ev}
}

func TestPipelineRun(t *testing.T) {
	Convey("Given a pipeline with every collaborator wired", t, func() {
		day := time.Date(2026, time.September, 19, 0, 0, 0, 0, time.UTC)
		at := time.Date(2026, time.September, 1, 6, 0, 0, 0, time.UTC)

		gala := domain.Event{
			ID: "ticketing:1", Title: "Eid Gala", StartTime: day.Add(19 * time.Hour),
			VenueName: "Grand Hall", Address: "1 Main St", Source: "ticketing",
		}
		holi := domain.Event{
			ID: "ticketing:2", Title: "Holi Festival", StartTime: day.Add(11 * time.Hour),
			Source: "ticketing", Coordinates: &domain.Coordinates{Lat: 42.31, Lon: -71.05},
		}
		galaDup := domain.Event{
			ID: "aggregator:9", Title: "Eid Gala", StartTime: day.Add(19 * time.Hour),
			Source: "aggregator",
		}
		plain := domain.Event{
			ID: "aggregator:7", Title: "Plain Meetup", StartTime: day.Add(48 * time.Hour),
			Source: "aggregator",
		}

		source := &fakeSource{results: []domain.FetchResult{
			{Source: "ticketing", Records: []domain.RawRecord{wrap(gala), {"malformed": true}, wrap(holi)}},
			{Source: "citycalendar", Err: errors.New("calendar unreachable")},
			{Source: "aggregator", Records: []domain.RawRecord{wrap(galaDup), wrap(plain)}},
		}}
		geocoder := &fakeGeocoder{coords: map[string]domain.Coordinates{
			"Grand Hall, 1 Main St": {Lat: 42.35, Lon: -71.06},
		}}
		repo := &fakeRepository{}
		exporter := &fakeExporter{}
		notifier := &fakeNotifier{}

		deps := usecase.PipelineDeps{
			Source:     source,
			Normalizer: fakeNormalizer{},
			Classifier: &fakeClassifier{skip: map[string]bool{"Plain Meetup": true}},
			Deduper:    fakeDeduper{},
			Geocoder:   geocoder,
			Repository: repo,
			Exporter:   exporter,
			Notifier:   notifier,
		}

		Convey("When a full run executes", func() {
			pipeline := usecase.NewPipeline(deps)
			summary, err := pipeline.Run(context.Background(), at)

			Convey("Then per-source outcomes are recorded without aborting the run", func() {
				So(err, ShouldBeNil)
				So(summary.RunID, ShouldNotBeEmpty)
				So(summary.StartedAt, ShouldResemble, at)
				So(summary.Fetched, ShouldResemble, map[domain.Source]int{"ticketing": 3, "aggregator": 2})
				So(summary.Failed["citycalendar"], ShouldContainSubstring, "calendar unreachable")
			})

			Convey("Then malformed and unclassified records are counted and dropped", func() {
				So(summary.Malformed, ShouldEqual, 1)
				So(summary.Unclassified, ShouldEqual, 1)
				So(summary.Published, ShouldEqual, 2)
			})

			Convey("Then duplicates fold and survivors are geocoded and sorted", func() {
				So(summary.Merged, ShouldEqual, 1)
				So(summary.GeocodeMisses, ShouldEqual, 0)

				So(repo.events, ShouldHaveLength, 2)
				So(repo.events[0].ID, ShouldEqual, "ticketing:2")
				So(repo.events[1].ID, ShouldEqual, "ticketing:1")
				So(repo.events[1].Coordinates, ShouldNotBeNil)
				So(repo.events[1].Coordinates.Lat, ShouldEqual, 42.35)

				So(geocoder.queries, ShouldResemble, []string{"Grand Hall, 1 Main St"})
				So(geocoder.warms, ShouldEqual, 1)
				So(geocoder.flushes, ShouldEqual, 1)
			})

			Convey("Then the snapshot and the notifier both see the published set", func() {
				So(exporter.calls, ShouldEqual, 1)
				So(exporter.events, ShouldHaveLength, 2)
				So(exporter.updated, ShouldResemble, at)

				So(notifier.summaries, ShouldHaveLength, 1)
				So(notifier.summaries[0].Published, ShouldEqual, 2)
			})

			Convey("Then the pipeline settles in its final state", func() {
				So(pipeline.State(), ShouldEqual, usecase.StateDone)
			})
		})

		Convey("When unclassified events are kept", func() {
			deps.KeepUnclassified = true
			pipeline := usecase.NewPipeline(deps)
			summary, err := pipeline.Run(context.Background(), at)

			Convey("Then they are still counted but published", func() {
				So(err, ShouldBeNil)
				So(summary.Unclassified, ShouldEqual, 1)
				So(summary.Published, ShouldEqual, 3)
			})
		})

		Convey("When the event store rejects the batch", func() {
			repo.err = errors.New("connection refused")
			pipeline := usecase.NewPipeline(deps)
			summary, err := pipeline.Run(context.Background(), at)

			Convey("Then the run fails with the summary intact and no downstream publishing", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "store events")
				So(summary.Published, ShouldEqual, 2)
				So(exporter.calls, ShouldEqual, 0)
				So(notifier.summaries, ShouldBeEmpty)
			})
		})

		Convey("When the snapshot cannot be written", func() {
			exporter.err = errors.New("disk full")
			pipeline := usecase.NewPipeline(deps)
			_, err := pipeline.Run(context.Background(), at)

			Convey("Then the run fails after the store succeeded", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "write snapshot")
				So(repo.calls, ShouldEqual, 1)
				So(notifier.summaries, ShouldBeEmpty)
			})
		})

		Convey("When the notifier fails", func() {
			notifier.err = errors.New("telegram 502")
			pipeline := usecase.NewPipeline(deps)
			_, err := pipeline.Run(context.Background(), at)

			Convey("Then the run still succeeds", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When the geocoding service is down", func() {
			geocoder.resolveErr = errors.New("nominatim 500")
			geocoder.warmErr = errors.New("cache unreadable")
			pipeline := usecase.NewPipeline(deps)
			summary, err := pipeline.Run(context.Background(), at)

			Convey("Then misses are counted and events publish without coordinates", func() {
				So(err, ShouldBeNil)
				So(summary.GeocodeMisses, ShouldEqual, 1)
				So(summary.Published, ShouldEqual, 2)
				So(repo.events[1].Coordinates, ShouldBeNil)
			})
		})
	})

	Convey("Given a pipeline with no collaborators", t, func() {
		pipeline := usecase.NewPipeline(usecase.PipelineDeps{})

		Convey("When a run executes", func() {
			summary, err := pipeline.Run(context.Background(), time.Now())

			Convey("Then it completes empty without panicking", func() {
				So(err, ShouldBeNil)
				So(summary.Published, ShouldEqual, 0)
				So(summary.Fetched, ShouldBeEmpty)
				So(summary.Failed, ShouldBeEmpty)
				So(pipeline.State(), ShouldEqual, usecase.StateDone)
			})
		})
	})
}
