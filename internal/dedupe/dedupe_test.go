package dedupe_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/atopofconscience/mehfil/internal/dedupe"
	"github.com/atopofconscience/mehfil/internal/domain"
)

func testDeduper() *dedupe.Deduper {
	return dedupe.New(dedupe.Options{
		TitleSimilarity: 0.82,
		Priority:        []domain.Source{"ticketing", "citycalendar", "aggregator"},
		Location:        time.UTC,
	})
}

func at(day int, hour int) time.Time {
	return time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
}

func TestDeduperMerge(t *testing.T) {
	Convey("Given a deduper with a fixed source priority", t, func() {
		d := testDeduper()

		Convey("When two sources list the same-day event under near-identical titles", func() {
			a := domain.Event{
				ID:          "aggregator:1",
				Title:       "Eid Celebration Boston",
				Description: "A long community celebration with food, prayer, and family activities.",
				StartTime:   at(20, 10),
				Source:      "aggregator",
				SourceURL:   "https://agg.example/e/1",
				Categories:  []string{domain.CategoryCommunity},
			}
			b := domain.Event{
				ID:            "ticketing:9",
				Title:         "Eid Celebration - Boston",
				Description:   "Short blurb.",
				StartTime:     at(20, 18),
				Source:        "ticketing",
				SourceURL:     "https://tix.example/e/9",
				Categories:    []string{domain.CategoryCulturalFestival},
				RelevanceTags: []string{domain.TagMiddleEastern},
			}

			merged, folded := d.Merge([]domain.Event{a, b})

			Convey("Then they fold into one event", func() {
				So(merged, ShouldHaveLength, 1)
				So(folded, ShouldEqual, 1)
			})

			Convey("Then scalars come from the contributor with the longest description", func() {
				So(merged[0].ID, ShouldEqual, "aggregator:1")
				So(merged[0].Description, ShouldEqual, a.Description)
			})

			Convey("Then the source_url follows the priority ordering", func() {
				So(merged[0].SourceURL, ShouldEqual, "https://tix.example/e/9")
			})

			Convey("Then categories and tags are unioned and merged_from lists both sources", func() {
				So(merged[0].Categories, ShouldResemble, []string{domain.CategoryCommunity, domain.CategoryCulturalFestival})
				So(merged[0].RelevanceTags, ShouldResemble, []string{domain.TagMiddleEastern})
				So(merged[0].MergedFrom, ShouldResemble, []domain.Source{"aggregator", "ticketing"})
			})

			Convey("Then the outcome does not depend on argument order", func() {
				swapped, swappedFolded := d.Merge([]domain.Event{b, a})
				So(swappedFolded, ShouldEqual, 1)
				So(swapped[0].ID, ShouldEqual, merged[0].ID)
				So(swapped[0].SourceURL, ShouldEqual, merged[0].SourceURL)
				So(swapped[0].MergedFrom, ShouldResemble, merged[0].MergedFrom)
			})
		})

		Convey("When identical titles fall on different days", func() {
			a := domain.Event{ID: "a", Title: "Bollywood Night", StartTime: at(20, 21), Source: "aggregator"}
			b := domain.Event{ID: "b", Title: "Bollywood Night", StartTime: at(21, 21), Source: "ticketing"}

			merged, folded := d.Merge([]domain.Event{a, b})

			Convey("Then nothing merges", func() {
				So(merged, ShouldHaveLength, 2)
				So(folded, ShouldEqual, 0)
				So(merged[0].MergedFrom, ShouldBeEmpty)
			})
		})

		Convey("When titles are only loosely similar and no venue is known", func() {
			a := domain.Event{ID: "a", Title: "Eid Gathering Downtown", StartTime: at(20, 12), Source: "aggregator"}
			b := domain.Event{ID: "b", Title: "Eid Dinner Uptown", StartTime: at(20, 19), Source: "groups"}

			merged, folded := d.Merge([]domain.Event{a, b})

			Convey("Then under-merging wins and both survive", func() {
				So(merged, ShouldHaveLength, 2)
				So(folded, ShouldEqual, 0)
			})
		})

		Convey("When venues match and the titles share a significant token", func() {
			a := domain.Event{
				ID:        "a",
				Title:     "Eid Celebration",
				VenueName: "Islamic Society of Boston",
				StartTime: at(20, 10),
				Source:    "citycalendar",
			}
			b := domain.Event{
				ID:        "b",
				Title:     "Eid Mubarak Gathering",
				VenueName: "Islamic Society of Boston",
				StartTime: at(20, 11),
				Source:    "groups",
				Coordinates: &domain.Coordinates{
					Lat: 42.3601,
					Lon: -71.0589,
				},
			}

			merged, folded := d.Merge([]domain.Event{a, b})

			Convey("Then the venue path merges them", func() {
				So(merged, ShouldHaveLength, 1)
				So(folded, ShouldEqual, 1)
			})

			Convey("Then coordinates are adopted from any contributor", func() {
				So(merged[0].Coordinates, ShouldNotBeNil)
				So(merged[0].Coordinates.Lat, ShouldEqual, 42.3601)
			})
		})

		Convey("When three listings describe one occurrence", func() {
			a := domain.Event{ID: "a", Title: "Holi Festival of Colors", StartTime: at(28, 11), Source: "ticketing", Description: "Colors, music, food trucks."}
			b := domain.Event{ID: "b", Title: "Holi Festival of Colors", StartTime: at(28, 12), Source: "aggregator"}
			c := domain.Event{ID: "c", Title: "Holi - Festival of Colors", StartTime: at(28, 13), Source: "citycalendar"}
			other := domain.Event{ID: "d", Title: "Pottery Workshop", StartTime: at(28, 15), Source: "citycalendar"}

			merged, folded := d.Merge([]domain.Event{a, b, c, other})

			Convey("Then the cluster collapses and bystanders pass through", func() {
				So(merged, ShouldHaveLength, 2)
				So(folded, ShouldEqual, 2)
				So(merged[0].MergedFrom, ShouldResemble, []domain.Source{"aggregator", "citycalendar", "ticketing"})
				So(merged[1].Title, ShouldEqual, "Pottery Workshop")
			})
		})
	})
}
