package classify_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/atopofconscience/mehfil/internal/classify"
	"github.com/atopofconscience/mehfil/internal/domain"
)

func testKeywords() classify.Keywords {
	return classify.Keywords{
		Relevance: map[string][]string{
			domain.TagSouthAsian:    {"diwali", "india", "desi", "bollywood", "qawwali"},
			domain.TagMiddleEastern: {"eid", "arab", "persian", "iftar"},
		},
		Categories: map[string][]string{
			domain.CategoryCulturalFestival: {"diwali", "festival", "eid", "mela"},
			domain.CategoryMusicDance:       {"concert", "bollywood", "dance", "qawwali"},
			domain.CategoryReligious:        {"iftar", "prayer", "puja"},
		},
	}
}

func TestClassifier(t *testing.T) {
	Convey("Given a classifier with relevance and category keywords", t, func() {
		c := classify.New(testKeywords())

		Convey("When an event title matches community and category keywords", func() {
			ev := c.Classify(domain.Event{Title: "Diwali Festival of Lights"})

			Convey("Then it carries the relevance tag and category", func() {
				So(ev.RelevanceTags, ShouldResemble, []string{domain.TagSouthAsian})
				So(ev.Categories, ShouldResemble, []string{domain.CategoryCulturalFestival})
				So(ev.Unclassified(), ShouldBeFalse)
			})
		})

		Convey("When keywords only appear in the description", func() {
			ev := c.Classify(domain.Event{
				Title:       "Community Evening",
				Description: "Join us for an iftar with neighbors.",
			})

			Convey("Then description matches count as well", func() {
				So(ev.RelevanceTags, ShouldResemble, []string{domain.TagMiddleEastern})
				So(ev.Categories, ShouldResemble, []string{domain.CategoryReligious})
			})
		})

		Convey("When an event matches both communities and several categories", func() {
			ev := c.Classify(domain.Event{
				Title:       "Eid Mela with Bollywood Dance",
				Description: "A qawwali concert follows.",
			})

			Convey("Then multiple tags and categories accumulate, sorted", func() {
				So(ev.RelevanceTags, ShouldResemble, []string{domain.TagMiddleEastern, domain.TagSouthAsian})
				So(ev.Categories, ShouldResemble, []string{domain.CategoryCulturalFestival, domain.CategoryMusicDance})
			})
		})

		Convey("When no keyword matches", func() {
			ev := c.Classify(domain.Event{Title: "Quarterly Book Club", Description: "We discuss chapter nine."})

			Convey("Then the event stays unclassified", func() {
				So(ev.Unclassified(), ShouldBeTrue)
			})
		})

		Convey("When a keyword is embedded inside a longer word", func() {
			ev := c.Classify(domain.Event{Title: "Indiana Travel Meetup"})

			Convey("Then word boundaries prevent the match", func() {
				So(ev.Unclassified(), ShouldBeTrue)
			})
		})

		Convey("When keyword case differs", func() {
			ev := c.Classify(domain.Event{Title: "DIWALI night"})

			Convey("Then matching is case-insensitive", func() {
				So(ev.RelevanceTags, ShouldResemble, []string{domain.TagSouthAsian})
			})
		})

		Convey("When the same event is classified twice", func() {
			ev := c.Classify(domain.Event{Title: "Diwali Festival"})
			again := c.Classify(ev)

			Convey("Then tags and categories do not duplicate", func() {
				So(again.RelevanceTags, ShouldResemble, ev.RelevanceTags)
				So(again.Categories, ShouldResemble, ev.Categories)
			})
		})
	})
}
