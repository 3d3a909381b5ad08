package domain

import (
	"sort"
	"time"
)

// Source identifies the adapter a record came from.
type Source string

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lon float64
}

// PriceInfo carries the free/paid flag plus optional display text ("$25 - $40").
type PriceInfo struct {
	Free   bool
	Amount string
}

// RawRecord is one source-shaped listing as scraped. Keys and value types vary
// per source; records never survive past normalization.
type RawRecord map[string]any

// FetchResult is a single adapter's contribution to a run, failure included.
type FetchResult struct {
	Source  Source
	Records []RawRecord
	Err     error
}

// Event is the canonical cross-source representation that flows through
// classification, deduplication, and geocoding.
type Event struct {
	ID            string
	Title         string
	Description   string
	StartTime     time.Time
	EndTime       *time.Time
	VenueName     string
	Address       string
	Coordinates   *Coordinates
	Source        Source
	SourceURL     string
	Price         PriceInfo
	Categories    []string
	RelevanceTags []string
	MergedFrom    []Source
}

// Relevance tags a classifier may attach.
const (
	TagSouthAsian    = "south_asian"
	TagMiddleEastern = "middle_eastern"
)

// Category vocabulary.
const (
	CategoryArtsCrafts       = "arts_crafts"
	CategoryCareerTech       = "career_tech"
	CategoryCoffeeChai       = "coffee_chai"
	CategoryComedy           = "comedy"
	CategoryCommunity        = "community"
	CategoryCulturalFestival = "cultural_festival"
	CategoryFoodMarkets      = "food_markets"
	CategoryMusicDance       = "music_dance"
	CategoryReligious        = "religious"
	CategorySportsOutdoors   = "sports_outdoors"
	CategoryTalksLectures    = "talks_lectures"
	CategoryTheaterFilm      = "theater_film"
)

// AddCategory inserts c keeping Categories sorted and duplicate-free.
func (e *Event) AddCategory(c string) {
	e.Categories = insertSorted(e.Categories, c)
}

// AddRelevanceTag inserts t keeping RelevanceTags sorted and duplicate-free.
func (e *Event) AddRelevanceTag(t string) {
	e.RelevanceTags = insertSorted(e.RelevanceTags, t)
}

// AddMergedFrom records a contributing source after a merge.
func (e *Event) AddMergedFrom(s Source) {
	for _, existing := range e.MergedFrom {
		if existing == s {
			return
		}
	}
	e.MergedFrom = append(e.MergedFrom, s)
	sort.Slice(e.MergedFrom, func(i, j int) bool { return e.MergedFrom[i] < e.MergedFrom[j] })
}

// Unclassified reports whether the event matched no keyword list at all.
func (e *Event) Unclassified() bool {
	return len(e.Categories) == 0 && len(e.RelevanceTags) == 0
}

func insertSorted(list []string, v string) []string {
	if v == "" {
		return list
	}
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

// RunSummary reports what one pipeline run did, regardless of outcome.
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	Duration      time.Duration
	Fetched       map[Source]int
	Failed        map[Source]string
	Malformed     int
	Unclassified  int
	Merged        int
	GeocodeMisses int
	Published     int
}
