package dedupe

import (
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
)

const defaultTitleSimilarity = 0.82

// Options tunes duplicate matching.
type Options struct {
	// TitleSimilarity is the minimum normalized similarity for titles alone
	// to prove two events identical.
	TitleSimilarity float64
	// Priority orders sources from most to least authoritative; the merged
	// source_url comes from the earliest listed contributor.
	Priority []domain.Source
	// Location fixes the calendar day used for bucketing.
	Location *time.Location
}

// Deduper folds events describing the same occurrence across sources.
// Candidates are compared pairwise only inside same-day buckets.
type Deduper struct {
	threshold float64
	rank      map[domain.Source]int
	loc       *time.Location
}

var _ ports.Deduplicator = (*Deduper)(nil)

// New builds a Deduper from options, falling back to sane defaults.
func New(opts Options) *Deduper {
	threshold := opts.TitleSimilarity
	if threshold <= 0 || threshold > 1 {
		threshold = defaultTitleSimilarity
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	rank := make(map[domain.Source]int, len(opts.Priority))
	for i, src := range opts.Priority {
		rank[src] = i
	}
	return &Deduper{threshold: threshold, rank: rank, loc: loc}
}

// Merge returns the deduplicated set plus the number of events absorbed into
// survivors. Input events are not mutated; untouched events pass through in
// first-seen order.
func (d *Deduper) Merge(events []domain.Event) ([]domain.Event, int) {
	if len(events) < 2 {
		return events, 0
	}

	buckets := map[string][]int{}
	for i, ev := range events {
		day := ev.StartTime.In(d.loc).Format("2006-01-02")
		buckets[day] = append(buckets[day], i)
	}

	uf := newUnionFind(len(events))
	for _, members := range buckets {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				if d.sameOccurrence(events[members[x]], events[members[y]]) {
					uf.union(members[x], members[y])
				}
			}
		}
	}

	clusters := map[int][]int{}
	order := make([]int, 0, len(events))
	for i := range events {
		root := uf.find(i)
		if _, seen := clusters[root]; !seen {
			order = append(order, root)
		}
		clusters[root] = append(clusters[root], i)
	}

	out := make([]domain.Event, 0, len(order))
	for _, root := range order {
		members := clusters[root]
		if len(members) == 1 {
			out = append(out, events[members[0]])
			continue
		}
		out = append(out, d.mergeCluster(events, members))
	}

	return out, len(events) - len(out)
}

// sameOccurrence implements the matching rule: same-day events are one
// occurrence when their titles are nearly identical, or when their venue
// matches and the titles share a significant token. Events without any venue
// or address can only merge through the strict title path.
func (d *Deduper) sameOccurrence(a, b domain.Event) bool {
	if titleSimilarity(a.Title, b.Title) >= d.threshold {
		return true
	}
	return venuesMatch(a, b) && shareSignificantToken(a.Title, b.Title)
}

func titleSimilarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(dist)/float64(longest)
}

func venuesMatch(a, b domain.Event) bool {
	if va, vb := normalizeText(a.VenueName), normalizeText(b.VenueName); va != "" && va == vb {
		return true
	}
	if aa, ab := normalizeText(a.Address), normalizeText(b.Address); aa != "" && aa == ab {
		return true
	}
	return false
}

var stopTokens = map[string]struct{}{
	"and": {}, "the": {}, "for": {}, "with": {}, "from": {},
	"free": {}, "your": {}, "our": {}, "all": {}, "new": {},
}

func shareSignificantToken(a, b string) bool {
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(normalizeText(a)) {
		if significant(tok) {
			seen[tok] = struct{}{}
		}
	}
	for _, tok := range strings.Fields(normalizeText(b)) {
		if !significant(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			return true
		}
	}
	return false
}

func significant(tok string) bool {
	if len([]rune(tok)) < 3 {
		return false
	}
	_, stop := stopTokens[tok]
	return !stop
}

// normalizeText lowercases, strips punctuation, and collapses whitespace.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r > 127:
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// mergeCluster folds cluster members into one Event. The survivor donating
// the scalar fields is chosen by content, not argument order: longest
// non-empty description, then source priority, then smallest ID.
func (d *Deduper) mergeCluster(events []domain.Event, members []int) domain.Event {
	ordered := append([]int(nil), members...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := events[ordered[i]], events[ordered[j]]
		if ra, rb := d.sourceRank(a.Source), d.sourceRank(b.Source); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})

	survivor := ordered[0]
	for _, i := range ordered[1:] {
		if d.moreComplete(events[i], events[survivor]) {
			survivor = i
		}
	}

	merged := events[survivor]
	merged.Categories = append([]string(nil), merged.Categories...)
	merged.RelevanceTags = append([]string(nil), merged.RelevanceTags...)
	merged.MergedFrom = append([]domain.Source(nil), merged.MergedFrom...)

	for _, i := range ordered {
		ev := events[i]
		for _, c := range ev.Categories {
			merged.AddCategory(c)
		}
		for _, t := range ev.RelevanceTags {
			merged.AddRelevanceTag(t)
		}
		merged.AddMergedFrom(ev.Source)
		for _, s := range ev.MergedFrom {
			merged.AddMergedFrom(s)
		}
	}

	// The source_url of the highest-priority contributor wins; coordinates
	// come from any contributor that already has them.
	for _, i := range ordered {
		if url := events[i].SourceURL; url != "" {
			merged.SourceURL = url
			break
		}
	}
	if merged.Coordinates == nil {
		for _, i := range ordered {
			if events[i].Coordinates != nil {
				coords := *events[i].Coordinates
				merged.Coordinates = &coords
				break
			}
		}
	}

	return merged
}

func (d *Deduper) moreComplete(a, b domain.Event) bool {
	al := len(strings.TrimSpace(a.Description))
	bl := len(strings.TrimSpace(b.Description))
	if al != bl {
		return al > bl
	}
	if ra, rb := d.sourceRank(a.Source), d.sourceRank(b.Source); ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

func (d *Deduper) sourceRank(src domain.Source) int {
	if r, ok := d.rank[src]; ok {
		return r
	}
	return len(d.rank)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra > rb {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
