package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
)

// Keywords holds the lists driving classification: one list per relevance
// tag and one per category. Lists are fixed for the process lifetime.
type Keywords struct {
	Relevance  map[string][]string
	Categories map[string][]string
}

// Classifier annotates events by keyword match against title and
// description. Matching is case-insensitive and word-boundary aware.
type Classifier struct {
	relevance  []ruleSet
	categories []ruleSet
}

type ruleSet struct {
	tag      string
	patterns []*regexp.Regexp
}

var _ ports.Classifier = (*Classifier)(nil)

// New compiles the keyword lists once. Rule sets apply in sorted tag order
// so repeated runs annotate identically.
func New(kw Keywords) *Classifier {
	return &Classifier{
		relevance:  compileRules(kw.Relevance),
		categories: compileRules(kw.Categories),
	}
}

func compileRules(lists map[string][]string) []ruleSet {
	tags := make([]string, 0, len(lists))
	for tag := range lists {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	rules := make([]ruleSet, 0, len(tags))
	for _, tag := range tags {
		patterns := make([]*regexp.Regexp, 0, len(lists[tag]))
		for _, keyword := range lists[tag] {
			keyword = strings.TrimSpace(keyword)
			if keyword == "" {
				continue
			}
			patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(keyword)+`\b`))
		}
		if len(patterns) > 0 {
			rules = append(rules, ruleSet{tag: tag, patterns: patterns})
		}
	}
	return rules
}

// Classify returns ev annotated with every matching relevance tag and
// category. An event may carry both tags and several categories at once.
func (c *Classifier) Classify(ev domain.Event) domain.Event {
	haystack := ev.Title + "\n" + ev.Description

	for _, rule := range c.relevance {
		if matchesAny(rule.patterns, haystack) {
			ev.AddRelevanceTag(rule.tag)
		}
	}
	for _, rule := range c.categories {
		if matchesAny(rule.patterns, haystack) {
			ev.AddCategory(rule.tag)
		}
	}

	return ev
}

func matchesAny(patterns []*regexp.Regexp, haystack string) bool {
	for _, p := range patterns {
		if p.MatchString(haystack) {
			return true
		}
	}
	return false
}
