package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// ExplicitTagPattern matches a hashtag preceded by start of text or any
	// Unicode whitespace, including no-break and ideographic spaces.
	// Apostrophes and hyphens are part of the tag, so "#you're-the-best" is
	// one token. Group 1 holds the tag without '#'.
	ExplicitTagPattern = `(?:^|[\s\v\p{Z}\x{FEFF}])#([a-zA-Z][\w’'_-]+)`

	// HashtagStripPattern removes hashtags before vocabulary matching. Its
	// class is narrower than ExplicitTagPattern: only the leading word of a
	// hyphenated or apostrophe tag is removed, and the rest stays eligible
	// for implicit matching.
	HashtagStripPattern = `#[a-zA-Z]\w+`

	// URLPattern matches an http(s) URL up to the next whitespace.
	URLPattern = `https?://\S+`

	// SuggestionPattern is the shape a suggested tag must have once its
	// leading '#' is removed.
	SuggestionPattern = `^[a-zA-Z][\w’'_-]+$`
)

var (
	explicitTagRe = regexp.MustCompile(ExplicitTagPattern)
	hashtagStrip  = regexp.MustCompile(HashtagStripPattern)
	urlRe         = regexp.MustCompile(URLPattern)
	suggestionRe  = regexp.MustCompile(SuggestionPattern)
)

// DefaultStoplist holds words that are never emitted as explicit tags.
var DefaultStoplist = []string{"what", "things", "did", "post", "new"}

// StripURLs removes every http(s) URL from text.
func StripURLs(text string) string {
	return urlRe.ReplaceAllString(text, "")
}

// TagExtractor turns normalized casts into tag rows.
type TagExtractor struct {
	stoplist map[string]struct{}
}

// NewTagExtractor returns an extractor that ignores DefaultStoplist plus
// extra. Stopwords are compared lowercased.
func NewTagExtractor(extra ...string) *TagExtractor {
	lower := cases.Lower(language.Und)
	stop := make(map[string]struct{}, len(DefaultStoplist)+len(extra))
	for _, w := range DefaultStoplist {
		stop[lower.String(w)] = struct{}{}
	}
	for _, w := range extra {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		stop[lower.String(w)] = struct{}{}
	}
	return &TagExtractor{stoplist: stop}
}

var defaultExtractor = NewTagExtractor()

// ExtractExplicitTags extracts hashtags using DefaultStoplist.
func ExtractExplicitTags(casts []FlattenedCast) []CastTag {
	return defaultExtractor.ExplicitTags(casts)
}

// ExtractImplicitTags extracts vocabulary mentions. See
// TagExtractor.ImplicitTags.
func ExtractImplicitTags(casts []FlattenedCast, vocabulary []string) ([]CastTag, error) {
	return defaultExtractor.ImplicitTags(casts, vocabulary)
}

// IsStopword reports whether tag is ignored by the extractor.
func (e *TagExtractor) IsStopword(tag string) bool {
	_, ok := e.stoplist[cases.Lower(language.Und).String(tag)]
	return ok
}

// ExplicitTags returns one row per distinct hashtag in each cast, ignoring
// URLs. Within a cast the first occurrence wins and keeps its casing.
func (e *TagExtractor) ExplicitTags(casts []FlattenedCast) []CastTag {
	lower := cases.Lower(language.Und)
	var tags []CastTag

	for _, c := range casts {
		matches := explicitTagRe.FindAllStringSubmatch(StripURLs(c.Text), -1)
		if len(matches) == 0 {
			continue
		}

		seen := make(map[string]struct{}, len(e.stoplist)+len(matches))
		for w := range e.stoplist {
			seen[w] = struct{}{}
		}

		for _, m := range matches {
			tag := strings.TrimSpace(strings.ReplaceAll(m[1], "#", ""))
			if tag == "" || utf8.RuneCountInString(tag) < 2 {
				continue
			}
			key := lower.String(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			tags = append(tags, CastTag{
				CastHash:    c.Hash,
				Tag:         tag,
				Implicit:    false,
				PublishedAt: c.PublishedAt,
			})
		}
	}

	return tags
}

// ImplicitTags returns one row per distinct vocabulary word found in each
// cast's text outside URLs and hashtags. Matching is case-insensitive and on
// word boundaries; the row keeps the casing found in the cast. An empty
// vocabulary yields no rows.
func (e *TagExtractor) ImplicitTags(casts []FlattenedCast, vocabulary []string) ([]CastTag, error) {
	pattern, err := VocabularyPattern(vocabulary)
	if err != nil {
		return nil, err
	}
	if pattern == nil {
		return nil, nil
	}

	lower := cases.Lower(language.Und)
	var tags []CastTag

	for _, c := range casts {
		text := hashtagStrip.ReplaceAllString(StripURLs(c.Text), "")
		matches := pattern.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}

		seen := make(map[string]struct{}, len(matches))
		for _, m := range matches {
			key := lower.String(m)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			tags = append(tags, CastTag{
				CastHash:    c.Hash,
				Tag:         m,
				Implicit:    true,
				PublishedAt: c.PublishedAt,
			})
		}
	}

	return tags, nil
}

// VocabularyPattern compiles vocabulary into one case-insensitive
// alternation. Entries are deduplicated case-insensitively, keeping the
// lexically smallest spelling, and ordered longest first, so the pattern is
// the same for any input order and a longer term wins over its own prefix at
// the same position. A term edge that is an ASCII word character must sit on
// a word boundary. It returns nil when vocabulary has no usable entries.
func VocabularyPattern(vocabulary []string) (*regexp.Regexp, error) {
	lower := cases.Lower(language.Und)
	byKey := make(map[string]string, len(vocabulary))

	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := lower.String(v)
		if cur, ok := byKey[key]; !ok || v < cur {
			byKey[key] = v
		}
	}
	if len(byKey) == 0 {
		return nil, nil
	}

	terms := make([]string, 0, len(byKey))
	for _, v := range byKey {
		terms = append(terms, v)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})

	alts := make([]string, len(terms))
	for i, t := range terms {
		alts[i] = boundedTerm(t)
	}

	expr := `(?i)(?:` + strings.Join(alts, "|") + `)`
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile vocabulary pattern: %w", err)
	}
	return pattern, nil
}

// boundedTerm quotes t and anchors each edge that is an ASCII word
// character with \b. RE2's \b only knows ASCII word characters, so it
// could never hold next to an edge like 'İ' or '+'.
func boundedTerm(t string) string {
	q := regexp.QuoteMeta(t)
	first, _ := utf8.DecodeRuneInString(t)
	last, _ := utf8.DecodeLastRuneInString(t)
	if isASCIIWord(first) {
		q = `\b` + q
	}
	if isASCIIWord(last) {
		q += `\b`
	}
	return q
}

func isASCIIWord(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

// SuggestedTags filters raw suggestions for one cast. A suggestion is kept
// when it has hashtag shape, is not a stopword and is not already in taken.
// Keys of taken are lowercased tags; accepted suggestions are added to it.
func (e *TagExtractor) SuggestedTags(c FlattenedCast, suggestions []string, taken map[string]struct{}) []CastTag {
	lower := cases.Lower(language.Und)
	var tags []CastTag

	for _, s := range suggestions {
		tag := strings.TrimPrefix(strings.TrimSpace(s), "#")
		if !suggestionRe.MatchString(tag) {
			continue
		}
		key := lower.String(tag)
		if _, ok := e.stoplist[key]; ok {
			continue
		}
		if _, ok := taken[key]; ok {
			continue
		}
		taken[key] = struct{}{}

		tags = append(tags, CastTag{
			CastHash:    c.Hash,
			Tag:         tag,
			Implicit:    true,
			GPT:         true,
			PublishedAt: c.PublishedAt,
		})
	}

	return tags
}
