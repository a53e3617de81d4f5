package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	casts []RawCast
	err   error
	limit int
}

func (f *fakeFetcher) FetchCasts(_ context.Context, limit int) ([]RawCast, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.casts, nil
}

type fakeStore struct {
	casts []FlattenedCast
	tags  []CastTag

	castCalls     int
	failCastsCall int // 1-based call that fails, 0 never
	tagErr        error
	vocabErr      error
}

func (s *fakeStore) UpsertCasts(_ context.Context, casts []FlattenedCast) error {
	s.castCalls++
	if s.castCalls == s.failCastsCall {
		return errors.New("casts rejected")
	}
	s.casts = append(s.casts, casts...)
	return nil
}

func (s *fakeStore) UpsertCastTags(_ context.Context, tags []CastTag) error {
	if s.tagErr != nil {
		return s.tagErr
	}
	s.tags = append(s.tags, tags...)
	return nil
}

func (s *fakeStore) ListTagVocabulary(_ context.Context, offset, limit int) ([]string, error) {
	if s.vocabErr != nil {
		return nil, s.vocabErr
	}
	seen := map[string]struct{}{}
	var vocab []string
	for _, t := range s.tags {
		if t.Implicit || t.GPT {
			continue
		}
		if _, ok := seen[t.Tag]; ok {
			continue
		}
		seen[t.Tag] = struct{}{}
		vocab = append(vocab, t.Tag)
	}
	sort.Strings(vocab)
	if offset >= len(vocab) {
		return nil, nil
	}
	return vocab[offset:min(offset+limit, len(vocab))], nil
}

type fakeSuggester struct {
	byText map[string][]string
	calls  int
}

func (s *fakeSuggester) SuggestTags(_ context.Context, text string) ([]string, error) {
	s.calls++
	tags, ok := s.byText[text]
	if !ok {
		return nil, errors.New("no suggestion")
	}
	return tags, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, f CastFetcher, s CastStore, opts IndexOptions) *IndexService {
	t.Helper()
	svc, err := NewIndexService(f, s, discardLogger(), opts)
	require.NoError(t, err)
	return svc
}

func tagsOf(tags []CastTag, hash string) []tagRow {
	var out []tagRow
	for _, t := range tags {
		if t.CastHash == hash {
			out = append(out, tagRow{hash: t.CastHash, tag: t.Tag, implicit: t.Implicit})
		}
	}
	return out
}

func TestIndexService_Run(t *testing.T) {
	fetcher := &fakeFetcher{casts: []RawCast{
		{Hash: "a", Text: "#Arsenal rules, see https://x.io/#F1"},
		{Hash: "b", Text: "arsenal is great"},
		{Hash: "c", Text: "#Arsenal again"},
		{Hash: "d", Text: "recast:farcaster://casts/0x1"},
		{Hash: "e", Text: "#F1 and F1 and f1"},
	}}
	store := &fakeStore{}
	svc := newTestService(t, fetcher, store, IndexOptions{ChunkSize: 2})
	processed := NewHashSet("c")

	report, err := svc.Run(context.Background(), processed, 500)

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 500, fetcher.limit)
	assert.Equal(t, []string{"a", "b", "e"}, report.Hashes)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 5, report.Fetched)
	assert.Equal(t, 3, report.Persisted)
	assert.Equal(t, 2, report.ExplicitTags)
	assert.Equal(t, 1, report.ImplicitTags)
	assert.Equal(t, 2, report.VocabularySize)
	assert.False(t, report.Failed())

	assert.Len(t, store.casts, 3)
	assert.Equal(t, []tagRow{{"a", "Arsenal", false}}, tagsOf(store.tags, "a"))
	assert.Equal(t, []tagRow{{"b", "arsenal", true}}, tagsOf(store.tags, "b"))
	assert.Equal(t, []tagRow{{"e", "F1", false}}, tagsOf(store.tags, "e"))

	assert.Equal(t, NewHashSet("c"), processed)
}

func TestIndexService_Run_FetchError(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, &fakeFetcher{err: ErrMissingCasts}, store, IndexOptions{})

	report, err := svc.Run(context.Background(), nil, 0)

	require.ErrorIs(t, err, ErrMissingCasts)
	require.NotNil(t, report)
	assert.True(t, report.Failed())
	assert.Empty(t, report.Hashes)
	assert.Empty(t, store.casts)
	assert.Empty(t, store.tags)
}

func TestIndexService_Run_CastUpsertFailure(t *testing.T) {
	fetcher := &fakeFetcher{casts: []RawCast{
		{Hash: "a", Text: "#one"},
		{Hash: "b", Text: "#two"},
		{Hash: "c", Text: "#three"},
	}}
	store := &fakeStore{failCastsCall: 2}
	svc := newTestService(t, fetcher, store, IndexOptions{ChunkSize: 1})

	report, err := svc.Run(context.Background(), nil, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert casts")
	assert.Equal(t, []string{"a"}, report.Hashes)
	assert.Empty(t, store.tags)
}

func TestIndexService_Run_TagFailureKeepsHashes(t *testing.T) {
	errTags := errors.New("tags rejected")
	fetcher := &fakeFetcher{casts: []RawCast{{Hash: "a", Text: "#one"}, {Hash: "b", Text: "#two"}}}
	store := &fakeStore{tagErr: errTags}
	svc := newTestService(t, fetcher, store, IndexOptions{})

	report, err := svc.Run(context.Background(), nil, 0)

	require.ErrorIs(t, err, errTags)
	assert.Equal(t, []string{"a", "b"}, report.Hashes)
	assert.Equal(t, errTags.Error(), errors.Unwrap(err).Error())
}

func TestIndexService_Run_VocabularyFailureIsNotFatal(t *testing.T) {
	fetcher := &fakeFetcher{casts: []RawCast{{Hash: "a", Text: "#Arsenal"}, {Hash: "b", Text: "Arsenal"}}}
	store := &fakeStore{vocabErr: errors.New("read timeout")}
	svc := newTestService(t, fetcher, store, IndexOptions{})

	report, err := svc.Run(context.Background(), nil, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, report.ExplicitTags)
	assert.Zero(t, report.ImplicitTags)
	assert.Len(t, store.tags, 1)
}

func TestIndexService_Run_Suggestions(t *testing.T) {
	fetcher := &fakeFetcher{casts: []RawCast{
		{Hash: "a", Text: "#Arsenal won https://x.io/match"},
		{Hash: "b", Text: "what a weekend"},
		{Hash: "c", Text: "never asked"},
	}}
	suggester := &fakeSuggester{byText: map[string][]string{
		"#Arsenal won": {"football", "#arsenal", "new", "two words"},
	}}
	store := &fakeStore{}
	svc := newTestService(t, fetcher, store, IndexOptions{Suggester: suggester, SuggestMaxCasts: 2})

	report, err := svc.Run(context.Background(), nil, 0)

	require.NoError(t, err)
	assert.Equal(t, 2, suggester.calls)
	assert.Equal(t, 1, report.SuggestedTags)
	assert.Equal(t, []tagRow{
		{"a", "Arsenal", false},
		{"a", "football", true},
	}, tagsOf(store.tags, "a"))

	for _, tag := range store.tags {
		if tag.Tag == "football" {
			assert.True(t, tag.GPT)
		}
	}
	// suggested tags never feed the vocabulary
	assert.Equal(t, 1, report.VocabularySize)
}

func TestNewIndexService(t *testing.T) {
	_, err := NewIndexService(nil, &fakeStore{}, nil, IndexOptions{})
	assert.Error(t, err)

	_, err = NewIndexService(&fakeFetcher{}, &fakeStore{}, nil, IndexOptions{ChunkSize: -1})
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	svc, err := NewIndexService(&fakeFetcher{}, &fakeStore{}, nil, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, svc.chunkSize)
}

func TestLoadVocabulary_Pages(t *testing.T) {
	store := &fakeStore{}
	for _, tag := range []string{"e", "d", "c", "b", "a", "a"} {
		store.tags = append(store.tags, CastTag{CastHash: tag, Tag: tag})
	}

	vocab, err := LoadVocabulary(context.Background(), store, 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, vocab)
}
