package warpcast

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
)

func castJSON(hash, username string) string {
	return fmt.Sprintf(`{"hash":%q,"threadHash":%q,"author":{"fid":1,"username":%q,"displayName":"x"},"text":"hi","timestamp":1678806566000,"replies":{"count":0},"reactions":{"count":2},"recasts":{"count":0},"watches":{"count":0}}`, hash, hash, username)
}

// pagedServer serves pages keyed by cursor; the empty cursor is the first page.
func pagedServer(t *testing.T, pages map[string]string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		body, ok := pages[r.URL.Query().Get("cursor")]
		if !ok {
			http.Error(w, "unknown cursor", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func page(next string, casts ...string) string {
	nextJSON := ""
	if next != "" {
		nextJSON = fmt.Sprintf(`,"next":{"cursor":%q}`, next)
	}
	return fmt.Sprintf(`{"result":{"casts":[%s]}%s}`, strings.Join(casts, ","), nextJSON)
}

func hashes(casts []domain.RawCast) []string {
	out := make([]string, len(casts))
	for i, c := range casts {
		out[i] = c.Hash
	}
	return out
}

func TestFetchCasts_FollowsCursor(t *testing.T) {
	var hits atomic.Int32
	srv := pagedServer(t, map[string]string{
		"":   page("p2", castJSON("a", "alice"), castJSON("b", "bot__tt_1")),
		"p2": page("p3", castJSON("c", "carol")),
		"p3": page("", castJSON("d", "dave")),
	}, &hits)
	defer srv.Close()

	c := NewClient(Options{FeedURL: srv.URL})
	casts, err := c.FetchCasts(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, hashes(casts))
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int64(2), casts[0].Reactions.Count)
	assert.Equal(t, "alice", casts[0].Author.Username)
}

func TestFetchCasts_StopsAtLimit(t *testing.T) {
	var hits atomic.Int32
	srv := pagedServer(t, map[string]string{
		"":   page("p2", castJSON("a", "alice"), castJSON("b", "bob")),
		"p2": page("p3", castJSON("c", "carol"), castJSON("d", "dave")),
		"p3": page("", castJSON("e", "erin")),
	}, &hits)
	defer srv.Close()

	c := NewClient(Options{FeedURL: srv.URL})
	casts, err := c.FetchCasts(context.Background(), 3)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, hashes(casts))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchCasts_RestartsEachCall(t *testing.T) {
	var hits atomic.Int32
	srv := pagedServer(t, map[string]string{
		"": page("", castJSON("a", "alice")),
	}, &hits)
	defer srv.Close()

	c := NewClient(Options{FeedURL: srv.URL})
	for range 2 {
		casts, err := c.FetchCasts(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, hashes(casts))
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchCasts_MissingCasts(t *testing.T) {
	var hits atomic.Int32
	srv := pagedServer(t, map[string]string{
		"":   page("p2", castJSON("a", "alice")),
		"p2": `{"result":{},"next":{"cursor":"p3"}}`,
	}, &hits)
	defer srv.Close()

	c := NewClient(Options{FeedURL: srv.URL})
	casts, err := c.FetchCasts(context.Background(), 0)

	require.ErrorIs(t, err, domain.ErrMissingCasts)
	assert.Nil(t, casts)
}

func TestFetchCasts_EmptyPageIsValid(t *testing.T) {
	var hits atomic.Int32
	srv := pagedServer(t, map[string]string{"": `{"result":{"casts":[]}}`}, &hits)
	defer srv.Close()

	casts, err := NewClient(Options{FeedURL: srv.URL}).FetchCasts(context.Background(), 0)

	require.NoError(t, err)
	assert.Empty(t, casts)
}

func TestFetchCasts_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(Options{FeedURL: srv.URL}).FetchCasts(context.Background(), 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestFetchCasts_CustomSpamMarkers(t *testing.T) {
	var hits atomic.Int32
	srv := pagedServer(t, map[string]string{
		"": page("", castJSON("a", "alice"), castJSON("b", "spammy"), castJSON("c", "bot__tt_2")),
	}, &hits)
	defer srv.Close()

	c := NewClient(Options{FeedURL: srv.URL, SpamMarkers: []string{"spam", ""}})
	casts, err := c.FetchCasts(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, hashes(casts))
}
