package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	casts := []RawCast{
		{Hash: "a", Text: "hello"},
		{Hash: "b", Text: "already seen"},
		{Hash: "c", Text: "recast:farcaster://casts/0xabc"},
		{Hash: "d", Text: "not a recast: recast:farcaster://x"},
		{Hash: "a", Text: "duplicate within page"},
	}
	processed := NewHashSet("b")

	got := Clean(casts, processed)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Hash)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, "d", got[1].Hash)
	for _, c := range got {
		assert.False(t, processed.Has(c.Hash))
	}
	assert.Len(t, processed, 1)
}

func TestClean_TrimsMentions(t *testing.T) {
	casts := []RawCast{{
		Hash: "a",
		Mentions: []RawProfile{{
			Fid:              1,
			Username:         "alice",
			DisplayName:      "Alice",
			Pfp:              &Pfp{URL: "u", Verified: true},
			FollowerCount:    10,
			FollowingCount:   20,
			ReferrerUsername: "bob",
			Profile:          &ProfileBio{},
		}},
	}}

	got := Clean(casts, nil)

	require.Len(t, got, 1)
	assert.Equal(t, []RawProfile{{
		Fid:         1,
		Username:    "alice",
		DisplayName: "Alice",
		Pfp:         &Pfp{URL: "u", Verified: true},
	}}, got[0].Mentions)

	// input is untouched
	assert.Equal(t, int64(10), casts[0].Mentions[0].FollowerCount)
}

func TestClean_Empty(t *testing.T) {
	assert.Empty(t, Clean(nil, NewHashSet()))
}
