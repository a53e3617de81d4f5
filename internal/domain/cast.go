package domain

import "time"

// RawCast is a cast exactly as returned by the recent-casts endpoint.
type RawCast struct {
	Hash       string  `json:"hash"`
	ThreadHash string  `json:"threadHash"`
	ParentHash *string `json:"parentHash,omitempty"`

	Author RawProfile `json:"author"`

	Text string `json:"text"`

	// Timestamp is the publish time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	Mentions []RawProfile `json:"mentions,omitempty"`

	Replies   Counter `json:"replies"`
	Reactions Counter `json:"reactions"`
	Recasts   Counter `json:"recasts"`
	Watches   Counter `json:"watches"`

	ParentAuthor *RawProfile `json:"parentAuthor,omitempty"`

	// Legacy identifiers, only present on casts that predate the v2 hash
	// format.
	HashV1       *string `json:"_hashV1,omitempty"`
	ThreadHashV1 *string `json:"_threadHashV1,omitempty"`
	ParentHashV1 *string `json:"_parentHashV1,omitempty"`
}

// RawProfile is an upstream user descriptor. It is used for cast authors,
// parent authors and mentions.
type RawProfile struct {
	Fid         int64  `json:"fid"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName"`
	Pfp         *Pfp   `json:"pfp,omitempty"`

	// Upstream-only fields. They are dropped when mentions are trimmed.
	FollowerCount    int64       `json:"followerCount,omitempty"`
	FollowingCount   int64       `json:"followingCount,omitempty"`
	ReferrerUsername string      `json:"referrerUsername,omitempty"`
	Profile          *ProfileBio `json:"profile,omitempty"`
}

// ProfileBio is the free-text profile section of a RawProfile.
type ProfileBio struct {
	Bio struct {
		Text     string   `json:"text"`
		Mentions []string `json:"mentions,omitempty"`
	} `json:"bio"`
}

// Pfp is a profile picture descriptor.
type Pfp struct {
	URL      string `json:"url"`
	Verified bool   `json:"verified"`
}

// Counter wraps an engagement count.
type Counter struct {
	Count int64 `json:"count"`
}

// Mention is the trimmed author descriptor persisted with a cast.
type Mention struct {
	Fid         int64  `json:"fid"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName"`
	Pfp         *Pfp   `json:"pfp,omitempty"`
}

// FlattenedCast is one row of the casts table. Hash is the primary key and
// the upsert conflict key.
type FlattenedCast struct {
	Hash       string  `json:"hash"`
	ThreadHash string  `json:"thread_hash"`
	ParentHash *string `json:"parent_hash"`

	AuthorFid         int64   `json:"author_fid"`
	AuthorUsername    *string `json:"author_username"`
	AuthorDisplayName string  `json:"author_display_name"`
	AuthorPfpURL      *string `json:"author_pfp_url"`
	AuthorPfpVerified bool    `json:"author_pfp_verified"`

	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
	Mentions    []Mention `json:"mentions"`

	RepliesCount   int64 `json:"replies_count"`
	ReactionsCount int64 `json:"reactions_count"`
	RecastsCount   int64 `json:"recasts_count"`
	WatchesCount   int64 `json:"watches_count"`

	ParentAuthorFid      *int64  `json:"parent_author_fid"`
	ParentAuthorUsername *string `json:"parent_author_username"`

	Deleted bool `json:"deleted"`

	// Omitted entirely when unknown so "no legacy id" is distinguishable
	// from an explicitly empty one.
	HashV1       *string `json:"hash_v1,omitempty"`
	ThreadHashV1 *string `json:"thread_hash_v1,omitempty"`
	ParentHashV1 *string `json:"parent_hash_v1,omitempty"`
}

// CastTag links a cast to one tag. (CastHash, Tag) is the upsert conflict
// key.
type CastTag struct {
	CastHash string `json:"cast_hash"`

	// Tag is the surface form as found in the cast text.
	Tag string `json:"tag"`

	// Implicit is false for hashtags and true for vocabulary mentions and
	// suggestions.
	Implicit bool `json:"implicit"`

	// GPT marks tags produced by a TagSuggester rather than by extraction.
	GPT bool `json:"gpt"`

	PublishedAt time.Time `json:"published_at"`
}

// HashSet is a set of cast hashes already persisted by earlier runs. It is
// owned by the caller and only read by the pipeline.
type HashSet map[string]struct{}

// NewHashSet returns a set holding the given hashes.
func NewHashSet(hashes ...string) HashSet {
	s := make(HashSet, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Has reports whether hash is in the set. A nil set is empty.
func (s HashSet) Has(hash string) bool {
	_, ok := s[hash]
	return ok
}
