package domain

import "time"

// Normalize maps a raw upstream cast onto its storage row. It is total and
// pure: absent fields take their zero value or nil, and nothing in the
// result aliases the input.
func Normalize(c RawCast) FlattenedCast {
	fc := FlattenedCast{
		Hash:              c.Hash,
		ThreadHash:        c.ThreadHash,
		ParentHash:        optionalString(c.ParentHash),
		AuthorFid:         c.Author.Fid,
		AuthorUsername:    nonEmpty(c.Author.Username),
		AuthorDisplayName: c.Author.DisplayName,
		Text:              c.Text,
		PublishedAt:       time.UnixMilli(c.Timestamp).UTC(),
		RepliesCount:      c.Replies.Count,
		ReactionsCount:    c.Reactions.Count,
		RecastsCount:      c.Recasts.Count,
		WatchesCount:      c.Watches.Count,
		Deleted:           false,
		HashV1:            cloneString(c.HashV1),
		ThreadHashV1:      cloneString(c.ThreadHashV1),
		ParentHashV1:      cloneString(c.ParentHashV1),
	}

	if c.Author.Pfp != nil {
		fc.AuthorPfpURL = nonEmpty(c.Author.Pfp.URL)
		fc.AuthorPfpVerified = c.Author.Pfp.Verified
	}

	if c.Mentions != nil {
		fc.Mentions = make([]Mention, len(c.Mentions))
		for i, m := range c.Mentions {
			fc.Mentions[i] = toMention(m)
		}
	}

	if c.ParentAuthor != nil {
		if c.ParentAuthor.Fid != 0 {
			fid := c.ParentAuthor.Fid
			fc.ParentAuthorFid = &fid
		}
		fc.ParentAuthorUsername = nonEmpty(c.ParentAuthor.Username)
	}

	return fc
}

// NormalizeAll normalizes casts in order.
func NormalizeAll(casts []RawCast) []FlattenedCast {
	out := make([]FlattenedCast, len(casts))
	for i, c := range casts {
		out[i] = Normalize(c)
	}
	return out
}

func toMention(p RawProfile) Mention {
	m := Mention{
		Fid:         p.Fid,
		Username:    p.Username,
		DisplayName: p.DisplayName,
	}
	if p.Pfp != nil {
		pfp := *p.Pfp
		m.Pfp = &pfp
	}
	return m
}

// optionalString treats an empty upstream value the same as a missing one.
func optionalString(p *string) *string {
	if p == nil {
		return nil
	}
	return nonEmpty(*p)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// cloneString keeps presence, including an explicitly empty value.
func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}
