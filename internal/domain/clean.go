package domain

import "strings"

// RecastPrefix starts the text of every recast. Recasts point at another
// cast and carry no content of their own.
const RecastPrefix = "recast:farcaster://"

// Clean drops casts that were already processed, recasts, and repeated
// hashes within casts (first occurrence wins). Mentions on the surviving
// casts are trimmed to fid, username, display name and picture. The input
// slice and processed are left untouched.
func Clean(casts []RawCast, processed HashSet) []RawCast {
	cleaned := make([]RawCast, 0, len(casts))
	seen := make(map[string]struct{}, len(casts))

	for _, c := range casts {
		if processed.Has(c.Hash) {
			continue
		}
		if strings.HasPrefix(c.Text, RecastPrefix) {
			continue
		}
		if _, dup := seen[c.Hash]; dup {
			continue
		}
		seen[c.Hash] = struct{}{}

		if c.Mentions != nil {
			c.Mentions = trimMentions(c.Mentions)
		}
		cleaned = append(cleaned, c)
	}

	return cleaned
}

func trimMentions(mentions []RawProfile) []RawProfile {
	trimmed := make([]RawProfile, len(mentions))
	for i, m := range mentions {
		trimmed[i] = RawProfile{
			Fid:         m.Fid,
			Username:    m.Username,
			DisplayName: m.DisplayName,
		}
		if m.Pfp != nil {
			pfp := *m.Pfp
			trimmed[i].Pfp = &pfp
		}
	}
	return trimmed
}
