package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Bind parameter ceilings of one statement.
const (
	sqliteMaxParams   = 32766
	postgresMaxParams = 65535
)

// ErrNotFound is returned when a cast does not exist.
var ErrNotFound = errors.New("not found")

// Repository implements domain.CastStore over database/sql.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

var _ domain.CastStore = (*Repository)(nil)

// OpenPostgres connects to PostgreSQL at the given URL, verifies the
// connection, and returns a new Repository. The caller should call Close
// when the repository is no longer needed.
func OpenPostgres(databaseURL string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db, dialect: Postgres}, nil
}

// OpenSQLite opens or creates the SQLite database at path. Parent
// directories are created as needed.
func OpenSQLite(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := "file:" + path + "?" + strings.Join([]string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(10000)",
		"_pragma=synchronous(NORMAL)",
	}, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db, dialect: SQLite}, nil
}

// Open selects the backend by driver name.
func Open(driver, databaseURL, sqlitePath string) (*Repository, error) {
	switch Dialect(driver) {
	case Postgres:
		return OpenPostgres(databaseURL)
	case SQLite:
		return OpenSQLite(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Dialect returns the backend in use.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

var castColumns = []string{
	"hash", "thread_hash", "parent_hash",
	"author_fid", "author_username", "author_display_name", "author_pfp_url", "author_pfp_verified",
	"text", "published_at", "mentions",
	"replies_count", "reactions_count", "recasts_count", "watches_count",
	"parent_author_fid", "parent_author_username", "deleted",
	"hash_v1", "thread_hash_v1", "parent_hash_v1",
}

var tagColumns = []string{"cast_hash", "tag", "implicit", "gpt", "published_at"}

// UpsertCasts inserts casts or overwrites the row with the same hash.
// Legacy ids already stored are kept when the incoming cast has none. A
// batch larger than the dialect's bind parameter limit is split into
// several statements inside one transaction.
func (r *Repository) UpsertCasts(ctx context.Context, casts []domain.FlattenedCast) error {
	if len(casts) == 0 {
		return nil
	}

	args := make([]any, 0, len(casts)*len(castColumns))
	for _, c := range casts {
		mentions, err := encodeMentions(c.Mentions)
		if err != nil {
			return fmt.Errorf("encode mentions for %s: %w", c.Hash, err)
		}
		args = append(args,
			c.Hash, c.ThreadHash, c.ParentHash,
			c.AuthorFid, c.AuthorUsername, c.AuthorDisplayName, c.AuthorPfpURL, c.AuthorPfpVerified,
			c.Text, c.PublishedAt.UTC(), mentions,
			c.RepliesCount, c.ReactionsCount, c.RecastsCount, c.WatchesCount,
			c.ParentAuthorFid, c.ParentAuthorUsername, c.Deleted,
			c.HashV1, c.ThreadHashV1, c.ParentHashV1,
		)
	}

	var set []string
	for _, col := range castColumns[1:] {
		switch col {
		case "hash_v1", "thread_hash_v1", "parent_hash_v1":
			set = append(set, fmt.Sprintf("%s = COALESCE(excluded.%s, casts.%s)", col, col, col))
		default:
			set = append(set, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	query := func(rows int) string {
		return `INSERT INTO casts (` + strings.Join(castColumns, ", ") + `)
		VALUES ` + r.valuesList(rows, castColumns) + `
		ON CONFLICT (hash) DO UPDATE SET ` + strings.Join(set, ", ")
	}

	if err := r.execBatched(ctx, len(casts), len(castColumns), args, query); err != nil {
		return fmt.Errorf("upsert %d casts: %w", len(casts), err)
	}
	return nil
}

// UpsertCastTags inserts tags or overwrites the row with the same
// (cast_hash, tag). When tags repeats a key the last occurrence wins.
func (r *Repository) UpsertCastTags(ctx context.Context, tags []domain.CastTag) error {
	tags = lastByKey(tags)
	if len(tags) == 0 {
		return nil
	}

	args := make([]any, 0, len(tags)*len(tagColumns))
	for _, t := range tags {
		args = append(args, t.CastHash, t.Tag, t.Implicit, t.GPT, t.PublishedAt.UTC())
	}

	query := func(rows int) string {
		return `INSERT INTO cast_tags (` + strings.Join(tagColumns, ", ") + `)
		VALUES ` + r.valuesList(rows, tagColumns) + `
		ON CONFLICT (cast_hash, tag) DO UPDATE SET
			implicit = excluded.implicit,
			gpt = excluded.gpt,
			published_at = excluded.published_at`
	}

	if err := r.execBatched(ctx, len(tags), len(tagColumns), args, query); err != nil {
		return fmt.Errorf("upsert %d cast tags: %w", len(tags), err)
	}
	return nil
}

// execBatched runs query over rows rows of args, columns values each. When
// the rows do not fit in one statement they are written by several
// statements in a single transaction, so the batch still lands as a whole.
func (r *Repository) execBatched(ctx context.Context, rows, columns int, args []any, query func(rows int) string) error {
	step := r.maxRows(columns)
	if rows <= step {
		_, err := r.db.ExecContext(ctx, query(rows), args...)
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < rows; start += step {
		end := min(start+step, rows)
		if _, err := tx.ExecContext(ctx, query(end-start), args[start*columns:end*columns]...); err != nil {
			return fmt.Errorf("rows %d-%d: %w", start, end-1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// maxRows is the number of rows of columns values that fit in one
// statement's bind parameters.
func (r *Repository) maxRows(columns int) int {
	limit := sqliteMaxParams
	if r.dialect == Postgres {
		limit = postgresMaxParams
	}
	return limit / columns
}

// ListTagVocabulary returns one page of distinct explicit tags, ordered by
// tag. Suggested tags are not part of the vocabulary.
func (r *Repository) ListTagVocabulary(ctx context.Context, offset, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT tag
		FROM cast_tags
		WHERE implicit = FALSE AND gpt = FALSE
		ORDER BY tag
		LIMIT `+r.placeholder(1)+` OFFSET `+r.placeholder(2),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query tag vocabulary (offset=%d, limit=%d): %w", offset, limit, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// CastByHash returns one cast or ErrNotFound.
func (r *Repository) CastByHash(ctx context.Context, hash string) (*domain.FlattenedCast, error) {
	var (
		c        domain.FlattenedCast
		mentions sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(castColumns, ", ")+` FROM casts WHERE hash = `+r.placeholder(1),
		hash,
	).Scan(
		&c.Hash, &c.ThreadHash, &c.ParentHash,
		&c.AuthorFid, &c.AuthorUsername, &c.AuthorDisplayName, &c.AuthorPfpURL, &c.AuthorPfpVerified,
		&c.Text, &c.PublishedAt, &mentions,
		&c.RepliesCount, &c.ReactionsCount, &c.RecastsCount, &c.WatchesCount,
		&c.ParentAuthorFid, &c.ParentAuthorUsername, &c.Deleted,
		&c.HashV1, &c.ThreadHashV1, &c.ParentHashV1,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cast %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cast %s: %w", hash, err)
	}

	if mentions.Valid {
		if err := json.Unmarshal([]byte(mentions.String), &c.Mentions); err != nil {
			return nil, fmt.Errorf("decode mentions for %s: %w", hash, err)
		}
	}
	c.PublishedAt = c.PublishedAt.UTC()
	return &c, nil
}

// TagsForCast returns the tags of one cast, explicit tags first.
func (r *Repository) TagsForCast(ctx context.Context, hash string) ([]domain.CastTag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+strings.Join(tagColumns, ", ")+`
		FROM cast_tags
		WHERE cast_hash = `+r.placeholder(1)+`
		ORDER BY implicit, gpt, tag`,
		hash,
	)
	if err != nil {
		return nil, fmt.Errorf("query tags for %s: %w", hash, err)
	}
	defer rows.Close()

	var tags []domain.CastTag
	for rows.Next() {
		var t domain.CastTag
		if err := rows.Scan(&t.CastHash, &t.Tag, &t.Implicit, &t.GPT, &t.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.PublishedAt = t.PublishedAt.UTC()
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// TagCount is the number of casts carrying a tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Casts int64  `json:"casts"`
}

// TopTags returns the most used tags on casts published at or after since.
// Tags are grouped case-sensitively as stored.
func (r *Repository) TopTags(ctx context.Context, since time.Time, limit int) ([]TagCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS casts
		FROM cast_tags
		WHERE published_at >= `+r.placeholder(1)+`
		GROUP BY tag
		ORDER BY casts DESC, tag
		LIMIT `+r.placeholder(2),
		since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top tags (since=%v, limit=%d): %w", since, limit, err)
	}
	defer rows.Close()

	var counts []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Casts); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag counts: %w", err)
	}
	return counts, nil
}

func (r *Repository) placeholder(n int) string {
	if r.dialect == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// valuesList renders rows tuples of placeholders for columns.
func (r *Repository) valuesList(rows int, columns []string) string {
	var b strings.Builder
	n := 1
	for i := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, col := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.placeholder(n))
			if r.dialect == Postgres && col == "mentions" {
				b.WriteString("::jsonb")
			}
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func encodeMentions(mentions []domain.Mention) (*string, error) {
	if mentions == nil {
		return nil, nil
	}
	data, err := json.Marshal(mentions)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// lastByKey drops earlier rows that share (cast_hash, tag) with a later
// one. A single upsert statement may not touch the same row twice.
func lastByKey(tags []domain.CastTag) []domain.CastTag {
	type key struct{ hash, tag string }
	last := make(map[key]int, len(tags))
	for i, t := range tags {
		last[key{t.CastHash, t.Tag}] = i
	}
	if len(last) == len(tags) {
		return tags
	}

	out := make([]domain.CastTag, 0, len(last))
	for i, t := range tags {
		if last[key{t.CastHash, t.Tag}] == i {
			out = append(out, t)
		}
	}
	return out
}
