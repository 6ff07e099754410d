package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store persists content in the relational store opened by package db.
// Queries use $N placeholders, understood by DuckDB and Postgres.
type Store struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger *slog.Logger
	newID  func() string
}

// NewStore creates a store. A nil clock uses the real clock; a nil logger
// uses slog.Default().
func NewStore(db *sql.DB, clock clockwork.Clock, logger *slog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, clock: clock, logger: logger, newID: uuid.NewString}
}

const storyColumns = `id, slug, language, title, description, published, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanStory(row scanner) (Story, error) {
	var st Story
	err := row.Scan(&st.ID, &st.Slug, &st.Language, &st.Title, &st.Description, &st.Published, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

// ListStories returns the stories of lang ordered by slug. An empty lang
// lists both languages.
func (s *Store) ListStories(ctx context.Context, lang string) ([]Story, error) {
	q := `SELECT ` + storyColumns + ` FROM stories`
	var args []any
	if lang != "" {
		q += ` WHERE language = $1`
		args = append(args, lang)
	}
	q += ` ORDER BY slug, language`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	stories := []Story{}
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, st)
	}
	return stories, rows.Err()
}

// GetStory returns the lang variant of the story with slug.
func (s *Store) GetStory(ctx context.Context, slug, lang string) (Story, error) {
	st, err := scanStory(s.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE slug = $1 AND language = $2`, slug, lang))
	if errors.Is(err, sql.ErrNoRows) {
		return Story{}, fmt.Errorf("story %s/%s: %w", slug, lang, ErrNotFound)
	}
	if err != nil {
		return Story{}, fmt.Errorf("get story: %w", err)
	}
	return st, nil
}

// CreateStory inserts a story, generating its id and timestamps.
func (s *Store) CreateStory(ctx context.Context, st Story) (Story, error) {
	if st.Slug == "" || st.Title == "" {
		return Story{}, errors.New("story slug and title are required")
	}
	if !ValidLanguage(st.Language) {
		return Story{}, fmt.Errorf("unsupported language %q", st.Language)
	}
	if st.ID == "" {
		st.ID = s.newID()
	}
	now := s.clock.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (`+storyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		st.ID, st.Slug, st.Language, st.Title, st.Description, st.Published, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return Story{}, fmt.Errorf("create story: %w", err)
	}
	return st, nil
}

const blockColumns = `id, story_id, language, type, order_index, title, content, data, refs, created_at, updated_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func listBlocks(ctx context.Context, q queryer, storyID, lang string) ([]Block, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE story_id = $1 AND language = $2 ORDER BY order_index, id`,
		storyID, lang)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	blocks := []Block{}
	for rows.Next() {
		var (
			b          Block
			typ        string
			data, refs string
		)
		if err := rows.Scan(&b.ID, &b.StoryID, &b.Language, &typ, &b.OrderIndex, &b.Title, &b.Content, &data, &refs, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if b.Payload, err = DecodePayload(BlockType(typ), []byte(data)); err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(refs), &b.References); err != nil {
			return nil, fmt.Errorf("block %s references: %w", b.ID, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func insertBlock(ctx context.Context, e execer, b Block) error {
	data, err := json.Marshal(b.Payload)
	if err != nil {
		return fmt.Errorf("encode block %s: %w", b.ID, err)
	}
	refs := b.References
	if refs == nil {
		refs = []string{}
	}
	refJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode block %s: %w", b.ID, err)
	}
	_, err = e.ExecContext(ctx,
		`INSERT INTO blocks (`+blockColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.StoryID, b.Language, string(b.Type()), b.OrderIndex, b.Title, b.Content, string(data), string(refJSON), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert block %s: %w", b.ID, err)
	}
	return nil
}

// ListBlocks returns the blocks of a story's lang variant in order.
func (s *Store) ListBlocks(ctx context.Context, storyID, lang string) ([]Block, error) {
	return listBlocks(ctx, s.db, storyID, lang)
}

// replaceBlocks rewrites the lang variant of a story, numbering blocks in
// slice order.
func replaceBlocks(ctx context.Context, e execer, storyID, lang string, blocks []Block) error {
	if _, err := e.ExecContext(ctx, `DELETE FROM blocks WHERE story_id = $1 AND language = $2`, storyID, lang); err != nil {
		return fmt.Errorf("delete blocks: %w", err)
	}
	for i, b := range blocks {
		b.OrderIndex = i
		if err := insertBlock(ctx, e, b); err != nil {
			return err
		}
	}
	return nil
}

// syncOther mirrors the type sequence of src (the lang variant) into other
// and rewrites the other language's blocks.
func (s *Store) syncOther(ctx context.Context, tx *sql.Tx, storyID, lang string, src, other []Block, now time.Time) error {
	otherLang := OtherLanguage(lang)
	mirrored := Mirror(src, other, otherLang, s.newID)
	placeholders := 0
	for i := range mirrored {
		if mirrored[i].CreatedAt.IsZero() {
			mirrored[i].CreatedAt, mirrored[i].UpdatedAt = now, now
			placeholders++
		}
	}
	if err := replaceBlocks(ctx, tx, storyID, otherLang, mirrored); err != nil {
		return err
	}
	if placeholders > 0 || len(other) > len(src) {
		s.logger.Info("mirrored blocks", "story", storyID, "lang", otherLang,
			"placeholders", placeholders, "removed", max(0, len(other)-len(src)))
	}
	return nil
}

// SaveBlocks replaces the lang block list of a story with blocks, renumbered
// in slice order, then mirrors the type sequence into the other language
// with placeholders. Both happen in one transaction. It returns the saved
// blocks.
func (s *Store) SaveBlocks(ctx context.Context, storyID, lang string, blocks []Block) ([]Block, error) {
	if !ValidLanguage(lang) {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}
	now := s.clock.Now().UTC()
	saved := make([]Block, len(blocks))
	for i, b := range blocks {
		if err := normalize(&b); err != nil {
			return nil, err
		}
		if b.ID == "" {
			b.ID = s.newID()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		b.StoryID, b.Language, b.OrderIndex, b.UpdatedAt = storyID, lang, i, now
		saved[i] = b
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := replaceBlocks(ctx, tx, storyID, lang, saved); err != nil {
		return nil, err
	}
	other, err := listBlocks(ctx, tx, storyID, OtherLanguage(lang))
	if err != nil {
		return nil, err
	}
	if err := s.syncOther(ctx, tx, storyID, lang, saved, other, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// CreateBlock appends one block to the end of its story's lang variant and
// appends a placeholder of the same type to the other language.
func (s *Store) CreateBlock(ctx context.Context, b Block) (Block, error) {
	if !ValidLanguage(b.Language) {
		return Block{}, fmt.Errorf("unsupported language %q", b.Language)
	}
	if b.StoryID == "" {
		return Block{}, errors.New("block story id is required")
	}
	if err := normalize(&b); err != nil {
		return Block{}, err
	}
	if b.ID == "" {
		b.ID = s.newID()
	}
	now := s.clock.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Block{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := listBlocks(ctx, tx, b.StoryID, b.Language)
	if err != nil {
		return Block{}, err
	}
	b.OrderIndex = len(current)
	src := append(current, b)
	if err := replaceBlocks(ctx, tx, b.StoryID, b.Language, src); err != nil {
		return Block{}, err
	}
	other, err := listBlocks(ctx, tx, b.StoryID, OtherLanguage(b.Language))
	if err != nil {
		return Block{}, err
	}
	if err := s.syncOther(ctx, tx, b.StoryID, b.Language, src, other, now); err != nil {
		return Block{}, err
	}
	if err := tx.Commit(); err != nil {
		return Block{}, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// DeleteBlock removes a block by id together with the block at the same
// position in the other language when that one has the same type. Both
// variants are renumbered.
func (s *Store) DeleteBlock(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var storyID, lang string
	err = tx.QueryRowContext(ctx, `SELECT story_id, language FROM blocks WHERE id = $1 LIMIT 1`, id).Scan(&storyID, &lang)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("find block: %w", err)
	}

	blocks, err := listBlocks(ctx, tx, storyID, lang)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(blocks, func(b Block) bool { return b.ID == id })
	if idx < 0 {
		return fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	removed := blocks[idx]
	blocks = slices.Delete(blocks, idx, idx+1)

	other, err := listBlocks(ctx, tx, storyID, OtherLanguage(lang))
	if err != nil {
		return err
	}
	if idx < len(other) && other[idx].Type() == removed.Type() {
		other = slices.Delete(other, idx, idx+1)
	}

	if err := replaceBlocks(ctx, tx, storyID, lang, blocks); err != nil {
		return err
	}
	if err := s.syncOther(ctx, tx, storyID, lang, blocks, other, s.clock.Now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const referenceColumns = `id, title, authors, year, type, journal, url`

// ListReferences returns the global reference list in its stored order.
func (s *Store) ListReferences(ctx context.Context) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+referenceColumns+` FROM references_ ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	refs := []Reference{}
	for rows.Next() {
		var (
			r       Reference
			authors string
			typ     string
		)
		if err := rows.Scan(&r.ID, &r.Title, &authors, &r.Year, &typ, &r.Journal, &r.URL); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		r.Type = ReferenceType(typ)
		if err := json.Unmarshal([]byte(authors), &r.Authors); err != nil {
			return nil, fmt.Errorf("reference %s authors: %w", r.ID, err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// UpsertReference inserts r at the end of the list or updates it in place.
func (s *Store) UpsertReference(ctx context.Context, r Reference) error {
	if err := r.Validate(); err != nil {
		return err
	}
	authors := r.Authors
	if authors == nil {
		authors = []string{}
	}
	authorJSON, err := json.Marshal(authors)
	if err != nil {
		return fmt.Errorf("encode authors: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE references_ SET title = $2, authors = $3, year = $4, type = $5, journal = $6, url = $7 WHERE id = $1`,
		r.ID, r.Title, string(authorJSON), r.Year, string(r.Type), r.Journal, r.URL)
	if err != nil {
		return fmt.Errorf("update reference: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return tx.Commit()
	}

	var pos sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM references_`).Scan(&pos); err != nil {
		return fmt.Errorf("next reference position: %w", err)
	}
	next := int64(0)
	if pos.Valid {
		next = pos.Int64 + 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO references_ (`+referenceColumns+`, sort_order) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Title, string(authorJSON), r.Year, string(r.Type), r.Journal, r.URL, next); err != nil {
		return fmt.Errorf("insert reference: %w", err)
	}
	return tx.Commit()
}

// DeleteReference removes a reference by id.
func (s *Store) DeleteReference(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM references_ WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("reference %s: %w", id, ErrNotFound)
	}
	return nil
}
