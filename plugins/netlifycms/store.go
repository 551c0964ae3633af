package netlifycms

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an entry or upload does not exist.
var ErrNotFound = errors.New("not found")

// Entry is a post held by the editor. Drafts live only here; published
// entries are also written to the content tree.
type Entry struct {
	Slug      string
	Title     string
	Date      string
	Author    string
	Tags      []string
	Excerpt   string
	Body      string
	Published bool
	UpdatedAt time.Time
}

// Upload is the metadata of a stored image.
type Upload struct {
	Filename     string
	OriginalName string
	Width        int
	Height       int
	Size         int
	UploadedAt   time.Time
}

// Store wraps a SQLite database holding editor entries and uploads.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the editor read while a save is in flight; writers wait on
	// the busy timeout instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS entries (
    slug TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    date TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT ',',
    excerpt TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    published INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS uploads (
    filename TEXT PRIMARY KEY,
    original_name TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    size INTEGER NOT NULL,
    uploaded_at TEXT NOT NULL
);
`)
	return err
}

const entryColumns = `slug, title, date, author, tags, excerpt, body, published, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var tags, updated string
	var published int
	if err := row.Scan(&e.Slug, &e.Title, &e.Date, &e.Author, &tags, &e.Excerpt, &e.Body, &published, &updated); err != nil {
		return Entry{}, err
	}
	e.Tags = ParseTags(tags)
	e.Published = published == 1
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return e, nil
}

// ListEntries returns every entry, newest date first.
func (s *Store) ListEntries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT ` + entryColumns + ` FROM entries ORDER BY date DESC, slug ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry returns the entry with the given slug.
func (s *Store) GetEntry(slug string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// SaveEntry upserts an entry. Tags are normalized to lowercase.
func (s *Store) SaveEntry(e Entry) error {
	normalized := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			normalized = append(normalized, t)
		}
	}
	published := 0
	if e.Published {
		published = 1
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Slug, e.Title, e.Date, e.Author, ","+strings.Join(normalized, ",")+",", e.Excerpt, e.Body, published,
		e.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// DeleteEntry removes an entry by slug.
func (s *Store) DeleteEntry(slug string) error {
	_, err := s.db.Exec(`DELETE FROM entries WHERE slug = ?`, slug)
	return err
}

// ListUploads returns every upload, newest first.
func (s *Store) ListUploads() ([]Upload, error) {
	rows, err := s.db.Query(`SELECT filename, original_name, width, height, size, uploaded_at FROM uploads ORDER BY uploaded_at DESC, filename ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		var at string
		if err := rows.Scan(&u.Filename, &u.OriginalName, &u.Width, &u.Height, &u.Size, &at); err != nil {
			return nil, err
		}
		u.UploadedAt, _ = time.Parse(time.RFC3339, at)
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// HasUpload reports whether filename is already taken.
func (s *Store) HasUpload(filename string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM uploads WHERE filename = ?`, filename).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveUpload records an upload.
func (s *Store) SaveUpload(u Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO uploads (filename, original_name, width, height, size, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Filename, u.OriginalName, u.Width, u.Height, u.Size, u.UploadedAt.UTC().Format(time.RFC3339))
	return err
}

// DeleteUpload removes an upload record.
func (s *Store) DeleteUpload(filename string) error {
	_, err := s.db.Exec(`DELETE FROM uploads WHERE filename = ?`, filename)
	return err
}

// ParseTags splits a comma-delimited tag string (e.g. ",go,web,") into a slice.
func ParseTags(tagString string) []string {
	tagString = strings.Trim(tagString, ",")
	if tagString == "" {
		return nil
	}
	parts := strings.Split(tagString, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
