package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	_ "modernc.org/sqlite"

	"github.com/subtitle-studio/workbench/internal/subtitle"
	"github.com/subtitle-studio/workbench/internal/tm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the durable key-value backend for the working draft, the
// saved-file library, and the translation memory.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

type filePayload struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Cues     []subtitle.Cue `json:"cues"`
	Language string         `json:"language"`
	Format   string         `json:"format"`
}

func toPayload(file subtitle.File) filePayload {
	return filePayload{
		ID:       file.ID,
		Name:     file.Name,
		Cues:     file.Cues,
		Language: file.Language.String(),
		Format:   file.Format,
	}
}

func fromPayload(payload filePayload) subtitle.File {
	langTag, err := language.Parse(payload.Language)
	if err != nil {
		langTag = language.Und
	}
	file := subtitle.File{
		ID:       payload.ID,
		Name:     payload.Name,
		Cues:     payload.Cues,
		Language: langTag,
		Format:   payload.Format,
	}
	file.RecomputeProgress()
	return file
}

// SaveDraft upserts the whole file collection under the draft key.
func (s *SQLiteStore) SaveDraft(ctx context.Context, files []subtitle.File) error {
	payloads := make([]filePayload, 0, len(files))
	for _, file := range files {
		payloads = append(payloads, toPayload(file))
	}
	payloadJSON, err := json.Marshal(payloads)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO drafts (draft_key, payload_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(draft_key) DO UPDATE SET
			payload_json=excluded.payload_json,
			updated_at=excluded.updated_at`,
		DraftKey,
		string(payloadJSON),
		time.Now().UTC(),
	)
	return err
}

// LoadDraft returns the saved collection, with ok=false when no draft exists.
func (s *SQLiteStore) LoadDraft(ctx context.Context) ([]subtitle.File, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload_json FROM drafts WHERE draft_key = ?`, DraftKey)
	var payloadJSON string
	if err := row.Scan(&payloadJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	var payloads []filePayload
	if err := json.Unmarshal([]byte(payloadJSON), &payloads); err != nil {
		return nil, false, err
	}
	files := make([]subtitle.File, 0, len(payloads))
	for _, payload := range payloads {
		files = append(files, fromPayload(payload))
	}
	return files, true, nil
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE draft_key = ?`, DraftKey)
	return err
}

// SaveToLibrary stores a completed file under a user-chosen name.
func (s *SQLiteStore) SaveToLibrary(ctx context.Context, name string, file subtitle.File) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("library name is required")
	}
	payloadJSON, err := json.Marshal(toPayload(file))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO library (name, payload_json, saved_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			payload_json=excluded.payload_json,
			saved_at=excluded.saved_at`,
		name,
		string(payloadJSON),
		time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) LoadFromLibrary(ctx context.Context, name string) (subtitle.File, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload_json FROM library WHERE name = ?`, name)
	var payloadJSON string
	if err := row.Scan(&payloadJSON); err != nil {
		if err == sql.ErrNoRows {
			return subtitle.File{}, false, nil
		}
		return subtitle.File{}, false, err
	}
	var payload filePayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return subtitle.File{}, false, err
	}
	return fromPayload(payload), true, nil
}

func (s *SQLiteStore) ListLibrary(ctx context.Context) ([]LibraryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, saved_at FROM library ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]LibraryEntry, 0)
	for rows.Next() {
		var item LibraryEntry
		if err := rows.Scan(&item.Name, &item.SavedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteFromLibrary(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM library WHERE name = ?`, name)
	return err
}

// LoadMemory hydrates the full translation-memory table.
func (s *SQLiteStore) LoadMemory(ctx context.Context) ([]tm.Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT lang, source_key, translation, updated_at FROM translation_memory`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]tm.Entry, 0)
	for rows.Next() {
		var item tm.Entry
		if err := rows.Scan(&item.Lang, &item.SourceKey, &item.Translation, &item.UpdatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// UpsertMemory writes one translation-memory entry.
func (s *SQLiteStore) UpsertMemory(ctx context.Context, entry tm.Entry) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO translation_memory (lang, source_key, translation, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lang, source_key) DO UPDATE SET
			translation=excluded.translation,
			updated_at=excluded.updated_at`,
		entry.Lang,
		entry.SourceKey,
		entry.Translation,
		entry.UpdatedAt,
	)
	return err
}
