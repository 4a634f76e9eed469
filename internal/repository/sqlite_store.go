package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"dm-relay/internal/domain"
)

// SQLiteStore keeps sessions in a local user_memory table. It backs the dev
// server; the Lambda deployment uses Client.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ SessionStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile builds a DSN suited to concurrent webhook deliveries.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS user_memory (
		user_id TEXT PRIMARY KEY,
		profile TEXT NOT NULL DEFAULT '{}',
		history TEXT NOT NULL DEFAULT '[]',
		sent_link INTEGER NOT NULL DEFAULT 0,
		last_seen TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0
	);`); err != nil {
		return errors.Wrap(err, "sqlite session store: migrate")
	}
	// Databases created before versioning lack the column.
	if _, err := s.db.Exec(`ALTER TABLE user_memory ADD COLUMN version INTEGER NOT NULL DEFAULT 0`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column name") {
		return errors.Wrap(err, "sqlite session store: migrate version")
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, senderID string) (domain.Session, bool, error) {
	if strings.TrimSpace(senderID) == "" {
		return domain.Session{}, false, errors.New("sqlite session store: sender id is required")
	}
	var (
		profile, history, lastSeen string
		sentLink                   bool
		version                    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT profile, history, sent_link, last_seen, version FROM user_memory WHERE user_id = ?`,
		senderID,
	).Scan(&profile, &history, &sentLink, &lastSeen, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, errors.Wrap(err, "sqlite session store: load")
	}

	p, h, err := decodeBlobs(profile, history)
	if err != nil {
		return domain.Session{}, false, errors.Wrap(err, "sqlite session store: load")
	}
	out := domain.Session{SenderID: senderID, Profile: p, History: h, SentLink: sentLink, Version: version}
	if ts, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
		out.LastSeen = ts
	}
	return out, true, nil
}

// Save upserts in one statement and bumps version. The update only applies
// while the stored version is the one sess was loaded at, or when it replays
// identical content; otherwise nothing changes and domain.ErrSessionConflict
// is returned.
func (s *SQLiteStore) Save(ctx context.Context, senderID string, sess domain.Session) error {
	if strings.TrimSpace(senderID) == "" {
		return errors.New("sqlite session store: sender id is required")
	}
	profile, history, err := encodeBlobs(sess)
	if err != nil {
		return errors.Wrap(err, "sqlite session store: save")
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memory (user_id, profile, history, sent_link, last_seen, version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			profile = excluded.profile,
			history = excluded.history,
			sent_link = excluded.sent_link,
			last_seen = excluded.last_seen,
			version = excluded.version
		WHERE user_memory.version = ?
			OR (user_memory.version = excluded.version
				AND user_memory.profile = excluded.profile
				AND user_memory.history = excluded.history
				AND user_memory.sent_link = excluded.sent_link)
	`, senderID, profile, history, sess.SentLink, now, sess.Version+1, sess.Version)
	if err != nil {
		return errors.Wrap(err, "sqlite session store: save")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite session store: save")
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrSessionConflict, "sqlite session store: save %s", senderID)
	}
	return nil
}
