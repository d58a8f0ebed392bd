package store

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/authgate/internal/auth"
)

// SQLiteStore keeps the schema in-file; migrations are postgres-only.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ auth.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'USER',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			key_hash TEXT NOT NULL,
			key_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT,
			last_used_at TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	var role, created string
	var active int
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &active, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	u.Active = active != 0
	u.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	return &u, nil
}

func (s *SQLiteStore) FindUserByUsername(username string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,username,email,password_hash,role,active,created_at FROM users WHERE username = ?`, username))
}

func (s *SQLiteStore) FindUserByEmail(email string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,username,email,password_hash,role,active,created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) FindUserByID(id int64) (*auth.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,username,email,password_hash,role,active,created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) InsertUser(u *auth.User) (*auth.User, error) {
	now := time.Now()
	res, err := s.db.Exec(`INSERT INTO users(username,email,password_hash,role,active,created_at) VALUES(?,?,?,?,?,?)`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), boolToInt(u.Active), now.Format(sqliteTimeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	cp := *u
	cp.ID = id
	cp.CreatedAt = now
	return &cp, nil
}

func (s *SQLiteStore) UpdateUser(u *auth.User) error {
	res, err := s.db.Exec(`UPDATE users SET username=?,email=?,password_hash=?,role=?,active=? WHERE id=?`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), boolToInt(u.Active), u.ID)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res)
}

const sqliteKeyCols = `id,user_id,key_hash,key_prefix,name,revoked,expires_at,last_used_at,created_at`

func (s *SQLiteStore) scanAPIKeys(rows *sql.Rows) ([]*auth.APIKey, error) {
	defer rows.Close()
	var out []*auth.APIKey
	for rows.Next() {
		var k auth.APIKey
		var revoked int
		var created string
		var expires, lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &k.Name, &revoked, &expires, &lastUsed, &created); err != nil {
			return nil, err
		}
		k.Revoked = revoked != 0
		k.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
		if expires.Valid {
			t, _ := time.Parse(sqliteTimeLayout, expires.String)
			k.ExpiresAt = &t
		}
		if lastUsed.Valid {
			t, _ := time.Parse(sqliteTimeLayout, lastUsed.String)
			k.LastUsedAt = &t
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindAPIKeysByPrefix(prefix string) ([]*auth.APIKey, error) {
	rows, err := s.db.Query(`SELECT `+sqliteKeyCols+` FROM api_keys WHERE key_prefix = ?`, prefix)
	if err != nil {
		return nil, err
	}
	return s.scanAPIKeys(rows)
}

func (s *SQLiteStore) FindAPIKeyByID(id int64) (*auth.APIKey, error) {
	rows, err := s.db.Query(`SELECT `+sqliteKeyCols+` FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	keys, err := s.scanAPIKeys(rows)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, auth.ErrNotFound
	}
	return keys[0], nil
}

func (s *SQLiteStore) FindAPIKeysByUser(userID int64) ([]*auth.APIKey, error) {
	rows, err := s.db.Query(`SELECT `+sqliteKeyCols+` FROM api_keys WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return s.scanAPIKeys(rows)
}

func (s *SQLiteStore) InsertAPIKey(k *auth.APIKey) (*auth.APIKey, error) {
	now := time.Now()
	res, err := s.db.Exec(`INSERT INTO api_keys(user_id,key_hash,key_prefix,name,revoked,expires_at,last_used_at,created_at) VALUES(?,?,?,?,?,?,?,?)`,
		k.UserID, k.KeyHash, k.KeyPrefix, k.Name, boolToInt(k.Revoked), nullTimeString(k.ExpiresAt), nullTimeString(k.LastUsedAt), now.Format(sqliteTimeLayout))
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	cp := *k
	cp.ID = id
	cp.CreatedAt = now
	return &cp, nil
}

func (s *SQLiteStore) UpdateAPIKey(k *auth.APIKey) error {
	res, err := s.db.Exec(`UPDATE api_keys SET name=?,revoked=?,expires_at=?,last_used_at=? WHERE id=?`,
		k.Name, boolToInt(k.Revoked), nullTimeString(k.ExpiresAt), nullTimeString(k.LastUsedAt), k.ID)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res)
}

func (s *SQLiteStore) DeleteAPIKey(id int64) error {
	res, err := s.db.Exec(`DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
func (s *SQLiteStore) Ping() bool   { return s.db.Ping() == nil }
