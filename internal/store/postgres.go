package store

import (
	"database/sql"
	"time"

	"github.com/example/authgate/internal/auth"
	"github.com/lib/pq"
)

type PostgresStore struct {
	db  *sql.DB
	dsn string
}

var _ auth.Store = (*PostgresStore)(nil)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func (p *PostgresStore) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func (p *PostgresStore) FindUserByUsername(username string) (*auth.User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT id,username,email,password_hash,role,active,created_at FROM users WHERE username = $1`, username))
}

func (p *PostgresStore) FindUserByEmail(email string) (*auth.User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT id,username,email,password_hash,role,active,created_at FROM users WHERE email = $1`, email))
}

func (p *PostgresStore) FindUserByID(id int64) (*auth.User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT id,username,email,password_hash,role,active,created_at FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) InsertUser(u *auth.User) (*auth.User, error) {
	var id int64
	var created time.Time
	err := p.db.QueryRow(`INSERT INTO users(username,email,password_hash,role,active,created_at) VALUES($1,$2,$3,$4,$5,now()) RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), u.Active).Scan(&id, &created)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	cp := *u
	cp.ID = id
	cp.CreatedAt = created
	return &cp, nil
}

func (p *PostgresStore) UpdateUser(u *auth.User) error {
	res, err := p.db.Exec(`UPDATE users SET username=$1,email=$2,password_hash=$3,role=$4,active=$5 WHERE id=$6`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), u.Active, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}
	return noRowsAsNotFound(res)
}

const pgKeyCols = `id,user_id,key_hash,key_prefix,name,revoked,expires_at,last_used_at,created_at`

func (p *PostgresStore) scanAPIKeys(rows *sql.Rows) ([]*auth.APIKey, error) {
	defer rows.Close()
	var out []*auth.APIKey
	for rows.Next() {
		var k auth.APIKey
		var expires, lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.Revoked, &expires, &lastUsed, &k.CreatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			k.ExpiresAt = &t
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			k.LastUsedAt = &t
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (p *PostgresStore) FindAPIKeysByPrefix(prefix string) ([]*auth.APIKey, error) {
	rows, err := p.db.Query(`SELECT `+pgKeyCols+` FROM api_keys WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, err
	}
	return p.scanAPIKeys(rows)
}

func (p *PostgresStore) FindAPIKeyByID(id int64) (*auth.APIKey, error) {
	rows, err := p.db.Query(`SELECT `+pgKeyCols+` FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	keys, err := p.scanAPIKeys(rows)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, auth.ErrNotFound
	}
	return keys[0], nil
}

func (p *PostgresStore) FindAPIKeysByUser(userID int64) ([]*auth.APIKey, error) {
	rows, err := p.db.Query(`SELECT `+pgKeyCols+` FROM api_keys WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return p.scanAPIKeys(rows)
}

func (p *PostgresStore) InsertAPIKey(k *auth.APIKey) (*auth.APIKey, error) {
	var id int64
	var created time.Time
	err := p.db.QueryRow(`INSERT INTO api_keys(user_id,key_hash,key_prefix,name,revoked,expires_at,last_used_at,created_at) VALUES($1,$2,$3,$4,$5,$6,$7,now()) RETURNING id, created_at`,
		k.UserID, k.KeyHash, k.KeyPrefix, k.Name, k.Revoked, nullTime(k.ExpiresAt), nullTime(k.LastUsedAt)).Scan(&id, &created)
	if err != nil {
		return nil, err
	}
	cp := *k
	cp.ID = id
	cp.CreatedAt = created
	return &cp, nil
}

func (p *PostgresStore) UpdateAPIKey(k *auth.APIKey) error {
	res, err := p.db.Exec(`UPDATE api_keys SET name=$1,revoked=$2,expires_at=$3,last_used_at=$4 WHERE id=$5`,
		k.Name, k.Revoked, nullTime(k.ExpiresAt), nullTime(k.LastUsedAt), k.ID)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res)
}

func (p *PostgresStore) DeleteAPIKey(id int64) error {
	res, err := p.db.Exec(`DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res)
}

func (p *PostgresStore) Close() error { return p.db.Close() }
func (p *PostgresStore) Ping() bool   { return p.db.Ping() == nil }
