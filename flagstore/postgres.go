package flagstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DefaultTable is the flag table created by Migrate.
const DefaultTable = "cache_flags"

const uniqueViolation = "23505"

var ErrNilDB = errors.New("flagstore: nil db")

// PostgresConfig configures a table-backed flag store.
type PostgresConfig struct {
	DB     *sqlx.DB
	Schema string // optional; unqualified table when empty
	// Table defaults to DefaultTable, the table Migrate creates. Any other table
	// must be created with EnsureTable (or by the caller) before use.
	Table   string
	CloseDB bool // set true only if this store exclusively owns the pool
}

// Postgres keeps flags as rows keyed by a primary key, so the database rejects a
// second insert for the same key. created_at is taken from the database clock
// and drives ClearStale.
type Postgres struct {
	db      *sqlx.DB
	table   string // quoted, schema-qualified
	index   string // quoted, unqualified
	closeDB bool
}

var _ FlagStore = (*Postgres)(nil)

type dbFlag struct {
	Key       string    `db:"key"`
	Owner     string    `db:"owner"`
	CreatedAt time.Time `db:"created_at"`
}

func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	if cfg.DB == nil {
		return nil, ErrNilDB
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	qualified := pq.QuoteIdentifier(table)
	if cfg.Schema != "" {
		qualified = pq.QuoteIdentifier(cfg.Schema) + "." + qualified
	}
	return &Postgres{
		db:      cfg.DB,
		table:   qualified,
		index:   pq.QuoteIdentifier(table + "_created_at_idx"),
		closeDB: cfg.CloseDB,
	}, nil
}

// EnsureTable creates the configured flag table and its created_at index if they
// are missing. The schema must already exist. Use it for a custom Table; the
// default table is managed by Migrate.
func (p *Postgres) EnsureTable(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    key        TEXT PRIMARY KEY,
    owner      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, p.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (created_at)", p.index, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres flag table: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := p.db.GetContext(ctx, &exists,
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1)", p.table), key)
	if err != nil {
		return false, fmt.Errorf("postgres flag exists: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Lookup(ctx context.Context, key string) (Flag, bool, error) {
	var row dbFlag
	err := p.db.GetContext(ctx, &row,
		fmt.Sprintf("SELECT key, owner, created_at FROM %s WHERE key = $1", p.table), key)
	if errors.Is(err, sql.ErrNoRows) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, fmt.Errorf("postgres flag lookup: %w", err)
	}
	return Flag{Key: row.Key, Owner: row.Owner, CreatedAt: row.CreatedAt}, true, nil
}

func (p *Postgres) Create(ctx context.Context, key string) (Flag, error) {
	owner := newOwner()
	var createdAt time.Time
	err := p.db.QueryRowxContext(ctx,
		fmt.Sprintf("INSERT INTO %s (key, owner, created_at) VALUES ($1, $2, now()) RETURNING created_at", p.table),
		key, owner,
	).Scan(&createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Flag{}, ErrLockConflict
		}
		return Flag{}, fmt.Errorf("postgres flag create: %w", err)
	}
	return Flag{Key: key, Owner: owner, CreatedAt: createdAt}, nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", p.table), key)
	if err != nil {
		return fmt.Errorf("postgres flag delete: %w", err)
	}
	return nil
}

func (p *Postgres) Release(ctx context.Context, f Flag) error {
	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE key = $1 AND owner = $2", p.table), f.Key, f.Owner)
	if err != nil {
		return fmt.Errorf("postgres flag release: %w", err)
	}
	return nil
}

func (p *Postgres) ClearStale(ctx context.Context, key string, olderThan time.Duration) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE key = $1 AND created_at < now() - make_interval(secs => $2::double precision)", p.table),
		key, olderThan.Seconds(),
	)
	if err != nil {
		return false, fmt.Errorf("postgres flag clear stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres flag clear stale: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) Close(context.Context) error {
	if p.closeDB {
		return p.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
