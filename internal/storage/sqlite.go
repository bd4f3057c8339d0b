package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to a SQLite database holding marketplace
// snapshots.
type DB struct {
	db *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// NewDB opens (or creates) a SQLite database at path and runs schema migrations.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// PRAGMAs are per connection; a single connection keeps them in force.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Enable foreign keys.
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveSnapshot replaces the stored tables with the contents of snap inside a
// single SQL transaction. A failed save leaves the previous snapshot intact.
func (d *DB) SaveSnapshot(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("save snapshot: nil snapshot")
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	// Children first so foreign keys hold.
	for _, table := range []string{"commitments", "transactions", "listings", "agents"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i := range snap.Agents {
		if err := insertAgent(tx, i, &snap.Agents[i]); err != nil {
			return err
		}
	}
	for i := range snap.Listings {
		if err := insertListing(tx, i, &snap.Listings[i]); err != nil {
			return err
		}
	}
	for i := range snap.Transactions {
		if err := insertTransaction(tx, i, &snap.Transactions[i]); err != nil {
			return err
		}
	}
	for i := range snap.Commitments {
		if err := insertCommitment(tx, i, &snap.Commitments[i]); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO snapshot_meta (id, taken_at) VALUES (1, ?)`,
		snap.TakenAt,
	); err != nil {
		return fmt.Errorf("write snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads every table back in insertion order. An empty database
// yields an empty snapshot with TakenAt = 0.
func (d *DB) LoadSnapshot() (*Snapshot, error) {
	agents, err := d.ListAgents()
	if err != nil {
		return nil, err
	}
	listings, err := d.ListListings()
	if err != nil {
		return nil, err
	}
	txs, err := d.ListTransactions()
	if err != nil {
		return nil, err
	}
	commitments, err := d.ListCommitments()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Agents:       agents,
		Listings:     listings,
		Transactions: txs,
		Commitments:  commitments,
	}
	err = d.db.QueryRow(`SELECT taken_at FROM snapshot_meta WHERE id = 1`).Scan(&snap.TakenAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read snapshot meta: %w", err)
	}
	return snap, nil
}

// boolToInt converts a Go bool to a SQLite integer (0 or 1).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// migrate creates all required tables if they do not already exist. The seq
// columns preserve insertion order, which ranking and top-agent tie breaks
// depend on.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    specializations TEXT NOT NULL,
    reputation INTEGER NOT NULL,
    total_sales INTEGER DEFAULT 0,
    total_earnings REAL DEFAULT 0.0,
    verified INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    seller_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    category TEXT NOT NULL,
    price REAL NOT NULL,
    quality_score REAL NOT NULL,
    sales_count INTEGER DEFAULT 0,
    rating REAL DEFAULT 0.0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (seller_id) REFERENCES agents(id)
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    buyer_id TEXT NOT NULL,
    seller_id TEXT NOT NULL,
    intelligence_id TEXT NOT NULL,
    price REAL NOT NULL,
    timestamp INTEGER NOT NULL,
    rating INTEGER,
    review TEXT,
    shielded_tx_id TEXT,
    commitment_id TEXT,
    FOREIGN KEY (intelligence_id) REFERENCES listings(id)
);

CREATE TABLE IF NOT EXISTS commitments (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    agent_id TEXT NOT NULL,
    transaction_id TEXT,
    hash TEXT NOT NULL,
    algorithm TEXT NOT NULL,
    reasoning TEXT,
    nonce TEXT,
    context TEXT,
    status TEXT DEFAULT 'committed',
    created_at INTEGER NOT NULL,
    reveal_deadline INTEGER NOT NULL,
    revealed_at INTEGER
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
    id INTEGER PRIMARY KEY,
    taken_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);
CREATE INDEX IF NOT EXISTS idx_transactions_intelligence ON transactions(intelligence_id);
CREATE INDEX IF NOT EXISTS idx_commitments_transaction ON commitments(transaction_id);
`
	_, err := d.db.Exec(schema)
	return err
}
