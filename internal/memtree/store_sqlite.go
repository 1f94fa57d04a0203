package memtree

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/forgehq/forge/internal/storage"
)

// SQLiteStore persists the tree to a local transactional database, per
// spec.md §4.6's schema: tree_nodes(node_id, parent_id, text, embedding
// BLOB, level, importance, created_at) with parent_id -> node_id foreign
// key, plus conversations(...) and metadata(key, value, updated_at).
// Grounded on internal/memory/backend/sqlitevec/backend.go's persistence
// idiom (transactional insert, BLOB-encoded embeddings); the schema and
// insert-ordering rules here are new, following spec.md §4.6 rather than
// the teacher's flat single-table schema.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and initializes, migrating if needed) path. Use
// ":memory:" for an ephemeral store. The underlying driver is chosen by
// internal/storage: the cgo-accelerated mattn/go-sqlite3 driver when cgo is
// available, the pure-Go modernc.org/sqlite driver otherwise.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memtree: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate detects a stale tree_nodes table (wrong primary key or missing
// the importance column) via table introspection, drops it, and lets
// init() recreate it from the shipped schema — spec.md §4.6 "Schema
// migration".
func (s *SQLiteStore) migrate() error {
	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name='tree_nodes'`)
	if err != nil {
		return fmt.Errorf("memtree: introspect: %w", err)
	}
	exists := rows.Next()
	rows.Close()
	if !exists {
		return nil
	}

	info, err := s.db.Query(`PRAGMA table_info(tree_nodes)`)
	if err != nil {
		return fmt.Errorf("memtree: table_info: %w", err)
	}
	defer info.Close()

	hasImportance := false
	hasValidPK := false
	for info.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := info.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("memtree: scan table_info: %w", err)
		}
		if name == "importance" {
			hasImportance = true
		}
		if name == "node_id" && pk == 1 {
			hasValidPK = true
		}
	}
	if hasImportance && hasValidPK {
		return nil
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tree_nodes`).Scan(&count); err != nil {
		return fmt.Errorf("memtree: count stale table: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("memtree: refusing to drop non-empty stale tree_nodes table (schema mismatch: importance=%v pk=%v)", hasImportance, hasValidPK)
	}

	if _, err := s.db.Exec(`DROP TABLE tree_nodes`); err != nil {
		return fmt.Errorf("memtree: drop stale table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tree_nodes (
			node_id INTEGER PRIMARY KEY,
			parent_id INTEGER,
			text TEXT NOT NULL,
			embedding BLOB,
			level INTEGER NOT NULL DEFAULT 0,
			importance TEXT NOT NULL DEFAULT 'normal',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (parent_id) REFERENCES tree_nodes(node_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tree_nodes_parent ON tree_nodes(parent_id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("memtree: init schema: %w", err)
		}
	}

	var rootExists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tree_nodes WHERE node_id = 0`).Scan(&rootExists); err != nil {
		return fmt.Errorf("memtree: check root: %w", err)
	}
	if rootExists == 0 {
		_, err := s.db.Exec(
			`INSERT INTO tree_nodes (node_id, parent_id, text, embedding, level, importance, created_at) VALUES (0, NULL, '', NULL, 0, 'normal', ?)`,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("memtree: seed root: %w", err)
		}
	}
	return nil
}

// NextID returns the next unused node id (root=0 always exists).
func (s *SQLiteStore) NextID(ctx context.Context) (uint64, error) {
	var max uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(node_id), 0) FROM tree_nodes`).Scan(&max); err != nil {
		return 0, fmt.Errorf("memtree: next id: %w", err)
	}
	return max + 1, nil
}

// InsertPath persists ancestors (root-first, as recomputeAncestors
// returns them) then the new leaf, in one transaction — spec.md §4.6's
// foreign-key-respecting insert order.
func (s *SQLiteStore) InsertPath(ctx context.Context, ancestors []Node, leaf Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memtree: begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert := `INSERT INTO tree_nodes (node_id, parent_id, text, embedding, level, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET embedding = excluded.embedding, level = excluded.level`

	for _, n := range ancestors {
		if err := execNode(ctx, tx, upsert, n); err != nil {
			return fmt.Errorf("memtree: persist ancestor %d: %w", n.ID, err)
		}
	}
	if err := execNode(ctx, tx, upsert, leaf); err != nil {
		return fmt.Errorf("memtree: persist leaf %d: %w", leaf.ID, err)
	}

	return tx.Commit()
}

func execNode(ctx context.Context, tx *sql.Tx, query string, n Node) error {
	var parentID any
	if n.ParentID != nil {
		parentID = *n.ParentID
	}
	_, err := tx.ExecContext(ctx, query,
		n.ID, parentID, n.Text, encodeEmbedding(n.Embedding), n.Level, string(n.Importance), n.CreatedAt,
	)
	return err
}

// LoadAll reads every persisted node, used to rebuild the tree on startup.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_id, parent_id, text, embedding, level, importance, created_at FROM tree_nodes ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("memtree: load all: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n Node
		var parentID sql.NullInt64
		var embeddingBlob []byte
		var importance string
		if err := rows.Scan(&n.ID, &parentID, &n.Text, &embeddingBlob, &n.Level, &importance, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("memtree: scan node: %w", err)
		}
		if parentID.Valid {
			pid := uint64(parentID.Int64)
			n.ParentID = &pid
		}
		n.Embedding = decodeEmbedding(embeddingBlob)
		n.Importance = Importance(importance)
		out = append(out, n)
	}
	return out, rows.Err()
}

// AppendConversationLog writes a flat history row, independent of whether
// the text was indexed into the tree.
func (s *SQLiteStore) AppendConversationLog(ctx context.Context, role, content string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (timestamp, role, content) VALUES (?, ?, ?)`, at, role, content)
	if err != nil {
		return fmt.Errorf("memtree: append conversation log: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeEmbedding/decodeEmbedding mirror sqlitevec/backend.go's IEEE-754
// byte encoding of a []float32, kept identical for drop-in compatibility
// with the teacher's BLOB format.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}
