// Package sqlite implements the chunk and transcript store on a local SQLite
// database: FTS5 for the keyword index, a registered cosine-distance scalar
// function over fixed-width float32 BLOBs for ordered nearest-neighbor
// queries, and tolerant versioned schema migrations.
package sqlite

import (
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	sqlite3 "modernc.org/sqlite"

	"github.com/nextlevelbuilder/recall/internal/store"
)

const schemaVersion = 2

// distanceFunc is the SQL scalar registered for vector search.
const distanceFunc = "vec_distance_cos"

// Options configures store initialization.
type Options struct {
	// VectorDims fixes the embedding dimensionality at schema-init time
	// (default 3072). Changing it later requires a new database.
	VectorDims int
}

// Store owns the schema and all write paths to persisted rows.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	status store.Status
	dims   int
	vecErr error // distance-function registration failure, nil when vector search works
}

// Open opens (or creates) the database at path, initializes the schema and
// runs pending migrations. Missing FTS5 or vector support is reported in the
// returned store's Status, not as an error.
func Open(path string, opts Options) (*Store, error) {
	dims := opts.VectorDims
	if dims <= 0 {
		dims = 3072
	}

	// Register before the pool opens its first connection: the driver
	// installs scalar functions at connection-open time.
	vecErr := registerDistanceFunc()

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, dims: dims, vecErr: vecErr}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	slog.Info("store opened", "path", path,
		"fts", s.status.FTSAvailable, "vector", s.status.VectorAvailable,
		"dims", s.status.VectorDims, "schema_version", s.status.SchemaVersion)
	return s, nil
}

// Status returns the capability flags and schema version recorded at open.
func (s *Store) Status() store.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	coreStmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_channel ON transcripts(channel)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			transcript_id TEXT,
			source TEXT NOT NULL,
			path TEXT,
			content TEXT NOT NULL,
			hash TEXT NOT NULL,
			start_line INTEGER,
			end_line INTEGER,
			embedding BLOB,
			model TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (transcript_id) REFERENCES transcripts(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_transcript ON chunks(transcript_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_hash ON chunks(hash)`,
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT NOT NULL,
			source TEXT NOT NULL,
			hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL,
			PRIMARY KEY (path, source)
		)`,
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			model TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	var errs []string
	for _, stmt := range coreStmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 50)], err)
		}
	}

	version, err := s.migrate()
	if err != nil {
		return err
	}

	// Keyword index: FTS5 may be compiled out of the engine. Failure flips
	// the capability flag instead of failing initialization.
	ftsAvailable := true
	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		content,
		id UNINDEXED,
		source UNINDEXED,
		path UNINDEXED
	)`); err != nil {
		ftsAvailable = false
		errs = append(errs, fmt.Sprintf("fts5 unavailable: %v", err))
	}

	// Vector search: ordered top-K by a registered cosine-distance scalar.
	vectorAvailable := true
	if s.vecErr != nil {
		vectorAvailable = false
		errs = append(errs, fmt.Sprintf("vector search unavailable: %v", s.vecErr))
	} else {
		if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('vector_dimensions', ?)`,
			strconv.Itoa(s.dims)); err != nil {
			errs = append(errs, fmt.Sprintf("store vector dims: %v", err))
		}
	}

	s.mu.Lock()
	s.status = store.Status{
		Initialized:     true,
		SchemaVersion:   version,
		FTSAvailable:    ftsAvailable,
		VectorAvailable: vectorAvailable,
		Errors:          errs,
	}
	if vectorAvailable {
		s.status.VectorDims = s.dims
	}
	s.mu.Unlock()

	return nil
}

// migration is a single forward schema step. Each must be idempotent:
// re-running against an already-migrated database is safe.
type migration struct {
	version int
	apply   func(db *sql.DB) error
}

var migrations = []migration{
	{version: 1, apply: func(*sql.DB) error {
		// Base schema, created unconditionally in init.
		return nil
	}},
	{version: 2, apply: func(db *sql.DB) error {
		// Transcript classification: type, task_id, task_status.
		alters := []string{
			`ALTER TABLE transcripts ADD COLUMN type TEXT DEFAULT 'message'`,
			`ALTER TABLE transcripts ADD COLUMN task_id INTEGER`,
			`ALTER TABLE transcripts ADD COLUMN task_status TEXT`,
		}
		for _, stmt := range alters {
			if _, err := db.Exec(stmt); err != nil {
				if strings.Contains(err.Error(), "duplicate column") {
					continue
				}
				return fmt.Errorf("migration v2: %w", err)
			}
		}
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_type ON transcripts(type)`); err != nil {
			return fmt.Errorf("migration v2 index: %w", err)
		}
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_task ON transcripts(task_id)`); err != nil {
			return fmt.Errorf("migration v2 index: %w", err)
		}
		return nil
	}},
}

// migrate runs pending migrations in strictly increasing version order and
// persists the schema version afterwards.
func (s *Store) migrate() (int, error) {
	current := 0
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&value)
	if err == nil {
		current, _ = strconv.Atoi(value)
	} else if err != sql.ErrNoRows {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(s.db); err != nil {
			return current, err
		}
		slog.Info("schema migrated", "version", m.version)
		current = m.version
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(schemaVersion)); err != nil {
		return current, fmt.Errorf("persist schema version: %w", err)
	}
	return schemaVersion, nil
}

// --- vector distance function ---

var (
	registerOnce sync.Once
	registerErr  error
)

// registerDistanceFunc registers vec_distance_cos(a BLOB, b BLOB) -> REAL
// with the sqlite driver. Registration is process-wide; repeated calls are
// collapsed by the once guard.
func registerDistanceFunc() error {
	registerOnce.Do(func() {
		registerErr = sqlite3.RegisterDeterministicScalarFunction(
			distanceFunc, 2,
			func(_ *sqlite3.FunctionContext, args []driver.Value) (driver.Value, error) {
				a, ok := args[0].([]byte)
				if !ok {
					return nil, fmt.Errorf("%s: arg 0 is not a blob", distanceFunc)
				}
				b, ok := args[1].([]byte)
				if !ok {
					return nil, fmt.Errorf("%s: arg 1 is not a blob", distanceFunc)
				}
				return cosineDistance(a, b), nil
			},
		)
		if registerErr != nil && strings.Contains(registerErr.Error(), "already registered") {
			registerErr = nil
		}
	})
	return registerErr
}

// cosineDistance computes 1 - cos(a, b) over two float32 blobs.
// Mismatched lengths or zero-norm inputs yield the neutral distance 1.
func cosineDistance(a, b []byte) float64 {
	if len(a) != len(b) || len(a) == 0 || len(a)%4 != 0 {
		return 1.0
	}
	var dot, normA, normB float64
	for i := 0; i < len(a); i += 4 {
		x := float64(math.Float32frombits(binary.LittleEndian.Uint32(a[i:])))
		y := float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// encodeVector packs a float32 slice into a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian blob into float32s.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
