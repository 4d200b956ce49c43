// Package bolt provides a bbolt-backed implementation of the history
// store interfaces.
//
// Query history and evaluation runs are append-mostly audit data with no
// relational queries, so they live in a separate single-file key/value
// database rather than the SQLite index. Values are JSON; query keys are
// monotonic sequence numbers, making reverse cursor iteration the
// newest-first order.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

var (
	bucketQueries = []byte("queries")
	bucketRuns    = []byte("runs")
)

// Store is a bbolt-backed storage providing the query history and
// evaluation store interfaces through wrapper types sharing one
// database file.
type Store struct {
	db   *bbolt.DB
	path string
}

// NewStore opens (or creates) the bbolt database at path. If path is
// empty, defaults to ~/.ancora/ancora_history.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".ancora", "ancora_history.db")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketQueries, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// QueryHistoryStore returns a QueryHistoryStore interface backed by this store.
func (s *Store) QueryHistoryStore() driven.QueryHistoryStore {
	return &queryHistoryStore{store: s}
}

// EvaluationStore returns an EvaluationStore interface backed by this store.
func (s *Store) EvaluationStore() driven.EvaluationStore {
	return &evaluationStore{store: s}
}

// ==================== Query History Store ====================

// queryHistoryStore implements driven.QueryHistoryStore.
type queryHistoryStore struct {
	store *Store
}

var _ driven.QueryHistoryStore = (*queryHistoryStore)(nil)

// AppendQuery records a completed query under the next sequence number.
func (s *queryHistoryStore) AppendQuery(_ context.Context, result *domain.QueryResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling query result: %w", err)
	}

	err = s.store.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueries)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}
		return b.Put(itob(seq), data)
	})
	if err != nil {
		return fmt.Errorf("appending query: %w", err)
	}
	return nil
}

// ListQueries returns the most recent queries, newest first. A limit of
// 0 returns all recorded queries.
func (s *queryHistoryStore) ListQueries(_ context.Context, limit int) ([]domain.QueryResult, error) {
	var results []domain.QueryResult

	err := s.store.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketQueries).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(results) >= limit {
				break
			}
			var result domain.QueryResult
			if err := json.Unmarshal(v, &result); err != nil {
				return fmt.Errorf("unmarshalling query result: %w", err)
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	return results, nil
}

// Close is a no-op; the owning Store closes the shared database.
func (s *queryHistoryStore) Close() error {
	return nil
}

// ==================== Evaluation Store ====================

// evaluationStore implements driven.EvaluationStore.
type evaluationStore struct {
	store *Store
}

var _ driven.EvaluationStore = (*evaluationStore)(nil)

// SaveRun stores a completed evaluation run keyed by its ID.
func (s *evaluationStore) SaveRun(_ context.Context, run *domain.EvaluationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshalling evaluation run: %w", err)
	}

	err = s.store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(run.ID), data)
	})
	if err != nil {
		return fmt.Errorf("saving evaluation run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of 0
// returns all recorded runs.
func (s *evaluationStore) ListRuns(_ context.Context, limit int) ([]domain.EvaluationRun, error) {
	var runs []domain.EvaluationRun

	err := s.store.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var run domain.EvaluationRun
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("unmarshalling evaluation run: %w", err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing evaluation runs: %w", err)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].RunAt.After(runs[j].RunAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun retrieves a run by ID.
func (s *evaluationStore) GetRun(_ context.Context, id string) (*domain.EvaluationRun, error) {
	var run *domain.EvaluationRun

	err := s.store.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return domain.ErrNotFound
		}
		run = &domain.EvaluationRun{}
		if err := json.Unmarshal(data, run); err != nil {
			return fmt.Errorf("unmarshalling evaluation run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// itob returns an 8-byte big-endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
