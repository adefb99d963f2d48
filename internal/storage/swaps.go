// Swap record persistence. Records round-trip through their serialized
// JSON form; the table carries indexed projections for querying.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marswap-exchange/marswapd/internal/swap"
)

// ErrSwapNotFound is returned when no record exists for an id.
var ErrSwapNotFound = errors.New("swap not found")

// SaveSwap inserts or updates a swap record. Implements swap.Journal.
func (s *Storage) SaveSwap(rec *swap.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := swap.MarshalRecord(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize swap %s: %w", rec.ID, err)
	}

	query := `
		INSERT INTO swaps (
			id, status, primary_chain, alt_chain, record,
			created_at, updated_at, completed_at, refunded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			record = excluded.record,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			refunded_at = excluded.refunded_at
	`
	_, err = s.db.Exec(query,
		rec.ID,
		string(rec.Status),
		rec.PrimaryHTLC.Chain.Symbol,
		rec.AltHTLC.Chain.Symbol,
		string(blob),
		rec.CreatedAt,
		time.Now().Unix(),
		nullableUnix(rec.CompletedAt),
		nullableUnix(rec.RefundedAt),
	)
	return err
}

// GetSwap retrieves a swap record by id.
func (s *Storage) GetSwap(id string) (*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob string
	err := s.db.QueryRow(`SELECT record FROM swaps WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSwapNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return swap.ParseRecord([]byte(blob))
}

// GetPendingSwaps returns all swaps that are not in a terminal state,
// oldest first. These are the swaps to recover on startup.
func (s *Storage) GetPendingSwaps() ([]*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT record FROM swaps
		WHERE status NOT IN ('completed', 'refunded', 'failed')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*swap.Record
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		rec, err := swap.ParseRecord([]byte(blob))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListSwaps returns every stored record, newest first.
func (s *Storage) ListSwaps() ([]*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT record FROM swaps ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*swap.Record
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		rec, err := swap.ParseRecord([]byte(blob))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteSwap removes a record. Used by operator tooling only; completed
// swaps are normally kept for audit.
func (s *Storage) DeleteSwap(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM swaps WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSwapNotFound, id)
	}
	return nil
}

func nullableUnix(ts uint64) interface{} {
	if ts == 0 {
		return nil
	}
	return int64(ts)
}
