package repositories

import (
	"database/sql"
	"sync"

	"github.com/personbook/personbook/pkg/logger"
)

// TxManager groups repository calls into a single atomic unit: commit on
// normal return, rollback on error. At most one transaction is active at
// a time; concurrent callers queue. Transactions do not nest — work
// receives only the transaction-scoped handle, never the manager, so a
// nested begin cannot be expressed.
type TxManager struct {
	db *sql.DB
	mu sync.Mutex
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTransaction begins a transaction, hands the handle to work,
// commits if work returns nil and rolls back otherwise. The error from
// work is returned unchanged after rollback.
func (m *TxManager) RunInTransaction(work func(tx *sql.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}

	if err := work(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.WithError(rbErr).Error("transaction rollback failed")
		}
		return err
	}

	return tx.Commit()
}
