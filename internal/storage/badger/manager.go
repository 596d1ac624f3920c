package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/common"
	"github.com/ternarybob/casetrack/internal/interfaces"
)

// Manager bundles the Badger-backed storage implementations behind the
// StorageManager interface
type Manager struct {
	db      *BadgerDB
	jobs    interfaces.JobStorage
	batches interfaces.BatchStorage
}

// NewManager opens the database and wires up the storage implementations
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:      db,
		jobs:    NewJobStorage(db, logger),
		batches: NewBatchStorage(db, logger),
	}, nil
}

// JobStorage returns the job record storage
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// BatchStorage returns the batch storage
func (m *Manager) BatchStorage() interfaces.BatchStorage {
	return m.batches
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
