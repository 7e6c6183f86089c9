// Package datasets defines where uploaded transaction sets are kept. A
// dataset is the validated content of one CSV upload for one session; a new
// upload replaces the session's previous dataset.
package datasets

import (
	"context"
	"errors"
	"time"

	"insights/internal/core"
)

// ErrNotFound is returned when a session or id has no stored dataset.
var ErrNotFound = errors.New("dataset not found")

// Dataset is one committed upload.
type Dataset struct {
	ID           string
	SessionID    string
	FileName     string
	LoadedAt     time.Time
	Transactions []core.Transaction
	RowErrors    []core.RowError
}

// Ref identifies a dataset without carrying its rows. Datasets are immutable
// once saved, so a Ref is a stable cache key.
type Ref struct {
	ID           string
	SessionID    string
	FileName     string
	LoadedAt     time.Time
	Transactions int
	Skipped      int
}

// Ref returns the dataset's reference.
func (d Dataset) Ref() Ref {
	return Ref{
		ID:           d.ID,
		SessionID:    d.SessionID,
		FileName:     d.FileName,
		LoadedAt:     d.LoadedAt,
		Transactions: len(d.Transactions),
		Skipped:      len(d.RowErrors),
	}
}

// Ports for dataset stores.
type (
	Writer interface {
		// Save makes ds the session's current dataset.
		Save(ctx context.Context, ds Dataset) error
		// Delete forgets the session's current dataset. Deleting a session
		// with nothing stored is not an error.
		Delete(ctx context.Context, sessionID string) error
	}

	Reader interface {
		// Current returns the session's current dataset reference.
		Current(ctx context.Context, sessionID string) (Ref, error)
		// Get returns a dataset by id, including datasets that have since
		// been replaced.
		Get(ctx context.Context, id string) (Dataset, error)
	}

	Store interface {
		Writer
		Reader
	}
)
