package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"insights/internal/amqp"
	"insights/internal/core"
	"insights/internal/datasets"
	applog "insights/internal/log"
	"insights/internal/storage"
)

var (
	// ErrNoDataset is returned when the session has nothing loaded.
	ErrNoDataset = errors.New("no dataset loaded")
	// ErrSuperseded is returned by Load when a newer upload for the same
	// session committed first. The session keeps the newer data.
	ErrSuperseded = errors.New("upload superseded by a newer one")
	// ErrHistoryUnavailable is returned when the store keeps no snapshots.
	ErrHistoryUnavailable = errors.New("snapshot history requires the sqlite backend")
)

// Publisher announces committed datasets.
type Publisher interface {
	PublishDatasetLoaded(ctx context.Context, msg *amqp.DatasetLoadedMessage) error
}

// HistoryReader is implemented by stores that keep category snapshots.
type HistoryReader interface {
	ListSnapshots(ctx context.Context, sessionID string) ([]storage.Snapshot, error)
}

// LoadResult is a committed upload.
type LoadResult struct {
	Ref      datasets.Ref
	Analysis core.Analysis
}

// DatasetService parses uploads and keeps one current dataset per session.
// Uploads for a session race freely; the most recently started one that
// finishes wins and an older one finishing later is discarded.
type DatasetService struct {
	store     datasets.Store
	publisher Publisher
	logger    *applog.Logger
	events    *applog.StructuredLogger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	mu        sync.Mutex
	issued    uint64
	committed uint64
	pending   int
}

// NewDatasetService wires the service. publisher may be nil.
func NewDatasetService(store datasets.Store, publisher Publisher, logger *applog.Logger) *DatasetService {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentDatasets)
	return &DatasetService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
		now:       time.Now,
		sessions:  make(map[string]*sessionState),
	}
}

// Load parses raw and, when it is a valid file, makes it the session's
// current dataset. A *core.FileError leaves the previous dataset in place.
func (s *DatasetService) Load(ctx context.Context, sessionID, fileName string, raw string) (LoadResult, error) {
	gen := s.begin(sessionID)
	defer s.finish(sessionID)

	parser := core.NewParser(s.logger.WithComponent(applog.ComponentParser).With(applog.FieldSessionID, sessionID))
	res, err := parser.Parse(raw)
	if err != nil {
		return LoadResult{}, err
	}

	ds := datasets.Dataset{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		FileName:     fileName,
		LoadedAt:     s.now(),
		Transactions: res.Transactions,
		RowErrors:    res.RowErrors,
	}
	if err := s.commit(ctx, gen, ds); err != nil {
		return LoadResult{}, err
	}

	ref := ds.Ref()
	s.events.LogDatasetLoaded(ctx, ref.SessionID, ref.ID, ref.FileName, ref.Transactions, ref.Skipped)
	s.publish(ctx, ref)

	return LoadResult{
		Ref:      ref,
		Analysis: core.NewAnalysis(ds.Transactions, ds.RowErrors),
	}, nil
}

func (s *DatasetService) session(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[sessionID] = st
	}
	return st
}

// begin registers an operation on the session and hands out its generation.
// Every begin must be paired with a finish.
func (s *DatasetService) begin(sessionID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[sessionID] = st
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.issued++
	st.pending++
	return st.issued
}

// finish ends an operation started by begin. The session's generation state
// is dropped once nothing is pending, since there is nothing left to order.
func (s *DatasetService) finish(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pending--
	if st.pending <= 0 {
		delete(s.sessions, sessionID)
	}
}

// commit saves ds unless a later generation already committed or Clear ran
// after gen was issued.
func (s *DatasetService) commit(ctx context.Context, gen uint64, ds datasets.Dataset) error {
	st := s.session(ds.SessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if gen <= st.committed {
		s.logger.InfoContext(ctx, "Discarding superseded upload",
			applog.FieldSessionID, ds.SessionID,
			applog.FieldGeneration, gen,
			"committed_generation", st.committed)
		return ErrSuperseded
	}
	if err := s.store.Save(ctx, ds); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	st.committed = gen
	return nil
}

func (s *DatasetService) publish(ctx context.Context, ref datasets.Ref) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping dataset event", applog.FieldDatasetID, ref.ID)
		return
	}
	if err := s.publisher.PublishDatasetLoaded(ctx, amqp.NewDatasetLoadedMessage(ref)); err != nil {
		// The dataset is committed; the event only feeds snapshot history.
		s.events.LogError(ctx, "Failed to publish dataset event", err, applog.OpPublish,
			applog.NewFields().WithDataset(ref.SessionID, ref.ID, ref.FileName, ref.Transactions, ref.Skipped))
	}
}

// CurrentRef returns the reference of the session's current dataset.
func (s *DatasetService) CurrentRef(ctx context.Context, sessionID string) (datasets.Ref, error) {
	ref, err := s.store.Current(ctx, sessionID)
	if errors.Is(err, datasets.ErrNotFound) {
		return datasets.Ref{}, ErrNoDataset
	}
	if err != nil {
		return datasets.Ref{}, fmt.Errorf("current dataset: %w", err)
	}
	return ref, nil
}

// Analysis recomputes the analysis of a stored dataset.
func (s *DatasetService) Analysis(ctx context.Context, ref datasets.Ref) (core.Analysis, error) {
	ds, err := s.store.Get(ctx, ref.ID)
	if errors.Is(err, datasets.ErrNotFound) {
		return core.Analysis{}, ErrNoDataset
	}
	if err != nil {
		return core.Analysis{}, fmt.Errorf("load dataset %s: %w", ref.ID, err)
	}
	return core.NewAnalysis(ds.Transactions, ds.RowErrors), nil
}

// Current returns the analysis of the session's current dataset.
func (s *DatasetService) Current(ctx context.Context, sessionID string) (core.Analysis, error) {
	ref, err := s.CurrentRef(ctx, sessionID)
	if err != nil {
		return core.Analysis{}, err
	}
	return s.Analysis(ctx, ref)
}

// Clear forgets the session's data. Uploads still in flight when Clear is
// called are discarded when they finish.
func (s *DatasetService) Clear(ctx context.Context, sessionID string) error {
	s.begin(sessionID)
	defer s.finish(sessionID)

	st := s.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("clear dataset: %w", err)
	}
	st.committed = st.issued
	s.logger.InfoContext(ctx, "Dataset cleared", applog.FieldSessionID, sessionID, applog.FieldOperation, applog.OpClear)
	return nil
}

// History returns the category snapshots recorded for the session.
func (s *DatasetService) History(ctx context.Context, sessionID string) ([]storage.Snapshot, error) {
	h, ok := s.store.(HistoryReader)
	if !ok {
		return nil, ErrHistoryUnavailable
	}
	return h.ListSnapshots(ctx, sessionID)
}

// Ready reports whether the backing store is reachable.
func (s *DatasetService) Ready(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the store and the publisher when they hold resources.
func (s *DatasetService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close dataset service: %w", errors.Join(errs...))
	}
	return nil
}
