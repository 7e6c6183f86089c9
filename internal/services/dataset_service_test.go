package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"insights/internal/amqp"
	"insights/internal/core"
	"insights/internal/datasets"
	"insights/internal/datasets/memory"
)

const csvHeader = "Date,Description,Category,Amount\n"

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.DatasetLoadedMessage
	err  error
}

func (p *fakePublisher) PublishDatasetLoaded(_ context.Context, msg *amqp.DatasetLoadedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Save(context.Context, datasets.Dataset) error {
	return errors.New("disk full")
}

func TestDatasetService_LoadAndCurrent(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := NewDatasetService(memory.New(), pub, nil)

	if _, err := svc.Current(ctx, "s1"); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("expected ErrNoDataset, got %v", err)
	}

	res, err := svc.Load(ctx, "s1", "jan.csv", csvHeader+
		"2024-01-01,Coffee,Food,-4.50\n"+
		"2024-01-02,Salary,Income,2000.00\n"+
		"2024-01-03,Bad,Food,abc\n")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Ref.Transactions != 2 || res.Ref.Skipped != 1 || res.Ref.FileName != "jan.csv" {
		t.Fatalf("unexpected ref: %+v", res.Ref)
	}
	if core.FormatCurrency(res.Analysis.Financials.NetBalance) != "$1,995.50" {
		t.Fatalf("unexpected analysis: %+v", res.Analysis.Financials)
	}

	current, err := svc.Current(ctx, "s1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if len(current.Transactions) != 2 || current.Skipped() != 1 {
		t.Fatalf("current analysis mismatch: %+v", current)
	}

	if len(pub.msgs) != 1 || pub.msgs[0].DatasetID != res.Ref.ID {
		t.Fatalf("expected one event for the dataset, got %+v", pub.msgs)
	}
}

func TestDatasetService_FileErrorKeepsPreviousData(t *testing.T) {
	ctx := context.Background()
	svc := NewDatasetService(memory.New(), nil, nil)

	first, err := svc.Load(ctx, "s1", "a.csv", csvHeader+"2024-01-01,Coffee,Food,-4.50\n")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err = svc.Load(ctx, "s1", "b.csv", "Date,Description,Category\n2024-01-01,x,y\n")
	var fe *core.FileError
	if !errors.As(err, &fe) || fe.Kind != core.FileErrorMissingColumns {
		t.Fatalf("expected missing columns error, got %v", err)
	}

	ref, err := svc.CurrentRef(ctx, "s1")
	if err != nil || ref.ID != first.Ref.ID {
		t.Fatalf("previous dataset should remain current: %+v %v", ref, err)
	}
}

func TestDatasetService_StorageFailure(t *testing.T) {
	svc := NewDatasetService(failingStore{memory.New()}, nil, nil)
	_, err := svc.Load(context.Background(), "s1", "a.csv", csvHeader+"2024-01-01,Coffee,Food,-4.50\n")
	if err == nil {
		t.Fatalf("expected storage error")
	}
	var fe *core.FileError
	if errors.As(err, &fe) {
		t.Fatalf("storage failure must not look like a file error")
	}
}

func TestDatasetService_PublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewDatasetService(memory.New(), pub, nil)

	if _, err := svc.Load(context.Background(), "s1", "a.csv", csvHeader+"2024-01-01,Coffee,Food,-4.50\n"); err != nil {
		t.Fatalf("publish failure should not fail the upload: %v", err)
	}
}

func TestDatasetService_LastLoadWins(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewDatasetService(store, nil, nil)

	older := svc.begin("s1")
	newer := svc.begin("s1")

	if err := svc.commit(ctx, newer, datasets.Dataset{ID: "new", SessionID: "s1"}); err != nil {
		t.Fatalf("commit newer: %v", err)
	}
	if err := svc.commit(ctx, older, datasets.Dataset{ID: "old", SessionID: "s1"}); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	ref, _ := store.Current(ctx, "s1")
	if ref.ID != "new" {
		t.Fatalf("expected newer dataset current, got %s", ref.ID)
	}

	// In order completion commits both.
	a := svc.begin("s2")
	b := svc.begin("s2")
	if err := svc.commit(ctx, a, datasets.Dataset{ID: "a", SessionID: "s2"}); err != nil {
		t.Fatalf("commit a: %v", err)
	}
	if err := svc.commit(ctx, b, datasets.Dataset{ID: "b", SessionID: "s2"}); err != nil {
		t.Fatalf("commit b: %v", err)
	}
}

func TestDatasetService_ClearDiscardsInFlight(t *testing.T) {
	ctx := context.Background()
	svc := NewDatasetService(memory.New(), nil, nil)

	if _, err := svc.Load(ctx, "s1", "a.csv", csvHeader+"2024-01-01,Coffee,Food,-4.50\n"); err != nil {
		t.Fatalf("load: %v", err)
	}
	inFlight := svc.begin("s1")

	if err := svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := svc.Current(ctx, "s1"); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("expected ErrNoDataset after clear, got %v", err)
	}
	if err := svc.commit(ctx, inFlight, datasets.Dataset{ID: "late", SessionID: "s1"}); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("upload started before clear should be discarded, got %v", err)
	}

	if _, err := svc.Load(ctx, "s1", "b.csv", csvHeader+"2024-01-01,Tea,Food,-2\n"); err != nil {
		t.Fatalf("load after clear: %v", err)
	}
}

func TestDatasetService_ConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	svc := NewDatasetService(memory.New(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Load(ctx, "s1", "x.csv", csvHeader+"2024-01-01,Coffee,Food,-4.50\n")
			if err != nil && !errors.Is(err, ErrSuperseded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := svc.Current(ctx, "s1"); err != nil {
		t.Fatalf("expected a current dataset: %v", err)
	}
	if n := trackedSessions(svc); n != 0 {
		t.Fatalf("expected no session state once loads finish, got %d", n)
	}
}

func TestDatasetService_ClearRejectsNewestInFlight(t *testing.T) {
	ctx := context.Background()
	svc := NewDatasetService(memory.New(), nil, nil)

	inFlight := svc.begin("s1")
	if err := svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	err := svc.commit(ctx, inFlight, datasets.Dataset{ID: "late", SessionID: "s1"})
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	svc.finish("s1")

	if _, err := svc.CurrentRef(ctx, "s1"); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("cleared session must stay empty, got %v", err)
	}
	if n := trackedSessions(svc); n != 0 {
		t.Fatalf("expected session state dropped, got %d", n)
	}
}

func TestDatasetService_ReplacedDatasetsAreFreed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewDatasetService(store, nil, nil)

	var ids []string
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		res, err := svc.Load(ctx, "s1", name, csvHeader+"2024-01-01,Coffee,Food,-4.50\n")
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		ids = append(ids, res.Ref.ID)
	}

	for _, id := range ids[:2] {
		if _, err := store.Get(ctx, id); !errors.Is(err, datasets.ErrNotFound) {
			t.Errorf("replaced dataset %s still stored: err=%v", id, err)
		}
	}
	if _, err := store.Get(ctx, ids[2]); err != nil {
		t.Fatalf("current dataset missing: %v", err)
	}
	if n := trackedSessions(svc); n != 0 {
		t.Fatalf("expected no session state after loads, got %d", n)
	}
}

func trackedSessions(svc *DatasetService) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.sessions)
}

func TestDatasetService_HistoryUnavailableOnMemory(t *testing.T) {
	svc := NewDatasetService(memory.New(), nil, nil)
	if _, err := svc.History(context.Background(), "s1"); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("expected ErrHistoryUnavailable, got %v", err)
	}
	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("memory store should always be ready: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
