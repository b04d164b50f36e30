package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/clock"
	"github.com/signalsfoundry/conjunction-engine/internal/store"
	"github.com/signalsfoundry/conjunction-engine/model"
)

const (
	workerTestLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993"
	workerTestLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058"
)

type fakeSource struct {
	objects map[int]*model.OrbitalObject
	err     error
	calls   int
}

func (f *fakeSource) FetchElements(_ context.Context, noradID int) (*model.OrbitalObject, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[noradID]
	if !ok {
		return nil, errors.New("not published")
	}
	return obj, nil
}

type fakeSweeper struct {
	threats int
	err     error
	swept   []int
}

func (f *fakeSweeper) CheckObject(_ context.Context, noradID int) (int, error) {
	f.swept = append(f.swept, noradID)
	return f.threats, f.err
}

func freshObject(id int) *model.OrbitalObject {
	return &model.OrbitalObject{
		NoradID:     id,
		Name:        "OBJ",
		Category:    "active",
		Type:        model.ObjectTypePayload,
		Line1:       workerTestLine1,
		Line2:       workerTestLine2,
		RefreshedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testWorker(t *testing.T, kv store.KeyValueStore, source ElementSource, sweeper Sweeper) (*Worker, *store.TaskQueue, *store.CatalogStore) {
	t.Helper()
	queue := store.NewTaskQueue(kv, 3)
	catalog := store.NewCatalogStore(kv, time.Hour, nil)
	w := New(queue, catalog, source, sweeper, nil, clock.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), Config{}, nil)
	return w, queue, catalog
}

func TestProcessRefreshStoresElements(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	source := &fakeSource{objects: map[int]*model.OrbitalObject{25544: freshObject(25544)}}
	w, queue, catalog := testWorker(t, kv, source, &fakeSweeper{})

	item := NewWorkItem(model.TaskRefreshElements, 25544)
	w.Process(ctx, item)

	got, ok, err := catalog.GetObject(ctx, 25544)
	if err != nil || !ok {
		t.Fatalf("GetObject = (%v, %v), want refreshed object", ok, err)
	}
	if got.Line1 != workerTestLine1 {
		t.Fatalf("stored elements differ")
	}

	if _, ok, _ := kv.Get(ctx, "task:completed:"+item.ID); !ok {
		t.Fatalf("completion marker not written")
	}
	if _, dead, _ := queue.Depths(ctx); dead != 0 {
		t.Fatalf("successful task dead-lettered")
	}
}

func TestProcessFailedRefreshRequeues(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	source := &fakeSource{err: errors.New("upstream down")}
	w, queue, _ := testWorker(t, kv, source, &fakeSweeper{})

	w.Process(ctx, NewWorkItem(model.TaskRefreshElements, 100))

	item, ok, err := queue.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("Pop = (%v, %v), want requeued item", ok, err)
	}
	if item.RetryCount != 1 || item.LastError == "" {
		t.Fatalf("requeued item = %+v", item)
	}
}

func TestProcessExhaustedRetriesDeadLetter(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	source := &fakeSource{err: errors.New("upstream down")}
	w, queue, _ := testWorker(t, kv, source, &fakeSweeper{})

	item := NewWorkItem(model.TaskRefreshElements, 100)
	item.RetryCount = 3
	w.Process(ctx, item)

	dead, err := queue.DeadLetters(ctx, 10)
	if err != nil || len(dead) != 1 {
		t.Fatalf("dead letters = (%d, %v), want 1", len(dead), err)
	}
	if dead[0].Item.RetryCount != 3 {
		t.Fatalf("dead letter = %+v", dead[0].Item)
	}
}

func TestProcessCollisionCheckDispatch(t *testing.T) {
	ctx := context.Background()
	sweeper := &fakeSweeper{threats: 2}
	w, _, _ := testWorker(t, store.NewMemoryStore(), &fakeSource{}, sweeper)

	w.Process(ctx, NewWorkItem(model.TaskCollisionCheck, 25544))

	if len(sweeper.swept) != 1 || sweeper.swept[0] != 25544 {
		t.Fatalf("swept = %v, want [25544]", sweeper.swept)
	}
}

func TestProcessUnknownTaskTypeFails(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	w, queue, _ := testWorker(t, kv, &fakeSource{}, &fakeSweeper{})

	w.Process(ctx, NewWorkItem("reboot_satellite", 100))

	item, ok, _ := queue.Pop(ctx)
	if !ok || item.RetryCount != 1 {
		t.Fatalf("unknown task not requeued for retry: %+v", item)
	}
}

// cancelAwareStore refuses operations once the context is cancelled, the
// way a network-backed store does.
type cancelAwareStore struct {
	store.KeyValueStore
}

func (s cancelAwareStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.KeyValueStore.Set(ctx, key, value, ttl)
}

func (s cancelAwareStore) ListPush(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.KeyValueStore.ListPush(ctx, key, value)
}

func (s cancelAwareStore) ListPop(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.KeyValueStore.ListPop(ctx, key)
}

func TestProcessSurvivesShutdownCancellation(t *testing.T) {
	kv := cancelAwareStore{store.NewMemoryStore()}
	source := &fakeSource{err: errors.New("upstream down")}
	w, queue, _ := testWorker(t, kv, source, &fakeSweeper{})

	// Shutdown arrives while the item is in flight. Its fate must still
	// reach the queue, or the item vanishes with the process.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.Process(ctx, NewWorkItem(model.TaskRefreshElements, 100))

	queued, dead, err := queue.Depths(context.Background())
	if err != nil {
		t.Fatalf("Depths error: %v", err)
	}
	if queued != 1 || dead != 0 {
		t.Fatalf("depths after cancelled shutdown = (%d, %d), want (1, 0)", queued, dead)
	}
	item, ok, _ := queue.Pop(context.Background())
	if !ok || item.RetryCount != 1 {
		t.Fatalf("requeued item = (%v, %+v)", ok, item)
	}
}

func TestProcessCompletesDespiteCancellation(t *testing.T) {
	kv := cancelAwareStore{store.NewMemoryStore()}
	source := &fakeSource{objects: map[int]*model.OrbitalObject{25544: freshObject(25544)}}
	w, queue, catalog := testWorker(t, kv, source, &fakeSweeper{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	item := NewWorkItem(model.TaskRefreshElements, 25544)
	w.Process(ctx, item)

	if _, ok, _ := catalog.GetObject(context.Background(), 25544); !ok {
		t.Fatalf("in-flight refresh not finished after cancellation")
	}
	if _, ok, _ := kv.Get(context.Background(), "task:completed:"+item.ID); !ok {
		t.Fatalf("completion marker not written")
	}
	if queued, dead, _ := queue.Depths(context.Background()); queued != 0 || dead != 0 {
		t.Fatalf("depths = (%d, %d), want (0, 0)", queued, dead)
	}
}

func TestRunDrainsQueueAndStops(t *testing.T) {
	kv := store.NewMemoryStore()
	queue := store.NewTaskQueue(kv, 3)
	catalog := store.NewCatalogStore(kv, time.Hour, nil)
	source := &fakeSource{objects: map[int]*model.OrbitalObject{
		100: freshObject(100),
		200: freshObject(200),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	clk := clock.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	w := New(queue, catalog, source, &fakeSweeper{}, nil, clk, Config{}, nil)

	for _, id := range []int{100, 200} {
		if err := queue.Enqueue(ctx, NewWorkItem(model.TaskRefreshElements, id)); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The loop registers an idle timer once the queue is drained.
	deadline := time.After(5 * time.Second)
	for clk.Waiters() == 0 {
		select {
		case <-deadline:
			t.Fatalf("worker never went idle")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	if source.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", source.calls)
	}
	for _, id := range []int{100, 200} {
		if _, ok, _ := catalog.GetObject(ctx, id); !ok {
			t.Fatalf("object %d not refreshed", id)
		}
	}
}

func TestNewWorkItemIdentity(t *testing.T) {
	a := NewWorkItem(model.TaskRefreshElements, 100)
	b := NewWorkItem(model.TaskRefreshElements, 100)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("work item ids not unique: %q vs %q", a.ID, b.ID)
	}
	if a.Type != model.TaskRefreshElements || a.NoradID != 100 {
		t.Fatalf("item = %+v", a)
	}
}
