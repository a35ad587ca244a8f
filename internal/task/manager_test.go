package task

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"linkporter/internal/gate"
	"linkporter/internal/netdisk"
)

// fakeGateway scripts remote behavior per share code. The share code is the
// tail of the original URL, so tests address items by the URLs they created.
type fakeGateway struct {
	mu          sync.Mutex
	transferErr map[string]error
	calls       []string

	resolvePanics bool
	// when set, Transfer announces itself and then blocks until released,
	// letting tests pause or cancel with an item in flight
	transferStarted chan string
	transferRelease chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{transferErr: make(map[string]error)}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

func (g *fakeGateway) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *fakeGateway) failTransfer(code string, err error) {
	g.mu.Lock()
	g.transferErr[code] = err
	g.mu.Unlock()
}

func (g *fakeGateway) clearFailures() {
	g.mu.Lock()
	g.transferErr = make(map[string]error)
	g.mu.Unlock()
}

func (g *fakeGateway) Resolve(_ context.Context, shareURL, _ string) (*netdisk.ShareHandle, error) {
	if g.resolvePanics {
		panic("resolver exploded")
	}
	payload, err := netdisk.ParseShareURL(shareURL)
	if err != nil {
		return nil, &netdisk.RemoteError{Message: "invalid link"}
	}
	g.record("resolve:" + payload.ShareCode)
	return &netdisk.ShareHandle{
		ShareCode: payload.ShareCode,
		FileIDs:   []string{"f-" + payload.ShareCode},
		Names:     []string{payload.ShareCode},
	}, nil
}

func (g *fakeGateway) Transfer(_ context.Context, handle *netdisk.ShareHandle, dirID string) (*netdisk.TransferResult, error) {
	g.record("transfer:" + handle.ShareCode)
	if g.transferStarted != nil {
		g.transferStarted <- handle.ShareCode
	}
	if g.transferRelease != nil {
		<-g.transferRelease
	}
	g.mu.Lock()
	err := g.transferErr[handle.ShareCode]
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &netdisk.TransferResult{DirID: dirID, Names: handle.Names}, nil
}

func (g *fakeGateway) CreateShare(_ context.Context, result *netdisk.TransferResult) (*netdisk.ShareLink, error) {
	g.record("share:" + result.Names[0])
	return &netdisk.ShareLink{URL: "https://115.com/s/new-" + result.Names[0]}, nil
}

func (g *fakeGateway) ListDir(context.Context, string) ([]netdisk.Entry, error) { return nil, nil }
func (g *fakeGateway) Delete(context.Context, []string) error                   { return nil }
func (g *fakeGateway) EmptyTrash(context.Context, string) error                 { return nil }
func (g *fakeGateway) EnsureDir(context.Context, string) (string, error)        { return "900", nil }

type testEnv struct {
	manager *Manager
	gateway *fakeGateway
	gate    *gate.Gate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	gw := newFakeGateway()
	transferGate := gate.New()
	m := NewManager(Options{
		Store:   store,
		Gateway: gw,
		Gate:    transferGate,
		SaveDir: "/saved-shares",
	})
	return &testEnv{manager: m, gateway: gw, gate: transferGate}
}

func shareURL(code string) string { return "https://115.com/s/" + code }

// createTask makes a task with one item per share code.
func createTask(t *testing.T, m *Manager, codes ...string) *Task {
	t.Helper()
	records := make([]ItemRecord, 0, len(codes))
	for _, code := range codes {
		records = append(records, ItemRecord{URL: shareURL(code)})
	}
	created, err := m.Create("batch", records)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return created
}

// taskItems returns all items of a task in row order.
func taskItems(t *testing.T, m *Manager, taskID string) []Item {
	t.Helper()
	items, _, err := m.Items(taskID, ItemFilter{PageSize: 500})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	return items
}

func itemIDs(items []Item) []uint {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func waitForStatus(t *testing.T, m *Manager, taskID string, want Status) *Task {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		got, err := m.Get(taskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if got.Status == want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, _ := m.Get(taskID)
	t.Fatalf("timeout waiting for status %s, last seen %+v", want, got)
	return nil
}

func assertCounterInvariant(t *testing.T, task *Task) {
	t.Helper()
	if task.SuccessCount+task.FailCount+task.SkipCount > task.TotalCount {
		t.Fatalf("counter invariant violated: %+v", task)
	}
}

func TestCreateSkipsMalformedRows(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.manager.Create("mixed", []ItemRecord{
		{URL: shareURL("good1")},
		{URL: "ftp://nowhere/file"},
		{URL: shareURL("good2"), Title: "some show", AccessCode: "ab12"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	if created.TotalCount != 3 || created.SkipCount != 1 {
		t.Fatalf("unexpected counters: %+v", created)
	}

	items := taskItems(t, env.manager, created.ID)
	if items[0].Status != ItemPending || items[2].Status != ItemPending {
		t.Fatalf("good rows should stay pending: %+v", items)
	}
	if items[1].Status != ItemSkipped || items[1].ErrorMsg == "" {
		t.Fatalf("malformed row should be skipped with a message: %+v", items[1])
	}
	assertCounterInvariant(t, created)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.manager.Create("", []ItemRecord{{URL: shareURL("x")}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
	if _, err := env.manager.Create("empty", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for no items, got %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t)
	created := createTask(t, env.manager, "a", "b")
	ids := itemIDs(taskItems(t, env.manager, created.ID))

	if err := env.manager.Start("missing", StartOptions{ItemIDs: ids, IntervalMin: 1, IntervalMax: 1}); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := env.manager.Start(created.ID, StartOptions{IntervalMin: 1, IntervalMax: 1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty selection, got %v", err)
	}
	if err := env.manager.Start(created.ID, StartOptions{ItemIDs: ids, IntervalMin: 0, IntervalMax: 1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for min < 1, got %v", err)
	}
	if err := env.manager.Start(created.ID, StartOptions{ItemIDs: ids, IntervalMin: 5, IntervalMax: 2}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for min > max, got %v", err)
	}
	if err := env.manager.Start(created.ID, StartOptions{ItemIDs: []uint{99999}, IntervalMin: 1, IntervalMax: 1}); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestStartRejectsTerminalItems(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.manager.Create("batch", []ItemRecord{{URL: "garbage"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ids := itemIDs(taskItems(t, env.manager, created.ID))

	err = env.manager.Start(created.ID, StartOptions{ItemIDs: ids, IntervalMin: 1, IntervalMax: 1})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for skipped item, got %v", err)
	}
}

func TestOnlyOneRunningTask(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.transferStarted = make(chan string, 1)
	env.gateway.transferRelease = make(chan struct{})

	first := createTask(t, env.manager, "a")
	second := createTask(t, env.manager, "b")

	if err := env.manager.Start(first.ID, StartOptions{ItemIDs: itemIDs(taskItems(t, env.manager, first.ID)), IntervalMin: 1, IntervalMax: 1}); err != nil {
		t.Fatalf("start first: %v", err)
	}
	<-env.gateway.transferStarted

	err := env.manager.Start(second.ID, StartOptions{ItemIDs: itemIDs(taskItems(t, env.manager, second.ID)), IntervalMin: 1, IntervalMax: 1})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state while another task runs, got %v", err)
	}

	close(env.gateway.transferRelease)
	waitForStatus(t, env.manager, first.ID, StatusCompleted)
}

func TestDeleteCascadesAndRefusesWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.transferStarted = make(chan string, 1)
	env.gateway.transferRelease = make(chan struct{})

	created := createTask(t, env.manager, "a")
	ids := itemIDs(taskItems(t, env.manager, created.ID))
	if err := env.manager.Start(created.ID, StartOptions{ItemIDs: ids, IntervalMin: 1, IntervalMax: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-env.gateway.transferStarted

	if err := env.manager.Delete(created.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state while running, got %v", err)
	}

	close(env.gateway.transferRelease)
	waitForStatus(t, env.manager, created.ID, StatusCompleted)

	if err := env.manager.Delete(created.ID); err != nil {
		t.Fatalf("delete after completion: %v", err)
	}
	if _, err := env.manager.Get(created.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, _, err := env.manager.Items(created.ID, ItemFilter{}); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found for items after delete, got %v", err)
	}
}

func TestPauseAndCancelAreIdempotentWhenNotRunning(t *testing.T) {
	env := newTestEnv(t)
	created := createTask(t, env.manager, "a")

	if err := env.manager.Pause(created.ID); err != nil {
		t.Fatalf("pause of non-running task should be a no-op: %v", err)
	}
	if err := env.manager.Cancel(created.ID); err != nil {
		t.Fatalf("cancel of pending task: %v", err)
	}
	if err := env.manager.Cancel(created.ID); err != nil {
		t.Fatalf("second cancel should be a no-op: %v", err)
	}
	got, _ := env.manager.Get(created.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestItemPaginationAndFilters(t *testing.T) {
	env := newTestEnv(t)
	codes := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		codes = append(codes, fmt.Sprintf("code%d", i))
	}
	created := createTask(t, env.manager, codes...)

	page, total, err := env.manager.Items(created.ID, ItemFilter{Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if total != 8 || len(page) != 3 {
		t.Fatalf("expected total 8 page of 3, got total=%d len=%d", total, len(page))
	}
	if page[0].RowIndex != 4 {
		t.Fatalf("pages must follow row order, got first row %d", page[0].RowIndex)
	}

	filtered, total, err := env.manager.Items(created.ID, ItemFilter{Keyword: "code7"})
	if err != nil {
		t.Fatalf("filter items: %v", err)
	}
	if total != 1 || filtered[0].OriginalURL != shareURL("code7") {
		t.Fatalf("keyword filter failed: total=%d %+v", total, filtered)
	}
}
