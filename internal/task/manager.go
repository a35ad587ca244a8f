package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"linkporter/internal/gate"
	"linkporter/internal/netdisk"
	"linkporter/internal/notify"
)

// Options configures a Manager.
type Options struct {
	Store    *Store
	Gateway  netdisk.Gateway
	Gate     *gate.Gate
	Notifier notify.Notifier
	SaveDir  string
}

// Manager owns task and item state and runs the per-item pipeline. At most
// one task runs at a time; the processing loop is the only writer of item
// state during a run, and lifecycle calls are serialized by mu so a start
// and a pause can never race.
type Manager struct {
	store    *Store
	gateway  netdisk.Gateway
	gate     *gate.Gate
	notifier notify.Notifier
	saveDir  string

	mu        sync.Mutex
	runs      map[string]*run
	baseCtx   context.Context
	workersWG sync.WaitGroup
}

// run is the control block for one active processing loop.
type run struct {
	taskID string
	items  []*Item
	pacer  *pacer

	signalMu  sync.Mutex
	pausing   bool
	canceling bool
}

func (r *run) requestPause() {
	r.signalMu.Lock()
	r.pausing = true
	r.signalMu.Unlock()
}

func (r *run) requestCancel() {
	r.signalMu.Lock()
	r.canceling = true
	r.signalMu.Unlock()
}

// signaled reports the stop request, cancel winning over pause.
func (r *run) signaled() (stop bool, status Status) {
	r.signalMu.Lock()
	defer r.signalMu.Unlock()
	switch {
	case r.canceling:
		return true, StatusCancelled
	case r.pausing:
		return true, StatusPaused
	default:
		return false, ""
	}
}

func NewManager(opts Options) *Manager {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	return &Manager{
		store:    opts.Store,
		gateway:  opts.Gateway,
		gate:     opts.Gate,
		notifier: opts.Notifier,
		saveDir:  opts.SaveDir,
		runs:     make(map[string]*run),
		baseCtx:  context.Background(),
	}
}

// SetBaseContext sets the context that bounds all remote work. Cancelled
// during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all processing loops finish or ctx is done.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Create stores a new task with its items. No remote calls are made. Rows
// whose URL does not look like a share link are kept but marked skipped up
// front so they never block processing.
func (m *Manager) Create(name string, records []ItemRecord) (*Task, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty task name", ErrValidation)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrValidation)
	}

	t := &Task{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     StatusPending,
		TotalCount: len(records),
	}
	items := make([]Item, 0, len(records))
	for i, record := range records {
		item := Item{
			RowIndex:    i + 1,
			OriginalURL: record.URL,
			Title:       record.Title,
			AccessCode:  record.AccessCode,
			Status:      ItemPending,
		}
		if !netdisk.IsShareURL(record.URL) {
			item.Status = ItemSkipped
			item.ErrorMsg = "unrecognized share link"
		}
		items = append(items, item)
	}
	if err := m.store.CreateTask(t, items); err != nil {
		return nil, err
	}
	if _, err := m.store.RecomputeCounters(t.ID); err != nil {
		return nil, err
	}
	return m.store.GetTask(t.ID)
}

// Start validates the selection, flips the task to running and hands the
// per-item loop to a background worker. It returns immediately; callers
// poll task and item state.
func (m *Manager) Start(taskID string, opts StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.runs[taskID]; active {
		return fmt.Errorf("%w: task is already running", ErrInvalidState)
	}
	if len(m.runs) > 0 {
		return fmt.Errorf("%w: another task is running", ErrInvalidState)
	}
	t, err := m.store.GetTask(taskID)
	if err != nil {
		return err
	}
	switch t.Status {
	case StatusPending, StatusPaused, StatusCancelled, StatusCompleted:
	default:
		return fmt.Errorf("%w: task is %s", ErrInvalidState, t.Status)
	}
	if len(opts.ItemIDs) == 0 {
		return fmt.Errorf("%w: no items selected", ErrValidation)
	}
	if opts.IntervalMin < 1 || opts.IntervalMax < opts.IntervalMin {
		return fmt.Errorf("%w: pacing interval [%d,%d] must satisfy 1 <= min <= max",
			ErrValidation, opts.IntervalMin, opts.IntervalMax)
	}

	byID, err := m.store.GetTaskItems(taskID, opts.ItemIDs)
	if err != nil {
		return err
	}
	selected := make([]*Item, 0, len(opts.ItemIDs))
	for _, id := range opts.ItemIDs {
		item, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: item %d", ErrItemNotFound, id)
		}
		if item.Status != ItemPending && item.Status != ItemFailed {
			return fmt.Errorf("%w: item %d is %s, only pending or failed items can be started",
				ErrInvalidState, id, item.Status)
		}
		selected = append(selected, item)
	}

	if err := m.store.UpdateTaskStatus(taskID, StatusRunning, ""); err != nil {
		return err
	}
	r := &run{
		taskID: taskID,
		items:  selected,
		pacer:  newPacer(opts.IntervalMin, opts.IntervalMax),
	}
	m.runs[taskID] = r
	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.processRun(r)
	}()
	return nil
}

// Pause asks the running loop to stop after the in-flight item. Idempotent
// when the task is not running.
func (m *Manager) Pause(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runs[taskID]; ok {
		r.requestPause()
		return nil
	}
	t, err := m.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.Status == StatusRunning {
		// running in the store but no loop here: stale state, repair it
		return m.store.UpdateTaskStatus(taskID, StatusPaused, "")
	}
	return nil
}

// Cancel stops the loop like Pause but leaves the task cancelled. Items
// still pending stay pending so a later start can pick them up.
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runs[taskID]; ok {
		r.requestCancel()
		return nil
	}
	t, err := m.store.GetTask(taskID)
	if err != nil {
		return err
	}
	switch t.Status {
	case StatusCancelled:
		return nil
	case StatusCompleted:
		return fmt.Errorf("%w: task already completed", ErrInvalidState)
	default:
		return m.store.UpdateTaskStatus(taskID, StatusCancelled, "")
	}
}

// Delete removes the task and all its items. Refused while running.
func (m *Manager) Delete(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.runs[taskID]; active {
		return fmt.Errorf("%w: pause or cancel the task first", ErrInvalidState)
	}
	return m.store.DeleteTask(taskID)
}

func (m *Manager) Get(taskID string) (*Task, error) { return m.store.GetTask(taskID) }

func (m *Manager) List() ([]Task, error) { return m.store.ListTasks() }

func (m *Manager) Items(taskID string, f ItemFilter) ([]Item, int64, error) {
	if _, err := m.store.GetTask(taskID); err != nil {
		return nil, 0, err
	}
	return m.store.ListItems(taskID, f)
}

func (m *Manager) RecentHistory(limit int) ([]History, error) {
	return m.store.ListHistory(limit)
}

// finishRun drops the run control block once the loop has exited.
func (m *Manager) finishRun(taskID string) {
	m.mu.Lock()
	delete(m.runs, taskID)
	m.mu.Unlock()
}

func (m *Manager) baseContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseCtx == nil {
		return context.Background()
	}
	return m.baseCtx
}
