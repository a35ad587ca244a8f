package task

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"linkporter/internal/gate"
	"linkporter/internal/netdisk"
	"linkporter/internal/notify"
)

// gateAcquireTimeout bounds how long a run waits for the maintenance
// subsystem to give up the gate.
const gateAcquireTimeout = 5 * time.Minute

// processRun executes the per-item pipeline for one start invocation. Items
// are processed strictly in the order they were selected, one at a time.
// The transfer gate is held for the whole run and released on every exit
// path, including panics.
func (m *Manager) processRun(r *run) {
	defer m.finishRun(r.taskID)

	ctx := m.baseContext()

	acquireCtx, cancel := context.WithTimeout(ctx, gateAcquireTimeout)
	handle, err := m.gate.Acquire(acquireCtx, gate.HolderTransfer)
	cancel()
	if err != nil {
		log.Error().Str("task_id", r.taskID).Err(err).Msg("could not acquire transfer gate")
		m.settleRun(r, StatusPaused, "could not acquire transfer gate: "+err.Error())
		return
	}
	defer handle.Release()

	var current *Item
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		// A crashed loop must never leave the task silently running or
		// the gate held.
		log.Error().Str("task_id", r.taskID).Interface("panic", rec).Msg("processing loop panicked")
		if current != nil {
			current.Status = ItemFailed
			current.ErrorMsg = fmt.Sprintf("internal error: %v", rec)
			m.persistItem(current)
		}
		handle.Release()
		m.settleRun(r, StatusPaused, fmt.Sprintf("internal error: %v", rec))
	}()

	dirID, err := m.gateway.EnsureDir(ctx, m.saveDir)
	if err != nil {
		log.Error().Str("task_id", r.taskID).Err(err).Msg("save directory unavailable")
		m.settleRun(r, StatusPaused, "save directory unavailable: "+err.Error())
		return
	}

	finalStatus := StatusCompleted
	note := ""

	for i, item := range r.items {
		if stop, status := r.signaled(); stop {
			finalStatus = status
			break
		}

		current = item
		item.Status = ItemProcessing
		item.ErrorMsg = ""
		m.persistItem(item)

		// no delay before the very first item of a run
		if i > 0 {
			if err := r.pacer.Wait(ctx); err != nil {
				// shutdown during pacing: the item saw no remote call,
				// put it back so a later start can select it
				item.Status = ItemPending
				m.persistItem(item)
				finalStatus = StatusPaused
				note = "interrupted by shutdown"
				current = nil
				break
			}
		}

		quotaHit := m.processItem(ctx, r, item, dirID)
		current = nil
		if _, err := m.store.RecomputeCounters(r.taskID); err != nil {
			log.Warn().Str("task_id", r.taskID).Err(err).Msg("recompute counters failed")
		}
		if quotaHit {
			// every further item would fail the same way
			finalStatus = StatusPaused
			note = "run halted: storage quota exceeded"
			break
		}
		if ctx.Err() != nil {
			finalStatus = StatusPaused
			note = "interrupted by shutdown"
			break
		}
	}

	m.settleRun(r, finalStatus, note)
}

// processItem runs resolve -> transfer -> createShare for one item and
// records the outcome. Returns true when the account quota is exhausted,
// which halts the run.
func (m *Manager) processItem(ctx context.Context, r *run, item *Item, dirID string) (quotaHit bool) {
	logCtx := log.With().Str("task_id", r.taskID).Uint("item_id", item.ID).Int("row", item.RowIndex).Logger()

	link, err := m.transferOne(ctx, item, dirID)
	if err == nil {
		item.Status = ItemSuccess
		item.NewShareURL = link.URL
		m.persistItem(item)
		if histErr := m.store.SaveHistory(item.OriginalURL, link.URL); histErr != nil {
			logCtx.Warn().Err(histErr).Msg("record link history failed")
		}
		logCtx.Info().Str("share_url", link.URL).Msg("item republished")
		return false
	}

	class := netdisk.Classify(err)
	switch class {
	case netdisk.ClassAlreadyExists, netdisk.ClassAlreadyDeleted:
		// business condition, not a failure: skip and keep going
		item.Status = ItemSkipped
		item.ErrorMsg = class.String() + ": " + err.Error()
		logCtx.Info().Str("class", class.String()).Msg("item skipped")
	case netdisk.ClassQuotaExceeded:
		item.Status = ItemFailed
		item.ErrorMsg = err.Error()
		quotaHit = true
		logCtx.Error().Err(err).Msg("storage quota exceeded, halting run")
	default:
		// transient, invalid link and unknown all mark the item failed;
		// retry is a deliberate later start call, never automatic
		item.Status = ItemFailed
		item.ErrorMsg = err.Error()
		logCtx.Warn().Str("class", class.String()).Err(err).Msg("item failed")
	}
	m.persistItem(item)
	return quotaHit
}

// transferOne is the remote pipeline: resolve the share, pull it into the
// save directory, publish a fresh long-lived share.
func (m *Manager) transferOne(ctx context.Context, item *Item, dirID string) (*netdisk.ShareLink, error) {
	handle, err := m.gateway.Resolve(ctx, item.OriginalURL, item.AccessCode)
	if err != nil {
		return nil, err
	}
	result, err := m.gateway.Transfer(ctx, handle, dirID)
	if err != nil {
		return nil, err
	}
	return m.gateway.CreateShare(ctx, result)
}

// settleRun writes the final task status, refreshes counters and emits the
// run summary.
func (m *Manager) settleRun(r *run, status Status, note string) {
	t, err := m.store.RecomputeCounters(r.taskID)
	if err != nil {
		log.Warn().Str("task_id", r.taskID).Err(err).Msg("final counter recompute failed")
	}
	if err := m.store.UpdateTaskStatus(r.taskID, status, note); err != nil {
		log.Error().Str("task_id", r.taskID).Err(err).Msg("persist final task status failed")
	}
	summary := notify.Summary{TaskID: r.taskID, Status: string(status), Note: note}
	if t != nil {
		summary.TaskName = t.Name
		summary.Total = t.TotalCount
		summary.Success = t.SuccessCount
		summary.Failed = t.FailCount
		summary.Skipped = t.SkipCount
	}
	m.notifier.RunFinished(summary)
	log.Info().Str("task_id", r.taskID).Str("status", string(status)).Msg("run finished")
}

func (m *Manager) persistItem(item *Item) {
	if err := m.store.UpdateItem(item); err != nil {
		log.Warn().Uint("item_id", item.ID).Err(err).Msg("persist item failed")
	}
}
