// Package maintenance runs the periodic remote cleanup jobs: emptying the
// save directory and the recycle bin. Jobs share the transfer gate with the
// task engine; a trigger that finds the gate held is skipped outright and
// retried at the next trigger instant.
package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"linkporter/internal/gate"
	"linkporter/internal/netdisk"
)

const jobTimeout = 2 * time.Minute

// ErrSkipped reports a trigger that was dropped because a transfer held
// the gate.
var ErrSkipped = errors.New("cleanup skipped: transfer in progress")

// Options configures the scheduler.
type Options struct {
	Gateway         netdisk.Gateway
	Gate            *gate.Gate
	SaveDir         string
	RecyclePassword string
}

type Scheduler struct {
	cron            *cron.Cron
	gateway         netdisk.Gateway
	gate            *gate.Gate
	saveDir         string
	recyclePassword string
}

func New(opts Options) *Scheduler {
	return &Scheduler{
		cron:            cron.New(),
		gateway:         opts.Gateway,
		gate:            opts.Gate,
		saveDir:         opts.SaveDir,
		recyclePassword: opts.RecyclePassword,
	}
}

// Start registers the cron entries and launches the scheduler. Individual
// job failures are logged, never fatal; the next trigger proceeds normally.
func (s *Scheduler) Start(dirCron, trashCron string) error {
	if _, err := s.cron.AddFunc(dirCron, s.runLogged("cleanup-dir", s.CleanSaveDir)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(trashCron, s.runLogged("empty-trash", s.EmptyTrash)); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("dir_cron", dirCron).Str("trash_cron", trashCron).Msg("maintenance scheduler started")
	return nil
}

// Stop halts the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("maintenance scheduler stopped")
}

func (s *Scheduler) runLogged(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		switch err := job(ctx); {
		case errors.Is(err, ErrSkipped):
			log.Info().Str("job", name).Msg("cleanup trigger skipped, gate held by transfer")
		case err != nil:
			log.Error().Str("job", name).Err(err).Msg("cleanup job failed")
		default:
			log.Info().Str("job", name).Msg("cleanup job finished")
		}
	}
}

// CleanSaveDir deletes every entry under the configured save directory.
func (s *Scheduler) CleanSaveDir(ctx context.Context) error {
	handle, err := s.gate.TryAcquire(gate.HolderMaintenance)
	if err != nil {
		return ErrSkipped
	}
	defer handle.Release()

	dirID, err := s.gateway.EnsureDir(ctx, s.saveDir)
	if err != nil {
		return err
	}
	entries, err := s.gateway.ListDir(ctx, dirID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	if err := s.gateway.Delete(ctx, ids); err != nil {
		// entries removed on the remote side since listing: nothing left to do
		if netdisk.Classify(err) == netdisk.ClassAlreadyDeleted {
			return nil
		}
		return err
	}
	log.Info().Int("entries", len(ids)).Str("dir", s.saveDir).Msg("save directory cleared")
	return nil
}

// EmptyTrash empties the remote recycle bin, passing the configured
// password when one is set.
func (s *Scheduler) EmptyTrash(ctx context.Context) error {
	handle, err := s.gate.TryAcquire(gate.HolderMaintenance)
	if err != nil {
		return ErrSkipped
	}
	defer handle.Release()

	return s.gateway.EmptyTrash(ctx, s.recyclePassword)
}
