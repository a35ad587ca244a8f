package task

import (
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store persists tasks, items and link history in SQLite. It is the only
// writer during a run (the processing loop) apart from lifecycle handlers,
// which the manager serializes.
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.AutoMigrate(&Task{}, &Item{}, &History{}); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateTask(t *Task, items []Item) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return errors.WithStack(err)
		}
		for i := range items {
			items[i].TaskID = t.ID
		}
		if len(items) == 0 {
			return nil
		}
		return errors.WithStack(tx.CreateInBatches(items, 500).Error)
	})
}

func (s *Store) GetTask(id string) (*Task, error) {
	var t Task
	if err := s.db.First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, errors.WithStack(err)
	}
	return &t, nil
}

func (s *Store) ListTasks() ([]Task, error) {
	var tasks []Task
	err := s.db.Order("created_at DESC").Find(&tasks).Error
	return tasks, errors.WithStack(err)
}

// GetTaskItems returns the given items of a task keyed by id, so the caller
// can both validate membership and preserve its own ordering.
func (s *Store) GetTaskItems(taskID string, ids []uint) (map[uint]*Item, error) {
	var items []Item
	if err := s.db.Where("task_id = ? AND id IN ?", taskID, ids).Find(&items).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	byID := make(map[uint]*Item, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	return byID, nil
}

// ListItems returns one page of a task's items in row order, optionally
// filtered by status and by a keyword over url and title.
func (s *Store) ListItems(taskID string, f ItemFilter) ([]Item, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	tx := s.db.Model(&Item{}).Where("task_id = ?", taskID)
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		tx = tx.Where("original_url LIKE ? OR title LIKE ?", like, like)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, errors.WithStack(err)
	}
	var items []Item
	err := tx.Order("row_index ASC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&items).Error
	return items, total, errors.WithStack(err)
}

func (s *Store) UpdateItem(item *Item) error {
	return errors.WithStack(s.db.Model(&Item{}).Where("id = ?", item.ID).Updates(map[string]any{
		"status":        item.Status,
		"new_share_url": item.NewShareURL,
		"error_msg":     item.ErrorMsg,
	}).Error)
}

func (s *Store) UpdateTaskStatus(id string, status Status, lastError string) error {
	return errors.WithStack(s.db.Model(&Task{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"last_error": lastError,
	}).Error)
}

// RecomputeCounters derives the aggregate counters from the item states so
// they can never drift from the ground truth.
func (s *Store) RecomputeCounters(taskID string) (*Task, error) {
	counts := make(map[ItemStatus]int)
	rows := []struct {
		Status ItemStatus
		N      int
	}{}
	err := s.db.Model(&Item{}).
		Select("status, COUNT(*) as n").
		Where("task_id = ?", taskID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}
	total := 0
	for _, row := range rows {
		counts[row.Status] = row.N
		total += row.N
	}
	err = s.db.Model(&Task{}).Where("id = ?", taskID).Updates(map[string]any{
		"total_count":   total,
		"success_count": counts[ItemSuccess],
		"fail_count":    counts[ItemFailed],
		"skip_count":    counts[ItemSkipped],
	}).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return s.GetTask(taskID)
}

func (s *Store) DeleteTask(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&Item{}).Error; err != nil {
			return errors.WithStack(err)
		}
		res := tx.Delete(&Task{}, "id = ?", id)
		if res.Error != nil {
			return errors.WithStack(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	})
}

func (s *Store) SaveHistory(originalURL, shareURL string) error {
	record := History{OriginalURL: originalURL, ShareURL: shareURL}
	return errors.WithStack(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "original_url"}},
		DoUpdates: clause.AssignmentColumns([]string{"share_url", "created_at"}),
	}).Create(&record).Error)
}

func (s *Store) ListHistory(limit int) ([]History, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var records []History
	err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, errors.WithStack(err)
}

// ResetStaleRunning flips tasks left running by a previous process to
// paused and their in-flight items to failed, so the remainder can be
// re-selected by a later start.
func (s *Store) ResetStaleRunning() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Item{}).
			Where("status = ?", ItemProcessing).
			Updates(map[string]any{
				"status":    ItemFailed,
				"error_msg": "interrupted by restart",
			}).Error; err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(tx.Model(&Task{}).
			Where("status = ?", StatusRunning).
			Updates(map[string]any{
				"status":     StatusPaused,
				"last_error": "interrupted by restart",
			}).Error)
	})
}
