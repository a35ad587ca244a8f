package task

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemSuccess    ItemStatus = "success"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

// Task is one batch job over an ordered list of link records. Counters are
// always recomputed from item states, never incremented independently.
type Task struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:255" json:"name"`
	Status       Status    `gorm:"size:20;index" json:"status"`
	TotalCount   int       `json:"total_count"`
	SuccessCount int       `json:"success_count"`
	FailCount    int       `json:"fail_count"`
	SkipCount    int       `json:"skip_count"`
	LastError    string    `gorm:"size:1024" json:"last_error,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Item is one link record and its processing outcome. Success and Skipped
// are terminal; Failed items may be re-selected by a later start call.
type Item struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TaskID      string     `gorm:"size:36;index:idx_item_task_status" json:"task_id"`
	RowIndex    int        `json:"row_index"`
	OriginalURL string     `gorm:"size:1024" json:"original_url"`
	Title       string     `gorm:"size:512" json:"title,omitempty"`
	AccessCode  string     `gorm:"size:64" json:"access_code,omitempty"`
	Status      ItemStatus `gorm:"size:20;index:idx_item_task_status" json:"status"`
	NewShareURL string     `gorm:"size:1024" json:"new_share_url,omitempty"`
	ErrorMsg    string     `gorm:"size:1024" json:"error_msg,omitempty"`
}

// History records every successful republish: original link -> new link.
type History struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OriginalURL string    `gorm:"size:1024;uniqueIndex" json:"original_url"`
	ShareURL    string    `gorm:"size:1024" json:"share_url"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ItemRecord is one raw row handed to Create.
type ItemRecord struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	AccessCode string `json:"access_code,omitempty"`
}

// StartOptions selects the items to process and the pacing bounds for one
// run. Pacing is supplied per start call and not persisted.
type StartOptions struct {
	ItemIDs     []uint
	IntervalMin int
	IntervalMax int
}

// ItemFilter narrows a paginated item listing.
type ItemFilter struct {
	Status   ItemStatus
	Keyword  string
	Page     int
	PageSize int
}
