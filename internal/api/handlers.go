package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"linkporter/internal/task"
)

type createTaskRequest struct {
	Name  string            `json:"name"`
	Items []task.ItemRecord `json:"items"`
}

type startTaskRequest struct {
	ItemIDs     []uint `json:"item_ids"`
	IntervalMin int    `json:"interval_min"`
	IntervalMax int    `json:"interval_max"`
}

type itemPage struct {
	Items    []task.Item `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

type API struct {
	manager *task.Manager
	// default pacing bounds applied when a start request omits both
	intervalMin int
	intervalMax int
}

func NewAPI(manager *task.Manager, intervalMin, intervalMax int) *API {
	return &API{manager: manager, intervalMin: intervalMin, intervalMax: intervalMax}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/tasks", a.CreateTask)
		api.GET("/tasks", a.ListTasks)
		api.GET("/tasks/:id", a.GetTask)
		api.GET("/tasks/:id/items", a.ListItems)
		api.POST("/tasks/:id/start", a.StartTask)
		api.POST("/tasks/:id/pause", a.PauseTask)
		api.POST("/tasks/:id/cancel", a.CancelTask)
		api.DELETE("/tasks/:id", a.DeleteTask)
		api.GET("/history", a.ListHistory)
		api.GET("/health", a.Health)
	}
}

// CreateTask stores a new batch of link records. No remote calls happen
// until the task is started.
func (a *API) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := a.manager.Create(req.Name, req.Items)
	if err != nil {
		log.Warn().Err(err).Msg("create task rejected")
		failErr(c, err)
		return
	}
	log.Info().Str("task_id", t.ID).Int("items", t.TotalCount).Msg("task created")
	created(c, t)
}

func (a *API) ListTasks(c *gin.Context) {
	tasks, err := a.manager.List()
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, tasks)
}

func (a *API) GetTask(c *gin.Context) {
	t, err := a.manager.Get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, t)
}

// ListItems returns one page of a task's items, filterable by status and a
// keyword over url/title.
func (a *API) ListItems(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	filter := task.ItemFilter{
		Status:   task.ItemStatus(c.Query("status")),
		Keyword:  c.Query("keyword"),
		Page:     page,
		PageSize: pageSize,
	}
	items, total, err := a.manager.Items(c.Param("id"), filter)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, itemPage{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize})
}

// StartTask kicks off background processing of the selected items and
// returns immediately; clients poll for progress.
func (a *API) StartTask(c *gin.Context) {
	id := c.Param("id")
	var req startTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntervalMin == 0 && req.IntervalMax == 0 {
		req.IntervalMin, req.IntervalMax = a.intervalMin, a.intervalMax
	}
	err := a.manager.Start(id, task.StartOptions{
		ItemIDs:     req.ItemIDs,
		IntervalMin: req.IntervalMin,
		IntervalMax: req.IntervalMax,
	})
	if err != nil {
		log.Warn().Str("task_id", id).Err(err).Msg("start rejected")
		failErr(c, err)
		return
	}
	log.Info().Str("task_id", id).Int("items", len(req.ItemIDs)).
		Int("interval_min", req.IntervalMin).Int("interval_max", req.IntervalMax).
		Msg("task started")
	ok(c, nil)
}

func (a *API) PauseTask(c *gin.Context) {
	id := c.Param("id")
	if err := a.manager.Pause(id); err != nil {
		failErr(c, err)
		return
	}
	log.Info().Str("task_id", id).Msg("pause requested")
	ok(c, nil)
}

func (a *API) CancelTask(c *gin.Context) {
	id := c.Param("id")
	if err := a.manager.Cancel(id); err != nil {
		failErr(c, err)
		return
	}
	log.Info().Str("task_id", id).Msg("cancel requested")
	ok(c, nil)
}

func (a *API) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := a.manager.Delete(id); err != nil {
		failErr(c, err)
		return
	}
	log.Info().Str("task_id", id).Msg("task deleted")
	ok(c, nil)
}

func (a *API) ListHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := a.manager.RecentHistory(limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, records)
}

func (a *API) Health(c *gin.Context) {
	ok(c, gin.H{"status": "up"})
}
