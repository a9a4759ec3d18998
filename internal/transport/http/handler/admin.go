// Package handler exposes the scheduler core's admin operations over HTTP:
// inspecting job/trigger/calendar state, pausing/resuming trigger groups,
// and firing a trigger immediately — the teacher's job/schedule CRUD
// surface re-pointed at internal/jobstore.Store instead of a webhook-job
// table.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/jobstore"
	"github.com/coriolis-sched/coriolis/internal/trigger"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves read/control operations directly against the store;
// it never talks to internal/engine, matching the teacher's handler layer
// talking only to its usecase/repository, never to the worker loop.
type AdminHandler struct {
	store  jobstore.Store
	logger *slog.Logger
}

func NewAdminHandler(store jobstore.Store, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, logger: logger.With("component", "admin_handler")}
}

type triggerGroupRequest struct {
	Group string `json:"group" binding:"required"`
}

// GET /trigger-groups/:group/state
func (h *AdminHandler) GroupTriggerKeys(c *gin.Context) {
	group := c.Param("group")
	keys, err := h.store.GetTriggerKeys(c.Request.Context(), group)
	if err != nil {
		h.logger.Error("list trigger keys", "group", group, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	type triggerState struct {
		Name  string `json:"name"`
		Group string `json:"group"`
		State string `json:"state"`
	}
	out := make([]triggerState, 0, len(keys))
	for _, k := range keys {
		state, err := h.store.GetTriggerState(c.Request.Context(), k)
		if err != nil {
			h.logger.Error("get trigger state", "trigger", k.String(), "error", err)
			continue
		}
		out = append(out, triggerState{Name: k.Name, Group: k.Group, State: string(state)})
	}
	c.JSON(http.StatusOK, gin.H{"triggers": out})
}

// POST /trigger-groups/pause
func (h *AdminHandler) PauseTriggerGroup(c *gin.Context) {
	var req triggerGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.PauseTriggerGroup(c.Request.Context(), req.Group); err != nil {
		h.logger.Error("pause trigger group", "group", req.Group, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /trigger-groups/resume
func (h *AdminHandler) ResumeTriggerGroup(c *gin.Context) {
	var req triggerGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.ResumeTriggerGroup(c.Request.Context(), req.Group); err != nil {
		h.logger.Error("resume trigger group", "group", req.Group, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /jobs/:group/:name
func (h *AdminHandler) GetJob(c *gin.Context) {
	key := domain.NewJobKey(c.Param("name"), c.Param("group"))
	job, err := h.store.RetrieveJob(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("retrieve job", "job", key.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GET /calendars
func (h *AdminHandler) ListCalendars(c *gin.Context) {
	names, err := h.store.GetCalendarNames(c.Request.Context())
	if err != nil {
		h.logger.Error("list calendars", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calendars": names})
}

type fireNowRequest struct {
	JobName  string `json:"job_name"  binding:"required"`
	JobGroup string `json:"job_group"`
}

// POST /jobs/fire-now
// Schedules a one-shot trigger starting immediately, so an operator can
// force an out-of-band run without waiting for the job's own schedule.
func (h *AdminHandler) FireNow(c *gin.Context) {
	var req fireNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobKey := domain.NewJobKey(req.JobName, req.JobGroup)
	if exists, err := h.store.CheckJobExists(c.Request.Context(), jobKey); err != nil {
		h.logger.Error("check job exists", "job", jobKey.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	} else if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		return
	}

	trigKey := domain.NewTriggerKey("fire-now-"+time.Now().UTC().Format("20060102T150405.000000000"), domain.FireNowGroup)
	trig := trigger.NewSimple(trigKey, jobKey, time.Now(), 0, 0)
	if err := h.store.StoreTrigger(c.Request.Context(), trig, false); err != nil {
		h.logger.Error("store fire-now trigger", "job", jobKey.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"trigger": trigKey.String()})
}
