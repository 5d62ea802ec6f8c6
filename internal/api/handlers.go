package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/content-scheduler/internal/engine"
	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/storage"
)

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// fail maps domain errors onto HTTP statuses. Concurrency conflicts and
// fixed-day collisions are 409s; unknown entities are 404s; everything the
// validation layer rejects is a 400.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrRunInProgress),
		errors.Is(err, storage.ErrFixedDayTaken),
		errors.Is(err, storage.ErrTopicUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, engine.ErrScheduleNotRunnable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// Schedules

func (s *Server) createSchedule(c *gin.Context) {
	var schedule models.Schedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.admin.CreateSchedule(c.Request.Context(), &schedule); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

func (s *Server) listSchedules(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	schedules, err := s.admin.ListSchedules(c.Request.Context(), activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, schedules)
}

func (s *Server) getSchedule(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	schedule, err := s.admin.GetSchedule(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (s *Server) updateSchedule(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var schedule models.Schedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	schedule.ID = id
	if err := s.admin.UpdateSchedule(c.Request.Context(), &schedule); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.admin.DeleteSchedule(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pauseSchedule(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.admin.Pause(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resumeSchedule(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.admin.Resume(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) runSchedule(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	run, err := s.admin.RunNow(c.Request.Context(), id)
	if err != nil && run == nil {
		fail(c, err)
		return
	}
	// A failed run still produced a log entry; return it with 200 so the
	// operator sees the recorded error text.
	c.JSON(http.StatusOK, run)
}

// Logs and stats

func (s *Server) listLogs(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	filter := storage.DefaultLogFilter()
	if v := c.Query("status"); v != "" {
		status := models.ExecutionStatus(v)
		filter.Status = &status
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = v
	}
	logs, err := s.admin.ListLogs(c.Request.Context(), id, filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) getStats(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	stats, err := s.admin.GetScheduleStats(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Fixed topics

func (s *Server) createFixedTopic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var topic models.FixedTopic
	if err := c.ShouldBindJSON(&topic); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topic.ScheduleID = id
	if err := s.admin.CreateFixedTopic(c.Request.Context(), &topic); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, topic)
}

func (s *Server) listFixedTopics(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	topics, err := s.admin.ListFixedTopics(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, topics)
}

func (s *Server) updateFixedTopic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var topic models.FixedTopic
	if err := c.ShouldBindJSON(&topic); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topic.ID = id
	if err := s.admin.UpdateFixedTopic(c.Request.Context(), &topic); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

func (s *Server) deleteFixedTopic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.admin.DeleteFixedTopic(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Dynamic topics

func (s *Server) createDynamicTopic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var topic models.DynamicTopic
	if err := c.ShouldBindJSON(&topic); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topic.ScheduleID = id
	if err := s.admin.CreateDynamicTopic(c.Request.Context(), &topic); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, topic)
}

func (s *Server) listDynamicTopics(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	filter := storage.TopicFilter{}
	if v := c.Query("status"); v != "" {
		status := models.DynamicTopicStatus(v)
		filter.Status = &status
	}
	topics, err := s.admin.ListDynamicTopics(c.Request.Context(), id, filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, topics)
}

func (s *Server) updateDynamicTopic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var topic models.DynamicTopic
	if err := c.ShouldBindJSON(&topic); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topic.ID = id
	if err := s.admin.UpdateDynamicTopic(c.Request.Context(), &topic); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

func (s *Server) retireDynamicTopic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.admin.RetireDynamicTopic(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDynamicTopic(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.admin.DeleteDynamicTopic(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Posts

func (s *Server) listPosts(c *gin.Context) {
	filter := storage.PostFilter{Limit: 50}
	if v := c.Query("schedule_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			sid := uint(id)
			filter.ScheduleID = &sid
		}
	}
	if v := c.Query("status"); v != "" {
		status := models.PostStatus(v)
		filter.Status = &status
	}
	posts, err := s.admin.ListPosts(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (s *Server) getPost(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	post, err := s.admin.GetPost(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}
