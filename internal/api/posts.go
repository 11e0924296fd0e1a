package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/db"
	"github.com/brandpulse/brandpulse/internal/workflow"
)

func (r *Router) classifiedPosts() *db.ClassifiedPostRepository {
	return db.NewClassifiedPostRepository(r.repo)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return 0, false
	}
	return id, true
}

func (r *Router) listPosts(c *gin.Context) {
	filter := db.ListFilter{
		Category: c.Query("category"),
		Product:  c.Query("product"),
		Company:  c.Query("company"),
		Platform: c.Query("platform"),
		Status:   c.Query("status"),
	}
	if v, err := strconv.Atoi(c.DefaultQuery("min_urgency", "0")); err == nil {
		filter.MinUrgency = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("min_impact", "0")); err == nil {
		filter.MinImpact = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		filter.Limit = v
	}
	if raw, ok := c.GetQuery("is_spam"); ok {
		if spam, err := strconv.ParseBool(raw); err == nil {
			filter.IsSpam = &spam
		}
	}

	posts, err := r.classifiedPosts().List(c.Request.Context(), filter)
	if err != nil {
		r.logger.Error("failed to list posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list posts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (r *Router) listActionable(c *gin.Context) {
	filter := db.ActionableFilter{
		Status:  c.Query("status"),
		Company: c.Query("company"),
	}
	if v, err := strconv.Atoi(c.DefaultQuery("min_urgency", "0")); err == nil {
		filter.MinUrgency = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		filter.Limit = v
	}
	filter.NotOnSlack = c.Query("not_on_slack") == "true"
	filter.NoTicket = c.Query("no_ticket") == "true"

	posts, err := r.classifiedPosts().Actionable(c.Request.Context(), filter)
	if err != nil {
		r.logger.Error("failed to list actionable posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list actionable posts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (r *Router) getPost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	post, err := r.classifiedPosts().GetByID(c.Request.Context(), id)
	if err != nil {
		r.logger.Error("failed to load post", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load post"})
		return
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) workflowError(c *gin.Context, err error) {
	if errors.Is(err, workflow.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	r.logger.Error("workflow transition failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type slackRequest struct {
	Channel   string `json:"channel" binding:"required"`
	MessageTS string `json:"message_ts"`
	RaisedBy  string `json:"raised_by"`
}

func (r *Router) raiseOnSlack(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req slackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := r.workflow.RaiseOnSlack(c.Request.Context(), id, req.Channel, req.MessageTS, req.RaisedBy)
	if err != nil {
		r.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

type ticketRequest struct {
	TicketID  string `json:"ticket_id" binding:"required"`
	TicketURL string `json:"ticket_url"`
	System    string `json:"system"`
}

func (r *Router) createTicket(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ticketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := r.workflow.CreateTicket(c.Request.Context(), id, req.TicketID, req.TicketURL, req.System)
	if err != nil {
		r.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

type assignRequest struct {
	Team     string `json:"team" binding:"required"`
	Assignee string `json:"assignee"`
}

func (r *Router) assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := r.workflow.Assign(c.Request.Context(), id, req.Team, req.Assignee)
	if err != nil {
		r.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

type resolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

func (r *Router) resolve(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := r.workflow.Resolve(c.Request.Context(), id, req.Resolution)
	if err != nil {
		r.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

type noteRequest struct {
	Note string `json:"note" binding:"required"`
}

func (r *Router) addNote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := r.workflow.AddNote(c.Request.Context(), id, req.Note)
	if err != nil {
		r.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}
