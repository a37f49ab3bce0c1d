package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/irlmbm/companion-backend/internal/gateway_service/service"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"
)

// API provides handlers for the gateway service.
type API struct {
	service     *service.TaskService
	connections *service.ConnectionManager
	logger      *logger.Logger
	waitTimeout int
	upgrader    websocket.Upgrader
}

// NewAPI creates a new API handler. waitTimeoutSeconds bounds the blocking
// wait path on chat submissions.
func NewAPI(svc *service.TaskService, connections *service.ConnectionManager, log *logger.Logger, waitTimeoutSeconds int) *API {
	return &API{
		service:     svc,
		connections: connections,
		logger:      log,
		waitTimeout: waitTimeoutSeconds,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement a proper origin check.
			},
		},
	}
}

// SubmitChatHandler enqueues a chat turn. With ?wait=true the handler blocks
// until the worker finishes the turn or the wait window elapses.
func (a *API) SubmitChatHandler(c *gin.Context) {
	userID, _ := c.Get("userID")

	var payload struct {
		Message   string `json:"message"`
		ThreadID  string `json:"thread_id"`
		RequestID string `json:"request_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	result, err := a.service.SubmitChat(c.Request.Context(), userID.(string), payload.ThreadID, payload.RequestID, payload.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit task"})
		return
	}

	wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if !wait {
		c.JSON(http.StatusAccepted, result)
		return
	}

	record, err := a.service.WaitForResult(c.Request.Context(), result.TaskID, time.Duration(a.waitTimeout)*time.Second)
	if err != nil {
		if errors.Is(err, service.ErrWaitTimeout) {
			// The task is still running; the client can keep polling by id.
			c.JSON(http.StatusAccepted, result)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task result"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id":    result.TaskID,
		"request_id": result.RequestID,
		"thread_id":  result.ThreadID,
		"status":     record,
	})
}

// SubmitUploadHandler enqueues an audio upload task. The audio arrives either
// inline as base64 or as a path already staged on shared storage.
func (a *API) SubmitUploadHandler(c *gin.Context) {
	userID, _ := c.Get("userID")

	var payload struct {
		AudioBase64 string `json:"audio_base64"`
		LocalPath   string `json:"local_path"`
		RequestID   string `json:"request_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	if payload.AudioBase64 == "" && payload.LocalPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either audio_base64 or local_path is required"})
		return
	}

	result, err := a.service.SubmitUpload(c.Request.Context(), userID.(string), payload.RequestID, payload.AudioBase64, payload.LocalPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit task"})
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// SubmitSweepHandler enqueues a retention sweep of the user's stored audio.
func (a *API) SubmitSweepHandler(c *gin.Context) {
	userID, _ := c.Get("userID")

	maxAgeDays, _ := strconv.Atoi(c.DefaultQuery("max_age_days", "0"))

	result, err := a.service.SubmitSweep(c.Request.Context(), userID.(string), maxAgeDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit task"})
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// GetTaskHandler returns the current status record for a task.
func (a *API) GetTaskHandler(c *gin.Context) {
	taskID := c.Param("id")

	record, err := a.service.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// WebSocketHandler upgrades the connection and streams the user's task
// updates until the client disconnects.
func (a *API) WebSocketHandler(c *gin.Context) {
	userID, _ := c.Get("userID")
	uid := userID.(string)

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upgrade WebSocket connection")
		return
	}

	a.connections.Add(uid, conn)

	// The request context is not tied to the hijacked connection, so the
	// stream runs on its own context, cancelled once the client goes away.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		defer a.connections.Remove(uid, conn)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := a.service.StreamUpdates(ctx, uid, a.connections); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"user_id": uid,
		}).Warn("Update stream ended with an error")
	}
	a.logger.WithPayload(map[string]interface{}{"user_id": uid}).Info("Update stream closed")
}
