package task

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"bulkops/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type TaskController struct {
	service TaskServiceInterface
}

func NewTaskController(service TaskServiceInterface) *TaskController {
	return &TaskController{
		service: service,
	}
}

// StartImport accepts a multipart upload in the "file" field.
func (tc *TaskController) StartImport(c *gin.Context) {
	caller, err := auth.IdentityFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file is required in the 'file' field"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read the uploaded file"})
		return
	}
	defer file.Close()

	ticket, err := tc.service.StartImport(c.Request.Context(), ImportRequest{
		Subtype:  c.Param("subtype"),
		OwnerID:  caller.OwnerID,
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Body:     file,
	})
	if err != nil {
		tc.writeStartError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ticket)
}

// StartExport accepts {"filters": {...}}.
func (tc *TaskController) StartExport(c *gin.Context) {
	caller, err := auth.IdentityFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Filters map[string]string `json:"filters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := tc.service.StartExport(c.Request.Context(), ExportRequest{
		Subtype: c.Param("subtype"),
		OwnerID: caller.OwnerID,
		Filters: req.Filters,
	})
	if err != nil {
		tc.writeStartError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ticket)
}

func (tc *TaskController) writeStartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownOperation):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidUpload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logrus.WithError(err).Error("Failed to start operation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start operation"})
	}
}

func (tc *TaskController) ListTasks(c *gin.Context) {
	caller, err := auth.IdentityFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	tasks, err := tc.service.ListTasks(c.Request.Context(), caller.OwnerID)
	if err != nil {
		logrus.WithError(err).Error("Failed to list tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tasks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (tc *TaskController) GetStatus(c *gin.Context) {
	view, err := tc.service.GetStatus(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		logrus.WithError(err).Error("Failed to get task status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get task"})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (tc *TaskController) Cancel(c *gin.Context) {
	ticket, err := tc.service.Cancel(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		case errors.Is(err, ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logrus.WithError(err).Error("Failed to cancel task")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel task"})
		}
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func (tc *TaskController) Download(c *gin.Context) {
	dl, err := tc.service.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		var notReady *NotReadyError
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		case errors.As(err, &notReady):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "status": notReady.Status})
		case errors.Is(err, ErrArtifactMissing):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			logrus.WithError(err).Error("Failed to open download")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open result file"})
		}
		return
	}
	defer dl.Body.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	c.DataFromReader(http.StatusOK, dl.Size, dl.ContentType, io.Reader(dl.Body), nil)
}
