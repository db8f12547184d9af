// ffwatcher/api/handler.go
package api

import (
	"net/http"

	"ffwatcher/task"

	"github.com/gin-gonic/gin"
)

// JobLister is the read-only view of the scheduler the API exposes.
type JobLister interface {
	Jobs() []task.Job
}

type Handler struct {
	jobs JobLister
}

func NewHandler(jobs JobLister) *Handler {
	return &Handler{jobs: jobs}
}

// handleListJobs lists all known jobs, newest first.
func (h *Handler) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Jobs())
}

// handleGetJob retrieves a single job by ID.
func (h *Handler) handleGetJob(c *gin.Context) {
	jobID := c.Param("jobId")
	for _, j := range h.jobs.Jobs() {
		if j.ID == jobID {
			c.JSON(http.StatusOK, j)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
}
