package statusapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/dnsperf/internal/archive"
)

// handler holds the dependencies the status API's endpoints read from;
// it carries no mutable state of its own beyond startTime.
type handler struct {
	stats        StatsProvider
	archiveStore *archive.Store
	startTime    time.Time
}

// health godoc
// @Summary Health check
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getStats godoc
// @Summary Live run statistics
// @Description Returns the aggregate counters across all workers of the in-progress run
// @Produce json
// @Success 200 {object} Snapshot
// @Router /stats [get]
func (h *handler) getStats(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusOK, Snapshot{})
		return
	}
	c.JSON(http.StatusOK, h.stats())
}

// runSummary is the JSON shape for one archived run listing.
type runSummary struct {
	ID            string `json:"id"`
	StartedAt     string `json:"started_at"`
	Server        string `json:"server"`
	Mode          string `json:"mode"`
	NumSent       uint64 `json:"num_sent"`
	NumCompleted  uint64 `json:"num_completed"`
	LatencyAvgUs  float64 `json:"latency_avg_us"`
}

// listRuns godoc
// @Summary Archived run history
// @Description Returns the most recent archived runs, newest first
// @Produce json
// @Success 200 {array} runSummary
// @Router /runs [get]
func (h *handler) listRuns(c *gin.Context) {
	if h.archiveStore == nil {
		c.JSON(http.StatusOK, []runSummary{})
		return
	}
	runs, err := h.archiveStore.List(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, runSummary{
			ID:           r.ID,
			StartedAt:    r.StartedAt.Format(time.RFC3339),
			Server:       r.Server,
			Mode:         r.Mode,
			NumSent:      r.NumSent,
			NumCompleted: r.NumCompleted,
			LatencyAvgUs: r.LatencyAvgUS,
		})
	}
	c.JSON(http.StatusOK, out)
}
