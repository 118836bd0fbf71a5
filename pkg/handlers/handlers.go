package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rtsp-timelapse/pkg/models"
	"rtsp-timelapse/pkg/stats"
)

// StatsCache serves precomputed statistics.
type StatsCache interface {
	GetData() gin.H
}

// Reporter reads the live state the status endpoints expose.
type Reporter interface {
	GetTimelapses() []stats.Timelapse
	GetRunStatus() models.StatusSnapshot
}

// FrameSource finds the newest captured frame.
type FrameSource interface {
	Latest() (models.Frame, bool)
}

// Trigger enqueues a generation cycle.
type Trigger interface {
	TriggerGeneration() bool
}

// Handlers carries the dependencies of the status endpoints.
type Handlers struct {
	DataDir  string
	Cache    StatsCache
	Reporter Reporter
	Frames   FrameSource
	Trigger  Trigger
}

func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus combines the cached disk statistics with the live run state.
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats": h.Cache.GetData(),
		"run":   h.Reporter.GetRunStatus(),
	})
}

func (h *Handlers) HandleTimelapses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timelapses": h.Reporter.GetTimelapses()})
}

// HandleLatestFrame serves the newest frame waiting for the next cycle.
func (h *Handlers) HandleLatestFrame(c *gin.Context) {
	frame, ok := h.Frames.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frames captured yet"})
		return
	}
	c.Header("X-Captured-At", frame.CapturedAt.Format(time.RFC3339))
	c.File(frame.Path)
}

// HandleForceGenerate enqueues a generation cycle. The scheduler loop picks
// it up between ticks.
func (h *Handlers) HandleForceGenerate(c *gin.Context) {
	if h.Trigger.TriggerGeneration() {
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "already queued"})
}

// HandleLog returns one day's ffmpeg log, the latest by default.
func (h *Handlers) HandleLog(c *gin.Context) {
	logFiles, err := filepath.Glob(filepath.Join(h.DataDir, "ffmpeg_log_*.txt"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Error finding log files: %v", err)})
		return
	}

	if len(logFiles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No log files found."})
		return
	}

	// Newest first
	sort.Sort(sort.Reverse(sort.StringSlice(logFiles)))

	var logDates []string
	for _, file := range logFiles {
		name := filepath.Base(file)
		logDates = append(logDates, strings.TrimSuffix(strings.TrimPrefix(name, "ffmpeg_log_"), ".txt"))
	}

	selectedDate := c.Query("date")
	var logToShowPath string
	if selectedDate != "" {
		if _, err := time.Parse(time.DateOnly, selectedDate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		logToShowPath = filepath.Join(h.DataDir, fmt.Sprintf("ffmpeg_log_%s.txt", selectedDate))
	} else {
		logToShowPath = logFiles[0]
		selectedDate = logDates[0]
	}

	content, err := os.ReadFile(logToShowPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":           fmt.Sprintf("Log file for date %s not found.", selectedDate),
				"available_dates": logDates,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Error reading log file: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":            selectedDate,
		"available_dates": logDates,
		"content":         string(content),
	})
}
