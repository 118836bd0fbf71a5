// Package stats gathers what the status surface reports: pending frames,
// produced timelapses, disk usage and the scheduler's run state.
package stats

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"rtsp-timelapse/pkg/config"
	"rtsp-timelapse/pkg/framestore"
	"rtsp-timelapse/pkg/models"
	"rtsp-timelapse/pkg/services/video"
	"rtsp-timelapse/pkg/util"
)

// Timelapse is one video in the timelapse directory.
type Timelapse struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	FPS         int       `json:"fps"`
	GeneratedAt time.Time `json:"generated_at"`
	Size        string    `json:"size"`
	CycleID     string    `json:"cycle_id,omitempty"`
}

// Collector reads the filesystem and run status. It never writes.
type Collector struct {
	cfg    *config.Config
	frames *framestore.Store
	status *models.RunStatus

	diskUsage   func(path string) (*disk.UsageStat, error)
	memoryUsage func() (*mem.VirtualMemoryStat, error)
}

func NewCollector(cfg *config.Config, frames *framestore.Store, status *models.RunStatus) *Collector {
	return &Collector{
		cfg:         cfg,
		frames:      frames,
		status:      status,
		diskUsage:   disk.Usage,
		memoryUsage: mem.VirtualMemory,
	}
}

// HandleImageStatsData summarises the frames waiting for the next cycle.
func (c *Collector) HandleImageStatsData() gin.H {
	frames, err := c.frames.List()
	if err != nil {
		slog.Warn("error listing frames", "error", err)
	}

	data := gin.H{
		"pending_frames": len(frames),
		"frames_size":    formatBytes(dirSize(c.cfg.FramesDir)),
		"oldest_frame":   "N/A",
		"newest_frame":   "N/A",
	}
	if len(frames) > 0 {
		data["oldest_frame"] = frames[0].CapturedAt.Format(time.DateTime)
		data["newest_frame"] = frames[len(frames)-1].CapturedAt.Format(time.DateTime)
	}
	return data
}

// GetDiskUsage reports usage of the filesystem holding the data path.
func (c *Collector) GetDiskUsage() gin.H {
	usage, err := c.diskUsage(c.cfg.DataDir)
	if err != nil {
		slog.Warn("error reading disk usage", "path", c.cfg.DataDir, "error", err)
		return gin.H{"error": "N/A"}
	}
	return gin.H{
		"data_usage":        formatBytes(dirSize(c.cfg.DataDir)),
		"disk_total":        formatBytes(int64(usage.Total)),
		"disk_free":         formatBytes(int64(usage.Free)),
		"disk_used_percent": fmt.Sprintf("%.2f%%", usage.UsedPercent),
	}
}

func (c *Collector) GetSystemInfo() gin.H {
	info := gin.H{
		"os_type":      runtime.GOOS,
		"memory_usage": "N/A",
	}
	if vm, err := c.memoryUsage(); err == nil {
		info["memory_usage"] = fmt.Sprintf("%.1f%%", vm.UsedPercent)
	}
	return info
}

// GetTimelapses lists the produced videos, newest first.
func (c *Collector) GetTimelapses() []Timelapse {
	files, err := util.ListFiles(c.cfg.TimelapsesDir, ".mp4")
	if err != nil {
		slog.Warn("error listing timelapses", "error", err)
		return []Timelapse{}
	}

	manifests := make(map[string]string)
	timelapses := make([]Timelapse, 0, len(files))
	for _, path := range files {
		name := filepath.Base(path)
		stamp, fps, ok := parseTimelapseName(name)
		if !ok {
			continue
		}
		tl := Timelapse{
			Name: name,
			URL:  "/timelapses/" + name,
			FPS:  fps,
		}
		tl.GeneratedAt, _ = time.ParseInLocation(framestore.NameLayout, stamp, time.Local)
		if info, err := os.Stat(path); err == nil {
			tl.Size = formatBytes(info.Size())
		}

		cycle, seen := manifests[stamp]
		if !seen {
			cycle = readCycleID(filepath.Join(c.cfg.TimelapsesDir, stamp+".yaml"))
			manifests[stamp] = cycle
		}
		tl.CycleID = cycle
		timelapses = append(timelapses, tl)
	}

	sort.SliceStable(timelapses, func(i, j int) bool {
		if timelapses[i].Name[:len(framestore.NameLayout)] != timelapses[j].Name[:len(framestore.NameLayout)] {
			return timelapses[i].Name > timelapses[j].Name
		}
		return timelapses[i].FPS < timelapses[j].FPS
	})
	return timelapses
}

// GetRunStatus copies the scheduler state.
func (c *Collector) GetRunStatus() models.StatusSnapshot {
	return c.status.Snapshot()
}

// parseTimelapseName splits "<timestamp>_fps_<N>.mp4".
func parseTimelapseName(name string) (string, int, bool) {
	stem := strings.TrimSuffix(name, ".mp4")
	stamp, rate, found := strings.Cut(stem, "_fps_")
	if !found || len(stamp) != len(framestore.NameLayout) {
		return "", 0, false
	}
	fps, err := strconv.Atoi(rate)
	if err != nil {
		return "", 0, false
	}
	return stamp, fps, true
}

func readCycleID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	m, err := video.ReadManifest(data)
	if err != nil {
		return ""
	}
	return m.CycleID
}

func dirSize(dir string) int64 {
	var totalSize int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("error calculating directory size", "dir", dir, "error", err)
	}
	return totalSize
}

func formatBytes(size int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case size >= gb:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d Bytes", size)
	}
}
