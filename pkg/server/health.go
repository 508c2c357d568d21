package server

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"sitewatch/pkg/log"
)

// Health is the body of GET /healthz.
type Health struct {
	Status       string        `json:"status"`
	Version      string        `json:"version"`
	Running      bool          `json:"running"`
	Uptime       string        `json:"uptime"`
	LoadAverages *LoadAverages `json:"load_averages,omitempty"`
	Storage      *StorageInfo  `json:"storage,omitempty"`
}

// LoadAverages is the host load from /proc/loadavg.
type LoadAverages struct {
	Load1  float64 `json:"load_1"`
	Load5  float64 `json:"load_5"`
	Load15 float64 `json:"load_15"`
}

// StorageInfo describes the filesystem holding the data directory.
type StorageInfo struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
	Human     string `json:"human"`
}

func (srv *Server) health(ctx echo.Context) error {
	info := Health{
		Status:  "ok",
		Version: srv.cfg.Version,
		Running: srv.monitor.Running(),
		Uptime:  formatUptime(time.Since(srv.started)),
	}

	if load, err := getLoadAverages(); err == nil {
		info.LoadAverages = load
	} else {
		log.Debug().Err(err).Msg("Load averages unavailable")
	}

	if srv.cfg.DataDir != "" {
		if storage, err := getStorageInfo(srv.cfg.DataDir); err == nil {
			info.Storage = storage
		} else {
			log.Debug().Err(err).Str("data_dir", srv.cfg.DataDir).Msg("Storage info unavailable")
		}
	}

	return ctx.JSON(http.StatusOK, info)
}

func getLoadAverages() (*LoadAverages, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return nil, err
	}

	const minLoadFields = 3
	fields := strings.Fields(string(data))
	if len(fields) < minLoadFields {
		return nil, strconv.ErrSyntax
	}

	var values [minLoadFields]float64
	for i := range values {
		if values[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return nil, err
		}
	}

	return &LoadAverages{Load1: values[0], Load5: values[1], Load15: values[2]}, nil
}

func getStorageInfo(path string) (*StorageInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}

	blockSize := uint64(stat.Bsize) // #nosec G115 - syscall values are system dependent
	total := stat.Blocks * blockSize
	available := stat.Bavail * blockSize
	used := total - available

	return &StorageInfo{
		Total:     total,
		Used:      used,
		Available: available,
		Human:     humanize.Bytes(used) + " used of " + humanize.Bytes(total),
	}, nil
}

// formatUptime renders d as "2d 3h 4m", "3h 4m" or "4m".
func formatUptime(d time.Duration) string {
	const hoursInDay = 24
	const minutesInHour = 60
	days := int(d.Hours()) / hoursInDay
	hours := int(d.Hours()) % hoursInDay
	minutes := int(d.Minutes()) % minutesInHour

	switch {
	case days > 0:
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	case hours > 0:
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	default:
		return strconv.Itoa(minutes) + "m"
	}
}
