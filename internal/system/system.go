package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/teachme/internal/apperr"
)

const probeTimeout = 10 * time.Second

var VideoExtensions = []string{".mp4", ".mov", ".webm"}

// ProbeToolkit runs `<binary> --version` and returns the first line of its
// output. Any failure is a configuration problem on this machine.
func ProbeToolkit(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := "version check failed"
		switch {
		case errors.Is(err, exec.ErrNotFound):
			msg = binary + " not installed"
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			msg = "version check timed out"
		}
		return "", &apperr.ConfigurationError{Key: "manim", Msg: msg, Err: err}
	}

	version := strings.TrimSpace(string(out))
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	return version, nil
}

// FindLatestVideo walks dir recursively and returns the most recently
// modified video file.
func FindLatestVideo(dir string) (string, error) {
	var latestFile string
	var latestTime time.Time

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isVideo(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if latestFile == "" || info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if latestFile == "" {
		return "", fmt.Errorf("no video files found in %s", dir)
	}

	return latestFile, nil
}

func isVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration reads the container duration of a media file with ffprobe.
func ProbeDuration(path string) (float64, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, err
	}
	return parseProbeDuration(out)
}

func parseProbeDuration(out string) (float64, error) {
	var p probeOutput
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		return 0, err
	}
	if p.Format.Duration == "" {
		return 0, errors.New("ffprobe reported no duration")
	}
	return strconv.ParseFloat(p.Format.Duration, 64)
}

// Host is a snapshot of the resources available to the renderer.
type Host struct {
	LogicalCPUs  int
	TotalMemory  uint64
	AvailMemory  uint64
	MemoryUsedPc float64
}

func HostReport() (Host, error) {
	var h Host

	n, err := cpu.Counts(true)
	if err != nil {
		return h, err
	}
	h.LogicalCPUs = n

	vm, err := mem.VirtualMemory()
	if err != nil {
		return h, err
	}
	h.TotalMemory = vm.Total
	h.AvailMemory = vm.Available
	h.MemoryUsedPc = vm.UsedPercent

	return h, nil
}

// HumanBytes formats n as MiB/GiB for log lines.
func HumanBytes(n uint64) string {
	const (
		mib = 1 << 20
		gib = 1 << 30
	)
	if n >= gib {
		return fmt.Sprintf("%.1f GiB", float64(n)/gib)
	}
	return fmt.Sprintf("%.0f MiB", float64(n)/mib)
}
