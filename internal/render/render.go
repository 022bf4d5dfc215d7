package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ivlev/teachme/internal/apperr"
	"github.com/ivlev/teachme/internal/config"
	"github.com/ivlev/teachme/internal/script"
	"github.com/ivlev/teachme/internal/system"
)

const (
	TempScriptName = "scene.py"
	VideoExtension = ".mp4"
	mediaDir       = "media"

	// waitDelay is how long output is still drained after the toolkit was
	// killed or exited.
	waitDelay = 2 * time.Second
)

type Options struct {
	Quality   config.Quality
	Style     config.Style
	OutputDir string
	Timeout   time.Duration
}

// Result is what the CLI reports back to the user.
type Result struct {
	VideoPath string
	Success   bool
	Err       error
	Scene     string
	Duration  float64
}

type Renderer interface {
	Render(ctx context.Context, g *script.Generated, opts Options) (*Result, error)
}

// ManimRenderer shells out to the Manim CLI.
type ManimRenderer struct {
	Binary string
	// TempRoot is where per-render scratch directories are created; empty
	// means os.TempDir().
	TempRoot string
	// Passthrough receives the toolkit's stdout and stderr live when set.
	Passthrough io.Writer
	// Probe reads the duration of the produced video.
	Probe func(path string) (float64, error)
	Log   *slog.Logger
}

// NewManimRenderer streams toolkit output to passthrough only in verbose mode.
func NewManimRenderer(cfg config.Config, log *slog.Logger, passthrough io.Writer) *ManimRenderer {
	r := &ManimRenderer{
		Binary: cfg.ManimBinary,
		Probe:  system.ProbeDuration,
		Log:    log,
	}
	if cfg.Verbose {
		r.Passthrough = passthrough
	}
	return r
}

func (r *ManimRenderer) logger() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

// Render writes g to a scratch directory, runs Manim on it and moves the
// produced video to <OutputDir>/animations/<Scene>.mp4. The scratch
// directory is removed on every path out of this function.
func (r *ManimRenderer) Render(ctx context.Context, g *script.Generated, opts Options) (*Result, error) {
	res := &Result{Scene: g.SceneName}
	fail := func(err error) (*Result, error) {
		res.Err = err
		return res, err
	}

	if err := script.Validate(g.Code); err != nil {
		return fail(&apperr.RenderError{Scene: g.SceneName, Msg: "script rejected", Err: err})
	}

	tmpDir, err := os.MkdirTemp(r.TempRoot, "teachme_")
	if err != nil {
		return fail(&apperr.RenderError{Scene: g.SceneName, Msg: "cannot create scratch directory", Err: err})
	}
	defer os.RemoveAll(tmpDir)

	scriptPath := filepath.Join(tmpDir, TempScriptName)
	if err := os.WriteFile(scriptPath, []byte(g.Code), 0644); err != nil {
		return fail(&apperr.RenderError{Scene: g.SceneName, Msg: "cannot write script", Err: err})
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := r.buildManimArgs(scriptPath, g.SceneName, opts)
	r.logger().Debug("running toolkit", "binary", r.Binary, "args", args, "dir", tmpDir)

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = tmpDir

	stdout, stderr, err := runCapture(cmd, r.Passthrough)
	if err != nil {
		return fail(toolkitError(ctx, g.SceneName, opts.Timeout, err, stdout, stderr))
	}

	produced, err := system.FindLatestVideo(filepath.Join(tmpDir, mediaDir))
	if err != nil {
		return fail(&apperr.RenderError{Scene: g.SceneName, Msg: "no video file generated", Stderr: stderr, Err: err})
	}

	dest := OutputPath(opts.OutputDir, g.SceneName)
	if err := relocate(produced, dest); err != nil {
		return fail(&apperr.RenderError{Scene: g.SceneName, Msg: "cannot move video to " + dest, Err: err})
	}

	res.VideoPath = dest
	res.Success = true
	res.Duration = g.EstimatedDuration
	if r.Probe != nil {
		if d, err := r.Probe(dest); err == nil {
			res.Duration = d
		} else {
			r.logger().Debug("duration probe failed, using estimate", "path", dest, "err", err)
		}
	}
	return res, nil
}

// OutputPath is the documented location of a scene's video.
func OutputPath(outputDir, scene string) string {
	return filepath.Join(outputDir, config.AnimationsSubdir, scene+VideoExtension)
}

func (r *ManimRenderer) buildManimArgs(scriptPath, scene string, opts Options) []string {
	args := []string{
		scriptPath,
		scene,
		QualityFlag(opts.Quality),
		"--background_color", BackgroundColor(opts.Style),
		"--output_file", scene + VideoExtension,
	}
	return args
}

// QualityFlag maps a quality to Manim's preset flag, defaulting to low.
func QualityFlag(q config.Quality) string {
	switch q {
	case config.QualityMedium:
		return "-qm"
	case config.QualityHigh:
		return "-qh"
	default:
		return "-ql"
	}
}

func BackgroundColor(s config.Style) string {
	if s == config.StyleDark {
		return "#000000"
	}
	return "#FFFFFF"
}

func toolkitError(ctx context.Context, scene string, timeout time.Duration, err error, stdout, stderr string) error {
	out := stderr
	if out == "" {
		out = tail(stdout, 4096)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperr.RenderError{Scene: scene, Msg: fmt.Sprintf("manim timed out after %s", timeout), Stderr: out, Err: err}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &apperr.RenderError{Scene: scene, Msg: "interrupted", Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &apperr.RenderError{Scene: scene, Msg: fmt.Sprintf("manim exited with code %d", exitErr.ExitCode()), Stderr: out}
	}
	return &apperr.RenderError{Scene: scene, Msg: "manim execution error", Stderr: out, Err: err}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// runCapture runs cmd with stdout and stderr captured; when passthrough is set
// they are also streamed to it. The toolkit runs in its own process group so
// cancellation reaches helpers it spawned, and WaitDelay bounds how long Wait
// keeps draining output after that.
func runCapture(cmd *exec.Cmd, passthrough io.Writer) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if passthrough != nil {
		pt := &lockedWriter{w: passthrough}
		cmd.Stdout = io.MultiWriter(&stdout, pt)
		cmd.Stderr = io.MultiWriter(&stderr, pt)
	}
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	// a helper still holding the output after a clean exit is not a failure
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	return stdout.String(), stderr.String(), err
}

// relocate moves src to dst. Across filesystems it copies through a .part
// file renamed into place, so dst is either complete or absent.
func relocate(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	part := dst + ".part"
	if err := copyFile(src, part); err != nil {
		os.Remove(part)
		return err
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
