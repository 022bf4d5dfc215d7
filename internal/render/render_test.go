package render

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/teachme/internal/apperr"
	"github.com/ivlev/teachme/internal/config"
	"github.com/ivlev/teachme/internal/render/rendertest"
	"github.com/ivlev/teachme/internal/script"
)

func circle() *script.Generated {
	return &script.Generated{
		Code:              "from manim import *\n\nclass CircleScene(Scene):\n    def construct(self):\n        self.play(Create(Circle()))\n",
		SceneName:         "CircleScene",
		EstimatedDuration: 4,
	}
}

func newRenderer(t *testing.T, fake *rendertest.Fake) (*ManimRenderer, string) {
	t.Helper()
	scratch := t.TempDir()
	return &ManimRenderer{
		Binary:   fake.Binary,
		TempRoot: scratch,
		Probe:    func(string) (float64, error) { return 0, errors.New("no ffprobe in tests") },
	}, scratch
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected %s to be empty, found %d entries (first: %s)", dir, len(entries), entries[0].Name())
	}
}

func TestRenderSuccess(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.Succeed)
	r, scratch := newRenderer(t, fake)
	out := t.TempDir()

	res, err := r.Render(context.Background(), circle(), Options{Quality: config.QualityMedium, Style: config.StyleDark, OutputDir: out})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	want := filepath.Join(out, "animations", "CircleScene.mp4")
	if !res.Success || res.VideoPath != want {
		t.Errorf("Unexpected result %+v, want video at %s", res, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("Video missing: %v", err)
	}
	if !strings.Contains(string(data), "CircleScene") {
		t.Errorf("Unexpected video content %q", data)
	}
	if res.Duration != 4 {
		t.Errorf("Expected estimated duration fallback 4, got %f", res.Duration)
	}

	calls := fake.Calls(t)
	if len(calls) != 1 {
		t.Fatalf("Expected one toolkit call, got %d", len(calls))
	}
	for _, flag := range []string{"CircleScene", "-qm", "--background_color #000000", "--output_file CircleScene.mp4", TempScriptName} {
		if !strings.Contains(calls[0], flag) {
			t.Errorf("Toolkit args %q missing %q", calls[0], flag)
		}
	}

	assertEmptyDir(t, scratch)
}

func TestRenderFailureCleansUp(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.Fail)
	r, scratch := newRenderer(t, fake)
	out := t.TempDir()

	res, err := r.Render(context.Background(), circle(), Options{Quality: config.QualityLow, OutputDir: out})

	var renderErr *apperr.RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("Expected RenderError, got %v", err)
	}
	if !strings.Contains(renderErr.Stderr, "NameError") {
		t.Errorf("Toolkit stderr should be surfaced, got %q", renderErr.Stderr)
	}
	if !strings.Contains(renderErr.Msg, "code 1") {
		t.Errorf("Expected exit code in message, got %q", renderErr.Msg)
	}
	if res == nil || res.Success || res.Err == nil {
		t.Errorf("Expected failed result, got %+v", res)
	}

	assertEmptyDir(t, scratch)
	if _, err := os.Stat(filepath.Join(out, "animations", "CircleScene.mp4")); !os.IsNotExist(err) {
		t.Error("No video should exist after a failed render")
	}
}

func TestRenderNoOutput(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.NoOutput)
	r, scratch := newRenderer(t, fake)

	_, err := r.Render(context.Background(), circle(), Options{OutputDir: t.TempDir()})

	var renderErr *apperr.RenderError
	if !errors.As(err, &renderErr) || renderErr.Msg != "no video file generated" {
		t.Fatalf("Expected missing artifact RenderError, got %v", err)
	}
	assertEmptyDir(t, scratch)
}

func TestRenderRejectsUnsafeScript(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.Succeed)
	r, scratch := newRenderer(t, fake)

	g := circle()
	g.Code = "import subprocess\n" + g.Code
	_, err := r.Render(context.Background(), g, Options{OutputDir: t.TempDir()})

	if apperr.ExitCode(err) != apperr.ExitRender {
		t.Fatalf("Expected RenderError, got %v", err)
	}
	if calls := fake.Calls(t); len(calls) != 0 {
		t.Errorf("Toolkit must not run for a rejected script, got %v", calls)
	}
	assertEmptyDir(t, scratch)
}

func TestRenderCancelledContext(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.Succeed)
	r, scratch := newRenderer(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Render(ctx, circle(), Options{OutputDir: t.TempDir()})

	if apperr.ExitCode(err) != apperr.ExitRender {
		t.Fatalf("Expected RenderError, got %v", err)
	}
	assertEmptyDir(t, scratch)
}

func TestRenderTimeoutKillsToolkit(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.Hang)
	r, scratch := newRenderer(t, fake)
	out := t.TempDir()

	start := time.Now()
	_, err := r.Render(context.Background(), circle(), Options{OutputDir: out, Timeout: time.Second})
	elapsed := time.Since(start)

	var renderErr *apperr.RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("Expected RenderError, got %v", err)
	}
	if !strings.Contains(renderErr.Msg, "timed out after 1s") {
		t.Errorf("Expected timeout message, got %q", renderErr.Msg)
	}
	if elapsed > 10*time.Second {
		t.Errorf("Render returned after %s, the 1s timeout was not enforced", elapsed)
	}

	assertEmptyDir(t, scratch)
	if _, err := os.Stat(OutputPath(out, "CircleScene")); !os.IsNotExist(err) {
		t.Error("No video should exist after a timeout")
	}
}

func TestRenderCancelWhileRunning(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.Hang)
	r, scratch := newRenderer(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(500*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.Render(ctx, circle(), Options{OutputDir: t.TempDir()})
	var renderErr *apperr.RenderError
	if !errors.As(err, &renderErr) || renderErr.Msg != "interrupted" {
		t.Fatalf("Expected interrupted RenderError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Render returned after %s", elapsed)
	}
	assertEmptyDir(t, scratch)
}

func TestRenderPassthrough(t *testing.T) {
	fake := rendertest.NewFake(t, rendertest.Succeed)
	r, _ := newRenderer(t, fake)
	var live bytes.Buffer
	r.Passthrough = &live

	if _, err := r.Render(context.Background(), circle(), Options{OutputDir: t.TempDir()}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(live.String(), "File ready at") {
		t.Errorf("Expected toolkit output to be streamed, got %q", live.String())
	}
}

func TestQualityAndStyleFlags(t *testing.T) {
	tests := []struct {
		q    config.Quality
		want string
	}{
		{config.QualityLow, "-ql"},
		{config.QualityMedium, "-qm"},
		{config.QualityHigh, "-qh"},
		{"unknown", "-ql"},
	}
	for _, tt := range tests {
		if got := QualityFlag(tt.q); got != tt.want {
			t.Errorf("QualityFlag(%s) = %s, want %s", tt.q, got, tt.want)
		}
	}

	if BackgroundColor(config.StyleLight) != "#FFFFFF" || BackgroundColor(config.StyleDark) != "#000000" {
		t.Error("Unexpected style mapping")
	}
}

func TestRelocateReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "out", "animations", "Scene.mp4")
	os.WriteFile(src, []byte("new"), 0644)
	os.MkdirAll(filepath.Dir(dst), 0755)
	os.WriteFile(dst, []byte("old"), 0644)

	if err := relocate(src, dst); err != nil {
		t.Fatalf("relocate failed: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "new" {
		t.Errorf("Expected replaced content, got %q", data)
	}
	if _, err := os.Stat(dst + ".part"); !os.IsNotExist(err) {
		t.Error("No .part file should remain")
	}
}

func TestNewManimRendererPassthroughOnlyWhenVerbose(t *testing.T) {
	var live bytes.Buffer
	cfg := config.Config{ManimBinary: "manim"}

	if r := NewManimRenderer(cfg, nil, &live); r.Passthrough != nil {
		t.Error("Quiet runs must not stream toolkit output")
	}
	cfg.Verbose = true
	if r := NewManimRenderer(cfg, nil, &live); r.Passthrough != &live {
		t.Error("Verbose runs should stream to the given writer")
	}
}
