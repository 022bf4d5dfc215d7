// Package rendertest provides a stand-in for the Manim CLI so render paths
// can be exercised without the real toolkit.
package rendertest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

type Behavior int

const (
	// Succeed writes media/videos/scene/480p15/<output_file> in the cwd.
	Succeed Behavior = iota
	// Fail prints a traceback to stderr and exits 1.
	Fail
	// NoOutput exits 0 without producing a video.
	NoOutput
	// Hang runs a long sleep as a child process that holds stdout and stderr.
	Hang
)

// Fake is a shell script posing as manim. Every invocation appends its
// argument list, one line per call, to ArgsLog.
type Fake struct {
	Binary  string
	ArgsLog string
}

// NewFake writes the fake toolkit into a temp dir. It skips on Windows.
func NewFake(t *testing.T, b Behavior) *Fake {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake manim is a POSIX shell script")
	}

	dir := t.TempDir()
	f := &Fake{
		Binary:  filepath.Join(dir, "manim"),
		ArgsLog: filepath.Join(dir, "args.log"),
	}

	var action string
	switch b {
	case Succeed:
		action = `mkdir -p media/videos/scene/480p15
printf 'fake video for %s\n' "$scene" > "media/videos/scene/480p15/$out"
echo "File ready at media/videos/scene/480p15/$out"`
	case Fail:
		action = `echo "Traceback (most recent call last):" >&2
echo "NameError: name 'Circl' is not defined" >&2
exit 1`
	case NoOutput:
		action = `echo "nothing rendered"`
	case Hang:
		action = `echo "Rendering..."
sleep 20`
	}

	body := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "Manim Community v0.18.1"
  exit 0
fi
echo "$@" >> %q
scene="$2"
out="$scene.mp4"
prev=""
for a in "$@"; do
  if [ "$prev" = "--output_file" ]; then out="$a"; fi
  prev="$a"
done
%s
`, f.ArgsLog, action)

	if err := os.WriteFile(f.Binary, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	return f
}

// Calls returns the recorded argument lines.
func (f *Fake) Calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.ArgsLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	start := 0
	for i, c := range data {
		if c == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	return lines
}
