package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	TimestampFormat   = "20060102_150405"
	MaxSlugLength     = 50
	ScriptExtension   = ".py"
	ManifestExtension = ".yaml"
)

// Manifest records one successful run next to its archived script
type Manifest struct {
	RunID             string    `yaml:"run_id"`
	Prompt            string    `yaml:"prompt"`
	Style             string    `yaml:"style"`
	Quality           string    `yaml:"quality"`
	Model             string    `yaml:"model"`
	Scene             string    `yaml:"scene"`
	Description       string    `yaml:"description,omitempty"`
	EstimatedDuration float64   `yaml:"estimated_duration,omitempty"`
	Duration          float64   `yaml:"duration,omitempty"`
	Attempts          int       `yaml:"attempts"`
	Brief             string    `yaml:"brief,omitempty"`
	Script            string    `yaml:"script"`
	Video             string    `yaml:"video"`
	CreatedAt         time.Time `yaml:"created_at"`
}

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugSpace = regexp.MustCompile(`\s+`)
)

// Slug turns a prompt into a filesystem-friendly fragment
func Slug(prompt string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(prompt), "")
	s = slugSpace.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "_")
	}
	return s
}

// Filename builds <timestamp>_<slug>_<Scene>[_attemptN].py
func Filename(prompt, scene string, attempt int, now time.Time) string {
	parts := []string{now.Format(TimestampFormat)}
	if slug := Slug(prompt); slug != "" {
		parts = append(parts, slug)
	}
	parts = append(parts, scene)

	name := strings.Join(parts, "_")
	if attempt > 1 {
		name += fmt.Sprintf("_attempt%d", attempt)
	}
	return name + ScriptExtension
}

// Archive writes the script with a metadata header into dir together with a
// YAML manifest sharing its base name. It returns the script path.
func Archive(dir string, g *Generated, m Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	scriptPath := filepath.Join(dir, Filename(m.Prompt, g.SceneName, m.Attempts, m.CreatedAt))
	m.Script = scriptPath

	if err := os.WriteFile(scriptPath, []byte(header(g, m)+g.Code+"\n"), 0644); err != nil {
		return "", err
	}

	manifestPath := strings.TrimSuffix(scriptPath, ScriptExtension) + ManifestExtension
	if err := WriteManifest(&m, manifestPath); err != nil {
		return scriptPath, err
	}

	return scriptPath, nil
}

func header(g *Generated, m Manifest) string {
	esc := func(s string) string {
		s = strings.ReplaceAll(s, `\`, `\\`)
		return strings.ReplaceAll(s, `"""`, `\"\"\"`)
	}

	var b strings.Builder
	b.WriteString(`"""` + "\n")
	fmt.Fprintf(&b, "Manim Script: %s\n", g.SceneName)
	fmt.Fprintf(&b, "Generated: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Prompt: %s\n", esc(m.Prompt))
	fmt.Fprintf(&b, "Scene: %s\n", g.SceneName)
	if g.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", esc(g.Description))
	}
	if g.EstimatedDuration > 0 {
		fmt.Fprintf(&b, "Duration: %.1fs\n", g.EstimatedDuration)
	}
	fmt.Fprintf(&b, "Attempt: %d\n", m.Attempts)
	b.WriteString(`"""` + "\n\n")
	return b.String()
}

// WriteManifest writes a manifest to a YAML file
func WriteManifest(m *Manifest, path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadManifest reads a manifest from a YAML file
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// ListManifests reads every manifest in dir, newest first. A missing dir is
// an empty history.
func ListManifests(ctx context.Context, dir string) ([]*Manifest, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ManifestExtension))
	if err != nil {
		return nil, err
	}

	manifests := make([]*Manifest, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := ReadManifest(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			manifests[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})
	return manifests, nil
}
