package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/teachme/internal/apperr"
	"github.com/ivlev/teachme/internal/config"
	"github.com/ivlev/teachme/internal/llm"
	"github.com/ivlev/teachme/internal/render"
	"github.com/ivlev/teachme/internal/script"
	"github.com/ivlev/teachme/internal/system"
)

type State string

const (
	StateIdle        State = "idle"
	StateConfiguring State = "configuring"
	StateExpanding   State = "expanding"
	StateCompiling   State = "compiling"
	StateRendering   State = "rendering"
	StateRepairing   State = "repairing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// ScriptCompiler is the prompt compiler as the pipeline needs it.
type ScriptCompiler interface {
	Expand(ctx context.Context, req config.Request) (string, error)
	Compile(ctx context.Context, req config.Request) (*script.Generated, error)
	Repair(ctx context.Context, prev *script.Generated, toolkitErr string, attempt, maxAttempts int) (*script.Generated, error)
}

// Factories builds the collaborators once the configuration is known.
// Probe may be nil to skip the toolkit check.
type Factories struct {
	Compiler func(cfg config.Config, log *slog.Logger) ScriptCompiler
	Renderer func(cfg config.Config, log *slog.Logger) render.Renderer
	Probe    func(ctx context.Context, binary string) (string, error)
}

// DefaultFactories wires the OpenAI client and the Manim CLI. In verbose mode
// the toolkit's own output is streamed to passthrough.
func DefaultFactories(passthrough io.Writer) Factories {
	return Factories{
		Compiler: func(cfg config.Config, log *slog.Logger) ScriptCompiler {
			return llm.NewCompiler(llm.NewOpenAIClient(cfg, log), cfg, log)
		},
		Renderer: func(cfg config.Config, log *slog.Logger) render.Renderer {
			return render.NewManimRenderer(cfg, log, passthrough)
		},
		Probe: system.ProbeToolkit,
	}
}

// Outcome is everything a successful run produced.
type Outcome struct {
	RunID      string
	Config     config.Config
	Request    config.Request
	Script     *script.Generated
	Result     *render.Result
	ScriptPath string
	Attempts   int
}

// AnimationProject runs one prompt through configure, compile and render.
// It is single-shot: create a new one per invocation.
type AnimationProject struct {
	factories Factories
	log       *slog.Logger
	out       io.Writer
	now       func() time.Time

	history []State
}

func NewAnimationProject(f Factories, log *slog.Logger, out io.Writer) *AnimationProject {
	if log == nil {
		log = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &AnimationProject{
		factories: f,
		log:       log,
		out:       out,
		now:       time.Now,
		history:   []State{StateIdle},
	}
}

func (p *AnimationProject) State() State {
	return p.history[len(p.history)-1]
}

// History lists every state the project passed through, starting at idle.
func (p *AnimationProject) History() []State {
	return append([]State(nil), p.history...)
}

func (p *AnimationProject) transition(s State) {
	p.log.Debug("state", "from", p.State(), "to", s)
	p.history = append(p.history, s)
}

func (p *AnimationProject) fail(err error) (*Outcome, error) {
	p.transition(StateFailed)
	return nil, err
}

// Run executes the pipeline. Configuration errors are returned before any
// collaborator is built, so no network call can happen without a key.
func (p *AnimationProject) Run(ctx context.Context, flags config.Flags, lookup config.LookupFunc, prompt string) (*Outcome, error) {
	if p.State() != StateIdle {
		return nil, fmt.Errorf("project already ran (state %s)", p.State())
	}

	// 1. Конфигурация
	p.transition(StateConfiguring)
	cfg, err := config.Resolve(flags, lookup)
	if err != nil {
		return p.fail(err)
	}
	req, err := cfg.NewRequest(prompt)
	if err != nil {
		return p.fail(err)
	}
	if p.factories.Probe != nil {
		version, err := p.factories.Probe(ctx, cfg.ManimBinary)
		if err != nil {
			return p.fail(err)
		}
		p.log.Debug("toolkit found", "version", version)
	}

	outcome := &Outcome{RunID: uuid.NewString(), Config: cfg, Request: req}
	log := p.log.With("run_id", outcome.RunID)
	compiler := p.factories.Compiler(cfg, log)
	renderer := p.factories.Renderer(cfg, log)

	// 2. Развернутое описание (опционально)
	if cfg.Expand {
		p.transition(StateExpanding)
		fmt.Fprintf(p.out, "[*] Expanding the idea into a brief with %s...\n", cfg.Model)
		brief, err := compiler.Expand(ctx, req)
		if err != nil {
			return p.fail(err)
		}
		req.Brief = brief
		outcome.Request = req
		log.Debug("brief ready", "bytes", len(brief))
	}

	// 3. Генерация скрипта
	p.transition(StateCompiling)
	fmt.Fprintf(p.out, "[*] Generating Manim script with %s...\n", cfg.Model)
	g, err := compiler.Compile(ctx, req)
	if err != nil {
		return p.fail(err)
	}
	fmt.Fprintf(p.out, "[*] Script ready: %s\n", g.SceneName)
	log.Debug("script compiled", "scene", g.SceneName, "description", g.Description, "bytes", len(g.Code))

	if cfg.Verbose {
		p.reportHost(log)
	}

	// 4. Рендеринг (с опциональными попытками исправления)
	opts := render.Options{
		Quality:   req.Quality,
		Style:     req.Style,
		OutputDir: req.OutputDir,
		Timeout:   cfg.RenderTimeout,
	}

	attempt := 1
	var res *render.Result
	for {
		p.transition(StateRendering)
		fmt.Fprintf(p.out, "[*] Rendering %s (%s quality, %s style)...\n", g.SceneName, req.Quality, req.Style)

		res, err = renderer.Render(ctx, g, opts)
		if err == nil {
			break
		}

		repair := attempt - 1
		if repair >= cfg.RepairAttempts || !apperr.IsRepairable(err) || ctx.Err() != nil {
			return p.fail(err)
		}

		p.transition(StateRepairing)
		fmt.Fprintf(p.out, "[!] Attempt %d failed, asking the model for a fix (%d/%d)\n", attempt, repair+1, cfg.RepairAttempts)
		log.Debug("render failed", "attempt", attempt, "err", err)

		g, err = compiler.Repair(ctx, g, err.Error(), repair+1, cfg.RepairAttempts)
		if err != nil {
			return p.fail(err)
		}
		attempt++
	}

	outcome.Script = g
	outcome.Result = res
	outcome.Attempts = attempt

	if cfg.SaveScripts {
		p.archive(outcome, log)
	}

	p.transition(StateDone)
	return outcome, nil
}

func (p *AnimationProject) reportHost(log *slog.Logger) {
	h, err := system.HostReport()
	if err != nil {
		log.Debug("host report unavailable", "err", err)
		return
	}
	log.Info("host resources",
		"cpus", h.LogicalCPUs,
		"mem_available", system.HumanBytes(h.AvailMemory),
		"mem_total", system.HumanBytes(h.TotalMemory))
}

// archive never fails the run; a lost copy of the script is only a warning.
func (p *AnimationProject) archive(o *Outcome, log *slog.Logger) {
	m := script.Manifest{
		RunID:             o.RunID,
		Prompt:            o.Request.Prompt,
		Style:             string(o.Request.Style),
		Quality:           string(o.Request.Quality),
		Model:             o.Config.Model,
		Scene:             o.Script.SceneName,
		Description:       o.Script.Description,
		EstimatedDuration: o.Script.EstimatedDuration,
		Duration:          o.Result.Duration,
		Attempts:          o.Attempts,
		Brief:             o.Request.Brief,
		Video:             o.Result.VideoPath,
		CreatedAt:         p.now(),
	}

	dir := filepath.Join(o.Request.OutputDir, config.ScriptsSubdir)
	path, err := script.Archive(dir, o.Script, m)
	if err != nil {
		log.Warn("failed to save script", "dir", dir, "err", err)
		return
	}
	o.ScriptPath = path
	log.Debug("script saved", "path", path)
}
