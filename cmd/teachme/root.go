package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ivlev/teachme/internal/apperr"
	"github.com/ivlev/teachme/internal/config"
	"github.com/ivlev/teachme/internal/engine"
	"github.com/ivlev/teachme/internal/logging"
	"github.com/ivlev/teachme/internal/script"
)

type app struct {
	stdout    io.Writer
	stderr    io.Writer
	lookup    config.LookupFunc
	factories engine.Factories

	// started is set once a command body runs; errors before that come from
	// argument parsing.
	started bool
}

func (a *app) run(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return apperr.ExitSuccess
	}
	if !a.started && apperr.ExitCode(err) == apperr.ExitUnknown {
		err = &apperr.ConfigurationError{Key: "args", Msg: err.Error()}
	}

	fmt.Fprintf(a.stderr, "[-] Error: %v\n", err)
	if hint := apperr.HintFor(err); hint != "" {
		fmt.Fprintf(a.stderr, "    Hint: %s\n", hint)
	}
	return apperr.ExitCode(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "teachme",
		Short: "Turn a plain-language prompt into a Manim animation",
		Long: `teachme asks an OpenAI model to write a Manim scene for your prompt,
renders it and leaves the video in <output-dir>/animations/<Scene>.mp4.

Examples:
  teachme animate "Explain the Pythagorean theorem"
  teachme animate "Show a sine wave" --style dark --quality medium`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &apperr.ConfigurationError{Key: "flags", Msg: err.Error()}
	})

	root.AddCommand(a.animateCmd(), a.historyCmd(), a.initConfigCmd(), a.versionCmd())
	return root
}

func (a *app) animateCmd() *cobra.Command {
	var (
		apiKey, model, style, quality, outputDir string
		temperature                              float64
		repairAttempts                           int
		configFile                               string
		verbose, expand                          bool
	)

	cmd := &cobra.Command{
		Use:   "animate <prompt>",
		Short: "Generate and render an animation",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &apperr.ConfigurationError{Key: "prompt", Msg: fmt.Sprintf("expected exactly one prompt argument, got %d", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.started = true

			flags := config.Flags{ConfigFile: configFile, Verbose: verbose}
			fs := cmd.Flags()
			setString(fs, "api-key", apiKey, &flags.APIKey)
			setString(fs, "model", model, &flags.Model)
			setString(fs, "style", style, &flags.Style)
			setString(fs, "quality", quality, &flags.Quality)
			setString(fs, "output-dir", outputDir, &flags.OutputDir)
			if fs.Changed("temperature") {
				flags.Temperature = &temperature
			}
			if fs.Changed("repair-attempts") {
				flags.RepairAttempts = &repairAttempts
			}
			if fs.Changed("expand") {
				flags.Expand = &expand
			}

			log := logging.New(a.stderr, verbose)
			project := engine.NewAnimationProject(a.factories, log, a.stdout)

			outcome, err := project.Run(cmd.Context(), flags, a.lookup, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "[+++] Done! Video: %s\n", outcome.Result.VideoPath)
			if outcome.Result.Duration > 0 {
				fmt.Fprintf(a.stdout, "[*] Duration: %.1fs\n", outcome.Result.Duration)
			}
			if outcome.ScriptPath != "" {
				fmt.Fprintf(a.stdout, "[*] Script: %s\n", outcome.ScriptPath)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&style, "style", string(config.DefaultStyle), "Background style: light or dark")
	fs.StringVar(&quality, "quality", string(config.DefaultQuality), "Render quality: low, medium or high")
	fs.StringVar(&outputDir, "output-dir", config.DefaultOutputDir, "Directory for animations and saved scripts")
	fs.StringVar(&apiKey, "api-key", "", "OpenAI API key (overrides "+config.EnvAPIKey+")")
	fs.StringVar(&model, "model", "", "Model name (overrides "+config.EnvModel+", default "+config.DefaultModel+")")
	fs.Float64Var(&temperature, "temperature", config.DefaultTemperature, "Sampling temperature (overrides "+config.EnvTemperature+")")
	fs.IntVar(&repairAttempts, "repair-attempts", 0, "Ask the model to fix a failed render up to N times")
	fs.BoolVar(&expand, "expand", false, "Expand the prompt into a written brief before generating the script")
	fs.StringVar(&configFile, "config", "", "YAML config file (default ./"+config.DefaultConfigFileName+" if present)")
	fs.BoolVarP(&verbose, "verbose", "v", false, "Debug logs and live Manim output")
	return cmd
}

// setString forwards a flag only when the user typed it, so env and file
// values are not shadowed by flag defaults.
func setString(fs *pflag.FlagSet, name, value string, dst **string) {
	if fs.Changed(name) {
		v := value
		*dst = &v
	}
}

func (a *app) historyCmd() *cobra.Command {
	var (
		outputDir string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List animations rendered into the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.started = true

			dir := filepath.Join(outputDir, config.ScriptsSubdir)
			manifests, err := script.ListManifests(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("read history in %s: %w", dir, err)
			}
			if len(manifests) == 0 {
				fmt.Fprintf(a.stdout, "[*] No animations in %s yet\n", dir)
				return nil
			}
			if limit > 0 && len(manifests) > limit {
				manifests = manifests[:limit]
			}
			for _, m := range manifests {
				fmt.Fprintf(a.stdout, "%s  %-24s %-8s %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Scene, m.Model, m.Prompt)
				fmt.Fprintf(a.stdout, "    video: %s\n    script: %s\n", m.Video, m.Script)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", config.DefaultOutputDir, "Directory the animations were written to")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Show at most N entries (0 for all)")
	return cmd
}

func (a *app) initConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.started = true

			path := config.DefaultConfigFileName
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &apperr.ConfigurationError{Key: "config", Msg: path + " already exists (use --force to overwrite)"}
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			if err := config.WriteFile(config.DefaultFileConfig(), path); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(a.stdout, "[+++] Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.started = true
			fmt.Fprintf(a.stdout, "teachme %s\n", version)
		},
	}
}
