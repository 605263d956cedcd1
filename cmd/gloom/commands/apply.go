package commands

import (
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FukkitMC/gloom/pkg/batch"
)

func newApplyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Rewrite a class set",
		Long: `Rewrite every class of the input class set and write the result, with the
generated accessor classes and mixin config, to the output.

Input and output are directories, jar or zip files. Jmod files are accepted
as input and classpath entries. Nothing is written if any class fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bind(cmd, map[string]string{
				"definitions":       "definitions",
				"input":             "input",
				"output":            "output",
				"classpath":         "classpath",
				"resolve":           "resolve",
				"jdk":               "jdk",
				"inject":            "inject",
				"illuminate":        "illuminate",
				"workers":           "workers",
				"include":           "include",
				"exclude":           "exclude",
				"mixin.package":     "mixin-package",
				"mixin.config":      "mixin-config",
				"mixin.min-version": "mixin-min-version",
				"watch":             "watch",
			}); err != nil {
				return err
			}
			cfg, err := a.batchConfig()
			if err != nil {
				return err
			}
			run := func() error {
				report, err := batch.Run(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				return printReport(cmd.OutOrStdout(), report)
			}
			err = run()
			if !a.v.GetBool("watch") {
				return err
			}
			if err != nil {
				a.log.Error("apply failed", zap.Error(err))
			}
			paths := append([]string{cfg.Input}, cfg.Definitions...)
			return watch(cmd.Context(), a.log, paths, cfg.Output, run)
		},
	}

	f := cmd.Flags()
	f.StringSliceP("definitions", "d", nil, "Descriptor documents (JSON, YAML or TOML), merged in order")
	f.StringP("input", "i", "", "Input class set")
	f.StringP("output", "o", "", "Output class set")
	f.StringSlice("classpath", nil, "Library class sets for member owner resolution")
	f.Bool("resolve", false, "Resolve the declaring class of referenced members")
	f.Bool("jdk", false, "Add java.base.jmod of the local JDK to the classpath")
	f.Bool("inject", true, "Widen access and add synthetic members")
	f.Bool("illuminate", true, "Rewrite member references")
	f.Int("workers", 0, "Concurrent class transforms (0 = GOMAXPROCS)")
	f.StringSlice("include", nil, "Glob patterns of class entries to transform")
	f.StringSlice("exclude", nil, "Glob patterns of class entries to copy untouched")
	f.String("mixin-package", batch.DefaultMixinPackage, "Internal package of generated classes")
	f.String("mixin-config", "", "Entry name of the generated mixin config")
	f.String("mixin-min-version", "", "Minimum Mixin version written to the mixin config")
	f.Bool("watch", false, "Apply again whenever the input or definitions change")
	return cmd
}

func (a *app) batchConfig() (batch.Config, error) {
	v := a.v
	cfg := batch.Config{
		Definitions:     v.GetStringSlice("definitions"),
		Input:           v.GetString("input"),
		Output:          v.GetString("output"),
		Classpath:       v.GetStringSlice("classpath"),
		Resolve:         v.GetBool("resolve"),
		Inject:          v.GetBool("inject"),
		Illuminate:      v.GetBool("illuminate"),
		Workers:         v.GetInt("workers"),
		Include:         v.GetStringSlice("include"),
		Exclude:         v.GetStringSlice("exclude"),
		MixinPackage:    v.GetString("mixin.package"),
		MixinConfig:     v.GetString("mixin.config"),
		MixinMinVersion: v.GetString("mixin.min-version"),
		Logger:          a.log,
	}
	if cfg.Input == "" || cfg.Output == "" {
		return cfg, errors.New("both input and output are required")
	}
	if len(cfg.Definitions) == 0 {
		return cfg, errors.New("no definitions given")
	}
	if v.GetBool("jdk") {
		jmod := findBaseModule()
		if jmod == "" {
			return cfg, errors.New("could not find java.base.jmod, set JAVA_HOME or JAVA_BASE_JMOD")
		}
		a.log.Debug("using JDK classes", zap.String("path", jmod))
		cfg.Classpath = append(cfg.Classpath, jmod)
	}
	return cfg, nil
}

func printReport(w io.Writer, r *batch.Report) error {
	err := pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(pterm.TableData{
		{"Classes", "Rewritten", "References", "Generated", "Copied", "Elapsed"},
		{
			strconv.Itoa(r.Classes),
			strconv.Itoa(r.Rewritten),
			strconv.Itoa(r.References),
			strconv.Itoa(r.Generated),
			strconv.Itoa(r.Copied),
			r.Elapsed.Round(time.Millisecond).String(),
		},
	}).Render()
	return errors.Wrap(err, "printing report")
}
