// Package commands implements the gloom command line.
package commands

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/FukkitMC/gloom/pkg/batch"
	"github.com/FukkitMC/gloom/pkg/emitter/mixin"
	"github.com/FukkitMC/gloom/pkg/logger"
)

// app is the state shared by every command of one invocation.
type app struct {
	v   *viper.Viper
	log *zap.Logger
}

// NewRootCmd returns the gloom command with all subcommands.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "gloom",
		Short: "Widen access and add synthetic members in JVM class files",
		Long: `gloom rewrites a set of JVM class files according to descriptor documents.

The inject pass widens access flags and adds synthetic fields and methods to
the classes the documents describe. The illuminate pass rewrites every
reference to those members into calls on generated accessor classes.

Examples:
  gloom apply -d gloom.json -i classes/ -o out.jar   # Rewrite a class set
  gloom check gloom.json                              # Validate a document
  gloom format gloom.json --to yaml                  # Convert a document`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default ./gloom.{toml,yaml,json})")
	pf.CountP("verbose", "v", "Increase output verbosity (-v logs every rewritten reference)")
	pf.Bool("log-json", false, "Log as JSON")

	root.AddCommand(newApplyCmd(a), newCheckCmd(a), newFormatCmd(a))
	return root
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("inject", true)
	v.SetDefault("illuminate", true)
	v.SetDefault("workers", 0)
	v.SetDefault("mixin.package", batch.DefaultMixinPackage)
	v.SetDefault("mixin.config", mixin.DefaultConfigName)
}

// init reads configuration in ascending precedence: defaults, config file,
// GLOOM_* environment, flags. It then builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix("GLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	pf := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("verbose", pf.Lookup("verbose")); err != nil {
		return errors.Wrap(err, "binding verbose")
	}
	if err := v.BindPFlag("log.json", pf.Lookup("log-json")); err != nil {
		return errors.Wrap(err, "binding log-json")
	}

	path, _ := pf.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gloom")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return errors.Wrap(err, "reading config")
		}
	}

	log, err := logger.New(v.GetBool("log.json"), v.GetInt("verbose"))
	if err != nil {
		return err
	}
	a.log = log
	if used := v.ConfigFileUsed(); used != "" {
		a.log.Debug("loaded config", zap.String("path", used))
	}
	return nil
}

// bind maps command flags onto config keys.
func (a *app) bind(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return errors.Wrapf(err, "binding %s", flag)
		}
	}
	return nil
}
