package batch

import (
	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/FukkitMC/gloom/pkg/emitter/mixin"
)

// ErrInvalidConfig marks settings that cannot produce a run.
var ErrInvalidConfig = errors.New("invalid batch config")

// DefaultMixinPackage is where generated classes go unless configured.
const DefaultMixinPackage = "gloom/generated"

// Config describes one run.
type Config struct {
	// Definitions are the descriptor documents, merged in order.
	Definitions []string
	// Input and Output are class sets: directories, jars or jmods.
	Input  string
	Output string
	// Classpath holds library class sets consulted for member owner
	// resolution. They are never rewritten.
	Classpath []string
	// Resolve follows the class hierarchy to find the declaring class of
	// referenced members. It is implied by a non-empty Classpath.
	Resolve bool

	Inject     bool
	Illuminate bool
	// Workers bounds concurrent class transforms; 0 means GOMAXPROCS.
	Workers int

	// Include and Exclude filter class entry paths by glob. An empty
	// Include matches every class.
	Include []string
	Exclude []string

	// MixinPackage is the internal package of generated classes.
	MixinPackage string
	// MixinConfig names the generated mixin config entry.
	MixinConfig string
	// MixinMinVersion is the minimum Mixin version the config requires,
	// empty for none.
	MixinMinVersion string

	Logger *zap.Logger
}

// Validate rejects settings that cannot produce a run.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "workers must not be negative, got %d", c.Workers)
	}
	if !c.Inject && !c.Illuminate {
		return errors.Wrap(ErrInvalidConfig, "both inject and illuminate are disabled")
	}
	if c.Illuminate && c.MixinPackage == "" {
		return errors.Wrap(ErrInvalidConfig, "illuminate needs a mixin package")
	}
	if c.MixinMinVersion != "" {
		if _, err := semver.NewVersion(c.MixinMinVersion); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "mixin min version %q: %v", c.MixinMinVersion, err)
		}
	}
	return nil
}

func (c *Config) resolve() bool {
	return c.Illuminate && (c.Resolve || len(c.Classpath) > 0)
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Config) mixinConfig() string {
	if c.MixinConfig == "" {
		return mixin.DefaultConfigName
	}
	return c.MixinConfig
}
