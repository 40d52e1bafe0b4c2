// Package cmd implements the ipam command line: the allocator server and
// read-only inspection commands against its database.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chiquitav2/ipam/internal/allocator"
	"github.com/chiquitav2/ipam/internal/allocator/config"
	"github.com/chiquitav2/ipam/internal/shared/logger"
)

// app carries state shared by every subcommand of one root.
type app struct {
	v          *viper.Viper
	configFile string
	format     string
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds a fresh command tree. Each call has its own viper
// instance so trees never share flag state.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "ipam",
		Short:         "Hierarchical IPv4 allocator for the 10.0.0.0/8 space",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       allocator.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateFormat(a.format)
		},
	}
	root.SetVersionTemplate("{{.Name}} version {{.Version}}\n")
	root.SetGlobalNormalizationFunc(wordSepNormalize)

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default searches /etc/ipam, $HOME/.ipam and .)")
	root.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("db", "", "database path override")
	root.PersistentFlags().StringVarP(&a.format, "format", "f", formatTable, "output format (table|json|yaml)")

	_ = a.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("db.path", root.PersistentFlags().Lookup("db"))

	root.AddCommand(
		newServeCommand(a),
		newCountriesCommand(a),
		newSnapshotCommand(a),
		newForecastCommand(a),
		newAuditCommand(a),
	)
	return root
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
	}
	cfg, err := config.NewLoaderWithViper(a.v).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newService loads configuration and builds the allocator. Logs go to the
// command's stderr so inspection output stays machine readable.
func (a *app) newService(cmd *cobra.Command) (*allocator.Service, *logger.Logger, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(logger.LoggerConfig{
		Level:     logger.LogLevel(cfg.Log.Level),
		Format:    logger.OutputFormat(cfg.Log.Format),
		Component: "ipam",
		Version:   allocator.Version,
		Output:    cmd.ErrOrStderr(),
	})
	log.DebugContext(cmd.Context(), "configuration loaded successfully", "db_path", cfg.DB.Path)

	svc, err := allocator.NewService(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, log, nil
}

// wordSepNormalize accepts "_" in flag names, so --page_size matches
// --page-size the way config keys are spelled.
func wordSepNormalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}
