package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synarere/internal/config"
	"github.com/roach88/synarere/internal/module"
	"github.com/roach88/synarere/internal/modules"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Config string
}

type checkResult struct {
	File     string   `json:"file"`
	Networks []string `json:"networks"`
	Modules  []string `json:"modules"`
}

func (r checkResult) String() string {
	return fmt.Sprintf("%s: OK (networks: %s; modules: %s)",
		r.File, orNone(r.Networks), orNone(r.Modules))
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		Long: `Load a configuration file, apply defaults and report whether the bot
would accept it. Module names are checked against the compiled-in modules.

Example:
  synarere check --config synarere.yaml
  synarere check --config synarere.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the configuration file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	out := output(opts.RootOptions, cmd)
	out.Logf("loading %s", opts.Config)

	cfg, err := loadConfig(opts.Config, modules.Catalog())
	if err != nil {
		_ = out.Reject(problemOf(opts.Config, err))
		return WrapExitError(ExitConfig, "invalid configuration", err)
	}

	result := checkResult{File: opts.Config, Modules: cfg.ModuleNames(), Networks: make([]string, len(cfg.Networks))}
	for i, n := range cfg.Networks {
		result.Networks[i] = n.ID
	}
	return out.Result(result)
}

// loadConfig loads path and checks its modules against catalog.
func loadConfig(path string, catalog module.Catalog) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, name := range cfg.ModuleNames() {
		if _, ok := catalog[name]; !ok {
			return nil, fmt.Errorf("module %q: %w", name, module.ErrUnknownModule)
		}
	}
	return cfg, nil
}
