package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (v versionInfo) String() string {
	return fmt.Sprintf("%s: version %s", v.Name, v.Version)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return output(rootOpts, cmd).Result(versionInfo{Name: "synarere", Version: Version})
		},
	}
}
