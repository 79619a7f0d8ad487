package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graphres/internal/role"
)

// RoleInfo describes one predefined configuration role.
type RoleInfo struct {
	Name                         string `json:"name"`
	Consumable                   bool   `json:"consumable"`
	Resolvable                   bool   `json:"resolvable"`
	DeclarableAgainst            bool   `json:"declarable_against"`
	ConsumptionDeprecated        bool   `json:"consumption_deprecated,omitempty"`
	ResolutionDeprecated         bool   `json:"resolution_deprecated,omitempty"`
	DeclarationAgainstDeprecated bool   `json:"declaration_against_deprecated,omitempty"`
	Usage                        string `json:"usage"`
}

// NewRolesCommand creates the roles command.
func NewRolesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List the configuration roles a model may use",
		Long: `List the predefined configuration roles.

A configuration's role decides whether it may be consumed by other projects,
resolved to files, or have dependencies declared against it. Configurations
without a role are legacy and allow everything.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := listRoles()
			formatter := newFormatter(rootOpts, cmd)
			if formatter.JSON() {
				return formatter.Respond(CLIResponse{Status: "ok", Data: roles})
			}
			w := formatter.Writer
			for _, r := range roles {
				fmt.Fprintf(w, "%s\n%s\n\n", r.Name, r.Usage)
			}
			return nil
		},
	}
}

func listRoles() []RoleInfo {
	names := role.Names()
	out := make([]RoleInfo, 0, len(names))
	for _, n := range names {
		r, _ := role.ByName(n)
		out = append(out, RoleInfo{
			Name:                         r.Name(),
			Consumable:                   r.IsConsumable(),
			Resolvable:                   r.IsResolvable(),
			DeclarableAgainst:            r.IsDeclarableAgainst(),
			ConsumptionDeprecated:        r.IsConsumptionDeprecated(),
			ResolutionDeprecated:         r.IsResolutionDeprecated(),
			DeclarationAgainstDeprecated: r.IsDeclarationAgainstDeprecated(),
			Usage:                        r.DescribeUsage(),
		})
	}
	return out
}
