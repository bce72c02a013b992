package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FairForge/perfharness/internal/config"
)

func (a *app) scenariosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List registered scenarios and presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCENARIO\tMIX\tUSERS\tSPAWN\tDURATION\tP95\tERR\tTARGET")
			for _, name := range a.registry.Names() {
				sc, err := a.registry.Lookup(name)
				if err != nil {
					fmt.Fprintf(tw, "%s\tinvalid: %v\n", name, err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%g\t%s\t%s\t%g\t%g\n",
					sc.Name, sc.Mix, sc.Users, sc.SpawnRate, sc.Duration, sc.ResponseTimeP95,
					sc.ErrorRateThreshold, sc.TargetThroughput)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "PRESET\tSCENARIOS\tDESCRIPTION")
			for _, name := range config.PresetNames() {
				p, _ := config.LookupPreset(name)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, strings.Join(p.Scenarios, ","), p.Description)
			}
			return tw.Flush()
		},
	}
}
