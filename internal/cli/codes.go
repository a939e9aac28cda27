package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewCodesCommand создаёт команду codes: итоговая таблица описаний и игнорируемые коды.
func NewCodesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "Показать описания кодов и список игнорируемых",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			table, err := cfg.Descriptions.Load()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			ignored := cfg.Pipeline.IgnoreSet().Codes()
			names := make([]string, len(ignored))
			for i, c := range ignored {
				names[i] = c.String()
			}
			fmt.Fprintf(w, "ignore: %s\n", strings.Join(names, " "))
			for _, c := range table.Codes() {
				fmt.Fprintf(w, "%s  %s\n", c, table[c])
			}
			return nil
		},
	}
}
