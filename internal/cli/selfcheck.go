package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/shiwa/bpc-gw/internal/selfcheck"
	"github.com/shiwa/bpc-gw/internal/sysclock"
	"github.com/shiwa/bpc-gw/internal/timestamp"
	"github.com/shiwa/bpc-gw/internal/wallclock"
)

// NewSelfcheckCommand создаёт команду selfcheck.
func NewSelfcheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Сравнить часы: 11 строк раз в секунду (занимает ~10 с)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			wall, err := wallclock.NewFromConfig(ctx, cfg.Clock)
			if err != nil {
				return err
			}
			mono := sysclock.System{}
			rows, err := selfcheck.New(mono, timestamp.New(wall, mono)).Run(ctx)
			if err != nil {
				return fmt.Errorf("selfcheck прерван после %d строк: %w", len(rows), err)
			}
			return nil
		},
	}
}
