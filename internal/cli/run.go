package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shiwa/bpc-gw/internal/config"
	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/pkg/gateway"
)

// RunOptions — флаги команды run.
type RunOptions struct {
	*RootOptions
	Port string
	Baud int
}

// NewRunCommand создаёт команду run.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Читать POST-коды и публиковать события до SIGINT/SIGTERM",
		Example: `  bpc-gw run -c /etc/bpc-gw.yml
  bpc-gw run --port /dev/ttyUSB1 --baud 9600`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := opts.override(cfg); err != nil {
				return err
			}
			// по SIGINT/SIGTERM контекст отменяется, очереди получателей дописываются
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := gateway.RunDaemon(ctx, cfg, cmd.OutOrStdout(), opts.Quiet); err != nil {
				return err
			}
			logger.Info("остановлен по сигналу")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "последовательный порт (переопределяет config)")
	cmd.Flags().IntVar(&opts.Baud, "baud", 0, "скорость порта (переопределяет config)")

	return cmd
}

// override применяет --port и --baud; со списком devices они неоднозначны.
func (o *RunOptions) override(cfg *config.Config) error {
	if o.Port == "" && o.Baud == 0 {
		return nil
	}
	if len(cfg.Devices) > 0 {
		return errors.New("--port/--baud cannot be combined with a devices list in config")
	}
	if o.Port != "" {
		cfg.Device.Port = o.Port
	}
	if o.Baud != 0 {
		cfg.Device.Baud = o.Baud
	}
	return nil
}
