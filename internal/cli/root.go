// Package cli — команды bpc-gw (cobra).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shiwa/bpc-gw/internal/config"
	"github.com/shiwa/bpc-gw/internal/logger"
)

// DefaultConfigPath — конфиг, который читается, если --config не задан.
const DefaultConfigPath = "bpc-gw.yml"

// RootOptions — общие флаги всех команд.
type RootOptions struct {
	ConfigPath string
	Quiet      bool
	Verbose    bool
}

// NewRootCommand создаёт корневую команду bpc-gw.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bpc-gw",
		Short: "BIOS POST code gateway",
		Long: `bpc-gw читает POST-коды хоста с последовательного порта, восстанавливает
время их приёма и публикует строки вида "2Bh | 14:03:22.118 | Δ 1500 ms | POST complete"
в консоль, Modbus, Redis, второй порт и журнал SQLite.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Quiet = opts.Quiet
			logger.Verbose = opts.Verbose
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "путь к YAML конфигу (по умолчанию "+DefaultConfigPath+")")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "меньше вывода")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "отладочный вывод")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSelfcheckCommand(opts))
	cmd.AddCommand(NewCodesCommand(opts))
	cmd.AddCommand(NewFormatCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

// loadConfig читает конфиг. Отсутствие файла по умолчанию — не ошибка: берётся Default.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = DefaultConfigPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}
