package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/pkg/gateway"
)

// NewFormatCommand создаёт команду format: повтор записанной загрузки без порта.
func NewFormatCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "format <capture|->",
		Short: "Прогнать запись \"<мс> <код>\" через конвейер и напечатать строки",
		Long: `Читает запись загрузки (строки "<мс с загрузки> <код>", "-" — stdin) и печатает
строки событий с политиками из конфига (ignore_codes, always_show_delta,
ignored_codes_update_last, описания). Календарное время не выводится.`,
		Example: `  bpc-gw format boot.capture
  bpc-gw format -c bench.yml - < boot.capture`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			samples, err := gateway.ParseCapture(r)
			if err != nil {
				return err
			}
			st, err := gateway.Replay(samples, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger.Debug("format: received=%d published=%d ignored=%d", st.Received, st.Published, st.Ignored)
			return nil
		},
	}
}
