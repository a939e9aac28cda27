package wallclock

import (
	"context"
	"fmt"
	"time"

	"github.com/shiwa/bpc-gw/internal/config"
)

// NewFromConfig создаёт Provider по секции clock. Для source: none без fallback возвращает nil без ошибки.
// Источник ntp запускает опрос сервера на горутине, живущей до отмены ctx.
// Если задан fallback, источник оборачивается в Election с ним в качестве запасного;
// при source: none запасной источник остаётся единственным.
func NewFromConfig(ctx context.Context, c config.ClockConfig) (Provider, error) {
	loc, err := LoadLocation(c.Timezone)
	if err != nil {
		return nil, err
	}
	primary, err := newProvider(ctx, c, c.Source, loc)
	if err != nil {
		return nil, err
	}
	if c.Fallback == "" || c.Fallback == "none" || c.Fallback == c.Source {
		return primary, nil
	}
	secondary, err := newProvider(ctx, c, c.Fallback, loc)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return NewElection(nil, []Provider{secondary}), nil
	}
	return NewElection([]Provider{primary}, []Provider{secondary}), nil
}

func newProvider(ctx context.Context, c config.ClockConfig, kind string, loc *time.Location) (Provider, error) {
	switch kind {
	case "", "system":
		return NewSystem(loc, c.SyncRequired()), nil
	case "ntp":
		if c.NTPServer == "" {
			return nil, fmt.Errorf("clock: ntp_server required")
		}
		n := NewNTP(c.NTPServer, c.PollIntervalDuration(), c.TimeoutDuration(), loc)
		go n.Run(ctx)
		return n, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("clock: unknown source: %s", kind)
	}
}

// LoadLocation — time.LoadLocation, где пустое имя означает Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("clock: timezone %q: %w", name, err)
	}
	return loc, nil
}
