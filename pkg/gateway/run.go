// Package gateway собирает конвейер POST-кодов из конфига и запускает его;
// используется командами bpc-gw и для встраивания в другие программы.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shiwa/bpc-gw/internal/bpc"
	"github.com/shiwa/bpc-gw/internal/config"
	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/internal/scheduler"
	"github.com/shiwa/bpc-gw/internal/sink"
	"github.com/shiwa/bpc-gw/internal/sink/journal"
	"github.com/shiwa/bpc-gw/internal/sink/modbus"
	"github.com/shiwa/bpc-gw/internal/sink/redis"
	"github.com/shiwa/bpc-gw/internal/sink/serialout"
	"github.com/shiwa/bpc-gw/internal/sysclock"
	"github.com/shiwa/bpc-gw/internal/timestamp"
	"github.com/shiwa/bpc-gw/internal/uart"
	"github.com/shiwa/bpc-gw/internal/wallclock"
)

// Input — порт POST-кодов вместе с его настройками.
type Input struct {
	Device config.DeviceConfig
	Source bpc.ByteSource
}

// RunDaemon открывает порты из cfg.DeviceList() и обрабатывает коды до отмены ctx.
func RunDaemon(ctx context.Context, cfg *config.Config, stdout io.Writer, quiet bool) error {
	logger.Quiet = quiet
	var inputs []Input
	for _, d := range cfg.DeviceList() {
		port, err := uart.Open(d.Port, d.Baud)
		if err != nil {
			return err
		}
		defer port.Close()
		logger.Info("%sport %s, %d baud", label(d.Name), port.Name(), d.Baud)
		inputs = append(inputs, Input{Device: d, Source: port})
	}
	return Run(ctx, cfg, inputs, stdout)
}

// Run обрабатывает коды всех inputs до отмены ctx. Отмена ctx — штатное завершение (nil).
// Каждому порту соответствует свой компонент со своим состоянием; все компоненты
// работают на одном планировщике.
func Run(ctx context.Context, cfg *config.Config, inputs []Input, stdout io.Writer) error {
	if len(inputs) == 0 {
		return errors.New("gateway: no devices")
	}
	opts, err := Options(cfg)
	if err != nil {
		return err
	}
	wall, err := wallclock.NewFromConfig(ctx, cfg.Clock)
	if err != nil {
		return err
	}
	devices := make([]config.DeviceConfig, len(inputs))
	for i, in := range inputs {
		devices[i] = in.Device
	}
	fans, closeSinks, err := BuildSinks(ctx, cfg, stdout, devices)
	if err != nil {
		return err
	}
	defer closeSinks()

	mono := sysclock.System{}
	rec := timestamp.New(wall, mono)
	sched := scheduler.New(cfg.Pipeline.LoopIntervalDuration(), cfg.Pipeline.HighFrequencyIntervalDuration())
	comps := make([]*bpc.Component, len(inputs))
	for i, in := range inputs {
		deps := bpc.Deps{
			Source:    in.Source,
			Mono:      mono,
			Time:      rec,
			Scheduler: sched.NewHold(),
		}
		if !fans[i].Empty() {
			deps.Number, deps.Text, deps.Recorder = fans[i], fans[i], fans[i]
		}
		o := opts
		o.Device = in.Device.Name
		comps[i] = bpc.New(deps, o)
		sched.Add(comps[i])
	}

	logger.Info("pipeline: devices=%d clock=%s ignore=%d descriptions=%d always_show_delta=%v ignored_codes_update_last=%v",
		len(inputs), cfg.Clock.Source, len(opts.Ignore.Codes()), len(opts.Descriptions), opts.Delta.AlwaysShow, opts.IgnoredUpdateLast)

	err = sched.Run(ctx)
	for i, c := range comps {
		st := c.Stats()
		logger.Info("%sstopped: received=%d published=%d ignored=%d cleared=%d",
			label(inputs[i].Device.Name), st.Received, st.Published, st.Ignored, st.Cleared)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func label(name string) string {
	if name == "" {
		return ""
	}
	return "[" + name + "] "
}

// Options переводит конфиг в параметры компонента.
func Options(cfg *config.Config) (bpc.Options, error) {
	desc, err := cfg.Descriptions.Load()
	if err != nil {
		return bpc.Options{}, err
	}
	p := cfg.Pipeline
	return bpc.Options{
		DrainBudget:       p.DrainBudgetDuration(),
		ColdClearBudget:   p.ColdClearBudgetDuration(),
		QuietPeriod:       p.QuietPeriodDuration(),
		Delta:             p.DeltaPolicy(),
		IgnoredUpdateLast: p.IgnoredCodesUpdateLast,
		Ignore:            p.IgnoreSet(),
		Descriptions:      desc,
	}, nil
}

// BuildSinks создаёт включённых получателей и возвращает по разветвителю на каждое
// устройство из devices (пустой список — cfg.DeviceList()). Соединения общие:
// строки консоли и serial помечаются именем устройства, Redis получает канал и ключ
// устройства, Modbus — его регистр, журнал — колонку device из записи.
// Блокирующие получатели обёрнуты в sink.Async. Возвращаемая функция дожидается
// очередей и закрывает соединения.
func BuildSinks(ctx context.Context, cfg *config.Config, stdout io.Writer, devices []config.DeviceConfig) ([]*sink.Fanout, func(), error) {
	if len(devices) == 0 {
		devices = cfg.DeviceList()
	}
	s := cfg.Sinks
	fans := make([]*sink.Fanout, len(devices))
	for i := range fans {
		fans[i] = &sink.Fanout{}
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	// очереди закрываются раньше соединений: closeAll идёт в обратном порядке
	closeLater := func(close func() error) {
		closers = append(closers, func() { _ = close() })
	}
	queue := func(name string, backend interface{}) *sink.Async {
		a := sink.NewAsync(name, backend, s.QueueSize)
		// очередь дописывается и после остановки конвейера
		a.Start(context.WithoutCancel(ctx))
		closers = append(closers, func() {
			a.Close()
			if n := a.Dropped(); n > 0 {
				logger.Warn("sink %s: dropped %d events", name, n)
			}
		})
		return a
	}
	labeled := func(i int, p interface{ PublishText(string) }) {
		if devices[i].Name == "" {
			fans[i].Add(p)
			return
		}
		fans[i].Add(sink.NewLabeled(devices[i].Name, p))
	}

	if s.Console.Enabled {
		c := sink.NewConsole(stdout)
		for i := range devices {
			labeled(i, c)
		}
	}
	if s.Modbus.Enabled {
		w, err := modbus.New(modbus.Config{
			Address:  s.Modbus.Address,
			SlaveID:  s.Modbus.SlaveID,
			Register: s.Modbus.Register,
			Float:    s.Modbus.Float,
			Timeout:  s.Modbus.TimeoutDuration(),
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closeLater(w.Close)
		for i, d := range devices {
			v := w
			if d.ModbusRegister != nil {
				v = w.AtRegister(*d.ModbusRegister)
			}
			fans[i].Add(queue(fmt.Sprintf("modbus@%d", v.Register()), v))
		}
	}
	if s.Redis.Enabled {
		w := redis.New(redis.Config{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
			Channel:  s.Redis.Channel,
			Key:      s.Redis.Key,
		})
		if err := w.Ping(ctx); err != nil {
			// сервер может подняться позже; команды будут повторяться на каждом событии
			logger.Warn("%v", err)
		}
		closeLater(w.Close)
		for i, d := range devices {
			fans[i].Add(queue(strings.TrimSuffix("redis:"+d.Name, ":"), w.ForDevice(d.Name)))
		}
	}
	if s.Serial.Enabled {
		w, err := serialout.Open(s.Serial.Port, s.Serial.Baud, s.Serial.Encoding)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closeLater(w.Close)
		q := queue("serial", w)
		for i := range devices {
			labeled(i, q)
		}
	}
	if s.Journal.Enabled {
		j, err := journal.Open(ctx, s.Journal.Path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("journal %s: %w", s.Journal.Path, err)
		}
		logger.Info("journal %s: session %s", s.Journal.Path, j.Session())
		closeLater(j.Close)
		q := queue("journal", j)
		for _, f := range fans {
			f.Add(q)
		}
	}
	return fans, closeAll, nil
}
