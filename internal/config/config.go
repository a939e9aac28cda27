// Package config — конфигурация bpc-gw в YAML (device, pipeline, clock, descriptions, sinks).
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiwa/bpc-gw/internal/postcode"
)

// Config — конфигурация bpc-gw: порт POST-кодов, конвейер, часы, описания и получатели.
type Config struct {
	// Device — единственный порт. Для нескольких портов на одной плате используется Devices.
	Device       DeviceConfig       `yaml:"device"`
	Devices      []DeviceConfig     `yaml:"devices"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Clock        ClockConfig        `yaml:"clock"`
	Descriptions DescriptionsConfig `yaml:"descriptions"`
	Sinks        SinksConfig        `yaml:"sinks"`
}

// DeviceConfig — последовательный порт, на который хост выдаёт POST-коды.
// Name помечает события устройства: префикс строки в консоли и serial, суффикс канала
// и ключа Redis, колонка device в журнале. ModbusRegister по умолчанию —
// регистр sinks.modbus со сдвигом на номер устройства.
type DeviceConfig struct {
	Name           string  `yaml:"name"`
	Port           string  `yaml:"port"`
	Baud           int     `yaml:"baud"`
	ModbusRegister *uint16 `yaml:"modbus_register"`
}

// PipelineConfig — бюджеты цикла чтения, частота опроса и политики обработки кодов.
// Длительности — строки time.ParseDuration ("100ms", "5s").
type PipelineConfig struct {
	DrainBudget           string `yaml:"drain_budget"`
	ColdClearBudget       string `yaml:"cold_clear_budget"`
	QuietPeriod           string `yaml:"quiet_period"`
	LoopInterval          string `yaml:"loop_interval"`
	HighFrequencyInterval string `yaml:"high_frequency_interval"`

	// AlwaysShowDelta: nil = true. При false Δ выводится только при delta < DeltaSuppressAfter.
	AlwaysShowDelta    *bool  `yaml:"always_show_delta"`
	DeltaSuppressAfter string `yaml:"delta_suppress_after"`

	IgnoredCodesUpdateLast bool            `yaml:"ignored_codes_update_last"`
	IgnoreCodes            []postcode.Code `yaml:"ignore_codes"`
}

// ClockConfig — источник календарного времени (system, ntp, none).
type ClockConfig struct {
	Source   string `yaml:"source"`
	Timezone string `yaml:"timezone"`
	// RequireSync: nil = true; system-часы без синхронизации ядра не используются.
	RequireSync *bool `yaml:"require_sync"`
	// Fallback — запасной источник (system, ntp, none), пока основной не синхронизирован;
	// при source: none он становится единственным.
	Fallback     string `yaml:"fallback"`
	NTPServer    string `yaml:"ntp_server"`
	PollInterval string `yaml:"pollinterval"`
	Timeout      string `yaml:"timeout"`
}

// DescriptionsConfig — описания кодов: файл и/или список в конфиге (конфиг главнее).
type DescriptionsConfig struct {
	File  string            `yaml:"file"`
	Codes map[string]string `yaml:"codes"`
}

// SinksConfig — получатели событий.
type SinksConfig struct {
	QueueSize int         `yaml:"queue_size"`
	Console   ConsoleSink `yaml:"console"`
	Modbus    ModbusSink  `yaml:"modbus"`
	Redis     RedisSink   `yaml:"redis"`
	Serial    SerialSink  `yaml:"serial"`
	Journal   JournalSink `yaml:"journal"`
}

// ConsoleSink — печать строк в stdout
type ConsoleSink struct {
	Enabled bool `yaml:"enabled"`
}

// ModbusSink — код в holding-регистр Modbus TCP
type ModbusSink struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	SlaveID  uint8  `yaml:"slave_id"`
	Register uint16 `yaml:"register"`
	Float    bool   `yaml:"float"`
	Timeout  string `yaml:"timeout"`
}

// RedisSink — строки в канал, последний код в ключ
type RedisSink struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Key      string `yaml:"key"`
}

// SerialSink — копия строк на второй порт
type SerialSink struct {
	Enabled  bool   `yaml:"enabled"`
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	Encoding string `yaml:"encoding"`
}

// JournalSink — журнал загрузок в SQLite
type JournalSink struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
		Pipeline: PipelineConfig{
			DrainBudget:           "100ms",
			ColdClearBudget:       "100ms",
			QuietPeriod:           "200ms",
			LoopInterval:          "16ms",
			HighFrequencyInterval: "1ms",
			DeltaSuppressAfter:    "5s",
		},
		Clock: ClockConfig{
			Source:       "system",
			PollInterval: "64s",
			Timeout:      "5s",
		},
		Sinks: SinksConfig{
			QueueSize: 64,
			Console:   ConsoleSink{Enabled: true},
			Journal:   JournalSink{Path: "bpc-gw.db"},
		},
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	// относительный файл описаний ищется рядом с конфигом, а не в рабочем каталоге
	if f := c.Descriptions.File; f != "" && !filepath.IsAbs(f) {
		c.Descriptions.File = filepath.Join(filepath.Dir(path), f)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	d := Default()
	if len(c.Devices) == 0 {
		if c.Device.Port == "" {
			c.Device.Port = d.Device.Port
		}
		if c.Device.Baud == 0 {
			c.Device.Baud = d.Device.Baud
		}
	}
	for i := range c.Devices {
		if c.Devices[i].Baud == 0 {
			c.Devices[i].Baud = d.Device.Baud
		}
	}
	p, dp := &c.Pipeline, d.Pipeline
	for _, f := range []struct {
		v   *string
		def string
	}{
		{&p.DrainBudget, dp.DrainBudget},
		{&p.ColdClearBudget, dp.ColdClearBudget},
		{&p.QuietPeriod, dp.QuietPeriod},
		{&p.LoopInterval, dp.LoopInterval},
		{&p.HighFrequencyInterval, dp.HighFrequencyInterval},
		{&p.DeltaSuppressAfter, dp.DeltaSuppressAfter},
		{&c.Clock.PollInterval, d.Clock.PollInterval},
		{&c.Clock.Timeout, d.Clock.Timeout},
	} {
		if *f.v == "" {
			*f.v = f.def
		}
	}
	if c.Clock.Source == "" {
		c.Clock.Source = d.Clock.Source
	}
	if c.Sinks.QueueSize == 0 {
		c.Sinks.QueueSize = d.Sinks.QueueSize
	}
	if c.Sinks.Journal.Path == "" {
		c.Sinks.Journal.Path = d.Sinks.Journal.Path
	}
}

// Validate проверяет длительности и значения перечислений.
func (c *Config) Validate() error {
	var errs []error
	durations := map[string]string{
		"pipeline.drain_budget":            c.Pipeline.DrainBudget,
		"pipeline.cold_clear_budget":       c.Pipeline.ColdClearBudget,
		"pipeline.quiet_period":            c.Pipeline.QuietPeriod,
		"pipeline.loop_interval":           c.Pipeline.LoopInterval,
		"pipeline.high_frequency_interval": c.Pipeline.HighFrequencyInterval,
		"pipeline.delta_suppress_after":    c.Pipeline.DeltaSuppressAfter,
		"clock.pollinterval":               c.Clock.PollInterval,
		"clock.timeout":                    c.Clock.Timeout,
		"sinks.modbus.timeout":             c.Sinks.Modbus.Timeout,
	}
	for name, s := range durations {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("%s: negative duration %s", name, s))
		}
	}
	switch c.Clock.Source {
	case "system", "ntp", "none":
	default:
		errs = append(errs, fmt.Errorf("clock.source: unknown source %q", c.Clock.Source))
	}
	switch c.Clock.Fallback {
	case "", "system", "ntp", "none":
	default:
		errs = append(errs, fmt.Errorf("clock.fallback: unknown source %q", c.Clock.Fallback))
	}
	if (c.Clock.Source == "ntp" || c.Clock.Fallback == "ntp") && c.Clock.NTPServer == "" {
		errs = append(errs, errors.New("clock.ntp_server: required for source ntp"))
	}
	if d, err := time.ParseDuration(c.Pipeline.DeltaSuppressAfter); err == nil && d/time.Millisecond > math.MaxUint32 {
		errs = append(errs, fmt.Errorf("pipeline.delta_suppress_after: %s exceeds %d ms", c.Pipeline.DeltaSuppressAfter, uint32(math.MaxUint32)))
	}
	errs = append(errs, c.validateDevices()...)
	if c.Sinks.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("sinks.queue_size: %d", c.Sinks.QueueSize))
	}
	if c.Sinks.Modbus.Enabled && c.Sinks.Modbus.Address == "" {
		errs = append(errs, errors.New("sinks.modbus.address: required"))
	}
	if c.Sinks.Serial.Enabled && c.Sinks.Serial.Port == "" {
		errs = append(errs, errors.New("sinks.serial.port: required"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateDevices() []error {
	var errs []error
	if len(c.Devices) > 0 && c.Device != (DeviceConfig{}) {
		errs = append(errs, errors.New("device and devices are mutually exclusive"))
	}
	if len(c.Devices) == 0 {
		if c.Device.Baud < 0 {
			errs = append(errs, fmt.Errorf("device.baud: %d", c.Device.Baud))
		}
		return errs
	}
	names := make(map[string]bool)
	ports := make(map[string]bool)
	for i, d := range c.DeviceList() {
		if d.Port == "" {
			errs = append(errs, fmt.Errorf("devices[%d].port: required", i))
		} else if ports[d.Port] {
			errs = append(errs, fmt.Errorf("devices[%d].port: duplicate %s", i, d.Port))
		}
		ports[d.Port] = true
		if d.Baud < 0 {
			errs = append(errs, fmt.Errorf("devices[%d].baud: %d", i, d.Baud))
		}
		if names[d.Name] {
			errs = append(errs, fmt.Errorf("devices[%d].name: duplicate %q", i, d.Name))
		}
		names[d.Name] = true
	}
	return errs
}

// DeviceList возвращает порты POST-кодов: Devices или единственный Device.
// При нескольких портах пустое имя заменяется базовым именем порта (ttyUSB0),
// незаданный регистр Modbus — регистром sinks.modbus со сдвигом на номер устройства.
func (c *Config) DeviceList() []DeviceConfig {
	if len(c.Devices) == 0 {
		return []DeviceConfig{c.Device}
	}
	width := uint16(1)
	if c.Sinks.Modbus.Float {
		width = 2
	}
	out := make([]DeviceConfig, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" && d.Port != "" && len(c.Devices) > 1 {
			d.Name = filepath.Base(d.Port)
		}
		if d.ModbusRegister == nil {
			reg := c.Sinks.Modbus.Register + uint16(i)*width
			d.ModbusRegister = &reg
		}
		out[i] = d
	}
	return out
}

// DrainBudgetDuration — бюджет одного прохода чтения.
func (p PipelineConfig) DrainBudgetDuration() time.Duration {
	return parseDuration(p.DrainBudget, 100*time.Millisecond)
}

// ColdClearBudgetDuration — бюджет очистки буфера при старте.
func (p PipelineConfig) ColdClearBudgetDuration() time.Duration {
	return parseDuration(p.ColdClearBudget, 100*time.Millisecond)
}

// QuietPeriodDuration — тишина, после которой выключается ускоренный опрос.
func (p PipelineConfig) QuietPeriodDuration() time.Duration {
	return parseDuration(p.QuietPeriod, 200*time.Millisecond)
}

// LoopIntervalDuration — обычный интервал планировщика.
func (p PipelineConfig) LoopIntervalDuration() time.Duration {
	return parseDuration(p.LoopInterval, 16*time.Millisecond)
}

// HighFrequencyIntervalDuration — ускоренный интервал планировщика.
func (p PipelineConfig) HighFrequencyIntervalDuration() time.Duration {
	return parseDuration(p.HighFrequencyInterval, time.Millisecond)
}

// DeltaPolicy — политика поля Δ.
func (p PipelineConfig) DeltaPolicy() postcode.DeltaPolicy {
	after := parseDuration(p.DeltaSuppressAfter, postcode.DefaultDeltaSuppressAfter*time.Millisecond) / time.Millisecond
	if after > math.MaxUint32 {
		after = math.MaxUint32
	}
	return postcode.DeltaPolicy{
		AlwaysShow:    p.AlwaysShowDelta == nil || *p.AlwaysShowDelta,
		SuppressAfter: uint32(after),
	}
}

// IgnoreSet — множество игнорируемых кодов.
func (p PipelineConfig) IgnoreSet() postcode.IgnoreSet {
	return postcode.NewIgnoreSet(p.IgnoreCodes...)
}

// SyncRequired — нужна ли синхронизация ядра для system-часов.
func (c ClockConfig) SyncRequired() bool {
	return c.RequireSync == nil || *c.RequireSync
}

// PollIntervalDuration — интервал опроса NTP.
func (c ClockConfig) PollIntervalDuration() time.Duration {
	return parseDuration(c.PollInterval, 64*time.Second)
}

// TimeoutDuration — таймаут запроса NTP.
func (c ClockConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 5*time.Second)
}

// TimeoutDuration — таймаут запроса Modbus.
func (m ModbusSink) TimeoutDuration() time.Duration {
	return parseDuration(m.Timeout, time.Second)
}

// Load читает таблицу описаний: файл (если задан), поверх него коды из конфига.
func (d DescriptionsConfig) Load() (postcode.Descriptions, error) {
	base := postcode.Descriptions{}
	if d.File != "" {
		var err error
		if base, err = postcode.LoadDescriptions(d.File); err != nil {
			return nil, err
		}
	}
	inline, err := postcode.ParseDescriptions(d.Codes)
	if err != nil {
		return nil, fmt.Errorf("descriptions.codes: %w", err)
	}
	return postcode.Merge(base, inline), nil
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
