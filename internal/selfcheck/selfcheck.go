// Package selfcheck — ручная проверка часов: раз в секунду печатает монотонное время,
// CLOCK_MONOTONIC_RAW, CLOCK_REALTIME и восстановленное местное время.
//
// Блокирует вызывающего на ~10 секунд; запускается только командой selfcheck,
// никогда из планировщика.
package selfcheck

import (
	"context"
	"time"

	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/internal/sysclock"
	"github.com/shiwa/bpc-gw/internal/timestamp"
)

const (
	rows        = 11
	step        = 100 * time.Millisecond
	stepsPerRow = 10
)

// Row — одна строка проверки.
type Row struct {
	N      int
	Mono   uint32
	RawNs  int64
	RealNs int64
	Local  string
}

// Checker снимает показания часов.
type Checker struct {
	mono  sysclock.Monotonic
	raw   func() int64
	real  func() int64
	rec   *timestamp.Reconstructor
	sleep func(time.Duration)
}

// New создаёт проверку на системных часах; rec может быть без календарного источника.
func New(mono sysclock.Monotonic, rec *timestamp.Reconstructor) *Checker {
	return &Checker{
		mono:  mono,
		raw:   sysclock.MonotonicRawNs,
		real:  sysclock.RealtimeNs,
		rec:   rec,
		sleep: time.Sleep,
	}
}

// Run печатает 11 строк с интервалом в секунду (сон шагами по 100 мс) и возвращает их.
// Отмена ctx прерывает проверку между шагами.
func (c *Checker) Run(ctx context.Context) ([]Row, error) {
	if ppm, err := sysclock.FrequencyPPM(); err == nil {
		logger.Info("selfcheck: kernel synchronized=%v freq=%.3f ppm granularity=%d ns",
			sysclock.Synchronized(), ppm, sysclock.GranularityNs())
	}
	out := make([]Row, 0, rows)
	for i := 0; i < rows; i++ {
		if i > 0 {
			for s := 0; s < stepsPerRow; s++ {
				if err := ctx.Err(); err != nil {
					return out, err
				}
				c.sleep(step)
			}
		}
		r := c.sample(i)
		out = append(out, r)
		logger.Info("selfcheck %2d: mono=%d ms raw=%d.%09d realtime=%d.%09d local=%s",
			r.N, r.Mono, r.RawNs/1e9, r.RawNs%1e9, r.RealNs/1e9, r.RealNs%1e9, orDash(r.Local))
	}
	if ppm, ok := Drift(out); ok {
		logger.Info("selfcheck: realtime vs raw drift %.3f ppm", ppm)
	}
	return out, nil
}

func (c *Checker) sample(n int) Row {
	mono := c.mono.Millis()
	return Row{
		N:      n,
		Mono:   mono,
		RawNs:  c.raw(),
		RealNs: c.real(),
		Local:  c.rec.At(mono),
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
