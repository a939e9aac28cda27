// Package timestamp восстанавливает календарное время приёма байта по его монотонной метке.
//
// Календарные часы читаются в момент форматирования, поэтому из отсчёта вычитается задержка
// между приёмом байта и форматированием строки. Оба отсчёта (календарный и монотонный)
// берутся подряд, без работы между ними.
package timestamp

import (
	"fmt"
	"time"

	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/internal/sysclock"
	"github.com/shiwa/bpc-gw/internal/wallclock"
)

// Layout — формат часов, к которому дописываются миллисекунды.
const Layout = "15:04:05"

// Reconstructor переводит монотонные метки в строки "HH:MM:SS.mmm".
type Reconstructor struct {
	wall wallclock.Provider
	mono sysclock.Monotonic
	warn *logger.Throttle
}

// New создаёт Reconstructor. wall может быть nil: тогда время не выводится.
func New(wall wallclock.Provider, mono sysclock.Monotonic) *Reconstructor {
	return &Reconstructor{wall: wall, mono: mono, warn: logger.NewThrottle(10*time.Second, 1)}
}

// Correct вычитает задержку latency (мс) из отсчёта (sec, ms) с заёмом секунды.
// ms должен быть в [0,999].
func Correct(sec int64, ms int, latency uint32) (int64, int) {
	sec -= int64(latency / 1000)
	sub := int(latency % 1000)
	if ms >= sub {
		return sec, ms - sub
	}
	return sec - 1, ms + 1000 - sub
}

// Clamp приводит миллисекунды к [0,999]; ok=false, если значение пришлось менять.
func Clamp(ms int) (int, bool) {
	switch {
	case ms < 0:
		return 0, false
	case ms > 999:
		return 999, false
	}
	return ms, true
}

// At возвращает время приёма байта с монотонной меткой captured (мс с загрузки)
// или пустую строку, если календарных часов нет или они не синхронизированы.
func (r *Reconstructor) At(captured uint32) string {
	if r == nil || r.wall == nil || !r.wall.IsSynchronized() {
		return ""
	}
	now, ok := r.wall.Now()
	mono := r.mono.Millis()
	if !ok {
		return ""
	}
	ms, valid := Clamp(now.Millis)
	if !valid {
		r.warn.Warn("wall clock millis %d out of range, clamped to %d", now.Millis, ms)
	}
	sec, ms := Correct(now.Seconds, ms, sysclock.Since(mono, captured))
	hms := r.wall.FormatLocal(sec, Layout)
	if hms == "" {
		r.warn.Warn("wall clock: invalid local time for %d", sec)
		return ""
	}
	return fmt.Sprintf("%s.%03d", hms, ms)
}
