// Package sysclock — чтение системных часов: монотонные миллисекунды с загрузки,
// CLOCK_MONOTONIC_RAW, CLOCK_REALTIME и состояние синхронизации ядра.
package sysclock

// Monotonic — монотонный счётчик миллисекунд с загрузки.
// 32 бита: счётчик переполняется примерно через 49,7 суток, разности считаются по модулю 2^32.
type Monotonic interface {
	Millis() uint32
}

// System — Monotonic поверх CLOCK_MONOTONIC.
type System struct{}

// Millis возвращает миллисекунды CLOCK_MONOTONIC, усечённые до uint32.
func (System) Millis() uint32 {
	return uint32(MonotonicNs() / 1e6)
}

// Since возвращает число миллисекунд от from до now с учётом переполнения.
func Since(now, from uint32) uint32 {
	return now - from
}
