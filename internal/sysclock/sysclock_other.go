//go:build !linux

package sysclock

import "time"

var processStart = time.Now()

// MonotonicNs — на не-Linux: монотонное время с запуска процесса.
func MonotonicNs() int64 {
	return int64(time.Since(processStart))
}

// MonotonicRawNs — на не-Linux совпадает с MonotonicNs.
func MonotonicRawNs() int64 {
	return MonotonicNs()
}

// RealtimeNs возвращает time.Now() в наносекундах.
func RealtimeNs() int64 {
	return time.Now().UnixNano()
}

// Synchronized — на не-Linux состояние ядра недоступно, считаем часы синхронизированными.
func Synchronized() bool {
	return true
}

// FrequencyPPM — заглушка на не-Linux.
func FrequencyPPM() (float64, error) {
	return 0, nil
}

// GranularityNs — заглушка на не-Linux.
func GranularityNs() int64 {
	return 0
}
