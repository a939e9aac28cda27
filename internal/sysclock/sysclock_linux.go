//go:build linux

package sysclock

import (
	"time"

	"golang.org/x/sys/unix"
)

// TIME_ERROR из <sys/timex.h>: ядро считает часы несинхронизированными.
const adjtimexTimeError = 5

var processStart = time.Now()

// MonotonicNs возвращает CLOCK_MONOTONIC в наносекундах.
func MonotonicNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return int64(time.Since(processStart))
	}
	return ts.Nano()
}

// MonotonicRawNs возвращает CLOCK_MONOTONIC_RAW (без коррекции частоты NTP) в наносекундах.
func MonotonicRawNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return MonotonicNs()
	}
	return ts.Nano()
}

// RealtimeNs возвращает CLOCK_REALTIME в наносекундах от эпохи.
func RealtimeNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return time.Now().UnixNano()
	}
	return ts.Nano()
}

// Synchronized сообщает, считает ли ядро системные часы синхронизированными (adjtimex без изменений).
func Synchronized() bool {
	state, err := unix.Adjtimex(&unix.Timex{})
	if err != nil {
		return false
	}
	return state != adjtimexTimeError
}

// FrequencyPPM возвращает текущую коррекцию частоты из ядра (ppm).
// Freq в timex — scaled ppm (freq/65536 = ppm).
func FrequencyPPM() (float64, error) {
	buf := &unix.Timex{}
	if _, err := unix.Adjtimex(buf); err != nil {
		return 0, err
	}
	return float64(buf.Freq) / 65536, nil
}

// GranularityNs измеряет гранулярность CLOCK_REALTIME: минимальный ненулевой интервал между
// двумя соседними вызовами clock_gettime.
func GranularityNs() int64 {
	const rounds = 20
	var minDt int64 = 1e9
	for i := 0; i < rounds; i++ {
		var t1, t2 unix.Timespec
		_ = unix.ClockGettime(unix.CLOCK_REALTIME, &t1)
		_ = unix.ClockGettime(unix.CLOCK_REALTIME, &t2)
		dt := (t2.Sec-t1.Sec)*1e9 + int64(t2.Nsec-t1.Nsec)
		if dt > 0 && dt < minDt {
			minDt = dt
		}
	}
	if minDt == 1e9 {
		return 0
	}
	return minDt
}
