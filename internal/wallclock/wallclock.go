// Package wallclock — источники календарного времени для восстановления времени POST-кодов.
// Отсутствие источника (nil Provider) и несинхронизированный источник — штатные состояния.
package wallclock

import "time"

// Reading — отсчёт календарного времени: секунды от эпохи и миллисекунды внутри секунды.
type Reading struct {
	Seconds int64
	Millis  int
}

// Provider — источник календарного времени.
type Provider interface {
	// Now возвращает текущий отсчёт; false, если источник не может его дать.
	Now() (Reading, bool)
	// IsSynchronized сообщает, можно ли доверять отсчёту.
	IsSynchronized() bool
	// FormatLocal переводит секунды от эпохи в местное время по layout; пусто при ошибке.
	FormatLocal(sec int64, layout string) string
}

// minValidUnix — 2019-01-01 UTC; более ранние значения считаются неустановленными часами:
// источник не отдаёт отсчёт и не считается синхронизированным.
const minValidUnix = 1546300800

func readingOf(t time.Time) (Reading, bool) {
	if t.Unix() < minValidUnix {
		return Reading{}, false
	}
	return Reading{Seconds: t.Unix(), Millis: t.Nanosecond() / int(time.Millisecond)}, true
}

func formatLocal(sec int64, layout string, loc *time.Location) string {
	if loc == nil {
		return ""
	}
	return time.Unix(sec, 0).In(loc).Format(layout)
}
