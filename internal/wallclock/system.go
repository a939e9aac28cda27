package wallclock

import (
	"time"

	"github.com/shiwa/bpc-gw/internal/sysclock"
)

// System — системные часы (time.Now) в заданной зоне.
type System struct {
	loc         *time.Location
	requireSync bool
	now         func() time.Time
	synced      func() bool
}

// NewSystem создаёт источник на системных часах. При requireSync источник считается
// синхронизированным, только если ядро не сообщает TIME_ERROR.
func NewSystem(loc *time.Location, requireSync bool) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc, requireSync: requireSync, now: time.Now, synced: sysclock.Synchronized}
}

// Now возвращает системное время.
func (s *System) Now() (Reading, bool) {
	return readingOf(s.now())
}

// IsSynchronized — состояние синхронизации системных часов. Часы до 2019 года
// не синхронизированы при любом require_sync.
func (s *System) IsSynchronized() bool {
	if s.now().Unix() < minValidUnix {
		return false
	}
	if !s.requireSync {
		return true
	}
	return s.synced()
}

// FormatLocal форматирует секунды в зоне источника.
func (s *System) FormatLocal(sec int64, layout string) string {
	return formatLocal(sec, layout, s.loc)
}

// Name возвращает имя источника
func (s *System) Name() string {
	return "system"
}
