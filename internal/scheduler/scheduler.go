// Package scheduler — кооперативный цикл задач на одной горутине.
//
// Задачи вызываются по очереди и выполняются до конца; между проходами цикл ждёт
// обычный интервал или, пока запрошен ускоренный опрос, короткий.
package scheduler

import (
	"context"
	"time"

	"github.com/shiwa/bpc-gw/internal/logger"
)

// Task — единица работы планировщика.
type Task interface {
	Loop()
}

// TaskFunc позволяет использовать функцию как Task.
type TaskFunc func()

// Loop вызывает f.
func (f TaskFunc) Loop() { f() }

// Scheduler — цикл задач. Методы вызываются только с горутины Run (из задач) или до запуска.
type Scheduler struct {
	normal time.Duration
	fast   time.Duration
	tasks  []Task

	self        Hold
	holders     int
	transitions int
	passes      uint64
}

// Hold — отдельный запрос ускоренного опроса. Ускоренный режим действует,
// пока активен хотя бы один Hold; у каждого компонента свой.
type Hold struct {
	s      *Scheduler
	active bool
}

// RequestHighFrequency активирует запрос; повторный вызов ничего не делает.
func (h *Hold) RequestHighFrequency() {
	if h.active {
		return
	}
	h.active = true
	h.s.holders++
	if h.s.holders == 1 {
		h.s.transitions++
		logger.Debug("scheduler: high frequency %v", h.s.fast)
	}
}

// ReleaseHighFrequency снимает запрос; без активного запроса ничего не делает.
func (h *Hold) ReleaseHighFrequency() {
	if !h.active {
		return
	}
	h.active = false
	h.s.holders--
	if h.s.holders == 0 {
		h.s.transitions++
		logger.Debug("scheduler: normal %v", h.s.normal)
	}
}

// New создаёт планировщик с обычным и ускоренным интервалами.
func New(normal, fast time.Duration) *Scheduler {
	if normal <= 0 {
		normal = 16 * time.Millisecond
	}
	if fast <= 0 || fast > normal {
		fast = time.Millisecond
		if fast > normal {
			fast = normal
		}
	}
	s := &Scheduler{normal: normal, fast: fast}
	s.self.s = s
	return s
}

// NewHold создаёт независимый запрос ускоренного опроса.
func (s *Scheduler) NewHold() *Hold {
	return &Hold{s: s}
}

// Add регистрирует задачу; порядок вызова совпадает с порядком добавления.
func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// RequestHighFrequency включает ускоренный опрос собственным запросом планировщика;
// повторный вызов ничего не делает.
func (s *Scheduler) RequestHighFrequency() {
	s.self.RequestHighFrequency()
}

// ReleaseHighFrequency снимает собственный запрос планировщика.
func (s *Scheduler) ReleaseHighFrequency() {
	s.self.ReleaseHighFrequency()
}

// HighFrequency сообщает, включён ли ускоренный опрос.
func (s *Scheduler) HighFrequency() bool {
	return s.holders > 0
}

// Transitions — число переключений режима.
func (s *Scheduler) Transitions() int {
	return s.transitions
}

// Interval — текущий интервал между проходами.
func (s *Scheduler) Interval() time.Duration {
	if s.holders > 0 {
		return s.fast
	}
	return s.normal
}

// RunOnce выполняет один проход по задачам.
func (s *Scheduler) RunOnce() {
	for _, t := range s.tasks {
		t.Loop()
	}
	s.passes++
}

// Run выполняет проходы до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("scheduler: stop after %d passes", s.passes)
			return ctx.Err()
		case <-timer.C:
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.RunOnce()
		timer.Reset(s.Interval())
	}
}
