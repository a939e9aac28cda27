// Package logger — единый вывод логов bpc-gw с префиксом, уровнем и учётом quiet/verbose.
package logger

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const prefix = "bpc-gw: "

// Quiet при true отключает информационные сообщения (Info, Debug); Warn и Error выводятся всегда.
var Quiet bool

// Verbose при true включает Debug.
var Verbose bool

// Debug выводит отладочное сообщение, только если Verbose и не Quiet.
func Debug(format string, args ...interface{}) {
	if Quiet || !Verbose {
		return
	}
	log.Printf(prefix+"[D] "+format, args...)
}

// Info выводит сообщение с префиксом "bpc-gw: ", если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+"[I] "+format, args...)
}

// Warn выводит предупреждение всегда.
func Warn(format string, args ...interface{}) {
	log.Printf(prefix+"[W] "+format, args...)
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	log.Printf(prefix+"[E] "+format, args...)
}

// Throttle — предупреждения с ограничением частоты: не чаще одного за every (плюс burst).
// Подавленные сообщения считаются и дописываются к следующему выведенному.
type Throttle struct {
	mu         sync.Mutex
	lim        *rate.Limiter
	suppressed int
	emit       func(format string, args ...interface{})
}

// NewThrottle создаёт Throttle поверх Warn.
func NewThrottle(every time.Duration, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		lim:  rate.NewLimiter(rate.Every(every), burst),
		emit: Warn,
	}
}

// Warn выводит предупреждение, если лимит позволяет; иначе увеличивает счётчик подавленных.
// Возвращает true, если строка была выведена.
func (t *Throttle) Warn(format string, args ...interface{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.lim.Allow() {
		t.suppressed++
		return false
	}
	msg := fmt.Sprintf(format, args...)
	if t.suppressed > 0 {
		msg = fmt.Sprintf("%s (подавлено ещё %d)", msg, t.suppressed)
		t.suppressed = 0
	}
	t.emit("%s", msg)
	return true
}

// Suppressed возвращает число подавленных с последнего вывода сообщений.
func (t *Throttle) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
