// Package sink — получатели событий POST-кодов: консоль, разветвитель и асинхронная очередь
// для получателей с блокирующим вводом-выводом (modbus, redis, serial, journal).
package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/shiwa/bpc-gw/internal/postcode"
)

// NumberWriter — получатель числового значения кода.
type NumberWriter interface {
	WriteNumber(ctx context.Context, v float64) error
}

// TextWriter — получатель отформатированной строки.
type TextWriter interface {
	WriteText(ctx context.Context, s string) error
}

// RecordWriter — получатель полной записи о событии.
type RecordWriter interface {
	WriteRecord(ctx context.Context, r postcode.Record) error
}

// Console печатает строки событий в w (обычно stdout).
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole создаёт консольный получатель.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// PublishText печатает строку.
func (c *Console) PublishText(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

// Fanout раздаёт события всем подключённым получателям.
type Fanout struct {
	numbers []interface{ PublishNumber(float64) }
	texts   []interface{ PublishText(string) }
	records []interface{ Record(postcode.Record) }
}

// Add подключает получатель; он получает события тех видов, которые умеет принимать.
func (f *Fanout) Add(s interface{}) {
	if p, ok := s.(interface{ PublishNumber(float64) }); ok {
		f.numbers = append(f.numbers, p)
	}
	if p, ok := s.(interface{ PublishText(string) }); ok {
		f.texts = append(f.texts, p)
	}
	if p, ok := s.(interface{ Record(postcode.Record) }); ok {
		f.records = append(f.records, p)
	}
}

// Empty сообщает, что получателей нет.
func (f *Fanout) Empty() bool {
	return len(f.numbers) == 0 && len(f.texts) == 0 && len(f.records) == 0
}

// PublishNumber передаёт значение всем числовым получателям.
func (f *Fanout) PublishNumber(v float64) {
	for _, p := range f.numbers {
		p.PublishNumber(v)
	}
}

// PublishText передаёт строку всем текстовым получателям.
func (f *Fanout) PublishText(s string) {
	for _, p := range f.texts {
		p.PublishText(s)
	}
}

// Record передаёт запись всем журналам.
func (f *Fanout) Record(r postcode.Record) {
	for _, p := range f.records {
		p.Record(r)
	}
}

// Labeled добавляет к строкам префикс "[label] ", чтобы на общем выводе
// различались устройства.
type Labeled struct {
	label string
	next  interface{ PublishText(string) }
}

// NewLabeled оборачивает текстовый получатель next.
func NewLabeled(label string, next interface{ PublishText(string) }) *Labeled {
	return &Labeled{label: label, next: next}
}

// PublishText передаёт строку с префиксом.
func (l *Labeled) PublishText(s string) {
	if l.label == "" {
		l.next.PublishText(s)
		return
	}
	l.next.PublishText("[" + l.label + "] " + s)
}
