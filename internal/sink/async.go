package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/internal/postcode"
)

// DefaultQueueSize — длина очереди, если в конфиге не задана.
const DefaultQueueSize = 64

type job func(ctx context.Context) error

// Async выносит запись в блокирующий backend на отдельную горутину.
// Publish* не блокируются: при полной очереди событие отбрасывается и учитывается в Dropped.
type Async struct {
	name    string
	backend interface{}
	jobs    chan job
	warn    *logger.Throttle

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsync создаёт очередь для backend, который реализует хотя бы один из
// NumberWriter, TextWriter, RecordWriter.
func NewAsync(name string, backend interface{}, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Async{
		name:    name,
		backend: backend,
		jobs:    make(chan job, size),
		warn:    logger.NewThrottle(10*time.Second, 1),
	}
}

// Start запускает обработчик очереди; ctx передаётся в вызовы backend.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for j := range a.jobs {
			if err := j(ctx); err != nil {
				a.failed.Add(1)
				a.warn.Warn("sink %s: %v", a.name, err)
			}
		}
	}()
}

// Close закрывает очередь и ждёт записи уже принятых событий.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.jobs)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async) submit(j job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.jobs <- j:
	default:
		n := a.dropped.Add(1)
		a.warn.Warn("sink %s: queue full, dropped %d", a.name, n)
	}
}

// PublishNumber ставит значение в очередь, если backend принимает числа.
func (a *Async) PublishNumber(v float64) {
	w, ok := a.backend.(NumberWriter)
	if !ok {
		return
	}
	a.submit(func(ctx context.Context) error { return w.WriteNumber(ctx, v) })
}

// PublishText ставит строку в очередь, если backend принимает текст.
func (a *Async) PublishText(s string) {
	w, ok := a.backend.(TextWriter)
	if !ok {
		return
	}
	a.submit(func(ctx context.Context) error { return w.WriteText(ctx, s) })
}

// Record ставит запись в очередь, если backend — журнал.
func (a *Async) Record(r postcode.Record) {
	w, ok := a.backend.(RecordWriter)
	if !ok {
		return
	}
	a.submit(func(ctx context.Context) error { return w.WriteRecord(ctx, r) })
}

// Dropped — число событий, отброшенных из-за переполнения очереди.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Failed — число событий, которые backend не смог записать.
func (a *Async) Failed() uint64 {
	return a.failed.Load()
}
