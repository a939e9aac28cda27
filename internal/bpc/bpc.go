// Package bpc — конвейер POST-кодов: цикл чтения порта, контроллер частоты опроса
// и обработка событий (фильтр, дельта, описание, публикация).
//
// Component не потокобезопасен: Loop вызывается только из одной горутины планировщика.
package bpc

import (
	"time"

	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/internal/postcode"
	"github.com/shiwa/bpc-gw/internal/sysclock"
	"github.com/shiwa/bpc-gw/internal/timestamp"
)

// ByteSource — источник байт без блокировки.
type ByteSource interface {
	Available() int
	ReadByte() (byte, bool)
}

// Scheduler — управление частотой вызова Loop. Оба метода идемпотентны.
type Scheduler interface {
	RequestHighFrequency()
	ReleaseHighFrequency()
}

// NumberPublisher получает код как число.
type NumberPublisher interface {
	PublishNumber(v float64)
}

// TextPublisher получает отформатированную строку.
type TextPublisher interface {
	PublishText(s string)
}

// Recorder сохраняет опубликованные события (журнал загрузки).
type Recorder interface {
	Record(r postcode.Record)
}

// Options — политики и бюджеты конвейера.
type Options struct {
	// Device — имя устройства в логе и записях журнала; пусто при единственном порте.
	Device          string
	DrainBudget     time.Duration
	ColdClearBudget time.Duration
	QuietPeriod     time.Duration
	Delta           postcode.DeltaPolicy
	// IgnoredUpdateLast: игнорируемые коды становятся "предыдущими" для дельты.
	IgnoredUpdateLast bool
	Ignore            postcode.IgnoreSet
	Descriptions      postcode.Descriptions
}

// DefaultOptions — бюджеты 100 мс, тишина 200 мс, Δ выводится всегда.
func DefaultOptions() Options {
	return Options{
		DrainBudget:     100 * time.Millisecond,
		ColdClearBudget: 100 * time.Millisecond,
		QuietPeriod:     200 * time.Millisecond,
		Delta:           postcode.DeltaPolicy{AlwaysShow: true, SuppressAfter: postcode.DefaultDeltaSuppressAfter},
	}
}

// Deps — соседи компонента. Source и Mono обязательны, остальное может быть nil.
type Deps struct {
	Source    ByteSource
	Mono      sysclock.Monotonic
	Time      *timestamp.Reconstructor
	Scheduler Scheduler
	Number    NumberPublisher
	Text      TextPublisher
	Recorder  Recorder
}

// Stats — счётчики компонента.
type Stats struct {
	Cleared   int
	Received  int
	Ignored   int
	Published int
}

// Component — один экземпляр конвейера со своим состоянием.
type Component struct {
	d    Deps
	opts Options
	rate *RateController

	started      bool
	hasLast      bool
	lastCode     postcode.Code
	lastCaptured uint32

	stats Stats
}

// New создаёт компонент. Нулевые бюджеты заменяются значениями по умолчанию.
func New(d Deps, o Options) *Component {
	def := DefaultOptions()
	if o.DrainBudget <= 0 {
		o.DrainBudget = def.DrainBudget
	}
	if o.ColdClearBudget <= 0 {
		o.ColdClearBudget = def.ColdClearBudget
	}
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = def.QuietPeriod
	}
	if d.Mono == nil {
		d.Mono = sysclock.System{}
	}
	return &Component{
		d:    d,
		opts: o,
		rate: NewRateController(d.Scheduler, o.QuietPeriod),
	}
}

func millis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}

// Loop — одна итерация планировщика. Первый вызов только очищает приёмный буфер.
func (c *Component) Loop() {
	if !c.started {
		c.started = true
		c.clearRx()
		return
	}
	budget := millis(c.opts.DrainBudget)
	start := c.d.Mono.Millis()
	for c.d.Source.Available() > 0 && sysclock.Since(c.d.Mono.Millis(), start) < budget {
		b, ok := c.d.Source.ReadByte()
		if !ok {
			// промах чтения: байт заберёт следующий вызов
			break
		}
		captured := c.d.Mono.Millis()
		c.process(postcode.Code(b), captured)
		c.rate.Activity(captured)
	}
	c.rate.Check(c.d.Mono.Millis())
}

// clearRx выбрасывает шум линии после включения хоста.
func (c *Component) clearRx() {
	budget := millis(c.opts.ColdClearBudget)
	start := c.d.Mono.Millis()
	n := 0
	for c.d.Source.Available() > 0 && sysclock.Since(c.d.Mono.Millis(), start) < budget {
		if _, ok := c.d.Source.ReadByte(); !ok {
			break
		}
		n++
	}
	c.stats.Cleared += n
	if n > 0 {
		logger.Warn("%scleared %d RX bytes", c.tag(), n)
	}
}

func (c *Component) process(code postcode.Code, captured uint32) {
	ev := postcode.Event{Code: code, Captured: captured, Delta: sysclock.Since(captured, c.lastCaptured)}
	c.stats.Received++
	if c.opts.Ignore.Contains(code) {
		c.stats.Ignored++
		logger.Info("%sPOST 0x%02X @ %d | %d ms (ignored)", c.tag(), uint8(code), ev.Captured, ev.Delta)
		if c.opts.IgnoredUpdateLast {
			c.remember(ev)
		}
		return
	}
	logger.Info("%sPOST 0x%02X @ %d | %d ms", c.tag(), uint8(code), ev.Captured, ev.Delta)

	desc, _ := c.opts.Descriptions.Lookup(code)
	ts := c.d.Time.At(captured)
	text := postcode.Format(code, ev.Delta, ts, desc, c.opts.Delta)
	if c.d.Number != nil {
		c.d.Number.PublishNumber(float64(code))
	}
	if c.d.Text != nil {
		c.d.Text.PublishText(text)
	}
	if c.d.Recorder != nil {
		c.d.Recorder.Record(postcode.Record{Device: c.opts.Device, Event: ev, Time: ts, Description: desc, Text: text})
	}
	c.stats.Published++
	c.remember(ev)
}

func (c *Component) tag() string {
	if c.opts.Device == "" {
		return ""
	}
	return "[" + c.opts.Device + "] "
}

func (c *Component) remember(ev postcode.Event) {
	c.hasLast = true
	c.lastCode = ev.Code
	c.lastCaptured = ev.Captured
}

// Last возвращает последний учтённый код; ok=false, если кодов ещё не было.
func (c *Component) Last() (code postcode.Code, captured uint32, ok bool) {
	return c.lastCode, c.lastCaptured, c.hasLast
}

// HighFrequency сообщает, запрошен ли сейчас ускоренный опрос.
func (c *Component) HighFrequency() bool {
	return c.rate.Active()
}

// Stats возвращает счётчики.
func (c *Component) Stats() Stats {
	return c.stats
}
