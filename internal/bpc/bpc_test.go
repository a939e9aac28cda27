package bpc

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiwa/bpc-gw/internal/postcode"
	"github.com/shiwa/bpc-gw/internal/timestamp"
	"github.com/shiwa/bpc-gw/internal/wallclock"
)

// mono — монотонные часы теста; step добавляется после каждого чтения.
type mono struct {
	now  uint32
	step uint32
}

func (m *mono) Millis() uint32 {
	v := m.now
	m.now += m.step
	return v
}

type timedByte struct {
	b  byte
	at uint32
}

// source отдаёт байты; если у байта задано время, часы переводятся на него в момент чтения.
type source struct {
	clk    *mono
	queue  []timedByte
	misses int
}

func (s *source) push(at uint32, bs ...byte) {
	for _, b := range bs {
		s.queue = append(s.queue, timedByte{b: b, at: at})
	}
}

func (s *source) Available() int { return len(s.queue) }

func (s *source) ReadByte() (byte, bool) {
	if s.misses > 0 {
		s.misses--
		return 0, false
	}
	if len(s.queue) == 0 {
		return 0, false
	}
	tb := s.queue[0]
	s.queue = s.queue[1:]
	if tb.at != 0 {
		s.clk.now = tb.at
	}
	return tb.b, true
}

type sched struct {
	requests, releases int
}

func (s *sched) RequestHighFrequency() { s.requests++ }
func (s *sched) ReleaseHighFrequency() { s.releases++ }

type sinks struct {
	numbers []float64
	texts   []string
	records []postcode.Record
}

func (s *sinks) PublishNumber(v float64)  { s.numbers = append(s.numbers, v) }
func (s *sinks) PublishText(t string)     { s.texts = append(s.texts, t) }
func (s *sinks) Record(r postcode.Record) { s.records = append(s.records, r) }

type fixture struct {
	clk   *mono
	src   *source
	sched *sched
	out   *sinks
	log   *bytes.Buffer
	c     *Component
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func newFixture(t *testing.T, o Options, rec *timestamp.Reconstructor) *fixture {
	t.Helper()
	f := &fixture{clk: &mono{}, sched: &sched{}, out: &sinks{}, log: captureLog(t)}
	f.src = &source{clk: f.clk}
	f.c = New(Deps{
		Source:    f.src,
		Mono:      f.clk,
		Time:      rec,
		Scheduler: f.sched,
		Number:    f.out,
		Text:      f.out,
		Recorder:  f.out,
	}, o)
	return f
}

// started пропускает первый вызов Loop (очистку буфера).
func (f *fixture) started() *fixture {
	f.c.Loop()
	return f
}

// drain вызывает Loop, пока в источнике есть байты: скачок часов на метку байта
// исчерпывает бюджет одной итерации.
func (f *fixture) drain() {
	for f.src.Available() > 0 {
		f.c.Loop()
	}
}

func TestLoop_ColdClear(t *testing.T) {
	f := newFixture(t, DefaultOptions(), nil)
	for i := 0; i < 1000; i++ {
		f.src.push(0, byte(i))
	}
	f.c.Loop()

	assert.Equal(t, 0, f.src.Available())
	assert.Equal(t, 1000, f.c.Stats().Cleared)
	assert.Empty(t, f.out.texts, "байты очистки не должны публиковаться")
	assert.Zero(t, f.c.Stats().Received)
	assert.Contains(t, f.log.String(), "cleared 1000 RX bytes")
	assert.False(t, f.c.HighFrequency())

	f.src.push(0, 0x19)
	f.c.Loop()
	assert.Len(t, f.out.texts, 1)
	assert.Equal(t, 1000, f.c.Stats().Cleared, "очистка только при первом вызове")
}

func TestLoop_ColdClearQuiet(t *testing.T) {
	f := newFixture(t, DefaultOptions(), nil)
	f.c.Loop()
	assert.NotContains(t, f.log.String(), "cleared")
}

func TestLoop_ColdClearBudget(t *testing.T) {
	f := newFixture(t, DefaultOptions(), nil)
	f.clk.step = 1
	for i := 0; i < 1000; i++ {
		f.src.push(0, 0xAA)
	}
	f.c.Loop()
	assert.Equal(t, 99, f.c.Stats().Cleared)
	assert.Equal(t, 901, f.src.Available())
}

func TestLoop_DrainBudget(t *testing.T) {
	f := newFixture(t, DefaultOptions(), nil).started()
	f.clk.step = 1
	for i := 0; i < 500; i++ {
		f.src.push(0, 0x10)
	}
	f.c.Loop()
	drained := f.c.Stats().Received
	assert.Greater(t, drained, 0)
	assert.Less(t, drained, 500, "цикл должен остановиться по бюджету времени")
	for f.src.Available() > 0 {
		f.c.Loop()
	}
	assert.Equal(t, 500, f.c.Stats().Received)
}

func TestProcess_WraparoundDelta(t *testing.T) {
	f := newFixture(t, DefaultOptions(), nil).started()
	f.src.push(4294967200, 0x19)
	f.src.push(200, 0x2B)
	f.drain()

	require.Len(t, f.out.records, 2)
	assert.Equal(t, uint32(296), f.out.records[1].Event.Delta)
	assert.Equal(t, "2Bh | Δ 296 ms", f.out.texts[1])
	code, captured, ok := f.c.Last()
	assert.True(t, ok)
	assert.Equal(t, postcode.Code(0x2B), code)
	assert.Equal(t, uint32(200), captured)
}

func TestProcess_Publish(t *testing.T) {
	o := DefaultOptions()
	o.Descriptions = postcode.Descriptions{0x2B: "POST complete"}
	f := newFixture(t, o, nil).started()
	_, _, ok := f.c.Last()
	assert.False(t, ok, "до первого кода состояния нет")

	f.src.push(1000, 0x00)
	f.c.Loop()
	f.src.push(2500, 0x2B)
	f.c.Loop()

	assert.Equal(t, []float64{0, 43}, f.out.numbers)
	assert.Equal(t, []string{"00h | Δ 1000 ms", "2Bh | Δ 1500 ms | POST complete"}, f.out.texts)
	assert.Contains(t, f.log.String(), "POST 0x2B @ 2500 | 1500 ms")
	assert.Equal(t, "POST complete", f.out.records[1].Description)
}

func TestProcess_WithTime(t *testing.T) {
	wall := wallclock.NewSystem(time.UTC, false)
	rec := timestamp.New(fixedWall{wall}, &mono{now: 1003})
	f := newFixture(t, DefaultOptions(), rec).started()
	f.src.push(1000, 0x2B)
	f.c.Loop()

	require.Len(t, f.out.records, 1)
	assert.Equal(t, "14:03:22.497", f.out.records[0].Time)
	assert.Equal(t, "2Bh | 14:03:22.497 | Δ 1000 ms", f.out.texts[0])
}

// fixedWall — системные часы с зафиксированным отсчётом 2024-03-01 14:03:22.500 UTC.
type fixedWall struct{ *wallclock.System }

func (fixedWall) Now() (wallclock.Reading, bool) {
	return wallclock.Reading{Seconds: 1709301802, Millis: 500}, true
}

func TestProcess_Ignored(t *testing.T) {
	o := DefaultOptions()
	o.Ignore = postcode.NewIgnoreSet(0x00)

	t.Run("state kept by default", func(t *testing.T) {
		f := newFixture(t, o, nil).started()
		f.src.push(1000, 0x19)
		f.src.push(1100, 0x00)
		f.src.push(1300, 0x2B)
		f.drain()

		assert.Equal(t, []string{"19h | Δ 1000 ms", "2Bh | Δ 300 ms"}, f.out.texts)
		assert.Equal(t, []float64{0x19, 0x2B}, f.out.numbers)
		assert.Contains(t, f.log.String(), "POST 0x00 @ 1100 | 100 ms (ignored)")
		assert.Equal(t, 1, f.c.Stats().Ignored)
		assert.Equal(t, 2, f.c.Stats().Published)
	})

	t.Run("ignored updates last", func(t *testing.T) {
		o := o
		o.IgnoredUpdateLast = true
		f := newFixture(t, o, nil).started()
		f.src.push(1000, 0x19)
		f.src.push(1100, 0x00)
		f.src.push(1300, 0x2B)
		f.drain()

		assert.Equal(t, []string{"19h | Δ 1000 ms", "2Bh | Δ 200 ms"}, f.out.texts)
		code, _, _ := f.c.Last()
		assert.Equal(t, postcode.Code(0x2B), code)
	})
}

func TestProcess_DeltaPolicy(t *testing.T) {
	o := DefaultOptions()
	o.Delta.AlwaysShow = false
	f := newFixture(t, o, nil).started()
	f.src.push(6000, 0x19)
	f.src.push(6100, 0x2B)
	f.drain()
	assert.Equal(t, []string{"19h", "2Bh | Δ 100 ms"}, f.out.texts)
}

func TestLoop_ReadMiss(t *testing.T) {
	f := newFixture(t, DefaultOptions(), nil).started()
	f.src.push(1000, 0x19)
	f.src.misses = 1
	f.c.Loop()
	assert.Empty(t, f.out.texts)
	assert.Equal(t, 1, f.src.Available())

	f.c.Loop()
	assert.Equal(t, []string{"19h | Δ 1000 ms"}, f.out.texts)
}

func TestLoop_RateController(t *testing.T) {
	f := newFixture(t, DefaultOptions(), nil).started()
	f.src.push(1000, 0x19, 0x2B)
	f.drain()
	assert.True(t, f.c.HighFrequency())
	assert.Equal(t, 1, f.sched.requests, "повторный запрос не должен доходить до планировщика")

	f.clk.now = 1200
	f.c.Loop()
	assert.True(t, f.c.HighFrequency(), "ровно 200 мс тишины ещё не выключают ускоренный опрос")

	f.clk.now = 1201
	f.c.Loop()
	assert.False(t, f.c.HighFrequency())
	assert.Equal(t, 1, f.sched.releases)

	f.clk.now = 5000
	f.c.Loop()
	assert.Equal(t, 1, f.sched.releases)
}

func TestLoop_NoSinks(t *testing.T) {
	captureLog(t)
	clk := &mono{}
	src := &source{clk: clk}
	c := New(Deps{Source: src, Mono: clk}, Options{})
	c.Loop()
	src.push(10, 0x19)
	c.Loop()
	assert.Equal(t, 1, c.Stats().Published)
	assert.True(t, c.HighFrequency())
}

func TestProcess_DeviceTag(t *testing.T) {
	o := DefaultOptions()
	o.Device = "cpu1"
	f := newFixture(t, o, nil).started()
	f.src.push(1500, 0x19)
	f.drain()

	require.Len(t, f.out.records, 1)
	assert.Equal(t, "cpu1", f.out.records[0].Device)
	assert.Equal(t, "19h | Δ 1500 ms", f.out.texts[0], "строка не зависит от имени устройства")
	assert.Contains(t, f.log.String(), "[cpu1] POST 0x19 @ 1500")
}
