package gateway

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shiwa/bpc-gw/internal/bpc"
	"github.com/shiwa/bpc-gw/internal/config"
	"github.com/shiwa/bpc-gw/internal/postcode"
	"github.com/shiwa/bpc-gw/internal/sink"
)

// Sample — код из записи с монотонным временем приёма.
type Sample struct {
	At   uint32
	Code postcode.Code
}

// ParseCapture читает запись вида "<мс> <код>" по строке; пустые строки и "#..." пропускаются.
func ParseCapture(r io.Reader) ([]Sample, error) {
	var out []Sample
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		f := strings.Fields(s)
		if len(f) != 2 {
			return nil, fmt.Errorf("capture line %d: want \"<ms> <code>\", got %q", line, s)
		}
		at, err := strconv.ParseUint(f[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", line, err)
		}
		code, err := postcode.ParseCode(f[1])
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", line, err)
		}
		out = append(out, Sample{At: uint32(at), Code: code})
	}
	return out, sc.Err()
}

// replaySource отдаёт записанные коды и переводит часы на время каждого кода.
type replaySource struct {
	clk     *replayClock
	samples []Sample
}

func (s *replaySource) Available() int { return len(s.samples) }

func (s *replaySource) ReadByte() (byte, bool) {
	if len(s.samples) == 0 {
		return 0, false
	}
	x := s.samples[0]
	s.samples = s.samples[1:]
	s.clk.now = x.At
	return byte(x.Code), true
}

type replayClock struct{ now uint32 }

func (c *replayClock) Millis() uint32 { return c.now }

// Replay прогоняет запись через конвейер с политиками из cfg и печатает строки в w.
// Календарного времени при повторе нет, поэтому строки выводятся без него.
func Replay(samples []Sample, cfg *config.Config, w io.Writer) (bpc.Stats, error) {
	opts, err := Options(cfg)
	if err != nil {
		return bpc.Stats{}, err
	}
	clk := &replayClock{}
	src := &replaySource{clk: clk}
	out := sink.NewConsole(w)
	c := bpc.New(bpc.Deps{Source: src, Mono: clk, Text: out}, opts)
	c.Loop() // очистка буфера при старте: источник ещё пуст
	src.samples = samples
	for src.Available() > 0 {
		c.Loop()
	}
	return c.Stats(), nil
}
