package gateway

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiwa/bpc-gw/internal/config"
	"github.com/shiwa/bpc-gw/internal/postcode"
	"github.com/shiwa/bpc-gw/internal/sink/journal"
)

func quietLog(t *testing.T) {
	t.Helper()
	prev := log.Writer()
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(prev) })
}

func testConfig() *config.Config {
	c := config.Default()
	c.Clock.Source = "none"
	c.Pipeline.IgnoreCodes = []postcode.Code{0x00}
	c.Descriptions.Codes = map[string]string{"0x19": "Memory init", "2Bh": "POST complete"}
	return c
}

func TestOptions(t *testing.T) {
	c := testConfig()
	f := false
	c.Pipeline.AlwaysShowDelta = &f
	c.Pipeline.IgnoredCodesUpdateLast = true

	o, err := Options(c)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, o.DrainBudget)
	assert.Equal(t, 200*time.Millisecond, o.QuietPeriod)
	assert.Equal(t, postcode.DeltaPolicy{AlwaysShow: false, SuppressAfter: 5000}, o.Delta)
	assert.True(t, o.IgnoredUpdateLast)
	assert.True(t, o.Ignore.Contains(0x00))
	assert.Equal(t, "POST complete", o.Descriptions[0x2B])

	c.Descriptions.Codes = map[string]string{"bad": "x"}
	_, err = Options(c)
	assert.Error(t, err)
}

func TestParseCapture(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "boot.capture"))
	require.NoError(t, err)
	defer f.Close()

	samples, err := ParseCapture(f)
	require.NoError(t, err)
	require.Len(t, samples, 6)
	assert.Equal(t, Sample{At: 1200, Code: 0x19}, samples[0])
	assert.Equal(t, Sample{At: 7412, Code: 0xA1}, samples[5])

	for _, bad := range []string{"1200", "x 0x19", "1200 0x1FF", "99999999999 0x01"} {
		_, err := ParseCapture(strings.NewReader(bad))
		assert.Error(t, err, bad)
	}
}

func TestReplay_Golden(t *testing.T) {
	quietLog(t)
	f, err := os.Open(filepath.Join("testdata", "boot.capture"))
	require.NoError(t, err)
	samples, err := ParseCapture(f)
	f.Close()
	require.NoError(t, err)

	g := goldie.New(t)

	t.Run("always", func(t *testing.T) {
		var out bytes.Buffer
		st, err := Replay(samples, testConfig(), &out)
		require.NoError(t, err)
		assert.Equal(t, 6, st.Received)
		assert.Equal(t, 2, st.Ignored)
		g.Assert(t, "replay_always", out.Bytes())
	})

	t.Run("legacy", func(t *testing.T) {
		c := testConfig()
		c.Pipeline.IgnoredCodesUpdateLast = true
		off := false
		c.Pipeline.AlwaysShowDelta = &off
		var out bytes.Buffer
		_, err := Replay(samples, c, &out)
		require.NoError(t, err)
		g.Assert(t, "replay_legacy", out.Bytes())
	})
}

// lateSource появляется с данными после первого опроса, чтобы пережить очистку при старте.
type lateSource struct {
	polls int
	data  []byte
}

func (s *lateSource) Available() int {
	s.polls++
	if s.polls == 1 {
		return 0
	}
	return len(s.data)
}

func (s *lateSource) ReadByte() (byte, bool) {
	if len(s.data) == 0 {
		return 0, false
	}
	b := s.data[0]
	s.data = s.data[1:]
	return b, true
}

func TestRun(t *testing.T) {
	quietLog(t)
	c := testConfig()
	c.Sinks.Journal.Enabled = true
	c.Sinks.Journal.Path = filepath.Join(t.TempDir(), "boot.db")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	err := Run(ctx, c, []Input{{Device: c.Device, Source: &lateSource{data: []byte{0x19, 0x00, 0x2B}}}}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, out.String())
	assert.Regexp(t, regexp.MustCompile(`^19h \| Δ \d+ ms \| Memory init$`), lines[0])
	assert.Regexp(t, regexp.MustCompile(`^2Bh \| Δ \d+ ms \| POST complete$`), lines[1])

	j, err := journal.OpenHistory(context.Background(), c.Sinks.Journal.Path)
	require.NoError(t, err)
	defer j.Close()
	last, err := j.LastSession(context.Background())
	require.NoError(t, err)
	entries, err := j.Entries(context.Background(), last)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, lines[1], entries[1].Record.Text)
}

func TestRun_NoInputs(t *testing.T) {
	assert.Error(t, Run(context.Background(), testConfig(), nil, io.Discard))
}

// timedSource выдаёт байты по реальному времени от первого опроса (очистки при старте):
// байт доступен, когда прошло after.
type timedSource struct {
	start time.Time
	items []timedByte
}

type timedByte struct {
	after time.Duration
	b     byte
}

func newTimedSource(items ...timedByte) *timedSource {
	return &timedSource{items: items}
}

func (s *timedSource) Available() int {
	if s.start.IsZero() {
		s.start = time.Now()
	}
	n := 0
	for _, it := range s.items {
		if time.Since(s.start) < it.after {
			break
		}
		n++
	}
	return n
}

func (s *timedSource) ReadByte() (byte, bool) {
	if s.Available() == 0 {
		return 0, false
	}
	b := s.items[0].b
	s.items = s.items[1:]
	return b, true
}

func TestRun_MultipleDevices(t *testing.T) {
	quietLog(t)
	c := testConfig()
	c.Sinks.Journal.Enabled = true
	c.Sinks.Journal.Path = filepath.Join(t.TempDir(), "boot.db")

	// коды cpu1 приходят между кодами cpu0 и не должны влиять на дельты cpu0
	inputs := []Input{
		{Device: config.DeviceConfig{Name: "cpu0"}, Source: newTimedSource(timedByte{40 * time.Millisecond, 0x19}, timedByte{260 * time.Millisecond, 0x2B})},
		{Device: config.DeviceConfig{Name: "cpu1"}, Source: newTimedSource(timedByte{150 * time.Millisecond, 0xA0})},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	require.NoError(t, Run(ctx, c, inputs, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, out.String())
	assert.Regexp(t, `^\[cpu0\] 19h \| Δ \d+ ms \| Memory init$`, lines[0])
	assert.Regexp(t, `^\[cpu1\] A0h \| Δ \d+ ms$`, lines[1])
	assert.Regexp(t, `^\[cpu0\] 2Bh \| Δ \d+ ms \| POST complete$`, lines[2])

	j, err := journal.OpenHistory(context.Background(), c.Sinks.Journal.Path)
	require.NoError(t, err)
	defer j.Close()
	last, err := j.LastSession(context.Background())
	require.NoError(t, err)
	entries, err := j.Entries(context.Background(), last)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byDevice := map[string][]postcode.Record{}
	for _, e := range entries {
		byDevice[e.Record.Device] = append(byDevice[e.Record.Device], e.Record)
	}
	cpu0, cpu1 := byDevice["cpu0"], byDevice["cpu1"]
	require.Len(t, cpu0, 2)
	require.Len(t, cpu1, 1)
	assert.Less(t, cpu0[0].Event.Captured, cpu1[0].Event.Captured)
	assert.Less(t, cpu1[0].Event.Captured, cpu0[1].Event.Captured)
	assert.Equal(t, cpu0[1].Event.Captured-cpu0[0].Event.Captured, cpu0[1].Event.Delta,
		"дельта cpu0 считается от его предыдущего кода")
	assert.Equal(t, cpu1[0].Event.Captured, cpu1[0].Event.Delta, "у cpu1 это первый код")
	assert.Equal(t, "2Bh | Δ "+strconv.FormatUint(uint64(cpu0[1].Event.Delta), 10)+" ms | POST complete", cpu0[1].Text,
		"имя устройства не попадает в текст записи")
}

func TestBuildSinks(t *testing.T) {
	quietLog(t)
	ctx := context.Background()

	c := config.Default()
	c.Sinks.Console.Enabled = false
	fans, closeAll, err := BuildSinks(ctx, c, io.Discard, nil)
	require.NoError(t, err)
	require.Len(t, fans, 1)
	assert.True(t, fans[0].Empty())
	closeAll()

	c.Sinks.Modbus = config.ModbusSink{Enabled: true}
	_, _, err = BuildSinks(ctx, c, io.Discard, nil)
	assert.Error(t, err, "modbus без адреса")

	c = config.Default()
	c.Sinks.Serial = config.SerialSink{Enabled: true, Port: "/dev/ttyS0", Encoding: "koi8-x"}
	_, _, err = BuildSinks(ctx, c, io.Discard, nil)
	assert.Error(t, err, "неизвестная кодировка")
}

func TestBuildSinks_Devices(t *testing.T) {
	quietLog(t)
	c := config.Default()
	c.Devices = []config.DeviceConfig{{Port: "/dev/ttyS0"}, {Name: "bmc", Port: "/dev/ttyS1"}}
	c.Device = config.DeviceConfig{}

	var out bytes.Buffer
	fans, closeAll, err := BuildSinks(context.Background(), c, &out, nil)
	require.NoError(t, err)
	defer closeAll()
	require.Len(t, fans, 2)
	fans[0].PublishText("19h")
	fans[1].PublishText("2Bh")
	assert.Equal(t, "[ttyS0] 19h\n[bmc] 2Bh\n", out.String())
}
