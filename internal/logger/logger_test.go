package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		Quiet, Verbose = false, false
	})
	return &buf
}

func TestLevels(t *testing.T) {
	buf := captureLog(t)

	Info("a=%d", 1)
	Debug("hidden")
	Verbose = true
	Debug("shown")
	Quiet = true
	Info("hidden too")
	Warn("w")
	Error("e")

	got := buf.String()
	for _, want := range []string{"bpc-gw: [I] a=1", "bpc-gw: [D] shown", "bpc-gw: [W] w", "bpc-gw: [E] e"} {
		if !strings.Contains(got, want) {
			t.Errorf("нет строки %q в выводе:\n%s", want, got)
		}
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("подавленные сообщения попали в вывод:\n%s", got)
	}
}

func TestThrottle(t *testing.T) {
	buf := captureLog(t)

	th := NewThrottle(time.Hour, 1)
	if !th.Warn("first") {
		t.Fatal("первое сообщение должно пройти")
	}
	if th.Warn("second") || th.Warn("third") {
		t.Fatal("сообщения внутри интервала должны подавляться")
	}
	if th.Suppressed() != 2 {
		t.Errorf("Suppressed() = %d, want 2", th.Suppressed())
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("ожидали одну строку, получили:\n%s", buf.String())
	}
}
