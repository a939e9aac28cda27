// Package serialout дублирует строки событий на второй последовательный порт
// (терминал, LCD-модуль), при необходимости в однобайтовой кодировке.
package serialout

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tarm/serial"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Writer пишет строки с окончанием "\r\n".
type Writer struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *encoding.Encoder
}

// Open открывает порт. encoding: "" или "utf-8", "cp437", "cp866", "latin1".
func Open(device string, baud int, enc string) (*Writer, error) {
	e, err := encoderFor(enc)
	if err != nil {
		return nil, err
	}
	if baud == 0 {
		baud = 9600
	}
	p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return &Writer{w: p, enc: e}, nil
}

func encoderFor(name string) (*encoding.Encoder, error) {
	var cm *charmap.Charmap
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "cp437":
		cm = charmap.CodePage437
	case "cp866":
		cm = charmap.CodePage866
	case "latin1", "iso-8859-1":
		cm = charmap.ISO8859_1
	default:
		return nil, fmt.Errorf("sink serial: unknown encoding %q", name)
	}
	// символы вне кодировки (например Δ в cp437) заменяются на SUB
	return encoding.ReplaceUnsupported(cm.NewEncoder()), nil
}

// WriteText пишет строку.
func (w *Writer) WriteText(_ context.Context, s string) error {
	line := s + "\r\n"
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc != nil {
		var err error
		if line, err = w.enc.String(line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w.w, line)
	return err
}

// Close закрывает порт.
func (w *Writer) Close() error {
	return w.w.Close()
}
