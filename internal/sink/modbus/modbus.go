// Package modbus публикует POST-код в holding-регистр Modbus TCP (ПЛК, BMC, панель).
package modbus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Config — адрес устройства и регистр для кода.
type Config struct {
	Address  string
	SlaveID  uint8
	Register uint16
	// Float: код пишется как float32 в два регистра (старшее слово первым).
	Float   bool
	Timeout time.Duration
}

// Writer пишет код в регистр. Соединение восстанавливается обработчиком при следующей записи.
type Writer struct {
	mu      *sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	cfg     Config
}

// New создаёт клиента и подключается к устройству.
func New(cfg Config) (*Writer, error) {
	if cfg.Address == "" {
		return nil, errors.New("sink modbus: address required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	h := modbus.NewTCPClientHandler(cfg.Address)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.SlaveID
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("sink modbus %s: %w", cfg.Address, err)
	}
	return &Writer{mu: &sync.Mutex{}, handler: h, client: modbus.NewClient(h), cfg: cfg}, nil
}

// AtRegister возвращает писателя в другой регистр того же соединения.
// Закрывать нужно исходного писателя.
func (w *Writer) AtRegister(reg uint16) *Writer {
	c := *w
	c.cfg.Register = reg
	return &c
}

// Register — начальный регистр записи.
func (w *Writer) Register() uint16 {
	return w.cfg.Register
}

// WriteNumber записывает значение кода. ctx не прерывает запрос: его ограничивает Timeout.
func (w *Writer) WriteNumber(_ context.Context, v float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	regs := Encode(v, w.cfg.Float)
	var err error
	if len(regs) == 1 {
		_, err = w.client.WriteSingleRegister(w.cfg.Register, regs[0])
	} else {
		_, err = w.client.WriteMultipleRegisters(w.cfg.Register, uint16(len(regs)), packRegisters(regs))
	}
	return err
}

// Close закрывает соединение.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handler.Close()
}

// Encode переводит значение в регистры: uint16 или float32 (два регистра, big-endian).
func Encode(v float64, asFloat bool) []uint16 {
	if asFloat {
		bits := math.Float32bits(float32(v))
		return []uint16{uint16(bits >> 16), uint16(bits)}
	}
	switch {
	case v < 0:
		v = 0
	case v > math.MaxUint16:
		v = math.MaxUint16
	}
	return []uint16{uint16(v)}
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
