// Package uart — неблокирующий источник байт POST-кодов поверх go.bug.st/serial.
//
// Порт открывается с нулевым таймаутом чтения: Read возвращает сразу, даже если данных нет.
// Принятое складывается во внутренний буфер, из которого отдаются Available и ReadByte.
package uart

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/shiwa/bpc-gw/internal/logger"
)

// bufSize — размер внутреннего буфера; больше аппаратного FIFO большинства UART.
const bufSize = 256

// Port — порт POST-кодов. Не потокобезопасен: используется только из цикла планировщика.
type Port struct {
	rc   io.ReadCloser
	name string
	buf  [bufSize]byte
	head int
	tail int
	errs *logger.Throttle
}

// Open открывает порт 8N1 с заданной скоростью в неблокирующем режиме.
func Open(device string, baud int) (*Port, error) {
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	if err := sp.SetReadTimeout(0); err != nil {
		sp.Close()
		return nil, fmt.Errorf("serial %s: set read timeout: %w", device, err)
	}
	return newPort(device, sp), nil
}

func newPort(name string, rc io.ReadCloser) *Port {
	return &Port{rc: rc, name: name, errs: logger.NewThrottle(10*time.Second, 1)}
}

// Name возвращает имя устройства.
func (p *Port) Name() string {
	return p.name
}

// Available возвращает число байт, которые можно прочитать без ожидания.
// Если буфер пуст, выполняет одно неблокирующее чтение из порта.
func (p *Port) Available() int {
	if p.head == p.tail {
		p.fill()
	}
	return p.tail - p.head
}

// ReadByte отдаёт следующий байт; false, если данных нет.
func (p *Port) ReadByte() (byte, bool) {
	if p.head == p.tail {
		p.fill()
		if p.head == p.tail {
			return 0, false
		}
	}
	b := p.buf[p.head]
	p.head++
	return b, true
}

func (p *Port) fill() {
	p.head, p.tail = 0, 0
	n, err := p.rc.Read(p.buf[:])
	if n > 0 {
		p.tail = n
	}
	if err != nil && err != io.EOF {
		p.errs.Warn("uart %s: read: %v", p.name, err)
	}
}

// Close закрывает порт.
func (p *Port) Close() error {
	if p.rc == nil {
		return nil
	}
	return p.rc.Close()
}
