package wallclock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shiwa/bpc-gw/internal/logger"
)

const (
	ntpPacketLen = 48
	// NTP epoch = 1900-01-01, до Unix epoch 2208988800 с.
	ntpUnixOffset = 2208988800
)

// NTP — системные часы, поправленные на смещение от SNTP-сервера.
// Смещение обновляется в Run на отдельной горутине; чтение берёт снимок под мьютексом.
type NTP struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	loc      *time.Location
	now      func() time.Time

	mu     sync.Mutex
	offset time.Duration
	lastOK time.Time
	synced bool
}

// NewNTP создаёт источник; host может быть с портом, по умолчанию 123.
func NewNTP(host string, interval, timeout time.Duration, loc *time.Location) *NTP {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "123")
	}
	if interval <= 0 {
		interval = 64 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &NTP{addr: host, interval: interval, timeout: timeout, loc: loc, now: time.Now}
}

// Name возвращает имя источника
func (n *NTP) Name() string {
	return fmt.Sprintf("ntp:%s", n.addr)
}

// Run опрашивает сервер раз в interval до отмены ctx.
func (n *NTP) Run(ctx context.Context) {
	if err := n.Refresh(ctx); err != nil {
		logger.Warn("wallclock %s: %v", n.Name(), err)
	}
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.Refresh(ctx); err != nil {
				logger.Warn("wallclock %s: %v", n.Name(), err)
			}
		}
	}
}

// Refresh выполняет один SNTP-запрос и обновляет смещение.
func (n *NTP) Refresh(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", n.addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(n.timeout)); err != nil {
		return err
	}
	// NTP request: 48 bytes, first byte = 0x1b (version 3, client)
	req := make([]byte, ntpPacketLen)
	req[0] = 0x1b
	t1 := n.now()
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	resp := make([]byte, ntpPacketLen)
	k, err := conn.Read(resp)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	t4 := n.now()
	server, err := parseTransmit(resp[:k])
	if err != nil {
		return err
	}
	// Сервер отвечает примерно в середине круга запрос-ответ.
	offset := server.Add(t4.Sub(t1) / 2).Sub(t4)

	n.mu.Lock()
	n.offset = offset
	n.lastOK = t4
	first := !n.synced
	n.synced = true
	n.mu.Unlock()
	if first {
		logger.Info("wallclock %s: offset %v", n.Name(), offset)
	}
	return nil
}

// parseTransmit извлекает transmit timestamp из ответа сервера.
func parseTransmit(resp []byte) (time.Time, error) {
	if len(resp) < ntpPacketLen {
		return time.Time{}, fmt.Errorf("short ntp packet: %d bytes", len(resp))
	}
	if mode := resp[0] & 0x07; mode != 4 && mode != 5 {
		return time.Time{}, fmt.Errorf("unexpected ntp mode %d", mode)
	}
	if resp[1] == 0 {
		return time.Time{}, errors.New("ntp kiss-of-death")
	}
	// Seconds in bytes 40-43 (big-endian), fraction 44-47
	sec := uint32(resp[40])<<24 | uint32(resp[41])<<16 | uint32(resp[42])<<8 | uint32(resp[43])
	frac := uint32(resp[44])<<24 | uint32(resp[45])<<16 | uint32(resp[46])<<8 | uint32(resp[47])
	nsec := (int64(frac) * 1e9) >> 32
	return time.Unix(int64(sec)-ntpUnixOffset, nsec).UTC(), nil
}

// Now возвращает системное время со смещением; false до первого ответа сервера.
func (n *NTP) Now() (Reading, bool) {
	n.mu.Lock()
	off, ok := n.offset, n.synced
	n.mu.Unlock()
	if !ok {
		return Reading{}, false
	}
	return readingOf(n.now().Add(off))
}

// IsSynchronized — был успешный ответ не раньше 3 интервалов опроса назад.
func (n *NTP) IsSynchronized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.synced && n.now().Sub(n.lastOK) < 3*n.interval
}

// FormatLocal форматирует секунды в зоне источника.
func (n *NTP) FormatLocal(sec int64, layout string) string {
	return formatLocal(sec, layout, n.loc)
}
