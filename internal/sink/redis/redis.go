// Package redis публикует строки событий в канал Redis и хранит последний код в ключе.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Значения по умолчанию для канала и ключа.
const (
	DefaultChannel = "bpc:events"
	DefaultKey     = "bpc:last_code"
)

// Config — подключение и имена канала/ключа.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Key      string
}

// Writer — PUBLISH для строк, SET для числа.
type Writer struct {
	client  *redis.Client
	channel string
	key     string
}

// New создаёт клиента; подключение происходит при первой команде.
func New(cfg Config) *Writer {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Writer{client: rdb, channel: cfg.Channel, key: cfg.Key}
}

// ForDevice возвращает писателя устройства name: канал и ключ с суффиксом ":name",
// клиент общий. Закрывать нужно исходного писателя.
func (w *Writer) ForDevice(name string) *Writer {
	if name == "" {
		return w
	}
	return &Writer{client: w.client, channel: w.channel + ":" + name, key: w.key + ":" + name}
}

// Ping проверяет доступность сервера.
func (w *Writer) Ping(ctx context.Context) error {
	if err := w.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("sink redis: %w", err)
	}
	return nil
}

// WriteText публикует строку в канал.
func (w *Writer) WriteText(ctx context.Context, s string) error {
	return w.client.Publish(ctx, w.channel, s).Err()
}

// WriteNumber сохраняет последний код.
func (w *Writer) WriteNumber(ctx context.Context, v float64) error {
	return w.client.Set(ctx, w.key, strconv.FormatFloat(v, 'f', -1, 64), 0).Err()
}

// Close закрывает клиента.
func (w *Writer) Close() error {
	return w.client.Close()
}
