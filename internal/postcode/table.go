package postcode

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Descriptions — таблица "код → описание", неизменяемая после старта.
type Descriptions map[Code]string

// Lookup возвращает описание кода, если оно есть.
func (d Descriptions) Lookup(c Code) (string, bool) {
	s, ok := d[c]
	return s, ok && s != ""
}

// Codes возвращает коды таблицы по возрастанию.
func (d Descriptions) Codes() []Code {
	out := make([]Code, 0, len(d))
	for c := range d {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseDescriptions строит таблицу из отображения с ключами в любом поддерживаемом формате кода.
// Описания приводятся к NFC, чтобы одинаковый текст из разных редакторов давал одинаковые байты.
// Один код под двумя записями ("0x2B" и "43") — ошибка.
func ParseDescriptions(raw map[string]string) (Descriptions, error) {
	d := make(Descriptions, len(raw))
	keys := make(map[Code]string, len(raw))
	for k, v := range raw {
		c, err := ParseCode(k)
		if err != nil {
			return nil, err
		}
		if prev, dup := keys[c]; dup {
			a, b := prev, k
			if a > b {
				a, b = b, a
			}
			return nil, fmt.Errorf("code %s: duplicate keys %q and %q", c, a, b)
		}
		keys[c] = k
		d[c] = norm.NFC.String(strings.TrimSpace(v))
	}
	return d, nil
}

// LoadDescriptions читает YAML-файл вида
//
//	0x2B: "POST complete"
//	"19h": "Memory init"
func LoadDescriptions(path string) (Descriptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptions: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse descriptions: %w", err)
	}
	return ParseDescriptions(raw)
}

// Merge возвращает новую таблицу: base, поверх которой записан override.
func Merge(base, override Descriptions) Descriptions {
	out := make(Descriptions, len(base)+len(override))
	for c, s := range base {
		out[c] = s
	}
	for c, s := range override {
		out[c] = s
	}
	return out
}

// IgnoreSet — множество кодов, которые только логируются.
type IgnoreSet struct {
	bits [4]uint64
}

// NewIgnoreSet создаёт множество из списка кодов.
func NewIgnoreSet(codes ...Code) IgnoreSet {
	var s IgnoreSet
	for _, c := range codes {
		s.bits[c>>6] |= 1 << (c & 63)
	}
	return s
}

// Contains проверяет принадлежность кода множеству.
func (s IgnoreSet) Contains(c Code) bool {
	return s.bits[c>>6]&(1<<(c&63)) != 0
}

// Codes возвращает коды множества по возрастанию.
func (s IgnoreSet) Codes() []Code {
	var out []Code
	for i := 0; i < 256; i++ {
		if s.Contains(Code(i)) {
			out = append(out, Code(i))
		}
	}
	return out
}
