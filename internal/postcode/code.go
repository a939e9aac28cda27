// Package postcode — модель POST-кода: код, событие, форматирование строки,
// таблица описаний и множество игнорируемых кодов.
package postcode

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Code — один POST-код (байт с порта).
type Code uint8

// String возвращает код в виде "2Bh".
func (c Code) String() string {
	return fmt.Sprintf("%02Xh", uint8(c))
}

// ParseCode разбирает код в форматах "43", "0x2B" и "2Bh" (регистр не важен).
func ParseCode(s string) (Code, error) {
	v := strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X"):
		v, base = v[2:], 16
	case strings.HasSuffix(v, "h") || strings.HasSuffix(v, "H"):
		v, base = v[:len(v)-1], 16
	}
	n, err := strconv.ParseUint(v, base, 8)
	if err != nil {
		return 0, fmt.Errorf("post code %q: %w", s, err)
	}
	return Code(n), nil
}

// UnmarshalYAML позволяет писать коды в конфиге как 43, 0x2B или "2Bh".
func (c *Code) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseCode(n.Value)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MarshalYAML выводит код в hex-виде.
func (c Code) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("0x%02X", uint8(c)), nil
}
