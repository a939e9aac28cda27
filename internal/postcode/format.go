package postcode

import (
	"strconv"
	"strings"
)

// DefaultDeltaSuppressAfter — порог, с которого старый вариант строки не выводил Δ.
const DefaultDeltaSuppressAfter = 5000

// DeltaPolicy управляет полем Δ: AlwaysShow выводит его всегда,
// иначе только при delta < SuppressAfter (мс).
type DeltaPolicy struct {
	AlwaysShow    bool
	SuppressAfter uint32
}

// Format собирает строку вида "2Bh | 14:03:22.118 | Δ 1500 ms | POST complete".
// Пустые timeStr и description просто не выводятся.
func Format(code Code, delta uint32, timeStr, description string, p DeltaPolicy) string {
	var b strings.Builder
	b.Grow(32 + len(timeStr) + len(description))
	b.WriteString(code.String())
	if timeStr != "" {
		b.WriteString(" | ")
		b.WriteString(timeStr)
	}
	if p.AlwaysShow || delta < p.SuppressAfter {
		b.WriteString(" | Δ ")
		b.WriteString(strconv.FormatUint(uint64(delta), 10))
		b.WriteString(" ms")
	}
	if description != "" {
		b.WriteString(" | ")
		b.WriteString(description)
	}
	return b.String()
}
