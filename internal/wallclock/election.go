package wallclock

import "github.com/shiwa/bpc-gw/internal/logger"

// Election выбирает источник: первый синхронизированный из primary, при их отсутствии из secondary.
type Election struct {
	primary   []Provider
	secondary []Provider
	active    Provider
}

// NewElection создаёт выборщик из списков primary и secondary
func NewElection(primary, secondary []Provider) *Election {
	return &Election{primary: primary, secondary: secondary}
}

// Select выбирает источник; nil, если синхронизированных нет.
func (e *Election) Select() Provider {
	var next Provider
	for _, list := range [][]Provider{e.primary, e.secondary} {
		for _, p := range list {
			if p.IsSynchronized() {
				next = p
				break
			}
		}
		if next != nil {
			break
		}
	}
	if next != e.active {
		logger.Info("wallclock: active %s", nameOf(next))
		e.active = next
	}
	return next
}

// Active возвращает источник, выбранный последним Select
func (e *Election) Active() Provider {
	return e.active
}

// Now читает выбранный источник.
func (e *Election) Now() (Reading, bool) {
	p := e.Select()
	if p == nil {
		return Reading{}, false
	}
	return p.Now()
}

// IsSynchronized — есть хотя бы один синхронизированный источник.
func (e *Election) IsSynchronized() bool {
	return e.Select() != nil
}

// FormatLocal форматирует в зоне текущего источника.
func (e *Election) FormatLocal(sec int64, layout string) string {
	p := e.active
	if p == nil {
		if p = e.Select(); p == nil {
			return ""
		}
	}
	return p.FormatLocal(sec, layout)
}

func nameOf(p Provider) string {
	if p == nil {
		return "none"
	}
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unnamed"
}
