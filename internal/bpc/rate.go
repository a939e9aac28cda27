package bpc

import (
	"time"

	"github.com/shiwa/bpc-gw/internal/logger"
	"github.com/shiwa/bpc-gw/internal/sysclock"
)

// RateController — два состояния: обычный опрос и ускоренный.
// Любой принятый байт включает ускоренный опрос; после тишины дольше quiet он выключается.
type RateController struct {
	sched  Scheduler
	quiet  uint32
	active bool
	last   uint32
}

// NewRateController создаёт контроллер; sched может быть nil.
func NewRateController(sched Scheduler, quiet time.Duration) *RateController {
	return &RateController{sched: sched, quiet: millis(quiet)}
}

// Activity отмечает байт, принятый в момент now (мс).
func (r *RateController) Activity(now uint32) {
	r.last = now
	if r.active {
		return
	}
	r.active = true
	logger.Debug("high frequency loop on")
	if r.sched != nil {
		r.sched.RequestHighFrequency()
	}
}

// Check вызывается раз за итерацию и выключает ускоренный опрос после тишины.
func (r *RateController) Check(now uint32) {
	if !r.active || sysclock.Since(now, r.last) <= r.quiet {
		return
	}
	r.active = false
	logger.Debug("high frequency loop off after %d ms", sysclock.Since(now, r.last))
	if r.sched != nil {
		r.sched.ReleaseHighFrequency()
	}
}

// Active сообщает, включён ли ускоренный опрос.
func (r *RateController) Active() bool {
	return r.active
}
