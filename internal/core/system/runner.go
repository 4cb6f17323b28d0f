package system

import (
	"sort"
	"time"

	"github.com/manago/client/internal/metrics"
	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. Systems sharing a
// phase keep their registration order.
type Runner struct {
	systems []System
	sorted  bool
	log     *zap.Logger
	now     func() time.Time

	// A tick that overruns its interval is logged once per streak.
	overrunning bool
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
		log:     log,
		now:     time.Now,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once and returns how long each phase took. dt is
// the tick interval; a tick slower than dt is counted as an overrun.
func (r *Runner) Tick(dt time.Duration) map[Phase]time.Duration {
	r.ensureSorted()
	spent := make(map[Phase]time.Duration, len(phaseNames))
	start := r.now()
	mark := start
	for _, s := range r.systems {
		s.Update(dt)
		end := r.now()
		spent[s.Phase()] += end.Sub(mark)
		mark = end
	}
	total := mark.Sub(start)

	for p, d := range spent {
		metrics.PhaseDuration.WithLabelValues(p.String()).Observe(d.Seconds())
	}
	metrics.TickDuration.Observe(total.Seconds())

	if dt > 0 && total > dt {
		metrics.TickOverruns.Inc()
		if !r.overrunning {
			r.log.Warn("tick 執行超時",
				zap.Duration("took", total),
				zap.Duration("interval", dt),
				zap.Stringer("slowest", slowest(spent)),
			)
		}
		r.overrunning = true
	} else {
		r.overrunning = false
	}
	return spent
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}

func slowest(spent map[Phase]time.Duration) Phase {
	best := Phase(-1)
	for p, d := range spent {
		if best < 0 || d > spent[best] || d == spent[best] && p < best {
			best = p
		}
	}
	return best
}
