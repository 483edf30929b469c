package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// StartStatsReporter schedules a periodic structured log line reporting
// relay load and host resource usage. It never touches session state
// directly: every tick it asks the loop goroutine for a Stats snapshot over
// the same control channel everything else uses, so this stays purely
// observational (spec.md §2 domain stack, Non-goal: no enforcement).
//
// spec is a standard cron expression, e.g. "@every 1m". The returned
// cron.Cron is already started; call Stop() on it during shutdown.
func StartStatsReporter(srv *Server, log *slog.Logger, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		st, err := srv.Stats(ctx)
		if err != nil {
			log.Warn("stats snapshot unavailable", "err", err)
			return
		}

		fields := []any{
			slog.Int("casters", st.Casters),
			slog.Int("watchers", st.Watchers),
			slog.Int("subscriptions", st.SubscriberEdges),
		}

		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			fields = append(fields, slog.Float64("mem_used_percent", vm.UsedPercent))
		}
		if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
			fields = append(fields, slog.Float64("cpu_percent", pct[0]))
		}

		log.Info("relay stats", fields...)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
