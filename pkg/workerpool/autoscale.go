package workerpool

import "context"

// Run executes the autoscale loop until the context is cancelled.
// Scaling decisions take the pool-wide lock; submission never does.
func (p *Pool) Run(ctx context.Context) {
	ticker := p.cfg.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.autoscale()
		}
	}
}

// autoscale applies one scaling decision. Utilization is the busy
// fraction of active workers; a backed-up queue also counts as
// pressure so a burst arriving between ticks scales up within one
// interval.
func (p *Pool) autoscale() {
	if p.closed.Load() {
		return
	}

	p.scaleMu.Lock()
	defer p.scaleMu.Unlock()

	active := p.active
	if active == 0 {
		return
	}
	busy := int(p.busy.Load())
	queued := len(p.queue)
	util := float64(busy) / float64(active)

	switch {
	case (util > p.cfg.ScaleUpThreshold || queued > 0) && active < p.cfg.MaxWorkers:
		// Grow toward the demand: enough workers for everything busy
		// plus everything queued, clamped to max.
		target := busy + queued
		if target <= active {
			target = active + 1
		}
		if target > p.cfg.MaxWorkers {
			target = p.cfg.MaxWorkers
		}
		p.addWorkersLocked(target - active)
		p.cfg.Logger.Debug("pool scaled up",
			"from", active, "to", target, "utilization", util, "queued", queued)

	case util < p.cfg.ScaleDownThreshold && active > p.cfg.MinWorkers:
		// Drain idle workers down toward demand, never below min.
		target := busy
		if target < p.cfg.MinWorkers {
			target = p.cfg.MinWorkers
		}
		for i := 0; i < active-target; i++ {
			select {
			case p.quit <- struct{}{}:
			default:
			}
		}
		p.cfg.Logger.Debug("pool scaled down",
			"from", active, "to", target, "utilization", util)
	}
}
