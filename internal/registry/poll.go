package registry

import (
	"github.com/robfig/cron/v3"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// poller drives scanTick on a cron schedule (typically a short fixed
// interval such as "@every 2s" rather than user-authored cron syntax) —
// the registry's hot-reload trigger.
type poller struct {
	cron *cron.Cron
}

func newPoller(schedule string, tick func()) (*poller, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, tick); err != nil {
		return nil, kernelerr.Wrap(kernelerr.InvalidArgs, err, "invalid poll schedule %q", schedule)
	}
	return &poller{cron: c}, nil
}

func (p *poller) start() {
	p.cron.Start()
}

func (p *poller) stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}
