package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Loop schedules recurring strategy cycles. Cancellation of the parent
// context stops new cycles promptly; Stop drains a cycle already past the
// broker-submission point instead of aborting it.
type Loop struct {
	cron   *cron.Cron
	engine *Engine
}

func NewLoop(engine *Engine, spec string) (*Loop, error) {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	l := &Loop{cron: c, engine: engine}

	if _, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		l.engine.RunCycle(ctx)
	}); err != nil {
		return nil, fmt.Errorf("register cycle schedule %q: %w", spec, err)
	}
	return l, nil
}

func (l *Loop) Start() {
	l.cron.Start()
	log.Printf("cycle loop started")
}

// Stop halts scheduling and blocks until any in-flight cycle finishes, so an
// order mid-poll is never abandoned by teardown.
func (l *Loop) Stop() {
	<-l.cron.Stop().Done()
	log.Printf("cycle loop stopped")
}
