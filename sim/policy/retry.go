package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// retryLoop runs attempt now and, while it fails, again every
// Config.RetryInterval. After Config.MaxRetries failed rechecks it calls
// giveUp with the last error and stops.
type retryLoop struct {
	owner    *sim.Actor
	policy   string
	reason   string
	demandID uint64
	attempt  func() error
	giveUp   func(err error)

	failures int
}

func (r *retryLoop) run() {
	err := r.attempt()
	if err == nil {
		return
	}
	m := r.owner.Model()
	r.failures++
	if r.failures > m.Config.MaxRetries {
		logrus.Warnf("[t %d] %s/%s: giving up on demand %d after %d attempts: %v",
			r.owner.Now(), r.owner.Name, r.policy, r.demandID, r.failures, err)
		m.Metrics.RetryExhausted(r.reason)
		m.RecordDecision(r.owner, r.policy, r.demandID, "retry-exhausted", err.Error())
		if r.giveUp != nil {
			r.giveUp(err)
		}
		return
	}
	logrus.Debugf("[t %d] %s/%s: demand %d: %v, retrying in %ds",
		r.owner.Now(), r.owner.Name, r.policy, r.demandID, err, m.Config.RetryInterval)
	m.Metrics.Retry(r.reason)
	m.RecordDecision(r.owner, r.policy, r.demandID, "retry", err.Error())
	m.Scheduler.ScheduleAfter(m.Config.RetryInterval, "retry "+r.reason, r.run)
}
