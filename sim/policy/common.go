// Package policy holds the business rules actors run: buying, selling,
// paying and producing. Each rule is a sim.Policy bound to one message
// kind; Install* wires a consistent set of them into a role.
package policy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// Fine is a penalty for lateness: a fixed part plus a part per started day late.
type Fine struct {
	Fixed  float64
	PerDay float64
}

// Amount returns the fine for being lateBy seconds late; zero when on time.
func (f Fine) Amount(lateBy int64) float64 {
	if lateBy <= 0 {
		return 0
	}
	return f.Fixed + f.PerDay*float64(sim.CeilDays(lateBy))
}

// levyFine moves amount from payer to payee. Missing accounts or
// insufficient funds skip the fine with a warning.
func levyFine(p sim.Policy, owner *sim.Actor, kind string, demandID uint64, payer, payee *sim.Actor, amount float64) {
	if amount <= 0 {
		return
	}
	from, to := payer.Account(), payee.Account()
	if from == nil || to == nil {
		logrus.Warnf("[t %d] %s/%s: %s fine of %.2f skipped, %s or %s has no account",
			owner.Now(), owner.Name, p.ID(), kind, amount, payer.Name, payee.Name)
		return
	}
	if err := sim.Transfer(from, to, amount); err != nil {
		logrus.Warnf("[t %d] %s/%s: %s fine of %.2f from %s not collected: %v",
			owner.Now(), owner.Name, p.ID(), kind, amount, payer.Name, err)
		return
	}
	m := owner.Model()
	m.Metrics.FineLevied(kind, amount)
	m.RecordDecision(owner, p.ID(), demandID, kind+"-fine", fmt.Sprintf("%s pays %s %.2f", payer.Name, payee.Name, amount))
	logrus.Infof("[t %d] %s: %s fine of %.2f paid by %s", owner.Now(), owner.Name, kind, amount, payer.Name)
}

// settle closes a chain once both the goods and the money have moved,
// seen from either side of the trade.
func settle(owner *sim.Actor, demandID uint64) bool {
	s := owner.Store()
	buyerDone := s.Has(demandID, sim.KindShipment, sim.Received) && s.Has(demandID, sim.KindPayment, sim.Sent)
	sellerDone := s.Has(demandID, sim.KindShipment, sim.Sent) && s.Has(demandID, sim.KindPayment, sim.Received)
	if !buyerDone && !sellerDone {
		return false
	}
	n := s.RemoveChain(demandID)
	logrus.Debugf("[t %d] %s: demand %d settled, %d entries closed", owner.Now(), owner.Name, demandID, n)
	return true
}

func unexpected(p sim.Policy, owner *sim.Actor, msg sim.Message) bool {
	logrus.Warnf("[t %d] %s/%s: unexpected %T (%s)", owner.Now(), owner.Name, p.ID(), msg, sim.Describe(msg))
	return false
}

func missingPredecessor(p sim.Policy, owner *sim.Actor, msg sim.Message, what string) bool {
	logrus.Warnf("[t %d] %s/%s: %s for %s is gone, ignoring", owner.Now(), owner.Name, p.ID(), what, sim.Describe(msg))
	return false
}
