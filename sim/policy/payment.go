package policy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// PaymentTiming decides when a bill is paid.
type PaymentTiming interface {
	PaymentTime(b *sim.Bill, now int64) int64
}

// OnTime pays on the final payment date.
type OnTime struct{}

func (OnTime) PaymentTime(b *sim.Bill, _ int64) int64 { return b.FinalPaymentDate }

// Immediate pays as soon as the bill arrives.
type Immediate struct{}

func (Immediate) PaymentTime(_ *sim.Bill, now int64) int64 { return now }

// Early pays Offset seconds before the final payment date.
type Early struct{ Offset int64 }

func (e Early) PaymentTime(b *sim.Bill, _ int64) int64 { return b.FinalPaymentDate - e.Offset }

// Late pays Offset seconds after the final payment date.
type Late struct{ Offset int64 }

func (l Late) PaymentTime(b *sim.Bill, _ int64) int64 { return b.FinalPaymentDate + l.Offset }

// ValidPaymentTimings is the set of recognized payment timing names.
var ValidPaymentTimings = map[string]bool{"": true, "on-time": true, "immediate": true, "early": true, "late": true}

// NewPaymentTiming creates a timing by name. An empty name means on-time.
func NewPaymentTiming(name string, offset int64) (PaymentTiming, error) {
	if offset < 0 {
		return nil, fmt.Errorf("payment timing %q: negative offset %d", name, offset)
	}
	switch name {
	case "", "on-time":
		return OnTime{}, nil
	case "immediate":
		return Immediate{}, nil
	case "early":
		return Early{Offset: offset}, nil
	case "late":
		return Late{Offset: offset}, nil
	default:
		return nil, fmt.Errorf("unknown payment timing %q", name)
	}
}

// BillToPayment pays received bills according to a PaymentTiming. When the
// account is short it rechecks every Config.RetryInterval; after
// Config.MaxRetries failures the debt is abandoned.
type BillToPayment struct {
	sim.PolicyBase
	timing PaymentTiming
}

// NewBillToPayment creates the paying rule. A nil timing pays on time.
func NewBillToPayment(owner *sim.Actor, timing PaymentTiming) *BillToPayment {
	if timing == nil {
		timing = OnTime{}
	}
	return &BillToPayment{
		PolicyBase: sim.NewPolicyBase("bill-to-payment", sim.KindBill, owner),
		timing:     timing,
	}
}

func (p *BillToPayment) Handle(msg sim.Message) bool {
	owner := p.Owner()
	b, ok := msg.(*sim.Bill)
	if !ok {
		return unexpected(p, owner, msg)
	}
	if owner.Account() == nil {
		logrus.Warnf("[t %d] %s/%s: no account to pay %s", owner.Now(), owner.Name, p.ID(), sim.Describe(b))
		return false
	}
	at := max(owner.Now(), p.timing.PaymentTime(b, owner.Now()))
	loop := &retryLoop{
		owner:    owner,
		policy:   p.ID(),
		reason:   "insufficient-funds",
		demandID: b.DemandID,
		attempt:  func() error { return p.pay(b) },
		giveUp: func(error) {
			owner.Store().RemoveChain(b.DemandID)
		},
	}
	owner.Model().Scheduler.ScheduleAt(at, "pay bill", loop.run)
	return true
}

func (p *BillToPayment) pay(b *sim.Bill) error {
	owner := p.Owner()
	if b.Paid {
		return nil
	}
	if err := owner.Account().Withdraw(b.Amount); err != nil {
		return err
	}
	owner.Send(&sim.Payment{
		MessageHeader: owner.NewHeader(b.Sender, b.DemandID),
		Bill:          b,
		Amount:        b.Amount,
	})
	settle(owner, b.DemandID)
	return nil
}

// PaymentReceiver credits incoming payments, marks the bill paid and, when
// configured, fines the payer for paying after the final payment date.
type PaymentReceiver struct {
	sim.PolicyBase
	fine *Fine
}

// NewPaymentReceiver creates the receivables rule. fine may be nil.
func NewPaymentReceiver(owner *sim.Actor, fine *Fine) *PaymentReceiver {
	return &PaymentReceiver{
		PolicyBase: sim.NewPolicyBase("payment-receiver", sim.KindPayment, owner),
		fine:       fine,
	}
}

func (p *PaymentReceiver) Handle(msg sim.Message) bool {
	owner := p.Owner()
	pm, ok := msg.(*sim.Payment)
	if !ok {
		return unexpected(p, owner, msg)
	}
	acc := owner.Account()
	if acc == nil {
		logrus.Warnf("[t %d] %s/%s: no account for %s", owner.Now(), owner.Name, p.ID(), sim.Describe(pm))
		return false
	}
	if err := acc.Deposit(pm.Amount); err != nil {
		logrus.Warnf("[t %d] %s/%s: %v", owner.Now(), owner.Name, p.ID(), err)
		return false
	}
	if b := pm.Bill; b != nil {
		b.Paid = true
		b.PaidAt = pm.Timestamp
		if p.fine != nil {
			levyFine(p, owner, "late-payment", pm.DemandID, pm.Sender, owner, p.fine.Amount(pm.Timestamp-b.FinalPaymentDate))
		}
	}
	settle(owner, pm.DemandID)
	return true
}
