package directory

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

// RoleName is the role under which the request policy is installed.
const RoleName = "directory"

// RequestPolicy answers YellowPageRequests from a Directory.
type RequestPolicy struct {
	sim.PolicyBase
	dir *Directory
}

// NewRequestPolicy creates the answering rule for dir.
func NewRequestPolicy(dir *Directory) *RequestPolicy {
	return &RequestPolicy{
		PolicyBase: sim.NewPolicyBase("yellow-page-request", sim.KindYellowPageRequest, dir.owner),
		dir:        dir,
	}
}

func (p *RequestPolicy) Handle(msg sim.Message) bool {
	owner := p.Owner()
	req, ok := msg.(*sim.YellowPageRequest)
	if !ok {
		logrus.Warnf("[t %d] %s/%s: unexpected %T (%s)", owner.Now(), owner.Name, p.ID(), msg, sim.Describe(msg))
		return false
	}
	candidates := p.dir.Candidates(req)
	logrus.Debugf("[t %d] %s: %d candidates for %s", owner.Now(), owner.Name, len(candidates), sim.Describe(req))
	owner.Model().RecordDecision(owner, p.ID(), req.DemandID, "yellow-page-answer", fmt.Sprintf("%d candidates", len(candidates)))
	owner.Send(&sim.YellowPageAnswer{
		MessageHeader: owner.NewHeader(req.Sender, req.DemandID),
		Request:       req,
		Candidates:    candidates,
	})
	// Answered requests are not tracked.
	owner.Store().RemoveChain(req.DemandID)
	return true
}

// Install attaches dir to its owner as a capability and registers the request policy.
func Install(dir *Directory) (*sim.Role, error) {
	if err := dir.owner.Attach(dir); err != nil {
		return nil, err
	}
	role, err := dir.owner.AddRole(RoleName)
	if err != nil {
		return nil, err
	}
	if err := role.Register(NewRequestPolicy(dir)); err != nil {
		return nil, err
	}
	return role, nil
}

// Of returns the directory attached to a, or nil.
func Of(a *sim.Actor) *Directory {
	d, _ := sim.Capability[*Directory](a)
	return d
}
