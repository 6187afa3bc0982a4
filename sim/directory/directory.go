package directory

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/tradesim/sim"
)

type registration struct {
	actor *sim.Actor
	topic string
}

// Directory is the state of a yellow-page actor.
type Directory struct {
	owner         *sim.Actor
	topics        *TopicTree
	registrations []registration
	suppliers     map[string][]*sim.Actor
}

// New creates a directory run by owner. A nil tree uses path-derived topics only.
func New(owner *sim.Actor, topics *TopicTree) (*Directory, error) {
	if owner == nil {
		return nil, fmt.Errorf("directory: nil owner")
	}
	if topics == nil {
		topics = NewTopicTree()
	}
	return &Directory{
		owner:     owner,
		topics:    topics,
		suppliers: make(map[string][]*sim.Actor),
	}, nil
}

// Owner returns the directory actor.
func (d *Directory) Owner() *sim.Actor { return d.owner }

// Topics returns the category tree.
func (d *Directory) Topics() *TopicTree { return d.topics }

// Register lists actor under topic. Each (actor, topic) pair may be registered once.
func (d *Directory) Register(a *sim.Actor, topic string) error {
	if a == nil || topic == "" {
		return fmt.Errorf("directory %s: registration needs an actor and a topic", d.owner.Name)
	}
	for _, r := range d.registrations {
		if r.actor == a && r.topic == topic {
			return fmt.Errorf("directory %s: %s under %q: %w", d.owner.Name, a.Name, topic, ErrDuplicateRegistration)
		}
	}
	d.registrations = append(d.registrations, registration{actor: a, topic: topic})
	logrus.Debugf("directory %s: registered %s under %q", d.owner.Name, a.Name, topic)
	return nil
}

// FindActors returns the actors registered under topic or under any of its
// generalizations, in registration order without duplicates.
func (d *Directory) FindActors(topic string) []*sim.Actor {
	var out []*sim.Actor
	seen := make(map[*sim.Actor]bool)
	for _, r := range d.registrations {
		if seen[r.actor] || !d.topics.IsA(topic, r.topic) {
			continue
		}
		seen[r.actor] = true
		out = append(out, r.actor)
	}
	return out
}

// FindByName returns the registered actors whose name matches pattern.
func (d *Directory) FindByName(pattern string) ([]*sim.Actor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", d.owner.Name, err)
	}
	var out []*sim.Actor
	seen := make(map[*sim.Actor]bool)
	for _, r := range d.registrations {
		if !seen[r.actor] && re.MatchString(r.actor.Name) {
			seen[r.actor] = true
			out = append(out, r.actor)
		}
	}
	return out, nil
}

// FindByNameAndTopic combines FindByName and FindActors.
func (d *Directory) FindByNameAndTopic(pattern, topic string) ([]*sim.Actor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", d.owner.Name, err)
	}
	var out []*sim.Actor
	for _, a := range d.FindActors(topic) {
		if re.MatchString(a.Name) {
			out = append(out, a)
		}
	}
	return out, nil
}

// AddSupplier lists a as a supplier of p.
func (d *Directory) AddSupplier(p *sim.Product, a *sim.Actor) error {
	if p == nil || a == nil {
		return fmt.Errorf("directory %s: supplier needs a product and an actor", d.owner.Name)
	}
	for _, s := range d.suppliers[p.ID] {
		if s == a {
			return fmt.Errorf("directory %s: %s supplying %s: %w", d.owner.Name, a.Name, p.ID, ErrDuplicateRegistration)
		}
	}
	d.suppliers[p.ID] = append(d.suppliers[p.ID], a)
	return nil
}

// Suppliers returns the listed suppliers of p.
func (d *Directory) Suppliers(p *sim.Product) []*sim.Actor {
	if p == nil {
		return nil
	}
	return append([]*sim.Actor(nil), d.suppliers[p.ID]...)
}

// Candidates answers a request: the product's listed suppliers plus the
// actors registered for its topic, excluding the requester, within
// MaxDistance, sorted by ascending distance (then name) and cut to MaxResults.
func (d *Directory) Candidates(req *sim.YellowPageRequest) []*sim.Actor {
	requester := req.Sender
	seen := map[*sim.Actor]bool{requester: true}
	var pool []*sim.Actor
	add := func(actors []*sim.Actor) {
		for _, a := range actors {
			if !seen[a] {
				seen[a] = true
				pool = append(pool, a)
			}
		}
	}
	add(d.Suppliers(req.Product))
	topic := req.Topic
	if topic == "" && req.Product != nil {
		topic = req.Product.Topic
	}
	if topic != "" {
		add(d.FindActors(topic))
	}

	distance := func(a *sim.Actor) float64 {
		if requester == nil {
			return 0
		}
		return requester.Location.DistanceTo(a.Location)
	}
	out := pool[:0]
	for _, a := range pool {
		if req.MaxDistance > 0 && distance(a) > req.MaxDistance {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := distance(out[i]), distance(out[j])
		if di != dj {
			return di < dj
		}
		return out[i].Name < out[j].Name
	})
	if req.MaxResults > 0 && len(out) > req.MaxResults {
		out = out[:req.MaxResults]
	}
	return out
}
