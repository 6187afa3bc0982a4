package scenario

import "fmt"

// Compose merges scenario fragments into one. The first spec supplies the
// version, seed, protocol and transport; the horizon is the longest one.
// Topics and products may repeat across fragments only with identical
// definitions; actor names must be unique across all fragments.
func Compose(specs []*Spec) (*Spec, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one scenario required")
	}
	first := specs[0]
	merged := &Spec{
		Version:   first.Version,
		Seed:      first.Seed,
		Protocol:  first.Protocol,
		Transport: first.Transport,
	}

	topics := make(map[string]TopicSpec)
	products := make(map[string]ProductSpec)
	actors := make(map[string]bool)
	for i, s := range specs {
		merged.HorizonDays = max(merged.HorizonDays, s.HorizonDays)
		if len(merged.Transport.Modes) == 0 {
			merged.Transport.Modes = s.Transport.Modes
		}
		for _, t := range s.Topics {
			if prev, ok := topics[t.Name]; ok {
				if prev != t {
					return nil, fmt.Errorf("scenario %d: topic %q redefined", i, t.Name)
				}
				continue
			}
			topics[t.Name] = t
			merged.Topics = append(merged.Topics, t)
		}
		for _, p := range s.Products {
			if prev, ok := products[p.ID]; ok {
				if prev != p {
					return nil, fmt.Errorf("scenario %d: product %q redefined", i, p.ID)
				}
				continue
			}
			products[p.ID] = p
			merged.Products = append(merged.Products, p)
		}
		for _, a := range s.Actors {
			if actors[a.Name] {
				return nil, fmt.Errorf("scenario %d: actor %q already defined", i, a.Name)
			}
			actors[a.Name] = true
			merged.Actors = append(merged.Actors, a)
		}
	}
	return merged, nil
}
