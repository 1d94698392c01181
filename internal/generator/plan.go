package generator

import (
	"fmt"

	"github.com/Norgate-AV/ccbuild/internal/builderr"
)

// unit is an ungrouped ID or a whole group. Units are the children spawned
// when the generator runs.
type unit struct {
	name     string
	ids      []*id
	parallel bool
	group    bool
}

// Dependencies collects ordering edges declared by dependency callbacks
type Dependencies struct {
	g     *Generator
	units map[string]*unit
}

// Add makes to run after from. Either may name an ID or a group; an ID
// that belongs to a group stands for the whole group.
func (d *Dependencies) Add(from, to string) error {
	fu, err := d.resolve(from)
	if err != nil {
		return err
	}

	tu, err := d.resolve(to)
	if err != nil {
		return err
	}

	if fu == tu {
		return fmt.Errorf("%q and %q run as the same unit", from, to)
	}

	d.g.edges[fu] = append(d.g.edges[fu], tu)
	return nil
}

func (d *Dependencies) resolve(name string) (string, error) {
	if entry, ok := d.g.ids[name]; ok {
		if entry.group != "" {
			return entry.group, nil
		}

		return name, nil
	}

	if _, ok := d.units[name]; ok {
		return name, nil
	}

	return "", fmt.Errorf("unknown id or group %q", name)
}

// plan groups IDs into units and collects the ordering edges between them.
// Ungrouped IDs that are not parallel run one after another in declaration
// order.
func (g *Generator) plan() error {
	g.units = nil
	g.edges = make(map[string][]string)
	g.byUnit = make(map[string]*unit)

	byName := g.byUnit

	for _, name := range g.order {
		entry := g.ids[name]

		if entry.group != "" {
			u, ok := byName[entry.group]
			if !ok {
				u = &unit{name: entry.group, parallel: true, group: true}
				byName[entry.group] = u
				g.units = append(g.units, u)
			}

			u.ids = append(u.ids, entry)
			continue
		}

		u := &unit{name: name, ids: []*id{entry}, parallel: entry.parallel}
		byName[name] = u
		g.units = append(g.units, u)
	}

	last := ""
	for _, u := range g.units {
		if u.parallel {
			continue
		}

		if last != "" {
			g.edges[last] = append(g.edges[last], u.name)
		}

		last = u.name
	}

	d := &Dependencies{g: g, units: byName}
	for _, cb := range g.callbacks {
		if err := cb(d); err != nil {
			return builderr.Config(g.name, "dependency callback", err)
		}
	}

	return g.checkCycles()
}

func (g *Generator) checkCycles() error {
	indeg := make(map[string]int, len(g.units))
	for _, u := range g.units {
		for _, to := range g.edges[u.name] {
			indeg[to]++
		}
	}

	queue := make([]string, 0, len(g.units))
	for _, u := range g.units {
		if indeg[u.name] == 0 {
			queue = append(queue, u.name)
		}
	}

	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++

		for _, to := range g.edges[name] {
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if visited != len(g.units) {
		return builderr.Configf(g.name, "id dependencies contain a cycle")
	}

	return nil
}
