package plugin

import (
	"sort"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// orderable is the subset of Plugin depsolve.Sort needs, so it can be
// tested against plain structs without constructing a full Plugin.
type orderable interface {
	Name() string
	RunBefore() []string
	RunAfter() []string
	Conflicts() []string
}

// Sort returns plugin names in dependency order: a name that RunBefore's
// another sorts earlier, a name that RunAfter's another sorts later, ties
// broken by name ascending. A cycle (including two plugins each
// RunAfter-ing the other) is a permanent Internal error rather than
// retried: there is no iterative retry-on-conflict.
func Sort(plugins []orderable) ([]string, error) {
	byName := make(map[string]orderable, len(plugins))
	for _, p := range plugins {
		byName[p.Name()] = p
	}

	for _, p := range plugins {
		for _, c := range p.Conflicts() {
			if _, ok := byName[c]; ok {
				return nil, fwupderr.New(fwupderr.Internal, "plugin %q conflicts with loaded plugin %q", p.Name(), c)
			}
		}
	}

	// edges[a] contains b when a must run before b.
	edges := map[string]map[string]bool{}
	indegree := map[string]int{}

	for _, p := range plugins {
		edges[p.Name()] = map[string]bool{}
		indegree[p.Name()] = 0
	}

	addEdge := func(before, after string) {
		if _, ok := byName[before]; !ok {
			return
		}

		if _, ok := byName[after]; !ok {
			return
		}

		if edges[before][after] {
			return
		}

		edges[before][after] = true
		indegree[after]++
	}

	for _, p := range plugins {
		for _, other := range p.RunBefore() {
			addEdge(p.Name(), other)
		}

		for _, other := range p.RunAfter() {
			addEdge(other, p.Name())
		}
	}

	var ready []string

	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	var order []string

	for len(ready) > 0 {
		sort.Strings(ready)

		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		next := make([]string, 0, len(edges[name]))
		for to := range edges[name] {
			indegree[to]--
			if indegree[to] == 0 {
				next = append(next, to)
			}
		}

		sort.Strings(next)
		ready = append(ready, next...)
	}

	if len(order) != len(plugins) {
		return nil, fwupderr.New(fwupderr.Internal, "plugin load order has a cycle")
	}

	return order, nil
}

// SortPlugins applies Sort's ordering rules to a loaded plugin list.
func SortPlugins(plugins []Plugin) ([]Plugin, error) {
	ord := make([]orderable, len(plugins))
	byName := make(map[string]Plugin, len(plugins))

	for i, p := range plugins {
		ord[i] = p
		byName[p.Name()] = p
	}

	names, err := Sort(ord)
	if err != nil {
		return nil, err
	}

	out := make([]Plugin, len(names))
	for i, name := range names {
		out[i] = byName[name]
	}

	return out, nil
}
