package graph

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// CycleGroup is a strongly connected component of size >= 2. Members are
// sorted lexicographically; the ID is shared by every version change the
// planner harmonizes across the group.
type CycleGroup struct {
	ID      string
	Members []string
}

// String formats the group as its canonical rotation, starting at the
// lexicographically smallest member and closing the loop.
func (c CycleGroup) String() string {
	return strings.Join(append(append([]string(nil), c.Members...), c.Members[0]), " -> ")
}

// TopoOrder returns all packages in dependency-first topological order.
//
// The order is total and deterministic: members of a cycle group are
// contiguous and sorted lexicographically; between components with no path
// connecting them, the component with the lexicographically smallest member
// is emitted first.
func (g *Graph) TopoOrder() []string {
	g.analyze()
	out := make([]string, len(g.topo))
	copy(out, g.topo)
	return out
}

// CycleGroups returns all strongly connected components of size >= 2.
// Repeated calls return identical membership and canonical rotations.
func (g *Graph) CycleGroups() []CycleGroup {
	g.analyze()
	out := make([]CycleGroup, len(g.cycles))
	copy(out, g.cycles)
	return out
}

// CycleGroupOf returns the cycle group containing name, if any.
func (g *Graph) CycleGroupOf(name string) (CycleGroup, bool) {
	g.analyze()
	for _, c := range g.cycles {
		for _, m := range c.Members {
			if m == name {
				return c, true
			}
		}
	}
	return CycleGroup{}, false
}

// InSameCycleGroup reports whether two packages share a cycle group.
func (g *Graph) InSameCycleGroup(a, b string) bool {
	g.analyze()
	ga, ok := g.groupOf[a]
	if !ok {
		return false
	}
	gb, ok := g.groupOf[b]
	if !ok {
		return false
	}
	return ga == gb && len(g.sccs[ga]) > 1
}

// analyze computes SCCs, the topological order, and the cycle report.
// Runs once; the graph is immutable after Build.
func (g *Graph) analyze() {
	g.sccOnce.Do(func() {
		g.sccs = g.tarjan()
		g.groupOf = make(map[string]int, len(g.nodes))
		for i, scc := range g.sccs {
			sort.Strings(scc)
			for _, n := range scc {
				g.groupOf[n] = i
			}
		}
		g.topo = g.orderComponents()
		for _, scc := range g.sccs {
			if len(scc) < 2 {
				continue
			}
			g.cycles = append(g.cycles, CycleGroup{
				ID:      uuid.NewString(),
				Members: scc,
			})
		}
		sort.Slice(g.cycles, func(i, j int) bool {
			return g.cycles[i].Members[0] < g.cycles[j].Members[0]
		})
	})
}

// tarjan returns the strongly connected components of the graph.
func (g *Graph) tarjan() [][]string {
	var (
		index    int
		indices  = make(map[string]int, len(g.nodes))
		lowlink  = make(map[string]int, len(g.nodes))
		onStack  = make(map[string]bool, len(g.nodes))
		stack    []string
		result   [][]string
		strongly func(v string)
	)

	strongly = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.outgoing[v] {
			if _, seen := indices[w]; !seen {
				strongly(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			result = append(result, scc)
		}
	}

	for _, v := range g.nodes {
		if _, seen := indices[v]; !seen {
			strongly(v)
		}
	}
	return result
}

// orderComponents emits SCCs dependencies-first. Among components whose
// dependencies are all emitted, the one with the lexicographically smallest
// member goes next; within a component, members come out in lex order.
func (g *Graph) orderComponents() []string {
	// Count unresolved inter-component dependencies per component.
	pending := make([]int, len(g.sccs))
	dependers := make([][]int, len(g.sccs)) // component -> components depending on it
	seen := make(map[[2]int]bool)
	for _, e := range g.edges {
		from, to := g.groupOf[e.From], g.groupOf[e.To]
		if from == to || seen[[2]int{from, to}] {
			continue
		}
		seen[[2]int{from, to}] = true
		pending[from]++
		dependers[to] = append(dependers[to], from)
	}

	ready := make([]int, 0, len(g.sccs))
	for i := range g.sccs {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		// Pick the ready component with the lex-smallest member.
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.sccs[ready[i]][0] < g.sccs[ready[best]][0] {
				best = i
			}
		}
		c := ready[best]
		ready = append(ready[:best], ready[best+1:]...)

		order = append(order, g.sccs[c]...)
		for _, d := range dependers[c] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return order
}
