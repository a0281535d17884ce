package graph

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sublimetools/sublime/pkg/workspace"
)

// DOTOptions configures DOT export.
type DOTOptions struct {
	// Versions includes each package's declared version in its label.
	Versions bool
}

// ToDOT renders the internal dependency graph in Graphviz DOT format.
// Cycle groups are rendered as dashed clusters, workspace-protocol edges
// are dashed, local-protocol edges dotted. Output is deterministic: nodes
// in lex order, clusters in canonical cycle order, edges in declaration
// order.
func (g *Graph) ToDOT(opts DOTOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph packages {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=rounded];\n")
	buf.WriteString("\n")

	clustered := make(map[string]bool)
	for i, c := range g.CycleGroups() {
		fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&buf, "    label=\"cycle: %s\";\n", strings.Join(c.Members, ", "))
		buf.WriteString("    style=dashed;\n")
		for _, m := range c.Members {
			fmt.Fprintf(&buf, "    %s;\n", g.dotNode(m, opts))
			clustered[m] = true
		}
		buf.WriteString("  }\n")
	}

	for _, n := range g.nodes {
		if clustered[n] {
			continue
		}
		fmt.Fprintf(&buf, "  %s;\n", g.dotNode(n, opts))
	}

	buf.WriteString("\n")
	for _, e := range g.edges {
		switch e.Requirement.Class {
		case workspace.ReqWorkspace:
			fmt.Fprintf(&buf, "  %q -> %q [style=dashed];\n", e.From, e.To)
		case workspace.ReqLocal:
			fmt.Fprintf(&buf, "  %q -> %q [style=dotted];\n", e.From, e.To)
		default:
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func (g *Graph) dotNode(name string, opts DOTOptions) string {
	label := name
	if opts.Versions {
		if v, ok := g.versions[name]; ok {
			label = fmt.Sprintf("%s\\n%s", name, v)
		}
	}
	return fmt.Sprintf("%q [label=\"%s\"]", name, label)
}
