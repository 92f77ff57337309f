package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"intervene/internal/domain"
)

// ToDOT converts a bundle's dependency graph to Graphviz DOT. Critical edges
// are bold, parallel edges dashed and conditional edges dotted. Edges whose
// endpoints are unknown are left out.
func ToDOT(doc Document) string {
	b := doc.Bundle
	var buf bytes.Buffer
	buf.WriteString("digraph bundle {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14];\n\n")

	known := make(map[string]bool, len(b.Interventions))
	for _, iv := range b.Interventions {
		known[iv.ID] = true
		label := fmt.Sprintf("%s\n%s", iv.Label(), iv.Complexity)
		attrs := []string{fmt.Sprintf("label=%q", label)}
		if e, ok := entryFor(doc, iv.ID); ok {
			attrs[0] = fmt.Sprintf("label=%q", fmt.Sprintf("%s\nweeks %d-%d", label, e.StartWeek, e.EndWeek))
			if e.CriticalPath {
				attrs = append(attrs, "fillcolor=\"#ffe0e0\"")
			}
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", iv.ID, strings.Join(attrs, ", "))
	}
	buf.WriteString("\n")
	for _, e := range b.Dependencies {
		if !known[e.FromInterventionID] || !known[e.ToInterventionID] {
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.FromInterventionID, e.ToInterventionID, strings.Join(edgeAttrs(e), ", "))
	}
	buf.WriteString("}\n")
	return buf.String()
}

func edgeAttrs(e domain.DependencyEdge) []string {
	attrs := []string{fmt.Sprintf("label=%q", string(e.Type))}
	switch e.Type {
	case domain.DependencyParallel:
		attrs = append(attrs, "style=dashed")
	case domain.DependencyConditional:
		attrs = append(attrs, "style=dotted")
	}
	if e.CriticalPath {
		attrs = append(attrs, "penwidth=2.5", "color=\"#c0392b\"")
	}
	return attrs
}

// RenderSVG renders DOT to SVG using the embedded Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
