// Package render prints finished SSA programs.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
	"github.com/GriffinCanCode/smplc/pkg/ssa"
)

// Text writes a listing of every block: a header line, its active
// instructions, then the versions of each variable defined in it.
func Text(out io.Writer, prog *ssa.Program) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, blk := range prog.Blocks {
		fmt.Fprintf(w, "BB%d [%s]", blk.ID, blk.Kind)
		if blk.Join != ir.JoinNone {
			fmt.Fprintf(w, " join=%s", blk.Join)
		}
		fmt.Fprintf(w, " doms=%s parents=%s\n", ids(blk.Dominators), ids(blk.Parents))
		for _, in := range prog.Order(blk) {
			fmt.Fprintf(w, "  %s\n", in)
		}
		for _, name := range blk.Variables() {
			for _, v := range blk.Versions(name) {
				fmt.Fprintf(w, "  %s_%d\t= (%d)\t%s\n", v.Var, v.Number, v.Inst, v.Src)
			}
		}
	}
	for _, d := range prog.Diagnostics {
		fmt.Fprintf(w, "warning: %s\n", d)
	}
	return errors.Wrap(w.Flush(), "render text")
}

// Dot writes a Graphviz digraph: one record node per block listing its
// active instructions, solid CFG edges and dashed immediate-dominator edges.
func Dot(out io.Writer, prog *ssa.Program) error {
	var sb strings.Builder
	sb.WriteString("digraph ssa {\n")
	sb.WriteString(" node [shape=record,fontname=\"monospace\"];\n")
	for _, blk := range prog.Blocks {
		lines := []string{fmt.Sprintf("BB%d %s", blk.ID, blk.Kind)}
		for _, in := range prog.Order(blk) {
			lines = append(lines, escape(in.String()))
		}
		fmt.Fprintf(&sb, " bb%d [label=\"{%s}\"];\n", blk.ID, strings.Join(lines, "|"))
	}
	for _, blk := range prog.Blocks {
		for _, c := range blk.Children {
			style := ""
			if c <= blk.ID {
				style = " [label=\"back\"]"
			}
			fmt.Fprintf(&sb, " bb%d -> bb%d%s;\n", blk.ID, c, style)
		}
		if len(blk.Dominators) > 1 {
			fmt.Fprintf(&sb, " bb%d -> bb%d [style=dashed,color=blue];\n", blk.Dominators[1], blk.ID)
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(out, sb.String())
	return errors.Wrap(err, "render dot")
}

func ids(bs []ir.BlockID) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = fmt.Sprint(int(b))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

var dotEscaper = strings.NewReplacer(
	"{", "\\{", "}", "\\}", "|", "\\|", "<", "\\<", ">", "\\>", "\"", "\\\"",
)

func escape(s string) string {
	return dotEscaper.Replace(s)
}
