package main

import (
	"fmt"
	"strings"

	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/parse"
)

// parseTreeDot renders the parse tree, one record node per parse node,
// sibling chains included.
func parseTreeDot(lexer *lex.Lexer, root parse.Node) string {
	var b strings.Builder
	b.WriteString("digraph parseTree {\n  node [shape=box];\n")
	counter := 0
	var walk func(n parse.Node) int
	walk = func(n parse.Node) int {
		id := counter
		counter++
		fmt.Fprintf(&b, "  n%d [label=%q];\n", id, nodeLabel(lexer, n))
		for _, child := range children(n) {
			if child.node == nil {
				continue
			}
			childID := walk(child.node)
			fmt.Fprintf(&b, "  n%d -> n%d [label=%q];\n", id, childID, child.edge)
		}
		if next := n.Next(); next != nil {
			nextID := walk(next)
			fmt.Fprintf(&b, "  n%d -> n%d [label=\"next\", style=dashed];\n", id, nextID)
		}
		return id
	}
	walk(root)
	b.WriteString("}\n")
	return b.String()
}

type childEdge struct {
	edge string
	node parse.Node
}

func nodeLabel(lexer *lex.Lexer, n parse.Node) string {
	kind := nodeKind(n)
	if n.TokenIndex() >= 0 && n.TokenIndex() < len(lexer.Tokens()) {
		return fmt.Sprintf("%s\n%s", kind, lexer.TokenText(n.TokenIndex()))
	}
	return kind
}

func nodeKind(n parse.Node) string {
	switch n.(type) {
	case *parse.EmptyNode:
		return "Empty"
	case *parse.LiteralNode:
		return "Literal"
	case *parse.NameNode:
		return "Name"
	case *parse.VarDefNode:
		return "VarDef"
	case *parse.VarListNode:
		return "VarList"
	case *parse.ArgListNode:
		return "ArgList"
	case *parse.ExprSeqNode:
		return "ExprSeq"
	case *parse.KeyValueNode:
		return "KeyValue"
	case *parse.BlockNode:
		return "Block"
	case *parse.MethodNode:
		return "Method"
	case *parse.ClassNode:
		return "Class"
	case *parse.ClassExtNode:
		return "ClassExt"
	case *parse.ReturnNode:
		return "Return"
	case *parse.DynListNode:
		return "DynList"
	case *parse.EventNode:
		return "Event"
	case *parse.SeriesNode:
		return "Series"
	case *parse.CopySeriesNode:
		return "CopySeries"
	case *parse.ArrayReadNode:
		return "ArrayRead"
	case *parse.ArrayWriteNode:
		return "ArrayWrite"
	case *parse.CallNode:
		return "Call"
	case *parse.BinopCallNode:
		return "BinopCall"
	case *parse.NewNode:
		return "New"
	case *parse.IfNode:
		return "If"
	case *parse.WhileNode:
		return "While"
	case *parse.CurryArgumentNode:
		return "CurryArgument"
	case *parse.AssignNode:
		return "Assign"
	case *parse.SetterNode:
		return "Setter"
	}
	return "Unknown"
}

func children(n parse.Node) []childEdge {
	switch node := n.(type) {
	case *parse.LiteralNode, *parse.NameNode, *parse.EmptyNode, *parse.CurryArgumentNode:
		return nil
	case *parse.VarDefNode:
		return []childEdge{{"initialValue", node.InitialValue}}
	case *parse.VarListNode:
		return []childEdge{{"definitions", nodeOrNil(node.Definitions)}}
	case *parse.ArgListNode:
		return []childEdge{{"varList", nodeOrNil(node.VarList)}}
	case *parse.ExprSeqNode:
		return []childEdge{{"expr", node.Expr}}
	case *parse.KeyValueNode:
		return []childEdge{{"key", node.Key}, {"value", node.Value}}
	case *parse.BlockNode:
		return []childEdge{
			{"arguments", nodeOrNil(node.Arguments)},
			{"variables", nodeOrNil(node.Variables)},
			{"body", nodeOrNil(node.Body)},
		}
	case *parse.MethodNode:
		return []childEdge{{"body", nodeOrNil(node.Body)}}
	case *parse.ClassNode:
		return []childEdge{
			{"variables", nodeOrNil(node.Variables)},
			{"methods", nodeOrNil(node.Methods)},
		}
	case *parse.ClassExtNode:
		return []childEdge{{"methods", nodeOrNil(node.Methods)}}
	case *parse.ReturnNode:
		return []childEdge{{"value", node.Value}}
	case *parse.DynListNode:
		return []childEdge{{"elements", node.Elements}}
	case *parse.EventNode:
		return []childEdge{{"elements", nodeOrNil(node.Elements)}}
	case *parse.SeriesNode:
		return []childEdge{{"start", node.Start}, {"step", node.Step}, {"last", node.Last}}
	case *parse.CopySeriesNode:
		return []childEdge{{"target", node.Target}, {"first", node.First}, {"last", node.Last}}
	case *parse.ArrayReadNode:
		return []childEdge{{"target", node.Target}, {"indices", node.Indices}}
	case *parse.ArrayWriteNode:
		return []childEdge{{"target", node.Target}, {"indices", node.Indices}, {"value", node.Value}}
	case *parse.CallNode:
		return []childEdge{
			{"target", node.Target},
			{"arguments", node.Arguments},
			{"keywordArguments", nodeOrNil(node.KeywordArguments)},
		}
	case *parse.BinopCallNode:
		return []childEdge{{"left", node.Left}, {"right", node.Right}, {"adverb", node.Adverb}}
	case *parse.NewNode:
		return []childEdge{
			{"arguments", node.Arguments},
			{"keywordArguments", nodeOrNil(node.KeywordArguments)},
		}
	case *parse.IfNode:
		return []childEdge{
			{"condition", node.Condition},
			{"true", nodeOrNil(node.TrueBlock)},
			{"false", nodeOrNil(node.FalseBlock)},
		}
	case *parse.WhileNode:
		return []childEdge{
			{"condition", nodeOrNil(node.Condition)},
			{"body", nodeOrNil(node.Body)},
		}
	case *parse.AssignNode:
		return []childEdge{{"name", nodeOrNil(node.Name)}, {"value", node.Value}}
	case *parse.SetterNode:
		return []childEdge{{"target", node.Target}, {"value", node.Value}}
	}
	return nil
}

// nodeOrNil keeps typed-nil pointers from masquerading as valid nodes.
func nodeOrNil[T parse.Node](n T) parse.Node {
	var zero T
	if any(n) == any(zero) {
		return nil
	}
	return n
}

// frameDot renders the SSA control flow graph, one record per block.
func frameDot(frame *hir.Frame) string {
	var b strings.Builder
	b.WriteString("digraph cfg {\n  node [shape=record];\n")
	for _, block := range frame.Blocks {
		var rows []string
		rows = append(rows, fmt.Sprintf("block %d", block.Number))
		for _, phi := range block.Phis {
			inputs := make([]string, len(phi.Inputs))
			for i, in := range phi.Inputs {
				inputs[i] = in.String()
			}
			rows = append(rows, fmt.Sprintf("%s = phi(%s)", phi.Value(), strings.Join(inputs, ", ")))
		}
		for _, h := range block.Statements {
			rows = append(rows, statementLabel(h))
		}
		fmt.Fprintf(&b, "  b%d [label=\"{%s}\"];\n", block.Number,
			strings.Join(rows, " | "))
		for _, succ := range block.Successors {
			fmt.Fprintf(&b, "  b%d -> b%d;\n", block.Number, succ)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func statementLabel(h hir.HIR) string {
	reads := h.Reads()
	in := make([]string, len(reads))
	for i, r := range reads {
		in[i] = r.String()
	}
	if h.Value().Valid() {
		return fmt.Sprintf("%s = op%d(%s)", h.Value(), h.Opcode(), strings.Join(in, ", "))
	}
	return fmt.Sprintf("op%d(%s)", h.Opcode(), strings.Join(in, ", "))
}
