// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expr

import (
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/pkg/errors"
)

// Resolver maps an identifier chain, such as [info size], to a Go expression
// of type int64.
type Resolver func(path []string) (string, error)

// Go renders the expression as Go source of type int64. Comparisons, logical
// operators and conditionals have no int64 form and are reported as
// ErrSyntax.
func (e *Expr) Go(resolve Resolver) (string, error) {
	sb := strings.Builder{}
	if err := e.render(&sb, e.root, resolve); err != nil {
		return "", errors.Wrapf(err, "Rendering %q", e.src)
	}
	return sb.String(), nil
}

var goOps = map[string]bool{"+": true, "-": true, "*": true, "/": true, "%": true}

func (e *Expr) render(sb *strings.Builder, n ast.Node, resolve Resolver) error {
	switch n := n.(type) {
	case *ast.IntegerNode:
		sb.WriteString(strconv.Itoa(n.Value))
	case *ast.IdentifierNode, *ast.MemberNode:
		p, ok := path(n)
		if !ok {
			return errors.Wrapf(ErrSyntax, "%T", n)
		}
		s, err := resolve(p)
		if err != nil {
			return err
		}
		sb.WriteString(s)
	case *ast.UnaryNode:
		if n.Operator != "-" && n.Operator != "+" {
			return errors.Wrapf(ErrSyntax, "operator %s", n.Operator)
		}
		sb.WriteString(n.Operator)
		return e.render(sb, n.Node, resolve)
	case *ast.BinaryNode:
		if !goOps[n.Operator] {
			return errors.Wrapf(ErrSyntax, "operator %s", n.Operator)
		}
		sb.WriteString("(")
		if err := e.render(sb, n.Left, resolve); err != nil {
			return err
		}
		sb.WriteString(" " + n.Operator + " ")
		if err := e.render(sb, n.Right, resolve); err != nil {
			return err
		}
		sb.WriteString(")")
	case *ast.CallNode:
		return e.renderCall(sb, n.Callee.(*ast.IdentifierNode).Value, n.Arguments, resolve)
	case *ast.BuiltinNode:
		return e.renderCall(sb, n.Name, n.Arguments, resolve)
	default:
		return errors.Wrapf(ErrSyntax, "%T", n)
	}
	return nil
}

func (e *Expr) renderCall(sb *strings.Builder, name string, args []ast.Node, resolve Resolver) error {
	if len(args) == 1 {
		return e.render(sb, args[0], resolve)
	}
	sb.WriteString(name + "(")
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := e.render(sb, a, resolve); err != nil {
			return err
		}
	}
	sb.WriteString(")")
	return nil
}
