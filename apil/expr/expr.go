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

// Package expr parses and evaluates the integer expressions used by
// descriptors for lengths, sizes, ranges and switch selectors.
//
// Expressions use the grammar of github.com/expr-lang/expr, with the C
// member operator -> accepted as a synonym of the dot. Evaluation is always
// over int64, with C style truncating division.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/fault"
)

const (
	// ErrUndefined is the cause of errors for identifiers missing from scope.
	ErrUndefined = fault.Const("Undefined identifier")
	// ErrSyntax is the cause of errors for expressions that cannot be used.
	ErrSyntax = fault.Const("Unsupported expression")
	// ErrDivideByZero is returned when a divisor evaluates to zero.
	ErrDivideByZero = fault.Const("Division by zero")
)

// Expr is a parsed expression.
type Expr struct {
	src    string
	root   ast.Node
	idents []string
}

// Parse parses src. Only integer arithmetic, comparisons, logical operators,
// conditionals, member access and the min and max builtins are accepted.
func Parse(src string) (*Expr, error) {
	tree, err := parser.Parse(strings.ReplaceAll(src, "->", "."))
	if err != nil {
		return nil, errors.Wrapf(err, "Parsing %q", src)
	}
	e := &Expr{src: src, root: tree.Node}
	seen := map[string]bool{}
	if err := check(tree.Node, func(name string) {
		if !seen[name] {
			seen[name] = true
			e.idents = append(e.idents, name)
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "Parsing %q", src)
	}
	sort.Strings(e.idents)
	return e, nil
}

// MustParse is like Parse but panics on error.
func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source of the expression.
func (e *Expr) String() string { return e.src }

// Idents returns the sorted root identifiers the expression refers to.
func (e *Expr) Idents() []string { return e.idents }

var builtins = map[string]bool{"min": true, "max": true}

func check(n ast.Node, ident func(string)) error {
	switch n := n.(type) {
	case *ast.IntegerNode, *ast.BoolNode:
		return nil
	case *ast.IdentifierNode:
		ident(n.Value)
		return nil
	case *ast.MemberNode:
		if _, ok := n.Property.(*ast.StringNode); !ok {
			return errors.Wrap(ErrSyntax, "computed member")
		}
		return check(n.Node, ident)
	case *ast.UnaryNode:
		switch n.Operator {
		case "-", "+", "!", "not":
			return check(n.Node, ident)
		}
		return errors.Wrapf(ErrSyntax, "operator %s", n.Operator)
	case *ast.BinaryNode:
		if _, ok := binaryOps[n.Operator]; !ok {
			return errors.Wrapf(ErrSyntax, "operator %s", n.Operator)
		}
		if err := check(n.Left, ident); err != nil {
			return err
		}
		return check(n.Right, ident)
	case *ast.ConditionalNode:
		for _, c := range []ast.Node{n.Cond, n.Exp1, n.Exp2} {
			if err := check(c, ident); err != nil {
				return err
			}
		}
		return nil
	case *ast.CallNode:
		callee, ok := n.Callee.(*ast.IdentifierNode)
		if !ok || !builtins[callee.Value] || len(n.Arguments) == 0 {
			return errors.Wrap(ErrSyntax, "call")
		}
		for _, a := range n.Arguments {
			if err := check(a, ident); err != nil {
				return err
			}
		}
		return nil
	case *ast.BuiltinNode:
		if !builtins[n.Name] || len(n.Arguments) == 0 {
			return errors.Wrapf(ErrSyntax, "builtin %s", n.Name)
		}
		for _, a := range n.Arguments {
			if err := check(a, ident); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Wrapf(ErrSyntax, "%T", n)
	}
}

var binaryOps = map[string]func(a, b int64) (int64, error){
	"+": func(a, b int64) (int64, error) { return a + b, nil },
	"-": func(a, b int64) (int64, error) { return a - b, nil },
	"*": func(a, b int64) (int64, error) { return a * b, nil },
	"/": func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	},
	"%": func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	},
	"==":  func(a, b int64) (int64, error) { return b2i(a == b), nil },
	"!=":  func(a, b int64) (int64, error) { return b2i(a != b), nil },
	"<":   func(a, b int64) (int64, error) { return b2i(a < b), nil },
	"<=":  func(a, b int64) (int64, error) { return b2i(a <= b), nil },
	">":   func(a, b int64) (int64, error) { return b2i(a > b), nil },
	">=":  func(a, b int64) (int64, error) { return b2i(a >= b), nil },
	"&&":  func(a, b int64) (int64, error) { return b2i(a != 0 && b != 0), nil },
	"and": func(a, b int64) (int64, error) { return b2i(a != 0 && b != 0), nil },
	"||":  func(a, b int64) (int64, error) { return b2i(a != 0 || b != 0), nil },
	"or":  func(a, b int64) (int64, error) { return b2i(a != 0 || b != 0), nil },
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// path returns the identifier chain of a member access, such as
// [info size] for info.size.
func path(n ast.Node) ([]string, bool) {
	switch n := n.(type) {
	case *ast.IdentifierNode:
		return []string{n.Value}, true
	case *ast.MemberNode:
		p, ok := path(n.Node)
		if !ok {
			return nil, false
		}
		return append(p, n.Property.(*ast.StringNode).Value), true
	}
	return nil, false
}

func describe(n ast.Node) string {
	if p, ok := path(n); ok {
		return strings.Join(p, ".")
	}
	return fmt.Sprintf("%T", n)
}
