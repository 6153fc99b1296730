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
	"math"

	"github.com/expr-lang/expr/ast"
	"github.com/pkg/errors"
)

// Scope resolves identifiers to live values.
type Scope interface {
	Lookup(name string) (any, bool)
}

// Map is a Scope backed by a map.
type Map map[string]any

// Lookup implements Scope.
func (m Map) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Constants is a Scope of named integer constants.
type Constants map[string]int64

// Lookup implements Scope.
func (c Constants) Lookup(name string) (any, bool) {
	v, ok := c[name]
	return v, ok
}

type chain []Scope

func (c chain) Lookup(name string) (any, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Chain returns a Scope that consults each of scopes in order, so earlier
// scopes shadow later ones.
func Chain(scopes ...Scope) Scope { return chain(scopes) }

// Eval evaluates the expression against s.
func (e *Expr) Eval(s Scope) (int64, error) {
	v, err := e.eval(e.root, s)
	if err != nil {
		return 0, errors.Wrapf(err, "Evaluating %q", e.src)
	}
	return v, nil
}

func (e *Expr) eval(n ast.Node, s Scope) (int64, error) {
	switch n := n.(type) {
	case *ast.IntegerNode:
		return int64(n.Value), nil
	case *ast.BoolNode:
		return b2i(n.Value), nil
	case *ast.IdentifierNode, *ast.MemberNode:
		v, err := lookup(n, s)
		if err != nil {
			return 0, err
		}
		return ToInt(v)
	case *ast.UnaryNode:
		v, err := e.eval(n.Node, s)
		if err != nil {
			return 0, err
		}
		switch n.Operator {
		case "-":
			return -v, nil
		case "!", "not":
			return b2i(v == 0), nil
		}
		return v, nil
	case *ast.BinaryNode:
		l, err := e.eval(n.Left, s)
		if err != nil {
			return 0, err
		}
		r, err := e.eval(n.Right, s)
		if err != nil {
			return 0, err
		}
		return binaryOps[n.Operator](l, r)
	case *ast.ConditionalNode:
		c, err := e.eval(n.Cond, s)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return e.eval(n.Exp1, s)
		}
		return e.eval(n.Exp2, s)
	case *ast.CallNode:
		return e.minmax(n.Callee.(*ast.IdentifierNode).Value, n.Arguments, s)
	case *ast.BuiltinNode:
		return e.minmax(n.Name, n.Arguments, s)
	}
	return 0, errors.Wrapf(ErrSyntax, "%T", n)
}

func (e *Expr) minmax(name string, args []ast.Node, s Scope) (int64, error) {
	out := int64(math.MaxInt64)
	if name == "max" {
		out = math.MinInt64
	}
	for _, a := range args {
		v, err := e.eval(a, s)
		if err != nil {
			return 0, err
		}
		if (name == "min" && v < out) || (name == "max" && v > out) {
			out = v
		}
	}
	return out, nil
}

func lookup(n ast.Node, s Scope) (any, error) {
	switch n := n.(type) {
	case *ast.IdentifierNode:
		v, ok := s.Lookup(n.Value)
		if !ok {
			return nil, errors.Wrap(ErrUndefined, n.Value)
		}
		return v, nil
	case *ast.MemberNode:
		base, err := lookup(n.Node, s)
		if err != nil {
			return nil, err
		}
		field := n.Property.(*ast.StringNode).Value
		if fields, ok := base.(Scope); ok {
			if v, ok := fields.Lookup(field); ok {
				return v, nil
			}
		}
		if fields, ok := base.(map[string]any); ok {
			if v, ok := fields[field]; ok {
				return v, nil
			}
		}
		return nil, errors.Wrap(ErrUndefined, describe(n))
	}
	return nil, errors.Wrapf(ErrSyntax, "%T", n)
}

// ToInt converts a live scalar value to an int64.
func ToInt(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case bool:
		return b2i(v), nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case nil:
		return 0, nil
	}
	return 0, errors.Errorf("Value of type %T is not an integer", v)
}
