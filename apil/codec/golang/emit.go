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

package golang

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/expr"
	"github.com/apitrace/apitrace-sub000/apil/schema"
)

type binding struct {
	expr string
	typ  schema.Type
}

// scope maps the identifiers of expressions to the Go values they name.
type scope struct {
	vars   map[string]binding
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]binding{}, parent: parent}
}

func (s *scope) bind(name, x string, t schema.Type) { s.vars[name] = binding{x, t} }

func (s *scope) lookup(name string) (binding, bool) {
	for ; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// emitter renders instruction trees as Go statements. Errors are sticky, the
// first one is reported once rendering completes.
type emitter struct {
	constants map[string]int64
	n         int
	err       error
}

func (e *emitter) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *emitter) tmp(prefix string) string {
	e.n++
	return prefix + strconv.Itoa(e.n)
}

func (e *emitter) goType(t schema.Type) string {
	s, err := goType(t)
	if err != nil {
		e.fail(err)
	}
	return s
}

// expr renders x as a Go expression of type int64.
func (e *emitter) expr(x *expr.Expr, s *scope) string {
	src, err := x.Go(e.resolver(s))
	if err != nil {
		e.fail(err)
		return "int64(0)"
	}
	return "int64(" + src + ")"
}

func (e *emitter) resolver(s *scope) expr.Resolver {
	return func(path []string) (string, error) {
		b, ok := s.lookup(path[0])
		if !ok {
			if c, ok := e.constants[path[0]]; ok && len(path) == 1 {
				return strconv.FormatInt(c, 10), nil
			}
			return "", errors.Errorf("Unknown identifier %s", strings.Join(path, "."))
		}
		x, t := b.expr, b.typ
		for _, m := range path[1:] {
			st, ok := structOf(t)
			if !ok {
				return "", errors.Errorf("%s is not a structure", x)
			}
			i := st.Member(m)
			if i < 0 {
				return "", errors.Errorf("%s has no member %s", st.Name, m)
			}
			x, t = x+"."+exported(m), st.Members[i].Type
		}
		if _, err := scalar(t); err != nil {
			return "", err
		}
		return "int64(" + x + ")", nil
	}
}

// cond renders the test of a case: v equal to any of values.
func (e *emitter) cond(v string, values []*expr.Expr, s *scope) string {
	out := make([]string, len(values))
	for i, x := range values {
		out[i] = v + " == " + e.expr(x, s)
	}
	return strings.Join(out, " || ")
}

// used returns name if body refers to it and the blank identifier otherwise.
func used(name, body string) string {
	if regexp.MustCompile(`\b` + name + `\b`).MatchString(body) {
		return name
	}
	return "_"
}

func loop(i, x, over, body string) string {
	i, x = used(i, body), used(x, body)
	switch {
	case i == "_" && x == "_":
		return fmt.Sprintf("for range %s {\n%s}\n", over, body)
	case x == "_":
		return fmt.Sprintf("for %s := range %s {\n%s}\n", i, over, body)
	}
	return fmt.Sprintf("for %s, %s := range %s {\n%s}\n", i, x, over, body)
}

func printer(sb *strings.Builder) func(string, ...any) {
	return func(format string, args ...any) {
		fmt.Fprintf(sb, format+"\n", args...)
	}
}

func routineName(r *codec.Routine) string { return ident(r.Name) }

func registerName(r *codec.Routine) string { return "register" + ident(r.Type.Tag()) }

// registers returns true if i maps recorded identities to live ones.
func registers(i *codec.Instr) bool {
	return codec.Reaches(i, func(n *codec.Instr) bool {
		switch n.Op {
		case codec.OpHandle, codec.OpObject, codec.OpRegion:
			return true
		}
		return false
	})
}

// enc returns the statements writing the live value v.
func (e *emitter) enc(in *codec.Instr, v string, s *scope) string {
	sb := &strings.Builder{}
	p := printer(sb)
	switch in.Op {
	case codec.OpBool:
		p("w.WriteBool(bool(%s))", v)
	case codec.OpSInt:
		p("w.WriteSInt(int64(%s))", v)
	case codec.OpUInt:
		p("w.WriteUInt(uint64(%s))", v)
	case codec.OpFloat:
		p("w.WriteFloat(float32(%s))", v)
	case codec.OpDouble:
		p("w.WriteDouble(float64(%s))", v)
	case codec.OpString:
		if in.Expr != nil {
			v = fmt.Sprintf("%s[:capture.Clamp(%s, len(%s))]", v, e.expr(in.Expr, s), v)
		}
		p("w.WriteString(%s)", v)
	case codec.OpWString:
		p("w.WriteWString([]rune(%s))", v)
	case codec.OpBlob:
		p("if %s == nil {\nw.WriteNull()\n} else {", v)
		p("w.WriteBlob(%s[:capture.Clamp(%s, len(%s))])\n}", v, e.expr(in.Expr, s), v)
	case codec.OpEnum:
		p("w.WriteEnum(tr.Sigs().Enums[%d], int64(%s))", schema.Underlying(in.Type).(*schema.Enum).ID, v)
	case codec.OpBitmask:
		p("w.WriteBitmask(tr.Sigs().Bitmasks[%d], uint64(%s))", schema.Underlying(in.Type).(*schema.Bitmask).ID, v)
	case codec.OpArray:
		n, x := e.tmp("n"), e.tmp("e")
		body := e.enc(in.Elem, x, s)
		p("if %s == nil {\nw.WriteNull()\n} else {", v)
		p("%s := capture.Clamp(%s, len(%s))", n, e.expr(in.Expr, s), v)
		p("w.BeginArray(%s)", n)
		sb.WriteString(loop("_", x, v+"[:"+n+"]", body))
		p("w.EndArray()\n}")
	case codec.OpStruct:
		st := schema.Underlying(in.Type).(*schema.Struct)
		child := newScope(s)
		for _, m := range st.Members {
			child.bind(m.Name, v+"."+exported(m.Name), m.Type)
		}
		p("w.BeginStruct(tr.Sigs().Structs[%d])", st.ID)
		for _, m := range in.Members {
			sb.WriteString(e.enc(m, v+"."+exported(m.Name), child))
		}
		p("w.EndStruct()")
	case codec.OpPointer:
		if e.goType(in.Type) == "uintptr" {
			p("if %s == 0 {\nw.WriteNull()\n} else {\nw.BeginArray(1)\nw.WriteNull()\nw.EndArray()\n}", v)
			break
		}
		p("if %s == nil {\nw.WriteNull()\n} else {\nw.BeginArray(1)", v)
		sb.WriteString(e.enc(in.Elem, "(*"+v+")", s))
		p("w.EndArray()\n}")
	case codec.OpOpaque, codec.OpIntPointer:
		p("w.WritePointer(uint64(%s))", v)
	case codec.OpRegion:
		p("w.WritePointer(capture.Address(%s))", v)
	case codec.OpHandle:
		sb.WriteString(e.enc(in.Elem, v, s))
	case codec.OpObject:
		p("w.WritePointer(tr.AddressOf(%s))", v)
	case codec.OpSwitch:
		sel := "sel"
		if in.Expr != nil {
			sel = e.expr(in.Expr, s)
		}
		k := e.tmp("sel")
		arms := &strings.Builder{}
		for _, c := range in.Cases {
			if len(c.Values) == 0 {
				continue
			}
			fmt.Fprintf(arms, "case %s:\n%s", e.cond(k, c.Values, s), e.encArm(c.Body, v, s))
		}
		def := "w.WriteNull()\n"
		if in.Default != nil {
			def = e.encArm(in.Default, v, s)
		}
		if arms.Len() == 0 {
			sb.WriteString(def)
			break
		}
		p("switch %s := %s; {\n%sdefault:\n%s}", k, sel, arms, def)
	case codec.OpCall:
		args := v
		if in.Routine.Selector {
			args += ", " + e.expr(in.Expr, s)
		}
		p("%s(tr, w, %s)", routineName(in.Routine), args)
	case codec.OpAttribs:
		a := e.tmp("a")
		p("if %s == nil {\nw.WriteNull()\n} else {", v)
		p("w.BeginArray(2*len(%s) + 1)", v)
		p("for _, %s := range %s {", a, v)
		sb.WriteString(e.enc(in.Elem, a+".Key", s))
		p("switch {")
		for _, c := range in.Cases {
			p("case %s:", e.cond(a+".Key", c.Values, s))
			sb.WriteString(e.encArm(c.Body, a+".Value", s))
		}
		p("default:")
		if in.Default != nil {
			sb.WriteString(e.encArm(in.Default, a+".Value", s))
		} else {
			p("w.WriteNull()")
		}
		p("}\n}")
		sb.WriteString(e.enc(in.Elem, e.expr(in.Expr, s), s))
		p("w.EndArray()\n}")
	default:
		p("w.WriteNull()")
	}
	return sb.String()
}

// encArm writes the union value v as the type of body, or null if it holds
// another type.
func (e *emitter) encArm(body *codec.Instr, v string, s *scope) string {
	t := e.goType(body.Type)
	if t == "" {
		return "w.WriteNull()\n"
	}
	x := e.tmp("x")
	inner := e.enc(body, x, s)
	return fmt.Sprintf("if %s, ok := %s.(%s); ok {\n%s} else {\nw.WriteNull()\n}\n", used(x, inner), v, t, inner)
}

// dec returns the statements storing the live value of the recorded value
// val in dst. Values with no decode rule leave dst zero.
func (e *emitter) dec(in *codec.Instr, val, dst string, s *scope) string {
	sb := &strings.Builder{}
	p := printer(sb)
	t := ""
	if in.Op != codec.OpUnsupported && in.Op != codec.OpNull {
		t = e.goType(in.Type)
	}
	switch in.Op {
	case codec.OpBool:
		p("%s = replay.Int(%s) != 0", dst, val)
	case codec.OpSInt, codec.OpUInt, codec.OpEnum, codec.OpBitmask, codec.OpIntPointer:
		p("%s = %s(replay.Int(%s))", dst, t, val)
	case codec.OpFloat, codec.OpDouble:
		p("%s = %s(replay.Float(%s))", dst, t, val)
	case codec.OpString, codec.OpWString:
		p("%s = replay.String(%s)", dst, val)
	case codec.OpBlob:
		p("%s = replay.Blob(%s)", dst, val)
	case codec.OpRegion:
		p("%s = r.Region(ctx, uint64(replay.Int(%s)))", dst, val)
	case codec.OpObject:
		p("%s, _ = r.Object(ctx, uint64(replay.Int(%s))).(%s)", dst, val, t)
	case codec.OpHandle:
		h := schema.Underlying(in.Type).(*schema.Handle)
		key := "0"
		if in.Key != nil {
			key = e.expr(in.Key, s)
		}
		p("%s = %s(r.Handle(ctx, %q, %s, uint64(replay.Int(%s))))", dst, t, h.Name, key, val)
	case codec.OpPointer:
		if t == "uintptr" {
			break
		}
		x := e.tmp("p")
		inner := e.dec(in.Elem, x, "(*"+dst+")", s)
		p("if %s, ok := replay.Pointee(%s); ok {", used(x, inner), val)
		p("%s = new(%s)", dst, strings.TrimPrefix(t, "*"))
		sb.WriteString(inner)
		p("}")
	case codec.OpArray:
		a, i, x := e.tmp("a"), e.tmp("i"), e.tmp("e")
		inner := e.dec(in.Elem, x, dst+"["+i+"]", s)
		p("if %s := replay.Elems(%s); %s != nil {", a, val, a)
		p("%s = make(%s, len(%s))", dst, t, a)
		if inner != "" {
			sb.WriteString(loop(i, x, a, inner))
		}
		p("}")
	case codec.OpStruct:
		x := e.tmp("s")
		inner := e.members(in, x, dst, s)
		if inner != "" {
			p("{\n%s := %s", x, val)
			sb.WriteString(inner)
			p("}")
		}
	case codec.OpSwitch:
		sel := "sel"
		if in.Expr != nil {
			sel = e.expr(in.Expr, s)
		}
		k := e.tmp("sel")
		arms := &strings.Builder{}
		for _, c := range in.Cases {
			if len(c.Values) == 0 {
				continue
			}
			fmt.Fprintf(arms, "case %s:\n%s", e.cond(k, c.Values, s), e.decArm(c.Body, val, dst, s))
		}
		if arms.Len() == 0 {
			if in.Default != nil {
				sb.WriteString(e.decArm(in.Default, val, dst, s))
			} else {
				p("r.Warn(ctx, errors.Errorf(\"No case of %%s for %%d\", %q, %s))", in.Type.Tag(), sel)
			}
			break
		}
		def := ""
		if in.Default != nil {
			def = e.decArm(in.Default, val, dst, s)
		} else {
			def = fmt.Sprintf("r.Warn(ctx, errors.Errorf(\"No case of %%s for %%d\", %q, %s))\n", in.Type.Tag(), k)
		}
		p("switch %s := %s; {\n%sdefault:\n%s}", k, sel, arms, def)
	case codec.OpCall:
		args := val
		if in.Routine.Selector {
			args += ", " + e.expr(in.Expr, s)
		}
		p("%s = %s(ctx, r, %s)", dst, routineName(in.Routine), args)
	case codec.OpAttribs:
		a, i, k, x := e.tmp("a"), e.tmp("i"), e.tmp("k"), e.tmp("x")
		p("if %s := replay.Elems(%s); %s != nil {", a, val, a)
		p("%s = make([]Attrib, 0, len(%s)/2)", dst, a)
		p("for %s := 0; %s+1 < len(%s); %s += 2 {", i, i, a, i)
		p("%s := replay.Int(%s[%s])", k, a, i)
		p("var %s any", x)
		p("switch {")
		for _, c := range in.Cases {
			p("case %s:", e.cond(k, c.Values, s))
			sb.WriteString(e.decArm(c.Body, a+"["+i+"+1]", x, s))
		}
		p("default:")
		if in.Default != nil {
			sb.WriteString(e.decArm(in.Default, a+"["+i+"+1]", x, s))
		} else {
			p("r.Warn(ctx, errors.Errorf(\"No value type for key %%d of %%s\", %s, %q))", k, in.Type.Tag())
		}
		p("}")
		p("%s = append(%s, Attrib{Key: %s, Value: %s})", dst, dst, k, x)
		p("}\n}")
	}
	return sb.String()
}

// members decodes the members of a structure, those selected or keyed by
// their siblings last.
func (e *emitter) members(in *codec.Instr, val, dst string, s *scope) string {
	st := schema.Underlying(in.Type).(*schema.Struct)
	child := newScope(s)
	for _, m := range st.Members {
		child.bind(m.Name, dst+"."+exported(m.Name), m.Type)
	}
	sb := &strings.Builder{}
	for _, late := range []bool{false, true} {
		for i, m := range in.Members {
			if m.Dependent() != late {
				continue
			}
			sb.WriteString(e.dec(m, fmt.Sprintf("replay.Member(%s, %d)", val, i), dst+"."+exported(m.Name), child))
		}
	}
	return sb.String()
}

func (e *emitter) decArm(body *codec.Instr, val, dst string, s *scope) string {
	t := e.goType(body.Type)
	if t == "" {
		return ""
	}
	x := e.tmp("x")
	inner := e.dec(body, val, x, s)
	if inner == "" {
		return ""
	}
	return fmt.Sprintf("var %s %s\n%s%s = %s\n", x, t, inner, dst, x)
}

// reg returns the statements mapping the identities recorded in val to
// those of the live value.
func (e *emitter) reg(in *codec.Instr, val, live string, s *scope) string {
	if !registers(in) {
		return ""
	}
	sb := &strings.Builder{}
	p := printer(sb)
	switch in.Op {
	case codec.OpHandle:
		h := schema.Underlying(in.Type).(*schema.Handle)
		key := "0"
		if in.Key != nil {
			key = e.expr(in.Key, s)
		}
		if in.Expr == nil {
			p("r.Handles.Map(%q).Add(%s, uint64(replay.Int(%s)), uint64(%s))", h.Name, key, val, live)
			break
		}
		n := e.tmp("n")
		p("if %s := %s; %s > 0 {", n, e.expr(in.Expr, s), n)
		p("r.Handles.Map(%q).AddRange(%s, uint64(replay.Int(%s)), uint64(%s), uint64(%s))", h.Name, key, val, live, n)
		p("}")
	case codec.OpObject:
		p("if %s != nil {\nr.Objects.Add(ctx, uint64(replay.Int(%s)), %s)\n}", live, val, live)
	case codec.OpRegion:
		p("if %s != nil {\nr.Regions.Add(ctx, uint64(replay.Int(%s)), replay.Trim(%s, %s))\n}", live, val, live, e.expr(in.Expr, s))
	case codec.OpPointer:
		x := e.tmp("p")
		inner := e.reg(in.Elem, x, "(*"+live+")", s)
		p("if %s != nil {", live)
		p("if %s, ok := replay.Pointee(%s); ok {", used(x, inner), val)
		sb.WriteString(inner)
		p("}\n}")
	case codec.OpArray:
		i, x := e.tmp("i"), e.tmp("e")
		inner := fmt.Sprintf("if %s < len(%s) {\n%s}\n", i, live, e.reg(in.Elem, x, live+"["+i+"]", s))
		sb.WriteString(loop(i, x, "replay.Elems("+val+")", inner))
	case codec.OpStruct:
		st := schema.Underlying(in.Type).(*schema.Struct)
		child := newScope(s)
		for _, m := range st.Members {
			child.bind(m.Name, live+"."+exported(m.Name), m.Type)
		}
		x := e.tmp("s")
		p("{\n%s := %s", x, val)
		for i, m := range in.Members {
			sb.WriteString(e.reg(m, fmt.Sprintf("replay.Member(%s, %d)", x, i), live+"."+exported(m.Name), child))
		}
		p("}")
	case codec.OpSwitch:
		sel := "sel"
		if in.Expr != nil {
			sel = e.expr(in.Expr, s)
		}
		k := e.tmp("sel")
		arms := &strings.Builder{}
		for _, c := range in.Cases {
			if len(c.Values) > 0 && registers(c.Body) {
				fmt.Fprintf(arms, "case %s:\n%s", e.cond(k, c.Values, s), e.regArm(c.Body, val, live, s))
			}
		}
		if in.Default != nil && registers(in.Default) {
			fmt.Fprintf(arms, "default:\n%s", e.regArm(in.Default, val, live, s))
		}
		if arms.Len() > 0 {
			p("switch %s := %s; {\n%s}", k, sel, arms)
		}
	case codec.OpCall:
		args := val + ", " + live
		if in.Routine.Selector {
			args += ", " + e.expr(in.Expr, s)
		}
		p("%s(ctx, r, %s)", registerName(in.Routine), args)
	case codec.OpAttribs:
		a, i, x := e.tmp("a"), e.tmp("i"), e.tmp("x")
		arms := &strings.Builder{}
		for _, c := range in.Cases {
			if registers(c.Body) {
				fmt.Fprintf(arms, "case %s:\n%s", e.cond(x+".Key", c.Values, s), e.regArm(c.Body, a+"[2*"+i+"+1]", x+".Value", s))
			}
		}
		if in.Default != nil && registers(in.Default) {
			fmt.Fprintf(arms, "default:\n%s", e.regArm(in.Default, a+"[2*"+i+"+1]", x+".Value", s))
		}
		if arms.Len() == 0 {
			break
		}
		p("%s := replay.Elems(%s)", a, val)
		p("for %s, %s := range %s {", i, x, live)
		p("if 2*%s+1 >= len(%s) {\nbreak\n}", i, a)
		p("switch {\n%s}\n}", arms)
	}
	return sb.String()
}

func (e *emitter) regArm(body *codec.Instr, val, live string, s *scope) string {
	t := e.goType(body.Type)
	if t == "" {
		return ""
	}
	x := e.tmp("x")
	return fmt.Sprintf("if %s, ok := %s.(%s); ok {\n%s}\n", x, live, t, e.reg(body, val, x, s))
}
