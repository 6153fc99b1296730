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

package assert

import (
	"fmt"
	"strings"
)

// scalar holds the equality tests shared by the typed scalar assertions.
type scalar[T comparable] struct {
	Assertion
	value T
}

// Equals asserts that the value is equal to expect.
func (o scalar[T]) Equals(expect T) bool {
	return o.Compare(o.value, "==", expect).Test(o.value == expect)
}

// NotEquals asserts that the value differs from test.
func (o scalar[T]) NotEquals(test T) bool {
	return o.Compare(o.value, "!=", test).Test(o.value != test)
}

// OnBoolean is the result of calling ThatBoolean on an Assertion.
type OnBoolean struct{ scalar[bool] }

// ThatBoolean returns an OnBoolean for assertions on boolean values.
func (a Assertion) ThatBoolean(value bool) OnBoolean {
	return OnBoolean{scalar[bool]{a, value}}
}

// IsTrue asserts that the value is true.
func (o OnBoolean) IsTrue() bool { return o.Equals(true) }

// IsFalse asserts that the value is false.
func (o OnBoolean) IsFalse() bool { return o.Equals(false) }

// OnInteger is the result of calling ThatInteger on an Assertion.
type OnInteger struct{ scalar[int] }

// ThatInteger returns an OnInteger for assertions on int values.
func (a Assertion) ThatInteger(value int) OnInteger {
	return OnInteger{scalar[int]{a, value}}
}

// IsAtLeast asserts that the value is not below min.
func (o OnInteger) IsAtLeast(min int) bool {
	return o.Compare(o.value, ">=", min).Test(o.value >= min)
}

// IsAtMost asserts that the value is not above max.
func (o OnInteger) IsAtMost(max int) bool {
	return o.Compare(o.value, "<=", max).Test(o.value <= max)
}

// IsBetween asserts that min <= value <= max.
func (o OnInteger) IsBetween(min, max int) bool {
	return o.CompareRaw(o.value, "in", min, "to", max).Test(o.value >= min && o.value <= max)
}

// OnString is the result of calling ThatString on an Assertion.
type OnString struct{ scalar[string] }

// ThatString returns an OnString for assertions on text. Byte slices are
// converted directly, other values through fmt.Sprint.
func (a Assertion) ThatString(value interface{}) OnString {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		s = fmt.Sprint(value)
	}
	return OnString{scalar[string]{a, s}}
}

// Equals asserts that the string is expect, printing where they diverge.
func (o OnString) Equals(expect string) bool {
	return o.Compare(o.value, "==", expect).Test(func() bool {
		if o.value == expect {
			return true
		}
		i := 0
		for i < len(o.value) && i < len(expect) && o.value[i] == expect[i] {
			i++
		}
		switch {
		case i == len(expect):
			o.Printf("Longer\tby\t")
			o.Println(o.value[i:])
		case i == len(o.value):
			o.Printf("Shorter\tby\t")
			o.Println(expect[i:])
		default:
			o.Printf("Differs\tfrom\t")
			o.Println(o.value[i:])
		}
		return false
	}())
}

// Contains asserts that substr occurs in the string.
func (o OnString) Contains(substr string) bool {
	return o.Compare(o.value, "contains", substr).Test(strings.Contains(o.value, substr))
}

// DoesNotContain asserts that substr does not occur in the string.
func (o OnString) DoesNotContain(substr string) bool {
	return o.Compare(o.value, "does not contain", substr).Test(!strings.Contains(o.value, substr))
}

// HasPrefix asserts that the string starts with prefix.
func (o OnString) HasPrefix(prefix string) bool {
	return o.Compare(o.value, "starts with", prefix).Test(strings.HasPrefix(o.value, prefix))
}

// HasSuffix asserts that the string ends with suffix.
func (o OnString) HasSuffix(suffix string) bool {
	return o.Compare(o.value, "ends with", suffix).Test(strings.HasSuffix(o.value, suffix))
}
