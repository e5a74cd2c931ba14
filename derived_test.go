/*
Copyright © 2018 the HydroMet authors.
This file is part of HydroMet.

HydroMet is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HydroMet is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HydroMet.  If not, see <http://www.gnu.org/licenses/>.
*/

package hydromet

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/ctessum/sparse"
)

func TestDerivedOutputs(t *testing.T) {
	d, err := newDerivedOutputs(map[string]string{
		"c": "b * 2",
		"b": "a + exp(0) - min(a, 0)",
		"e": "max(a, 1)",
	}, []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	order := strings.Join(d.Names(), ",")
	if order != "b,c,e" {
		t.Errorf("evaluation order: %s", order)
	}
	a := testGrid(-1, 0, 1, 2, 3, 4, 5, math.NaN())
	o, err := d.evaluate(func(name string) (*sparse.DenseArray, error) {
		if name != "a" {
			return nil, fmt.Errorf("unknown variable %s", name)
		}
		return a, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]float64{
		"b": {1, 1, 2, 3, 4, 5, 6, math.NaN()},
		"c": {2, 2, 4, 6, 8, 10, 12, math.NaN()},
		"e": {1, 1, 1, 2, 3, 4, 5, math.NaN()},
	}
	for name, w := range want {
		for i, v := range w {
			if different(o[name].Elements[i], v, testTolerance) {
				t.Errorf("%s cell %d: have %g, want %g", name, i, o[name].Elements[i], v)
			}
		}
	}
}

func TestDerivedOutputsErrors(t *testing.T) {
	for _, tt := range []struct {
		defs map[string]string
		want string
	}{
		{defs: map[string]string{"x-y": "a"}, want: "unsupported characters"},
		{defs: map[string]string{"a": "a * 2"}, want: "same name"},
		{defs: map[string]string{"x": "2 * 3"}, want: "does not use any variables"},
		{defs: map[string]string{"x": "a * q"}, want: "undefined variable"},
		{defs: map[string]string{"x": "y + a", "y": "x * 2"}, want: "in terms of itself"},
		{defs: map[string]string{"x": "a * (2"}, want: "derived output 'x'"},
	} {
		_, err := newDerivedOutputs(tt.defs, []string{"a"})
		if err == nil {
			t.Errorf("%v: expected an error", tt.defs)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%v: error %q should contain %q", tt.defs, err, tt.want)
		}
	}
}
