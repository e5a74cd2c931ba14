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

package hash

import (
	"math"
	"testing"
)

func TestKey(t *testing.T) {
	type settings struct {
		Files  map[string]string
		Factor float64
		Grid   *[]float64
	}
	a := settings{Files: make(map[string]string), Factor: 0.001}
	b := settings{Files: make(map[string]string), Factor: 0.001}
	for _, k := range []string{"precipitation", "temperature", "albedo"} {
		a.Files[k] = k + ".nc"
	}
	for _, k := range []string{"albedo", "temperature", "precipitation"} {
		b.Files[k] = k + ".nc"
	}
	ka, kb := Key(a), Key(b)
	if ka != kb {
		t.Errorf("map order changed the key: %s != %s", ka, kb)
	}
	if len(ka) != 32 {
		t.Errorf("key %s should have 32 hex digits", ka)
	}

	b.Factor = 0.01
	if Key(b) == ka {
		t.Error("different settings have the same key")
	}

	g1, g2 := []float64{1, math.NaN()}, []float64{1, math.NaN()}
	a.Grid, b.Grid = &g1, &g2
	b.Factor = a.Factor
	if Key(a) != Key(b) {
		t.Error("keys depend on pointer addresses or NaN values")
	}
}
