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
	"math"

	"github.com/ctessum/sparse"
)

// Correction is a linear conversion x' = Constant + Factor·x applied to a
// forcing field. A non-nil grid overrides the corresponding scalar.
type Correction struct {
	Constant, Factor         float64
	ConstantGrid, FactorGrid *sparse.DenseArray
}

// Identity is the correction that leaves fields unchanged.
var Identity = Correction{Factor: 1}

func (c Correction) at(i int) (constant, factor float64) {
	constant, factor = c.Constant, c.Factor
	if c.ConstantGrid != nil {
		constant = c.ConstantGrid.Elements[i]
	}
	if c.FactorGrid != nil {
		factor = c.FactorGrid.Elements[i]
	}
	return
}

// Apply returns the corrected field, with missing values outside of domain d.
func (c Correction) Apply(d *Domain, raw *sparse.DenseArray) *sparse.DenseArray {
	o := d.Zeros()
	for i, x := range raw.Elements {
		if !d.Mask[i] {
			o.Elements[i] = math.NaN()
			continue
		}
		constant, factor := c.at(i)
		o.Elements[i] = constant + factor*x
	}
	return o
}

// Conversions holds the correction for each forcing variable. Variables
// without an entry are not changed.
type Conversions map[string]Correction

// Get returns the correction for variable name.
func (c Conversions) Get(name string) Correction {
	if cc, ok := c[name]; ok {
		return cc
	}
	return Identity
}

// Convert corrects raw, which holds variable name.
func (c Conversions) Convert(d *Domain, name string, raw *sparse.DenseArray) *sparse.DenseArray {
	return c.Get(name).Apply(d, raw)
}

// precipitationRoundDown is the resolution [m] that precipitation is
// optionally truncated to.
const precipitationRoundDown = 1e-5

// ConvertPrecipitation corrects raw precipitation. Missing values inside
// the domain become zero and the result is bounded below by zero. If
// roundDown is set, values are truncated to a resolution of 0.01 mm.
func (c Conversions) ConvertPrecipitation(d *Domain, raw *sparse.DenseArray, roundDown bool) *sparse.DenseArray {
	p := c.Convert(d, VarPrecipitation, raw)
	for i, x := range p.Elements {
		if !d.Mask[i] {
			continue
		}
		if math.IsNaN(x) || x < 0 {
			x = 0
		}
		if roundDown {
			x = math.Floor(x/precipitationRoundDown+1e-9) * precipitationRoundDown
		}
		p.Elements[i] = x
	}
	return p
}
