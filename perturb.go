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
	"errors"
	"math"
	"math/rand"
)

// ErrUnsupportedPerturbation is returned when a variable cannot be perturbed.
var ErrUnsupportedPerturbation = errors.New("hydromet: unsupported perturbation")

// Bounds of the multiplicative precipitation perturbation.
const (
	minPerturbationFactor = 0.01
	maxPerturbationFactor = 2.0
)

// Perturb multiplies the current value of variable name by a random
// factor 1+N(0,1)·std drawn independently for each cell, for ensemble runs.
// Only precipitation can be perturbed.
func (m *Meteo) Perturb(name string, std float64, rng *rand.Rand) error {
	if name != VarPrecipitation || m.state.Precipitation == nil {
		return ErrUnsupportedPerturbation
	}
	p := m.state.Precipitation.Copy()
	for i, x := range p.Elements {
		if math.IsNaN(x) {
			continue
		}
		f := 1 + rng.NormFloat64()*std
		p.Elements[i] = x * math.Min(math.Max(f, minPerturbationFactor), maxPerturbationFactor)
	}
	m.state.Precipitation = p
	m.derivedState = nil
	return nil
}
