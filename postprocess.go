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

// ignoreSnowTemperature [°C] is high enough that all precipitation is rain.
const ignoreSnowTemperature = 25.

// postprocess smooths, rounds, masks and clamps the state in place.
// Temperature is not clamped.
func (m *Meteo) postprocess(s *State) {
	if w := m.cfg.SmoothingWindow; w > 1 {
		s.Precipitation = windowAverage(s.Precipitation, w)
		s.Temperature = windowAverage(s.Temperature, w)
		s.ReferencePotET = windowAverage(s.ReferencePotET, w)
	}
	s.Temperature = apply(s.Temperature, func(t float64) float64 {
		return math.Round(t*1000) / 1000
	})
	if m.cfg.IgnoreSnow {
		s.Temperature = m.domain.Full(ignoreSnowTemperature)
	}
	for _, g := range []struct {
		a           *sparse.DenseArray
		nonNegative bool
	}{
		{s.Precipitation, true}, {s.Temperature, false}, {s.ReferencePotET, true},
		{s.Extraterrestrial, false}, {s.Shortwave, false}, {s.Longwave, false},
		{s.NetRadiation, false}, {s.WindSpeed, false},
	} {
		if g.a == nil {
			continue
		}
		m.domain.IfThen(g.a)
		if g.nonNegative {
			clampMin(g.a, 0)
		}
	}
}
