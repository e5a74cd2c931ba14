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

// Package bristowcampbell estimates incoming shortwave radiation from the
// diurnal temperature range using the Bristow and Campbell (1984)
// transmissivity relationship, with the clear-sky and coefficient
// parameterizations of Thornton and Running (1999) and Winslow et al. (2001).
//
// The model is stateful: it keeps a running mean annual temperature and a
// running mean diurnal temperature range for every grid cell, which are
// updated once per call to Shortwave.
package bristowcampbell

import (
	"fmt"
	"math"
)

// Model holds the per-cell persistent state and the model parameters.
type Model struct {
	// TempAnnual is the running mean annual air temperature [°C].
	TempAnnual []float64

	// DeltaTempMean is the running mean diurnal temperature range [K].
	DeltaTempMean []float64

	// ClearSky is the clear-sky transmissivity of a dry atmosphere [-].
	ClearSky float64

	// Humidity is the reduction in clear-sky transmissivity per unit
	// vapour pressure [Pa-1].
	Humidity float64

	// Exponent is the exponent applied to the diurnal temperature range.
	Exponent float64

	// WetDay is the transmissivity multiplier on days with precipitation.
	WetDay float64

	// Memory is the e-folding length [days] of the running means.
	Memory float64
}

// New returns a model with the given initial state and default parameters.
// The state slices are used directly and updated in place.
func New(tempAnnual, deltaTempMean []float64) (*Model, error) {
	if len(tempAnnual) != len(deltaTempMean) {
		return nil, fmt.Errorf("bristowcampbell: state lengths differ (%d != %d)",
			len(tempAnnual), len(deltaTempMean))
	}
	return &Model{
		TempAnnual:    tempAnnual,
		DeltaTempMean: deltaTempMean,
		ClearSky:      0.87,
		Humidity:      6.1e-5,
		Exponent:      1.5,
		WetDay:        0.75,
		Memory:        365,
	}, nil
}

// Inputs are the daily driving variables, one value per grid cell.
type Inputs struct {
	Precipitation []float64 // [m day-1]
	TMin          []float64 // [°C]
	TMax          []float64 // [°C]
	TAvg          []float64 // [°C]
	Dewpoint      []float64 // [°C]

	// Extraterrestrial is the top-of-atmosphere radiation [MJ m-2 day-1].
	Extraterrestrial []float64
}

// VapourPressure returns the actual vapour pressure [Pa] at dewpoint
// temperature td [°C].
func VapourPressure(td float64) float64 {
	return 610.8 * math.Exp(17.27*td/(td+237.3))
}

// Shortwave returns the incoming shortwave radiation and the
// extraterrestrial radiation, both in [J m-2 day-1], and advances the
// model state by one day. Missing temperatures are covered by the
// corresponding state values.
func (m *Model) Shortwave(in Inputs) (act, ext []float64, err error) {
	n := len(m.TempAnnual)
	for _, v := range [][]float64{in.Precipitation, in.TMin, in.TMax, in.TAvg,
		in.Dewpoint, in.Extraterrestrial} {
		if len(v) != n {
			return nil, nil, fmt.Errorf("bristowcampbell: input length %d does not match state length %d", len(v), n)
		}
	}
	act = make([]float64, n)
	ext = make([]float64, n)
	for i := 0; i < n; i++ {
		rExt := in.Extraterrestrial[i]
		if math.IsNaN(rExt) {
			act[i], ext[i] = math.NaN(), math.NaN()
			continue
		}
		tAvg := in.TAvg[i]
		if math.IsNaN(tAvg) {
			tAvg = m.TempAnnual[i]
		}
		δT := in.TMax[i] - in.TMin[i]
		if math.IsNaN(δT) {
			δT = m.DeltaTempMean[i]
		}
		δT = math.Max(0, δT)

		τ := m.transmissivity(δT, m.DeltaTempMean[i], in.Dewpoint[i], in.Precipitation[i])
		act[i] = τ * rExt * 1e6
		ext[i] = rExt * 1e6

		m.TempAnnual[i] += (tAvg - m.TempAnnual[i]) / m.Memory
		m.DeltaTempMean[i] += (δT - m.DeltaTempMean[i]) / m.Memory
	}
	return act, ext, nil
}

func (m *Model) transmissivity(δT, δTMean, dewpoint, precip float64) float64 {
	τcf := m.ClearSky
	if !math.IsNaN(dewpoint) {
		τcf -= m.Humidity * VapourPressure(dewpoint)
	}
	τcf = math.Min(math.Max(τcf, 0), 1)
	b := 0.031 + 0.201*math.Exp(-0.185*δTMean)
	τ := τcf * (1 - math.Exp(-b*math.Pow(δT, m.Exponent)))
	if precip > 0 {
		τ *= m.WetDay
	}
	return τ
}
