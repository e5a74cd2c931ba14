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
	"strings"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/hydromet/science/solar/bristowcampbell"
)

// ShortwaveMethod specifies how incoming shortwave radiation is obtained
// for the Penman-Monteith method.
type ShortwaveMethod int

const (
	// DirectShortwave reads shortwave radiation from forcing.
	DirectShortwave ShortwaveMethod = iota
	// NetRadiationShortwave calculates shortwave radiation from net solar
	// radiation and albedo.
	NetRadiationShortwave
	// BristowCampbellShortwave estimates shortwave radiation from the
	// diurnal temperature range.
	BristowCampbellShortwave
)

var shortwaveMethodNames = []string{"Direct", "NetRadiation", "BristowCampbell"}

func (m ShortwaveMethod) String() string {
	if m < 0 || int(m) >= len(shortwaveMethodNames) {
		return fmt.Sprintf("ShortwaveMethod(%d)", int(m))
	}
	return shortwaveMethodNames[m]
}

// ParseShortwaveMethod converts a method name to a ShortwaveMethod.
func ParseShortwaveMethod(s string) (ShortwaveMethod, error) {
	for i, n := range shortwaveMethodNames {
		if strings.EqualFold(s, n) {
			return ShortwaveMethod(i), nil
		}
	}
	return DirectShortwave, fmt.Errorf("hydromet: invalid shortwave method %q; valid options are %v",
		s, shortwaveMethodNames)
}

// BristowCampbellConfig holds the initial state of the Bristow-Campbell
// shortwave model. Each state grid, or the scalar used when the grid is
// nil, is corrected by its own Correction.
type BristowCampbellConfig struct {
	TempAnnual, DeltaTempMean           *sparse.DenseArray
	TempAnnualValue, DeltaTempMeanValue float64

	TempAnnualCorrection, DeltaTempMeanCorrection Correction
}

// fields holds forcing grids by variable name.
type fields map[string]*sparse.DenseArray

// shortwave calculates incoming shortwave radiation.
type shortwave interface {
	required() []string

	// compute returns shortwave radiation [J m-2 day-1] given
	// extraterrestrial radiation ext [J m-2 day-1].
	compute(in fields, s *State, ext *sparse.DenseArray) (*sparse.DenseArray, error)
}

func newShortwave(m ShortwaveMethod, d *Domain, cfg BristowCampbellConfig) (shortwave, error) {
	switch m {
	case DirectShortwave:
		return directShortwave{}, nil
	case NetRadiationShortwave:
		return netRadiationShortwave{}, nil
	case BristowCampbellShortwave:
		return newBristowCampbellShortwave(d, cfg)
	default:
		return nil, fmt.Errorf("hydromet: invalid shortwave method %v", m)
	}
}

type directShortwave struct{}

func (directShortwave) required() []string { return []string{VarShortwave} }

func (directShortwave) compute(in fields, _ *State, _ *sparse.DenseArray) (*sparse.DenseArray, error) {
	return in[VarShortwave].Copy(), nil
}

type netRadiationShortwave struct{}

func (netRadiationShortwave) required() []string { return []string{VarNetSolar, VarAlbedo} }

func (netRadiationShortwave) compute(in fields, _ *State, _ *sparse.DenseArray) (*sparse.DenseArray, error) {
	return apply2(in[VarNetSolar], in[VarAlbedo], func(net, albedo float64) float64 {
		return net / (1 - albedo)
	}), nil
}

type bristowCampbellShortwave struct {
	model *bristowcampbell.Model
}

func newBristowCampbellShortwave(d *Domain, cfg BristowCampbellConfig) (*bristowCampbellShortwave, error) {
	initial := func(name string, g *sparse.DenseArray, v float64, c Correction) ([]float64, error) {
		if g == nil {
			g = d.Full(v)
		} else if err := d.checkShape(name, g); err != nil {
			return nil, err
		}
		return c.Apply(d, g).Elements, nil
	}
	ta, err := initial("annual temperature", cfg.TempAnnual, cfg.TempAnnualValue, cfg.TempAnnualCorrection)
	if err != nil {
		return nil, err
	}
	dt, err := initial("mean diurnal temperature range", cfg.DeltaTempMean, cfg.DeltaTempMeanValue, cfg.DeltaTempMeanCorrection)
	if err != nil {
		return nil, err
	}
	m, err := bristowcampbell.New(ta, dt)
	if err != nil {
		return nil, err
	}
	return &bristowCampbellShortwave{model: m}, nil
}

func (*bristowCampbellShortwave) required() []string {
	return []string{VarTMax, VarTMin, VarDewpoint}
}

func (b *bristowCampbellShortwave) compute(in fields, s *State, ext *sparse.DenseArray) (*sparse.DenseArray, error) {
	extMJ := apply(ext, func(x float64) float64 { return x / 1e6 })
	act, _, err := b.model.Shortwave(bristowcampbell.Inputs{
		Precipitation:    s.Precipitation.Elements,
		TMin:             in[VarTMin].Elements,
		TMax:             in[VarTMax].Elements,
		TAvg:             s.Temperature.Elements,
		Dewpoint:         in[VarDewpoint].Elements,
		Extraterrestrial: extMJ.Elements,
	})
	if err != nil {
		return nil, err
	}
	o := sparse.ZerosDense(ext.Shape...)
	o.Elements = act
	return o, nil
}

// state returns the current model state grids.
func (b *bristowCampbellShortwave) state(shape []int) (tempAnnual, deltaTempMean *sparse.DenseArray) {
	tempAnnual = sparse.ZerosDense(shape...)
	copy(tempAnnual.Elements, b.model.TempAnnual)
	deltaTempMean = sparse.ZerosDense(shape...)
	copy(deltaTempMean.Elements, b.model.DeltaTempMean)
	return
}
