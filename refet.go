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

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/hydromet/science/hamon"
	"github.com/spatialmodel/hydromet/science/penmanmonteith"
	"github.com/spatialmodel/hydromet/science/solar"
)

// ReferenceETMethod specifies how reference potential evapotranspiration
// is obtained.
type ReferenceETMethod int

const (
	// InputET reads reference ET from forcing.
	InputET ReferenceETMethod = iota
	// HamonET calculates reference ET from temperature and day length.
	HamonET
	// PenmanMonteithET calculates reference ET from the energy balance.
	PenmanMonteithET
)

var referenceETMethodNames = []string{"Input", "Hamon", "PenmanMonteith"}

func (m ReferenceETMethod) String() string {
	if m < 0 || int(m) >= len(referenceETMethodNames) {
		return fmt.Sprintf("ReferenceETMethod(%d)", int(m))
	}
	return referenceETMethodNames[m]
}

// ParseReferenceETMethod converts a method name such as "Hamon" or
// "Penman-Monteith" to a ReferenceETMethod.
func ParseReferenceETMethod(s string) (ReferenceETMethod, error) {
	norm := strings.Replace(s, "-", "", -1)
	for i, n := range referenceETMethodNames {
		if strings.EqualFold(norm, n) {
			return ReferenceETMethod(i), nil
		}
	}
	return InputET, fmt.Errorf("hydromet: invalid reference ET method %q; valid options are %v",
		s, referenceETMethodNames)
}

// referenceET calculates reference ET for a timestep.
type referenceET interface {
	// variables returns the forcing variables the method reads, other
	// than precipitation and temperature, given the configured sources.
	// It returns an error if a required variable is not configured.
	variables(sources map[string]Source) ([]string, error)

	// compute sets s.ReferencePotET and any intermediate results,
	// using the downscaled precipitation and temperature in s.
	compute(ts *TimeStep, in fields, s *State) error
}

func requireAll(m fmt.Stringer, sources map[string]Source, names ...string) error {
	for _, n := range names {
		if _, ok := sources[n]; !ok {
			return fmt.Errorf("hydromet: forcing variable %q is required by the %v method", n, m)
		}
	}
	return nil
}

type inputET struct{}

func (inputET) variables(sources map[string]Source) ([]string, error) {
	if err := requireAll(InputET, sources, VarReferencePotET); err != nil {
		return nil, err
	}
	return []string{VarReferencePotET}, nil
}

func (inputET) compute(_ *TimeStep, in fields, s *State) error {
	s.ReferencePotET = in[VarReferencePotET].Copy()
	return nil
}

type hamonET struct {
	domain *Domain
}

func (hamonET) variables(map[string]Source) ([]string, error) { return nil, nil }

func (h hamonET) compute(ts *TimeStep, _ fields, s *State) error {
	s.ReferencePotET = apply2(s.Temperature, h.domain.Latitude, func(t, lat float64) float64 {
		return hamon.PotET(t, ts.DOY, ts.DaysInYear, lat)
	})
	return nil
}

type penmanMonteithET struct {
	domain        *Domain
	shortwave     shortwave
	method        ShortwaveMethod
	params        penmanmonteith.Parameters
	solarConstant float64

	// extraterrestrial calculates astronomic extraterrestrial radiation
	// [MJ m-2 day-1]. It is only called when the radiation is not read
	// from forcing.
	extraterrestrial func(doy, daysInYear int, lat, s float64) float64
	readExt          bool
}

func newPenmanMonteithET(d *Domain, method ShortwaveMethod, solarConstant float64, bc BristowCampbellConfig) (*penmanMonteithET, error) {
	sw, err := newShortwave(method, d, bc)
	if err != nil {
		return nil, err
	}
	if solarConstant == 0 {
		solarConstant = solar.DefaultConstant
	}
	return &penmanMonteithET{
		domain:           d,
		shortwave:        sw,
		method:           method,
		params:           penmanmonteith.DefaultParameters,
		solarConstant:    solarConstant,
		extraterrestrial: solar.Extraterrestrial,
	}, nil
}

func (pm *penmanMonteithET) variables(sources map[string]Source) ([]string, error) {
	vars := []string{VarPressure, VarDewpoint}
	if err := requireAll(PenmanMonteithET, sources, vars...); err != nil {
		return nil, err
	}
	if _, ok := sources[VarWindSpeed]; ok {
		vars = append(vars, VarWindSpeed)
	} else {
		if err := requireAll(PenmanMonteithET, sources, VarWindU, VarWindV); err != nil {
			return nil, fmt.Errorf("%v (or %q)", err, VarWindSpeed)
		}
		vars = append(vars, VarWindU, VarWindV)
	}
	if _, ok := sources[VarExtraterrestrial]; ok {
		pm.readExt = true
		vars = append(vars, VarExtraterrestrial)
	}
	sw := pm.shortwave.required()
	if err := requireAll(pm.method, sources, sw...); err != nil {
		return nil, err
	}
	for _, v := range sw {
		if v != VarDewpoint {
			vars = append(vars, v)
		}
	}
	return vars, nil
}

func (pm *penmanMonteithET) compute(ts *TimeStep, in fields, s *State) error {
	var ext *sparse.DenseArray
	if pm.readExt {
		ext = in[VarExtraterrestrial].Copy()
	} else {
		ext = apply(pm.domain.Latitude, func(lat float64) float64 {
			return pm.extraterrestrial(ts.DOY, ts.DaysInYear, lat, pm.solarConstant) * 1e6
		})
		pm.domain.IfThen(ext)
	}

	sw, err := pm.shortwave.compute(in, s, ext)
	if err != nil {
		return fmt.Errorf("hydromet: calculating shortwave radiation: %v", err)
	}

	var wind *sparse.DenseArray
	if w, ok := in[VarWindSpeed]; ok {
		wind = w.Copy()
	} else {
		wind = apply2(in[VarWindU], in[VarWindV], math.Hypot)
	}

	n := len(ext.Elements)
	s.Extraterrestrial = sparse.ZerosDense(ext.Shape...)
	s.Shortwave = sparse.ZerosDense(ext.Shape...)
	s.Longwave = sparse.ZerosDense(ext.Shape...)
	s.NetRadiation = sparse.ZerosDense(ext.Shape...)
	s.ReferencePotET = sparse.ZerosDense(ext.Shape...)
	for i := 0; i < n; i++ {
		t := s.Temperature.Elements[i]
		e := penmanmonteith.SatVapourPressure(in[VarDewpoint].Elements[i])
		fraction := 0.
		if x := ext.Elements[i]; x != 0 && !math.IsNaN(x) && !math.IsNaN(sw.Elements[i]) {
			fraction = math.Min(math.Max(sw.Elements[i]/x, 0), 1)
		}
		swFlux := penmanmonteith.DailyToFlux(sw.Elements[i])
		lw := penmanmonteith.Longwave(t, e, fraction)
		rn := penmanmonteith.NetRadiation(swFlux, lw)

		s.Extraterrestrial.Elements[i] = penmanmonteith.DailyToFlux(ext.Elements[i])
		s.Shortwave.Elements[i] = swFlux
		s.Longwave.Elements[i] = lw
		s.NetRadiation.Elements[i] = rn
		s.ReferencePotET.Elements[i] = pm.params.ReferenceET(rn, 0, t,
			wind.Elements[i], in[VarPressure].Elements[i], e)
	}
	s.WindSpeed = wind
	return nil
}
