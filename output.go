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
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// Sink receives reported fields.
type Sink interface {
	// Emit stores data as record index of output o, timestamped with date.
	Emit(o Output, data *sparse.DenseArray, date time.Time, index int) error

	Close() error
}

// variableInfo describes a reported variable.
type variableInfo struct {
	description string
	dims        unit.Dimensions

	// units overrides dims for units that are not SI base combinations.
	units string

	// perDay is true for daily rates, whose totals are amounts.
	perDay bool
}

const wattPerMeter2 = "W m-2"

var variableInfos = map[string]variableInfo{
	VarPrecipitation:    {description: "Precipitation", dims: unit.Meter, perDay: true},
	VarReferencePotET:   {description: "Reference potential evapotranspiration", dims: unit.Meter, perDay: true},
	VarTemperature:      {description: "Average air temperature", units: "degC"},
	VarExtraterrestrial: {description: "Extraterrestrial radiation", units: wattPerMeter2},
	VarShortwave:        {description: "Incoming shortwave radiation", units: wattPerMeter2},
	VarLongwave:         {description: "Net outgoing longwave radiation", units: wattPerMeter2},
	VarNetRadiation:     {description: "Net radiation", units: wattPerMeter2},
	VarWindSpeed:        {description: "Wind speed at 10 m", dims: unit.MeterPerSecond},
	VarTempAnnual:       {description: "Running mean annual air temperature", units: "degC"},
	VarDeltaTempMean:    {description: "Running mean diurnal temperature range", dims: unit.Kelvin},
}

func variableInfoFor(v string) variableInfo {
	if info, ok := variableInfos[v]; ok {
		return info
	}
	return variableInfo{description: v, units: "1"}
}

// unitsFor returns the units of the variable reported at cadence c.
func (v variableInfo) unitsFor(c Cadence) string {
	u := v.units
	if u == "" {
		u = v.dims.String()
	}
	periodTotal := c == MonthTot || c == AnnuaTot
	switch {
	case v.perDay && !periodTotal:
		return u + " day-1"
	case !v.perDay && periodTotal:
		return u + " day"
	default:
		return u
	}
}

// NCFSink writes each output to its own NetCDF file named
// {variable}_{cadence}.nc in a directory.
type NCFSink struct {
	dir     string
	domain  *Domain
	streams map[Output]*ncfStream
	files   []string
}

type ncfStream struct {
	f    *os.File
	ff   *cdf.File
	path string
}

// NewNCFSink creates the output files for outputs in dir.
func NewNCFSink(dir string, d *Domain, outputs []Output) (*NCFSink, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("hydromet: creating output directory: %v", err)
	}
	s := &NCFSink{dir: dir, domain: d, streams: make(map[Output]*ncfStream)}
	for _, o := range outputs {
		if _, ok := s.streams[o]; ok {
			continue
		}
		path := filepath.Join(dir, o.String()+".nc")
		info := variableInfoFor(o.Variable)
		f, ff, err := createNCF(path, d, o.Variable, true, info.unitsFor(o.Cadence),
			fmt.Sprintf("%s (%s)", info.description, o.Cadence))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("hydromet: creating output file %s: %v", path, err)
		}
		s.streams[o] = &ncfStream{f: f, ff: ff, path: path}
		s.files = append(s.files, path)
	}
	sort.Strings(s.files)
	return s, nil
}

// Emit implements Sink.
func (s *NCFSink) Emit(o Output, data *sparse.DenseArray, date time.Time, index int) error {
	st, ok := s.streams[o]
	if !ok {
		return fmt.Errorf("hydromet: no output file for %s", o)
	}
	if err := s.domain.checkShape(o.String(), data); err != nil {
		return err
	}
	if err := writeRecord(st.ff, o.Variable, data, date, index); err != nil {
		return fmt.Errorf("hydromet: writing %s: %v", st.path, err)
	}
	return nil
}

// Files returns the paths of the output files.
func (s *NCFSink) Files() []string { return s.files }

// Close updates the record counts and closes all output files.
func (s *NCFSink) Close() error {
	var firstErr error
	for _, st := range s.streams {
		if err := cdf.UpdateNumRecs(st.f); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := st.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.streams = nil
	return firstErr
}
