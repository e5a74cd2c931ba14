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
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// timeOrigin is the reference date of the time axis in written files.
var timeOrigin = time.Date(1901, 1, 1, 0, 0, 0, 0, time.UTC)

const timeUnits = "days since 1901-01-01"

// ncfFile is an open NetCDF file.
type ncfFile struct {
	f    *os.File
	ff   *cdf.File
	size int64
}

// openNCF opens the NetCDF file at path for reading.
func openNCF(path string) (*ncfFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	ff, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hydromet: opening netcdf file %s: %v", path, err)
	}
	return &ncfFile{f: f, ff: ff, size: fi.Size()}, nil
}

func (n *ncfFile) Close() error { return n.f.Close() }

// numRecs returns the length of the outermost dimension of variable v.
func (n *ncfFile) numRecs(v string) int {
	dims := n.ff.Header.Lengths(v)
	if len(dims) == 0 {
		return 0
	}
	if n.ff.Header.IsRecordVariable(v) {
		return int(n.ff.Header.NumRecs(n.size))
	}
	return dims[0]
}

// readGrid reads the two dimensional field of variable v. If v has a
// leading time dimension, record index is read; otherwise index is ignored.
// Fill values are replaced by NaN and packed values are unpacked.
func (n *ncfFile) readGrid(v string, index int) (*sparse.DenseArray, error) {
	dims := n.ff.Header.Lengths(v)
	var begin, end []int
	var ny, nx int
	switch len(dims) {
	case 0:
		return nil, fmt.Errorf("hydromet: read netcdf: variable %s not in file", v)
	case 2:
		ny, nx = dims[0], dims[1]
		begin, end = []int{0, 0}, []int{ny - 1, nx - 1}
	case 3:
		if index < 0 {
			index = 0
		}
		if nrec := n.numRecs(v); index >= nrec {
			return nil, fmt.Errorf("hydromet: read netcdf: record %d of variable %s requested but file has %d records", index, v, nrec)
		}
		ny, nx = dims[1], dims[2]
		begin, end = []int{index, 0, 0}, []int{index, ny - 1, nx - 1}
	default:
		return nil, fmt.Errorf("hydromet: read netcdf: variable %s has %d dimensions; need 2 or 3", v, len(dims))
	}
	r := n.ff.Reader(v, begin, end)
	buf := r.Zero(ny * nx)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("hydromet: read netcdf variable %s: %v", v, err)
	}
	vals, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("hydromet: read netcdf variable %s: %v", v, err)
	}
	n.unpack(v, vals)
	data := sparse.ZerosDense(ny, nx)
	data.Elements = vals
	return data, nil
}

// readVector reads all values of the one dimensional variable v.
func (n *ncfFile) readVector(v string) ([]float64, error) {
	dims := n.ff.Header.Lengths(v)
	if len(dims) != 1 {
		return nil, fmt.Errorf("hydromet: read netcdf: variable %s is not one dimensional", v)
	}
	nrec := n.numRecs(v)
	if nrec == 0 {
		return []float64{}, nil
	}
	r := n.ff.Reader(v, []int{0}, []int{nrec - 1})
	buf := r.Zero(nrec)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("hydromet: read netcdf variable %s: %v", v, err)
	}
	vals, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("hydromet: read netcdf variable %s: %v", v, err)
	}
	n.unpack(v, vals)
	return vals, nil
}

// unpack applies the fill value and the scale_factor and add_offset
// attributes of variable v, in place.
func (n *ncfFile) unpack(v string, vals []float64) {
	fill, hasFill := n.attrFloat(v, "_FillValue")
	missing, hasMissing := n.attrFloat(v, "missing_value")
	scale, hasScale := n.attrFloat(v, "scale_factor")
	offset, hasOffset := n.attrFloat(v, "add_offset")
	for i, x := range vals {
		if (hasFill && x == fill) || (hasMissing && x == missing) {
			vals[i] = math.NaN()
			continue
		}
		if hasScale {
			x *= scale
		}
		if hasOffset {
			x += offset
		}
		vals[i] = x
	}
}

// attrFloat returns the first value of numeric attribute a of variable v.
func (n *ncfFile) attrFloat(v, a string) (float64, bool) {
	switch t := n.ff.Header.GetAttribute(v, a).(type) {
	case []float32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case []float64:
		if len(t) > 0 {
			return t[0], true
		}
	case []int16:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case []int32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	}
	return 0, false
}

// attrString returns string attribute a of variable v.
func (n *ncfFile) attrString(v, a string) string {
	if s, ok := n.ff.Header.GetAttribute(v, a).(string); ok {
		return s
	}
	return ""
}

// timeAxis reads the dates of the records in the file from the "time"
// variable, which must have units of the form "days since 1901-01-01".
func (n *ncfFile) timeAxis() ([]time.Time, error) {
	vals, err := n.readVector("time")
	if err != nil {
		return nil, err
	}
	step, origin, err := parseTimeUnits(n.attrString("time", "units"))
	if err != nil {
		return nil, err
	}
	o := make([]time.Time, len(vals))
	for i, v := range vals {
		o[i] = truncateDay(origin.Add(time.Duration(v * float64(step))))
	}
	return o, nil
}

// parseTimeUnits parses CF time units such as "hours since 1990-01-01 00:00:00".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("hydromet: invalid time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(parts[0]) {
	case "days", "day", "d":
		step = 24 * time.Hour
	case "hours", "hour", "h":
		step = time.Hour
	case "minutes", "minute":
		step = time.Minute
	case "seconds", "second", "s":
		step = time.Second
	default:
		return 0, time.Time{}, fmt.Errorf("hydromet: unsupported time step %q in %q", parts[0], units)
	}
	ref := strings.TrimSuffix(strings.TrimSpace(parts[1]), "Z")
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05",
		"2006-01-02 15:04", "2006-1-2 15:4:5", "2006-1-2 15:04:05", "2006-01-02", "2006-1-2"} {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("hydromet: invalid reference date in time units %q", units)
}

// toFloat64 converts the buffer returned by a cdf.Reader to float64 values.
func toFloat64(buf interface{}) ([]float64, error) {
	switch t := buf.(type) {
	case []float64:
		return t, nil
	case []float32:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
}

// ncfHeader creates the header of a file holding variable v on domain d.
// If record is true v has a leading unlimited time dimension.
func ncfHeader(d *Domain, v string, record bool, units, description string) *cdf.Header {
	dims := []string{"lat", "lon"}
	lengths := []int{d.Ny, d.Nx}
	if record {
		dims = append([]string{"time"}, dims...)
		lengths = append([]int{0}, lengths...)
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "comment", "HydroMet meteorological forcing")
	h.AddAttribute("", "hydromet_version", Version)

	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	if record {
		h.AddVariable("time", []string{"time"}, []float64{0})
		h.AddAttribute("time", "units", timeUnits)
		h.AddAttribute("time", "calendar", "standard")
	}
	h.AddVariable(v, dims, []float32{0})
	h.AddAttribute(v, "units", units)
	h.AddAttribute(v, "long_name", description)
	h.AddAttribute(v, "_FillValue", []float32{float32(math.NaN())})
	h.Define()
	return h
}

// createNCF creates a new NetCDF file at path and writes the coordinates.
func createNCF(path string, d *Domain, v string, record bool, units, description string) (*os.File, *cdf.File, error) {
	h := ncfHeader(d, v, record, units, description)
	if errs := h.Check(); len(errs) > 0 {
		return nil, nil, fmt.Errorf("hydromet: invalid netcdf header for %s: %v", v, errs)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	ff, err := cdf.Create(f, h) // writes the header to f
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if _, err := ff.Writer("lat", nil, nil).Write(d.Lat); err != nil {
		f.Close()
		return nil, nil, err
	}
	if _, err := ff.Writer("lon", nil, nil).Write(d.Lon); err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, ff, nil
}

// writeRecord writes data and its date as record index of variable v.
// If index is negative, v is assumed to have no time dimension.
func writeRecord(ff *cdf.File, v string, data *sparse.DenseArray, date time.Time, index int) error {
	ny, nx := data.Shape[0], data.Shape[1]
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	if index < 0 {
		_, err := ff.Writer(v, []int{0, 0}, []int{ny - 1, nx - 1}).Write(data32)
		return err
	}
	days := date.Sub(timeOrigin).Hours() / 24
	if _, err := ff.Writer("time", []int{index}, []int{index}).Write([]float64{days}); err != nil {
		return err
	}
	_, err := ff.Writer(v, []int{index, 0, 0}, []int{index, ny - 1, nx - 1}).Write(data32)
	return err
}

// WriteNCF writes variable v to a new NetCDF file at path. If dates is
// nil, data must hold a single grid, which is written without a time
// dimension. Otherwise data[i] is written as the record for dates[i].
func WriteNCF(path string, d *Domain, v string, dates []time.Time, data []*sparse.DenseArray) error {
	record := dates != nil
	if record && len(dates) != len(data) {
		return fmt.Errorf("hydromet: writing %s: %d dates but %d grids", v, len(dates), len(data))
	} else if !record && len(data) != 1 {
		return fmt.Errorf("hydromet: writing %s: need exactly one grid without dates, have %d", v, len(data))
	}
	info := variableInfoFor(v)
	f, ff, err := createNCF(path, d, v, record, info.unitsFor(DailyTot), info.description)
	if err != nil {
		return err
	}
	for i, g := range data {
		if err := d.checkShape(v, g); err != nil {
			f.Close()
			return err
		}
		index := i
		var date time.Time
		if record {
			date = dates[i]
		} else {
			index = -1
		}
		if err := writeRecord(ff, v, g, date, index); err != nil {
			f.Close()
			return fmt.Errorf("hydromet: writing variable %s to netcdf file: %v", v, err)
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
