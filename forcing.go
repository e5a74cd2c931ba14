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
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
)

// TimeIndex specifies how the record of a forcing file is chosen for a
// given timestep.
type TimeIndex int

const (
	// Daily selects the record whose date matches the timestep.
	Daily TimeIndex = iota
	// DayOfYear selects record DOY-1, for climatologies.
	DayOfYear
	// Monthly selects record Month-1, for monthly climatologies.
	Monthly
	// Constant uses the same field for every timestep.
	Constant
)

var timeIndexNames = []string{"daily", "doy", "month", "constant"}

func (t TimeIndex) String() string {
	if t < 0 || int(t) >= len(timeIndexNames) {
		return fmt.Sprintf("TimeIndex(%d)", int(t))
	}
	return timeIndexNames[t]
}

// ParseTimeIndex converts a name such as "daily" or "doy" to a TimeIndex.
// The empty string means Daily.
func ParseTimeIndex(s string) (TimeIndex, error) {
	if s == "" {
		return Daily, nil
	}
	for i, n := range timeIndexNames {
		if strings.EqualFold(s, n) {
			return TimeIndex(i), nil
		}
	}
	return Daily, fmt.Errorf("hydromet: invalid time index %q; valid options are %v", s, timeIndexNames)
}

// Source specifies where a forcing variable is read from.
type Source struct {
	// File is the path to a NetCDF file. If PerYear is true, the
	// wildcard [YEAR] is replaced by the year of the timestep.
	File string

	// Variable is the name of the variable in File.
	Variable string

	PerYear   bool
	TimeIndex TimeIndex
}

// Path returns the path of the file that holds data for ts.
func (s Source) Path(ts *TimeStep) string {
	if !s.PerYear {
		return s.File
	}
	return strings.Replace(s.File, "[YEAR]", strconv.Itoa(ts.Year), -1)
}

// ForcingReader reads forcing fields.
type ForcingReader interface {
	// Read returns the field of s for timestep ts. The returned array
	// may be modified by the caller.
	Read(ctx context.Context, s Source, ts *TimeStep) (*sparse.DenseArray, error)
}

// NCFReader reads forcing fields from NetCDF files. Climatological and
// constant fields are cached. It is safe for concurrent use.
type NCFReader struct {
	domain *Domain
	cache  *requestcache.Cache

	mu   sync.Mutex
	axes map[string][]time.Time
}

// NewNCFReader returns a reader for fields on domain d that keeps up to
// cacheSize climatological or constant fields in memory.
func NewNCFReader(d *Domain, cacheSize int) *NCFReader {
	r := &NCFReader{
		domain: d,
		axes:   make(map[string][]time.Time),
	}
	r.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(fieldRequest)
		return r.readRecord(req.path, req.variable, req.index)
	}, runtime.GOMAXPROCS(-1),
		requestcache.Deduplicate(), requestcache.Memory(cacheSize))
	return r
}

type fieldRequest struct {
	path, variable string
	index          int
}

// Read implements ForcingReader.
func (r *NCFReader) Read(ctx context.Context, s Source, ts *TimeStep) (*sparse.DenseArray, error) {
	path := s.Path(ts)
	var index int
	switch s.TimeIndex {
	case Daily:
		i, err := r.dateIndex(path, ts.Date)
		if err != nil {
			return nil, err
		}
		return r.readRecord(path, s.Variable, i)
	case DayOfYear:
		index = ts.DOY - 1
	case Monthly:
		index = ts.Month - 1
	case Constant:
		index = -1
	default:
		return nil, fmt.Errorf("hydromet: invalid time index %v for %s", s.TimeIndex, s.Variable)
	}
	req := r.cache.NewRequest(ctx, fieldRequest{path: path, variable: s.Variable, index: index},
		fmt.Sprintf("%s_%s_%d", path, s.Variable, index))
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	// Cached results are shared.
	return result.(*sparse.DenseArray).Copy(), nil
}

func (r *NCFReader) readRecord(path, variable string, index int) (*sparse.DenseArray, error) {
	f, err := openNCF(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := f.readGrid(variable, index)
	if err != nil {
		return nil, fmt.Errorf("%v (file %s)", err, path)
	}
	if err := r.domain.checkShape(fmt.Sprintf("variable %s in %s", variable, path), data); err != nil {
		return nil, err
	}
	return data, nil
}

// dateIndex returns the index of the record of the file at path whose
// date matches date.
func (r *NCFReader) dateIndex(path string, date time.Time) (int, error) {
	r.mu.Lock()
	axis, ok := r.axes[path]
	r.mu.Unlock()
	if !ok {
		f, err := openNCF(path)
		if err != nil {
			return -1, err
		}
		axis, err = f.timeAxis()
		f.Close()
		if err != nil {
			return -1, fmt.Errorf("%v (file %s)", err, path)
		}
		r.mu.Lock()
		r.axes[path] = axis
		r.mu.Unlock()
	}
	date = truncateDay(date)
	for i, t := range axis {
		if t.Equal(date) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("hydromet: date %s not found in %s", date.Format(dateFormat), path)
}
