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
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ctessum/sparse"
)

const testTolerance = 1.e-8

func different(a, b, tolerance float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) != math.IsNaN(b)
	}
	if a == b {
		return false
	}
	return math.Abs(a-b)/math.Max(math.Abs(a), math.Abs(b)) > tolerance
}

// testDomain returns a 2×4 domain where each row is a downscale unit.
// The last cell is outside of the domain.
func testDomain(t *testing.T) *Domain {
	mask := sparse.ZerosDense(2, 4)
	for i := range mask.Elements {
		mask.Elements[i] = 1
	}
	mask.Elements[7] = 0
	area := sparse.ZerosDense(2, 4)
	copy(area.Elements, []float64{1, 2, 3, 4, 1, 1, 2, 2})
	d, err := NewDomain([]float64{45, 44}, []float64{5, 6, 7, 8}, mask, area)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func testGrid(vals ...float64) *sparse.DenseArray {
	a := sparse.ZerosDense(2, 4)
	copy(a.Elements, vals)
	return a
}

func testUnits() *sparse.DenseArray {
	return testGrid(1, 1, 1, 1, 2, 2, 2, 2)
}

// memReader is a ForcingReader that holds fields in memory, keyed by
// variable name. A variable with one field is constant in time.
type memReader struct {
	mu     sync.Mutex
	fields map[string][]*sparse.DenseArray
	reads  map[string]int
}

func newMemReader() *memReader {
	return &memReader{
		fields: make(map[string][]*sparse.DenseArray),
		reads:  make(map[string]int),
	}
}

func (r *memReader) Read(_ context.Context, s Source, ts *TimeStep) (*sparse.DenseArray, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[s.Variable]
	if !ok {
		return nil, fmt.Errorf("no such variable %s", s.Variable)
	}
	r.reads[s.Variable]++
	if len(f) == 1 {
		return f[0].Copy(), nil
	}
	if ts.Index > len(f) {
		return nil, fmt.Errorf("no data for step %d of %s", ts.Index, s.Variable)
	}
	return f[ts.Index-1].Copy(), nil
}

func (r *memReader) set(name string, fields ...*sparse.DenseArray) Source {
	r.fields[name] = fields
	return Source{File: "mem", Variable: name}
}

// memSink is a Sink that keeps emitted fields in memory.
type memSink struct {
	emitted map[Output][]emission
	closed  bool
}

type emission struct {
	data  *sparse.DenseArray
	date  time.Time
	index int
}

func newMemSink() *memSink { return &memSink{emitted: make(map[Output][]emission)} }

func (s *memSink) Emit(o Output, data *sparse.DenseArray, date time.Time, index int) error {
	s.emitted[o] = append(s.emitted[o], emission{data: data.Copy(), date: date, index: index})
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func steps(t *testing.T, start, end time.Time) []*TimeStep {
	c, err := NewClock(start, end)
	if err != nil {
		t.Fatal(err)
	}
	var o []*TimeStep
	for {
		ts, err := c.Next()
		if err != nil {
			break
		}
		o = append(o, ts)
	}
	return o
}

func date(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }
