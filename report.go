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
	"sort"

	"github.com/ctessum/sparse"
)

// Cadence specifies how a variable is reported.
type Cadence int

// Reporting cadences. Tot reports the sum over the period, Avg the mean
// daily value, and End the value on the last day of the period.
const (
	DailyTot Cadence = iota
	MonthTot
	MonthAvg
	MonthEnd
	AnnuaTot
	AnnuaAvg
	AnnuaEnd
)

var cadenceNames = []string{"dailyTot", "monthTot", "monthAvg", "monthEnd",
	"annuaTot", "annuaAvg", "annuaEnd"}

func (c Cadence) String() string {
	if c < 0 || int(c) >= len(cadenceNames) {
		return fmt.Sprintf("Cadence(%d)", int(c))
	}
	return cadenceNames[c]
}

// ParseCadence converts a name such as "monthAvg" to a Cadence.
func ParseCadence(s string) (Cadence, error) {
	for i, n := range cadenceNames {
		if s == n {
			return Cadence(i), nil
		}
	}
	return DailyTot, fmt.Errorf("hydromet: invalid reporting cadence %q; valid options are %v", s, cadenceNames)
}

// Cadences returns all cadences.
func Cadences() []Cadence {
	o := make([]Cadence, len(cadenceNames))
	for i := range o {
		o[i] = Cadence(i)
	}
	return o
}

// Output is a variable reported at a cadence.
type Output struct {
	Variable string
	Cadence  Cadence
}

func (o Output) String() string { return o.Variable + "_" + o.Cadence.String() }

type accState int

const (
	uninitialized accState = iota
	accumulating
	flushed
)

// accumulator sums a variable over a reporting period.
type accumulator struct {
	sum   *sparse.DenseArray
	days  int
	state accState
}

// add adds v, first starting a new period if start is set or the previous
// period has been flushed.
func (a *accumulator) add(v *sparse.DenseArray, start bool) {
	if start || a.state != accumulating {
		a.sum = sparse.ZerosDense(v.Shape...)
		a.days = 0
		a.state = accumulating
	}
	a.sum.AddDense(v)
	a.days++
}

func (a *accumulator) average() *sparse.DenseArray {
	return a.sum.ScaleCopy(1 / float64(a.days))
}

// periodOutputs holds the requested outputs of one variable for one
// period length.
type periodOutputs struct {
	tot, avg, end Cadence
	want          map[Cadence]bool
	acc           *accumulator
}

func (p *periodOutputs) needsAccumulator() bool { return p.want[p.tot] || p.want[p.avg] }

// Reporter aggregates state variables over reporting periods and emits
// them to a Sink.
type Reporter struct {
	sink    Sink
	outputs []Output
	daily   []string
	monthly map[string]*periodOutputs
	annual  map[string]*periodOutputs
	vars    []string
}

// NewReporter returns a reporter that emits outputs to sink.
func NewReporter(outputs []Output, sink Sink) (*Reporter, error) {
	r := &Reporter{
		sink:    sink,
		monthly: make(map[string]*periodOutputs),
		annual:  make(map[string]*periodOutputs),
	}
	seen := make(map[Output]bool)
	varSet := make(map[string]bool)
	for _, o := range outputs {
		if seen[o] {
			continue
		}
		seen[o] = true
		r.outputs = append(r.outputs, o)
		varSet[o.Variable] = true
		var m map[string]*periodOutputs
		var tot, avg, end Cadence
		switch o.Cadence {
		case DailyTot:
			r.daily = append(r.daily, o.Variable)
			continue
		case MonthTot, MonthAvg, MonthEnd:
			m, tot, avg, end = r.monthly, MonthTot, MonthAvg, MonthEnd
		case AnnuaTot, AnnuaAvg, AnnuaEnd:
			m, tot, avg, end = r.annual, AnnuaTot, AnnuaAvg, AnnuaEnd
		default:
			return nil, fmt.Errorf("hydromet: invalid cadence %v for %s", o.Cadence, o.Variable)
		}
		p, ok := m[o.Variable]
		if !ok {
			p = &periodOutputs{tot: tot, avg: avg, end: end, want: make(map[Cadence]bool)}
			m[o.Variable] = p
		}
		p.want[o.Cadence] = true
	}
	for _, m := range []map[string]*periodOutputs{r.monthly, r.annual} {
		for _, p := range m {
			if p.needsAccumulator() {
				p.acc = new(accumulator)
			}
		}
	}
	for v := range varSet {
		r.vars = append(r.vars, v)
	}
	sort.Strings(r.vars)
	sort.Strings(r.daily)
	return r, nil
}

// Outputs returns the requested outputs.
func (r *Reporter) Outputs() []Output { return r.outputs }

// Variables returns the names of the variables that are reported.
func (r *Reporter) Variables() []string { return r.vars }

// Update accumulates the variables for timestep ts and emits the outputs
// whose period ends at ts. value returns the current value of a variable.
func (r *Reporter) Update(ts *TimeStep, value func(name string) (*sparse.DenseArray, error)) error {
	values := make(map[string]*sparse.DenseArray, len(r.vars))
	for _, v := range r.vars {
		x, err := value(v)
		if err != nil {
			return err
		}
		values[v] = x
	}
	for _, v := range r.daily {
		if err := r.sink.Emit(Output{v, DailyTot}, values[v], ts.Date, ts.Index-1); err != nil {
			return err
		}
	}
	if err := r.period(r.monthly, values, ts, ts.FirstStep || ts.Day == 1, ts.EndOfMonth, ts.MonthIndex-1); err != nil {
		return err
	}
	return r.period(r.annual, values, ts, ts.FirstStep || ts.DOY == 1, ts.EndOfYear, ts.YearIndex-1)
}

func (r *Reporter) period(m map[string]*periodOutputs, values map[string]*sparse.DenseArray,
	ts *TimeStep, start, end bool, index int) error {
	names := make([]string, 0, len(m))
	for v := range m {
		names = append(names, v)
	}
	sort.Strings(names)
	for _, v := range names {
		p := m[v]
		if p.acc != nil {
			p.acc.add(values[v], start)
		}
		if !end {
			continue
		}
		if p.want[p.tot] {
			if err := r.sink.Emit(Output{v, p.tot}, p.acc.sum, ts.Date, index); err != nil {
				return err
			}
		}
		if p.want[p.avg] {
			if err := r.sink.Emit(Output{v, p.avg}, p.acc.average(), ts.Date, index); err != nil {
				return err
			}
		}
		if p.want[p.end] {
			if err := r.sink.Emit(Output{v, p.end}, values[v], ts.Date, index); err != nil {
				return err
			}
		}
		if p.acc != nil {
			p.acc.state = flushed
		}
	}
	return nil
}
