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
	"regexp"
	"sort"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
)

// derivedFunctions are the functions available in derived output
// expressions.
var derivedFunctions = map[string]govaluate.ExpressionFunction{
	"exp": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("hydromet: got %d arguments for function 'exp', but needs 1", len(arg))
		}
		return math.Exp(arg[0].(float64)), nil
	},
	"max": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 2 {
			return nil, fmt.Errorf("hydromet: got %d arguments for function 'max', but needs 2", len(arg))
		}
		return math.Max(arg[0].(float64), arg[1].(float64)), nil
	},
	"min": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 2 {
			return nil, fmt.Errorf("hydromet: got %d arguments for function 'min', but needs 2", len(arg))
		}
		return math.Min(arg[0].(float64), arg[1].(float64)), nil
	},
}

var derivedName = regexp.MustCompile(`^[A-Za-z]\w*$`)

// derivedOutputs calculates output variables defined as expressions of
// other variables.
type derivedOutputs struct {
	order []string // evaluation order
	exprs map[string]*govaluate.EvaluableExpression
	vars  map[string][]string
}

// newDerivedOutputs parses the expressions in defs, keyed by output
// name. Expressions may refer to the variables in known and to other
// derived outputs.
func newDerivedOutputs(defs map[string]string, known []string) (*derivedOutputs, error) {
	d := &derivedOutputs{
		exprs: make(map[string]*govaluate.EvaluableExpression),
		vars:  make(map[string][]string),
	}
	isKnown := make(map[string]bool)
	for _, k := range known {
		isKnown[k] = true
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !derivedName.MatchString(name) {
			return nil, fmt.Errorf("hydromet: derived output name '%s' includes unsupported characters", name)
		}
		if isKnown[name] {
			return nil, fmt.Errorf("hydromet: derived output '%s' has the same name as a model variable", name)
		}
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(defs[name], derivedFunctions)
		if err != nil {
			return nil, fmt.Errorf("hydromet: derived output '%s': %v", name, err)
		}
		d.exprs[name] = expr
		d.vars[name] = removeDuplicates(expr.Vars())
		if len(d.vars[name]) == 0 {
			return nil, fmt.Errorf("hydromet: derived output '%s' does not use any variables", name)
		}
		for _, v := range d.vars[name] {
			if _, ok := defs[v]; !ok && !isKnown[v] {
				return nil, fmt.Errorf("hydromet: derived output '%s': undefined variable name '%s'", name, v)
			}
		}
	}

	// Order the outputs so that each is evaluated after the outputs it uses.
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[string]int)
	var visit func(string) error
	visit = func(name string) error {
		switch mark[name] {
		case visiting:
			return fmt.Errorf("hydromet: derived output '%s' is defined in terms of itself", name)
		case done:
			return nil
		}
		mark[name] = visiting
		for _, v := range d.vars[name] {
			if _, ok := defs[v]; ok {
				if err := visit(v); err != nil {
					return err
				}
			}
		}
		mark[name] = done
		d.order = append(d.order, name)
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}

// Names returns the names of the derived outputs.
func (d *derivedOutputs) Names() []string { return d.order }

// evaluate calculates all derived outputs cell by cell. Cells where any
// input is missing are missing.
func (d *derivedOutputs) evaluate(value func(string) (*sparse.DenseArray, error)) (map[string]*sparse.DenseArray, error) {
	o := make(map[string]*sparse.DenseArray, len(d.order))
	get := func(name string) (*sparse.DenseArray, error) {
		if v, ok := o[name]; ok {
			return v, nil
		}
		return value(name)
	}
	for _, name := range d.order {
		inputs := make([]*sparse.DenseArray, len(d.vars[name]))
		for i, v := range d.vars[name] {
			a, err := get(v)
			if err != nil {
				return nil, err
			}
			inputs[i] = a
		}
		out := sparse.ZerosDense(inputs[0].Shape...)
		params := make(map[string]interface{}, len(inputs))
	cells:
		for i := range out.Elements {
			for j, v := range d.vars[name] {
				x := inputs[j].Elements[i]
				if math.IsNaN(x) {
					out.Elements[i] = math.NaN()
					continue cells
				}
				params[v] = x
			}
			r, err := d.exprs[name].Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("hydromet: evaluating derived output '%s': %v", name, err)
			}
			f, ok := r.(float64)
			if !ok {
				return nil, fmt.Errorf("hydromet: derived output '%s' evaluates to %T, not a number", name, r)
			}
			out.Elements[i] = f
		}
		o[name] = out
	}
	return o, nil
}
