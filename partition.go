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
	"sort"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Partition groups the cells of a domain into downscale units, the
// coarse-resolution cells that forcing data are originally provided on.
type Partition struct {
	units [][]int // cell indices per unit
	ids   []float64
}

// NewPartition creates a partition from a grid of unit identifiers.
// Every cell inside the domain must belong to a unit.
func NewPartition(d *Domain, ids *sparse.DenseArray) (*Partition, error) {
	if err := d.checkShape("downscale units", ids); err != nil {
		return nil, err
	}
	index := make(map[float64]int)
	p := new(Partition)
	for i, id := range ids.Elements {
		if !d.Mask[i] {
			continue
		}
		if math.IsNaN(id) {
			return nil, fmt.Errorf("hydromet: cell %d is inside the domain but has no downscale unit", i)
		}
		u, ok := index[id]
		if !ok {
			u = len(p.units)
			index[id] = u
			p.units = append(p.units, nil)
			p.ids = append(p.ids, id)
		}
		p.units[u] = append(p.units[u], i)
	}
	return p, nil
}

// Len returns the number of units.
func (p *Partition) Len() int { return len(p.units) }

// IDs returns the sorted unit identifiers.
func (p *Partition) IDs() []float64 {
	o := append([]float64{}, p.ids...)
	sort.Float64s(o)
	return o
}

// AreaTotal returns the sum of the non-missing values of a over each unit,
// assigned to every cell of the unit. Cells outside of the partition are
// missing.
func (p *Partition) AreaTotal(a *sparse.DenseArray) *sparse.DenseArray {
	o := nanGrid(a.Shape)
	vals := make([]float64, 0)
	for _, cells := range p.units {
		vals = vals[:0]
		for _, i := range cells {
			if v := a.Elements[i]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		total := floats.Sum(vals)
		for _, i := range cells {
			o.Elements[i] = total
		}
	}
	return o
}

// AreaAverage returns the weighted average of a over the cells of each
// unit where a is not missing and include (if not nil) is true. If weights
// is nil, the plain average is returned. Units with no contributing cells
// are missing.
func (p *Partition) AreaAverage(a, weights *sparse.DenseArray, include []bool) *sparse.DenseArray {
	o := nanGrid(a.Shape)
	for _, cells := range p.units {
		v := p.average(a, weights, include, cells)
		for _, i := range cells {
			o.Elements[i] = v
		}
	}
	return o
}

func (p *Partition) average(a, weights *sparse.DenseArray, include []bool, cells []int) float64 {
	vals := make([]float64, 0, len(cells))
	w := make([]float64, 0, len(cells))
	for _, i := range cells {
		v := a.Elements[i]
		if math.IsNaN(v) || (include != nil && !include[i]) {
			continue
		}
		vals = append(vals, v)
		if weights != nil {
			w = append(w, weights.Elements[i])
		} else {
			w = append(w, 1)
		}
	}
	wsum := floats.Sum(w)
	if len(vals) == 0 || wsum == 0 {
		return math.NaN()
	}
	return floats.Dot(vals, w) / wsum
}

func nanGrid(shape []int) *sparse.DenseArray {
	o := sparse.ZerosDense(shape...)
	for i := range o.Elements {
		o.Elements[i] = math.NaN()
	}
	return o
}
