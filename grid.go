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

	"github.com/ctessum/sparse"
)

// earthRadius is the mean radius of the earth [m].
const earthRadius = 6371221.3

// Domain describes the regular latitude-longitude grid that every field
// in the pipeline is defined on. Grids are stored as two dimensional
// DenseArrays with shape [Ny, Nx], rows ordered as in Lat.
type Domain struct {
	Ny, Nx int

	// Lat and Lon hold the cell center coordinates [degrees].
	Lat, Lon []float64

	// Mask is true for cells that are inside the model domain.
	Mask []bool

	// CellArea is the area of each grid cell [m2].
	CellArea *sparse.DenseArray

	// Latitude holds the latitude of each grid cell [degrees].
	Latitude *sparse.DenseArray
}

// NewDomain creates a domain from cell center coordinates. Cells where
// mask is zero or missing are outside of the domain; a nil mask includes
// every cell. If cellArea is nil, cell areas are calculated from the
// coordinate spacing on a spherical earth.
func NewDomain(lat, lon []float64, mask, cellArea *sparse.DenseArray) (*Domain, error) {
	if len(lat) == 0 || len(lon) == 0 {
		return nil, fmt.Errorf("hydromet: domain must have at least one row and column")
	}
	d := &Domain{
		Ny:  len(lat),
		Nx:  len(lon),
		Lat: lat,
		Lon: lon,
	}
	d.Mask = make([]bool, d.Ny*d.Nx)
	if mask != nil {
		if err := d.checkShape("mask", mask); err != nil {
			return nil, err
		}
		for i, v := range mask.Elements {
			d.Mask[i] = v != 0 && !math.IsNaN(v)
		}
	} else {
		for i := range d.Mask {
			d.Mask[i] = true
		}
	}
	d.Latitude = sparse.ZerosDense(d.Ny, d.Nx)
	for j, y := range lat {
		for i := 0; i < d.Nx; i++ {
			d.Latitude.Elements[j*d.Nx+i] = y
		}
	}
	if cellArea != nil {
		if err := d.checkShape("cell area", cellArea); err != nil {
			return nil, err
		}
		d.CellArea = cellArea.Copy()
	} else {
		d.CellArea = sphericalCellArea(lat, lon)
	}
	return d, nil
}

// DomainFiles specifies where the domain is read from.
type DomainFiles struct {
	// CloneFile is a NetCDF file with one dimensional latitude and
	// longitude coordinate variables.
	CloneFile                           string
	LatitudeVariable, LongitudeVariable string

	// MaskVariable, if set, is a grid in CloneFile that is nonzero inside
	// the domain.
	MaskVariable string

	// CellAreaFile and CellAreaVariable, if set, give the cell areas [m2].
	CellAreaFile, CellAreaVariable string
}

// LoadDomain reads a domain from NetCDF files.
func LoadDomain(files DomainFiles) (*Domain, error) {
	f, err := openNCF(files.CloneFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lat, err := f.readVector(files.LatitudeVariable)
	if err != nil {
		return nil, err
	}
	lon, err := f.readVector(files.LongitudeVariable)
	if err != nil {
		return nil, err
	}
	var mask, area *sparse.DenseArray
	if files.MaskVariable != "" {
		if mask, err = f.readGrid(files.MaskVariable, -1); err != nil {
			return nil, err
		}
	}
	if files.CellAreaFile != "" {
		if area, err = ReadGrid(files.CellAreaFile, files.CellAreaVariable); err != nil {
			return nil, err
		}
	}
	return NewDomain(lat, lon, mask, area)
}

// ReadGrid reads a static field from a NetCDF file. If the variable has a
// time dimension, the first record is read.
func ReadGrid(path, variable string) (*sparse.DenseArray, error) {
	f, err := openNCF(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := f.readGrid(variable, -1)
	if err != nil {
		return nil, fmt.Errorf("%v (file %s)", err, path)
	}
	return g, nil
}

// sphericalCellArea calculates grid cell areas from the spacing of the
// cell center coordinates.
func sphericalCellArea(lat, lon []float64) *sparse.DenseArray {
	spacing := func(c []float64, i int) float64 {
		switch {
		case len(c) == 1:
			return 1
		case i == 0:
			return math.Abs(c[1] - c[0])
		default:
			return math.Abs(c[i] - c[i-1])
		}
	}
	const rad = math.Pi / 180
	area := sparse.ZerosDense(len(lat), len(lon))
	for j, y := range lat {
		dy := spacing(lat, j)
		h := math.Abs(math.Sin((y+dy/2)*rad) - math.Sin((y-dy/2)*rad))
		for i := range lon {
			dx := spacing(lon, i) * rad
			area.Elements[j*len(lon)+i] = earthRadius * earthRadius * dx * h
		}
	}
	return area
}

// Shape returns the grid dimensions.
func (d *Domain) Shape() []int { return []int{d.Ny, d.Nx} }

// Len returns the number of grid cells.
func (d *Domain) Len() int { return d.Ny * d.Nx }

// Zeros returns a new grid of zeros.
func (d *Domain) Zeros() *sparse.DenseArray { return sparse.ZerosDense(d.Ny, d.Nx) }

// Full returns a new grid holding v inside the domain and missing values
// outside of it.
func (d *Domain) Full(v float64) *sparse.DenseArray {
	a := d.Zeros()
	for i := range a.Elements {
		if d.Mask[i] {
			a.Elements[i] = v
		} else {
			a.Elements[i] = math.NaN()
		}
	}
	return a
}

// IfThen sets cells of a that are outside of the domain to missing, in place.
func (d *Domain) IfThen(a *sparse.DenseArray) {
	for i, in := range d.Mask {
		if !in {
			a.Elements[i] = math.NaN()
		}
	}
}

func (d *Domain) checkShape(name string, a *sparse.DenseArray) error {
	if len(a.Shape) != 2 || a.Shape[0] != d.Ny || a.Shape[1] != d.Nx {
		return fmt.Errorf("hydromet: %s has shape %v but the domain has shape [%d %d]",
			name, a.Shape, d.Ny, d.Nx)
	}
	return nil
}

// cover returns a copy of a where missing values are replaced by v.
func cover(a *sparse.DenseArray, v float64) *sparse.DenseArray {
	return apply(a, func(x float64) float64 {
		if math.IsNaN(x) {
			return v
		}
		return x
	})
}

// apply returns the result of f applied to each element of a.
func apply(a *sparse.DenseArray, f func(float64) float64) *sparse.DenseArray {
	o := sparse.ZerosDense(a.Shape...)
	for i, x := range a.Elements {
		o.Elements[i] = f(x)
	}
	return o
}

// apply2 returns the result of f applied to each pair of elements of a and b,
// which must have the same shape.
func apply2(a, b *sparse.DenseArray, f func(x, y float64) float64) *sparse.DenseArray {
	o := sparse.ZerosDense(a.Shape...)
	for i, x := range a.Elements {
		o.Elements[i] = f(x, b.Elements[i])
	}
	return o
}

// clampMin sets elements of a below v to v, in place. Missing values stay missing.
func clampMin(a *sparse.DenseArray, v float64) {
	for i, x := range a.Elements {
		if x < v {
			a.Elements[i] = v
		}
	}
}

// windowAverage returns the average of the non-missing values in a square
// window of width cells centered on each cell. Missing cells stay missing.
// An even width is widened to width+1.
func windowAverage(a *sparse.DenseArray, width int) *sparse.DenseArray {
	ny, nx := a.Shape[0], a.Shape[1]
	r := width / 2
	o := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			c := a.Elements[j*nx+i]
			if math.IsNaN(c) {
				o.Elements[j*nx+i] = c
				continue
			}
			var sum float64
			var n int
			for jj := maxInt(0, j-r); jj <= minInt(ny-1, j+r); jj++ {
				for ii := maxInt(0, i-r); ii <= minInt(nx-1, i+r); ii++ {
					if v := a.Elements[jj*nx+ii]; !math.IsNaN(v) {
						sum += v
						n++
					}
				}
			}
			o.Elements[j*nx+i] = sum / float64(n)
		}
	}
	return o
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
