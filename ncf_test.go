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
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/sparse"
)

func checkGrid(t *testing.T, name string, have *sparse.DenseArray, want []float64) {
	t.Helper()
	if len(have.Elements) != len(want) {
		t.Fatalf("%s: have %d elements, want %d", name, len(have.Elements), len(want))
	}
	for i, w := range want {
		if different(have.Elements[i], w, 1e-6) {
			t.Errorf("%s cell %d: have %g, want %g", name, i, have.Elements[i], w)
		}
	}
}

// writeDays writes a file where record i has value i+1 inside the domain.
func writeDays(t *testing.T, path string, d *Domain, v string, dates ...time.Time) {
	data := make([]*sparse.DenseArray, len(dates))
	for i := range dates {
		data[i] = d.Full(float64(i + 1))
	}
	if err := WriteNCF(path, d, v, dates, data); err != nil {
		t.Fatal(err)
	}
}

func TestNCFReader(t *testing.T) {
	d := testDomain(t)
	dir := t.TempDir()
	nan := math.NaN()
	full := func(v float64) []float64 { return []float64{v, v, v, v, v, v, v, nan} }

	dailyPath := filepath.Join(dir, "p.nc")
	writeDays(t, dailyPath, d, VarPrecipitation, date(2001, 3, 1), date(2001, 3, 2), date(2001, 3, 3))
	constPath := filepath.Join(dir, "albedo.nc")
	if err := WriteNCF(constPath, d, VarAlbedo, nil, []*sparse.DenseArray{d.Full(0.25)}); err != nil {
		t.Fatal(err)
	}
	writeDays(t, filepath.Join(dir, "t_2001.nc"), d, VarTemperature, date(2001, 3, 2))

	r := NewNCFReader(d, 10)
	ctx := context.Background()
	ts := steps(t, date(2001, 3, 1), date(2001, 3, 2))[1]

	for _, tt := range []struct {
		name string
		src  Source
		want []float64
	}{
		{"daily", Source{File: dailyPath, Variable: VarPrecipitation}, full(2)},
		{"day of year", Source{File: dailyPath, Variable: VarPrecipitation, TimeIndex: DayOfYear}, nil},
		{"month", Source{File: dailyPath, Variable: VarPrecipitation, TimeIndex: Monthly}, full(3)},
		{"constant", Source{File: constPath, Variable: VarAlbedo, TimeIndex: Constant}, full(0.25)},
		{"per year", Source{File: filepath.Join(dir, "t_[YEAR].nc"), Variable: VarTemperature, PerYear: true}, full(1)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g, err := r.Read(ctx, tt.src, ts)
			if tt.want == nil {
				// 2 March is day 61; the file has only 3 records.
				if err == nil || !strings.Contains(err.Error(), "record 60") {
					t.Errorf("expected a missing record error, have %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			checkGrid(t, tt.name, g, tt.want)
		})
	}

	// Cached fields are not shared with callers.
	src := Source{File: constPath, Variable: VarAlbedo, TimeIndex: Constant}
	a, err := r.Read(ctx, src, ts)
	if err != nil {
		t.Fatal(err)
	}
	a.Elements[0] = 100
	b, err := r.Read(ctx, src, ts)
	if err != nil {
		t.Fatal(err)
	}
	if b.Elements[0] != 0.25 {
		t.Errorf("cached field was modified: %g", b.Elements[0])
	}

	missing := steps(t, date(2001, 3, 5), date(2001, 3, 5))[0]
	if _, err := r.Read(ctx, Source{File: dailyPath, Variable: VarPrecipitation}, missing); err == nil ||
		!strings.Contains(err.Error(), "not found") {
		t.Errorf("expected a missing date error, have %v", err)
	}
	if _, err := r.Read(ctx, Source{File: dailyPath, Variable: "rain"}, ts); err == nil {
		t.Error("expected a missing variable error")
	}
}

func TestNCFReaderShape(t *testing.T) {
	small, err := NewDomain([]float64{45}, []float64{5, 6}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "small.nc")
	writeDays(t, path, small, VarTemperature, date(2001, 1, 1))

	r := NewNCFReader(testDomain(t), 1)
	ts := steps(t, date(2001, 1, 1), date(2001, 1, 1))[0]
	_, err = r.Read(context.Background(), Source{File: path, Variable: VarTemperature}, ts)
	if err == nil || !strings.Contains(err.Error(), "shape") {
		t.Errorf("expected a shape error, have %v", err)
	}
}

func TestLoadDomain(t *testing.T) {
	d := testDomain(t)
	dir := t.TempDir()
	clone := filepath.Join(dir, "clone.nc")
	if err := WriteNCF(clone, d, "mask", nil, []*sparse.DenseArray{testGrid(1, 1, 1, 1, 1, 1, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	area := filepath.Join(dir, "area.nc")
	if err := WriteNCF(area, d, "cellArea", nil, []*sparse.DenseArray{d.CellArea}); err != nil {
		t.Fatal(err)
	}
	d2, err := LoadDomain(DomainFiles{
		CloneFile:         clone,
		LatitudeVariable:  "lat",
		LongitudeVariable: "lon",
		MaskVariable:      "mask",
		CellAreaFile:      area,
		CellAreaVariable:  "cellArea",
	})
	if err != nil {
		t.Fatal(err)
	}
	if d2.Ny != 2 || d2.Nx != 4 {
		t.Fatalf("shape: have %v", d2.Shape())
	}
	for i := range d.Mask {
		if d.Mask[i] != d2.Mask[i] {
			t.Errorf("mask cell %d: have %v, want %v", i, d2.Mask[i], d.Mask[i])
		}
	}
	checkGrid(t, "area", d2.CellArea, d.CellArea.Elements)
	checkGrid(t, "latitude", d2.Latitude, []float64{45, 45, 45, 45, 44, 44, 44, 44})
}

func TestParseTimeUnits(t *testing.T) {
	for _, tt := range []struct {
		units  string
		step   time.Duration
		origin time.Time
	}{
		{"days since 1901-01-01", 24 * time.Hour, date(1901, 1, 1)},
		{"hours since 1990-01-01 00:00:00", time.Hour, date(1990, 1, 1)},
		{"seconds since 1970-1-1 0:0:0", time.Second, date(1970, 1, 1)},
		{"minutes since 2000-02-01T06:00:00Z", time.Minute, time.Date(2000, 2, 1, 6, 0, 0, 0, time.UTC)},
	} {
		step, origin, err := parseTimeUnits(tt.units)
		if err != nil {
			t.Errorf("%s: %v", tt.units, err)
			continue
		}
		if step != tt.step || !origin.Equal(tt.origin) {
			t.Errorf("%s: have %v since %v", tt.units, step, origin)
		}
	}
	for _, bad := range []string{"days", "weeks since 2000-01-01", "days since yesterday"} {
		if _, _, err := parseTimeUnits(bad); err == nil {
			t.Errorf("%s: expected an error", bad)
		}
	}
}

func TestNCFSink(t *testing.T) {
	d := testDomain(t)
	dir := filepath.Join(t.TempDir(), "out")
	outputs := []Output{{VarPrecipitation, DailyTot}, {VarPrecipitation, MonthTot}, {VarTemperature, MonthAvg}}
	sink, err := NewNCFSink(dir, d, outputs)
	if err != nil {
		t.Fatal(err)
	}
	for i, day := range []int{30, 31} {
		if err := sink.Emit(outputs[0], d.Full(float64(day)), date(2001, 1, day), i); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Emit(outputs[1], d.Full(61), date(2001, 1, 31), 0); err != nil {
		t.Fatal(err)
	}
	if err := sink.Emit(Output{VarWindSpeed, DailyTot}, d.Full(1), date(2001, 1, 31), 0); err == nil {
		t.Error("expected an error for an output without a file")
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	files := sink.Files()
	want := []string{"precipitation_dailyTot.nc", "precipitation_monthTot.nc", "temperature_monthAvg.nc"}
	if len(files) != len(want) {
		t.Fatalf("have files %v", files)
	}
	for i, w := range want {
		if filepath.Base(files[i]) != w {
			t.Errorf("file %d: have %s, want %s", i, files[i], w)
		}
	}

	nan := math.NaN()
	r := NewNCFReader(d, 1)
	ts := steps(t, date(2001, 1, 31), date(2001, 1, 31))[0]
	g, err := r.Read(context.Background(), Source{File: files[0], Variable: VarPrecipitation}, ts)
	if err != nil {
		t.Fatal(err)
	}
	checkGrid(t, "daily", g, []float64{31, 31, 31, 31, 31, 31, 31, nan})
	g, err = r.Read(context.Background(), Source{File: files[1], Variable: VarPrecipitation}, ts)
	if err != nil {
		t.Fatal(err)
	}
	checkGrid(t, "monthly", g, []float64{61, 61, 61, 61, 61, 61, 61, nan})

	f, err := openNCF(files[1])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if u := f.attrString(VarPrecipitation, "units"); u != "m" {
		t.Errorf("monthly precipitation units: have %q, want %q", u, "m")
	}
}

func TestUnitsFor(t *testing.T) {
	for _, tt := range []struct {
		v    string
		c    Cadence
		want string
	}{
		{VarPrecipitation, DailyTot, "m day-1"},
		{VarPrecipitation, MonthAvg, "m day-1"},
		{VarPrecipitation, AnnuaTot, "m"},
		{VarTemperature, MonthEnd, "degC"},
		{VarNetRadiation, MonthTot, "W m-2 day"},
		{"netPrecip", DailyTot, "1"},
	} {
		if u := variableInfoFor(tt.v).unitsFor(tt.c); u != tt.want {
			t.Errorf("%s %v: have %q, want %q", tt.v, tt.c, u, tt.want)
		}
	}
}
