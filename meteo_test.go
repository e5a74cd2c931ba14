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
	"strings"
	"testing"

	"github.com/ctessum/sparse"
)

// hamonConfig returns a configuration using the Hamon method with
// forcing read from r.
func hamonConfig(r *memReader, p, t float64) Config {
	cfg := DefaultConfig()
	cfg.Forcing[VarPrecipitation] = r.set(VarPrecipitation, testGrid(p, p, p, p, p, p, p, p))
	cfg.Forcing[VarTemperature] = r.set(VarTemperature, testGrid(t, t, t, t, t, t, t, t))
	return cfg
}

func oneCell(v float64) *sparse.DenseArray {
	a := sparse.ZerosDense(1, 1)
	a.Elements[0] = v
	return a
}

func TestMeteoSingleCell(t *testing.T) {
	d, err := NewDomain([]float64{52}, []float64{5}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := newMemReader()
	cfg := DefaultConfig()
	cfg.ReferenceETMethod = InputET
	cfg.Forcing[VarPrecipitation] = r.set(VarPrecipitation, oneCell(0.01))
	cfg.Forcing[VarTemperature] = r.set(VarTemperature, oneCell(12))
	cfg.Forcing[VarReferencePotET] = r.set(VarReferencePotET, oneCell(0.002))
	cfg.Conversions[VarPrecipitation] = Correction{Constant: 0, Factor: 1}
	cfg.Outputs = []Output{{VarPrecipitation, DailyTot}}
	sink := newMemSink()

	m, err := New(cfg, d, r, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := steps(t, date(2001, 3, 1), date(2001, 3, 1))[0]
	if err := m.Step(context.Background(), ts); err != nil {
		t.Fatal(err)
	}
	if p := m.State().Precipitation.Elements[0]; different(p, 0.01, 1e-12) {
		t.Errorf("precipitation: have %g, want 0.01", p)
	}
	e := sink.emitted[Output{VarPrecipitation, DailyTot}]
	if len(e) != 1 || different(e[0].data.Elements[0], 0.01, 1e-12) {
		t.Errorf("wrong emission: %+v", e)
	}
}

func TestMeteoIgnoreSnow(t *testing.T) {
	d := testDomain(t)
	r := newMemReader()
	cfg := hamonConfig(r, 0.005, -10)
	cfg.IgnoreSnow = true
	m, err := New(cfg, d, r, newMemSink(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := steps(t, date(2001, 1, 15), date(2001, 1, 15))[0]
	if err := m.Update(context.Background(), ts); err != nil {
		t.Fatal(err)
	}
	temp := m.State().Temperature
	for i := 0; i < 7; i++ {
		if temp.Elements[i] != 25 {
			t.Errorf("cell %d: have %g, want 25", i, temp.Elements[i])
		}
	}
	if !math.IsNaN(temp.Elements[7]) {
		t.Error("cell outside of the domain should be missing")
	}
}

func TestMeteoNonNegative(t *testing.T) {
	d := testDomain(t)
	r := newMemReader()
	cfg := DefaultConfig()
	cfg.ReferenceETMethod = InputET
	cfg.Forcing[VarPrecipitation] = r.set(VarPrecipitation, testGrid(-1, 0.01, -0.5, 0, 1, 2, 3, 4))
	cfg.Forcing[VarTemperature] = r.set(VarTemperature, testGrid(-5, -5, -5, -5, -5, -5, -5, -5))
	cfg.Forcing[VarReferencePotET] = r.set(VarReferencePotET, testGrid(-0.001, 0.001, -0.002, 0, 0, 0, 0, 0))
	cfg.SmoothingWindow = 3
	m, err := New(cfg, d, r, newMemSink(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := steps(t, date(2001, 1, 15), date(2001, 1, 15))[0]
	if err := m.Update(context.Background(), ts); err != nil {
		t.Fatal(err)
	}
	s := m.State()
	for i := 0; i < 7; i++ {
		if s.Precipitation.Elements[i] < 0 || math.IsNaN(s.Precipitation.Elements[i]) {
			t.Errorf("precipitation cell %d: %g", i, s.Precipitation.Elements[i])
		}
		if s.ReferencePotET.Elements[i] < 0 || math.IsNaN(s.ReferencePotET.Elements[i]) {
			t.Errorf("reference ET cell %d: %g", i, s.ReferencePotET.Elements[i])
		}
		if s.Temperature.Elements[i] != -5 {
			t.Errorf("temperature cell %d should not be clamped: %g", i, s.Temperature.Elements[i])
		}
	}
}

func TestMeteoTemperatureRounding(t *testing.T) {
	d := testDomain(t)
	r := newMemReader()
	cfg := hamonConfig(r, 0, 12.3456789)
	m, err := New(cfg, d, r, newMemSink(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := steps(t, date(2001, 1, 15), date(2001, 1, 15))[0]
	if err := m.Update(context.Background(), ts); err != nil {
		t.Fatal(err)
	}
	if v := m.State().Temperature.Elements[0]; different(v, 12.346, 1e-12) {
		t.Errorf("have %g, want 12.346", v)
	}
}

func TestMeteoConfigErrors(t *testing.T) {
	d := testDomain(t)
	for _, tt := range []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{
			name:   "no precipitation",
			modify: func(c *Config) { delete(c.Forcing, VarPrecipitation) },
			want:   VarPrecipitation,
		},
		{
			name:   "input without reference ET",
			modify: func(c *Config) { c.ReferenceETMethod = InputET },
			want:   VarReferencePotET,
		},
		{
			name:   "Penman-Monteith without pressure",
			modify: func(c *Config) { c.ReferenceETMethod = PenmanMonteithET },
			want:   VarPressure,
		},
		{
			name:   "output not calculated",
			modify: func(c *Config) { c.Outputs = []Output{{VarLongwave, MonthAvg}} },
			want:   VarLongwave,
		},
		{
			name: "downscaling without elevation",
			modify: func(c *Config) {
				c.Downscale.Temperature = true
				c.Downscale.Units = testUnits()
			},
			want: "elevation",
		},
		{
			name:   "derived output with unknown variable",
			modify: func(c *Config) { c.DerivedOutputs = map[string]string{"snow": "precipitation * snowFraction"} },
			want:   "snowFraction",
		},
		{
			name:   "even smoothing window",
			modify: func(c *Config) { c.SmoothingWindow = 4 },
			want:   "not odd",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := newMemReader()
			cfg := hamonConfig(r, 0, 0)
			tt.modify(&cfg)
			_, err := New(cfg, d, r, newMemSink(), nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

// A failed update keeps the previous state.
func TestMeteoReadError(t *testing.T) {
	d := testDomain(t)
	r := newMemReader()
	cfg := DefaultConfig()
	cfg.Forcing[VarPrecipitation] = r.set(VarPrecipitation,
		testGrid(1, 1, 1, 1, 1, 1, 1, 1), testGrid(2, 2, 2, 2, 2, 2, 2, 2))
	cfg.Forcing[VarTemperature] = r.set(VarTemperature, testGrid(5, 5, 5, 5, 5, 5, 5, 5))
	m, err := New(cfg, d, r, newMemSink(), nil)
	if err != nil {
		t.Fatal(err)
	}
	tss := steps(t, date(2001, 1, 1), date(2001, 1, 3))
	if err := m.Update(context.Background(), tss[0]); err != nil {
		t.Fatal(err)
	}
	if err := m.Update(context.Background(), tss[2]); err == nil {
		t.Fatal("expected an error for a missing forcing record")
	} else if !strings.Contains(err.Error(), "2001-01-03") {
		t.Errorf("error should mention the date: %v", err)
	}
	if p := m.State().Precipitation.Elements[0]; different(p, 1, 1e-12) {
		t.Errorf("state should be unchanged: have %g, want 1", p)
	}
}

func TestMeteoPenmanMonteith(t *testing.T) {
	d := testDomain(t)
	for _, method := range []ShortwaveMethod{DirectShortwave, NetRadiationShortwave, BristowCampbellShortwave} {
		t.Run(method.String(), func(t *testing.T) {
			r := newMemReader()
			cfg := hamonConfig(r, 0.002, 15)
			cfg.ReferenceETMethod = PenmanMonteithET
			cfg.ShortwaveMethod = method
			cfg.BristowCampbell = BristowCampbellConfig{
				TempAnnualValue:         10,
				DeltaTempMeanValue:      9,
				TempAnnualCorrection:    Identity,
				DeltaTempMeanCorrection: Identity,
			}
			for name, v := range map[string]float64{
				VarPressure:  100000,
				VarDewpoint:  8,
				VarWindSpeed: 3,
				VarShortwave: 18e6,
				VarNetSolar:  14e6,
				VarAlbedo:    0.23,
				VarTMax:      21,
				VarTMin:      9,
			} {
				cfg.Forcing[name] = r.set(name, testGrid(v, v, v, v, v, v, v, v))
			}
			cfg.Outputs = []Output{
				{VarReferencePotET, MonthTot}, {VarNetRadiation, DailyTot}, {VarWindSpeed, MonthEnd},
			}
			if method == BristowCampbellShortwave {
				cfg.Outputs = append(cfg.Outputs, Output{VarTempAnnual, MonthEnd})
			}
			sink := newMemSink()
			m, err := New(cfg, d, r, sink, nil)
			if err != nil {
				t.Fatal(err)
			}
			for _, ts := range steps(t, date(2001, 6, 1), date(2001, 6, 30)) {
				if err := m.Step(context.Background(), ts); err != nil {
					t.Fatal(err)
				}
			}
			s := m.State()
			for i := 0; i < 7; i++ {
				et := s.ReferencePotET.Elements[i]
				if math.IsNaN(et) || et <= 0 || et > 0.015 {
					t.Errorf("cell %d: implausible reference ET %g", i, et)
				}
				if s.Shortwave.Elements[i] <= 0 {
					t.Errorf("cell %d: shortwave %g", i, s.Shortwave.Elements[i])
				}
			}
			if !math.IsNaN(s.ReferencePotET.Elements[7]) || !math.IsNaN(s.NetRadiation.Elements[7]) {
				t.Error("cells outside of the domain should be missing")
			}
			if n := len(sink.emitted[Output{VarNetRadiation, DailyTot}]); n != 30 {
				t.Errorf("have %d daily net radiation fields, want 30", n)
			}
			if e := sink.emitted[Output{VarReferencePotET, MonthTot}]; len(e) != 1 || e[0].data.Elements[0] <= 0 {
				t.Errorf("wrong monthly reference ET: %+v", e)
			}
			if method == BristowCampbellShortwave {
				if e := sink.emitted[Output{VarTempAnnual, MonthEnd}]; len(e) != 1 || math.IsNaN(e[0].data.Elements[0]) {
					t.Errorf("wrong annual temperature state: %+v", e)
				}
			}
		})
	}
}

func TestMeteoDerivedOutput(t *testing.T) {
	d := testDomain(t)
	r := newMemReader()
	cfg := DefaultConfig()
	cfg.ReferenceETMethod = InputET
	cfg.Forcing[VarPrecipitation] = r.set(VarPrecipitation, testGrid(0.004, 0.004, 0.004, 0.004, 0, 0, 0, 0))
	cfg.Forcing[VarTemperature] = r.set(VarTemperature, testGrid(5, 5, 5, 5, 5, 5, 5, 5))
	cfg.Forcing[VarReferencePotET] = r.set(VarReferencePotET, testGrid(0.001, 0.001, 0.001, 0.001, 0.001, 0.001, 0.001, 0.001))
	cfg.DerivedOutputs = map[string]string{
		"netPrecip":      "precipitation - referencePotET",
		"netPrecipFloor": "max(netPrecip, 0)",
	}
	cfg.Outputs = []Output{{"netPrecip", DailyTot}, {"netPrecipFloor", MonthTot}}
	sink := newMemSink()
	m, err := New(cfg, d, r, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, ts := range steps(t, date(2001, 2, 1), date(2001, 2, 28)) {
		if err := m.Step(context.Background(), ts); err != nil {
			t.Fatal(err)
		}
	}
	daily := sink.emitted[Output{"netPrecip", DailyTot}]
	if len(daily) != 28 {
		t.Fatalf("have %d daily fields, want 28", len(daily))
	}
	want := []float64{0.003, 0.003, 0.003, 0.003, -0.001, -0.001, -0.001, math.NaN()}
	for i, w := range want {
		if different(daily[0].data.Elements[i], w, 1e-10) {
			t.Errorf("netPrecip cell %d: have %g, want %g", i, daily[0].data.Elements[i], w)
		}
	}
	monthly := sink.emitted[Output{"netPrecipFloor", MonthTot}]
	if len(monthly) != 1 {
		t.Fatalf("have %d monthly fields, want 1", len(monthly))
	}
	if v := monthly[0].data.Elements[0]; different(v, 28*0.003, 1e-10) {
		t.Errorf("monthly total: have %g, want %g", v, 28*0.003)
	}
	if v := monthly[0].data.Elements[4]; v != 0 {
		t.Errorf("monthly total: have %g, want 0", v)
	}
}
