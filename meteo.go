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
	"sort"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config holds the pipeline settings.
type Config struct {
	// Forcing gives the source of each forcing variable, keyed by
	// variable name. Precipitation and temperature are always required.
	Forcing map[string]Source

	Conversions Conversions

	ReferenceETMethod ReferenceETMethod
	ShortwaveMethod   ShortwaveMethod

	// SolarConstant [MJ m-2 day-1] is used for astronomic
	// extraterrestrial radiation. Zero means the default.
	SolarConstant float64

	Downscale       DownscaleConfig
	BristowCampbell BristowCampbellConfig

	// SmoothingWindow is the width [cells] of the moving window average
	// applied to precipitation, temperature and reference ET. It must be
	// odd; values below 2 disable smoothing.
	SmoothingWindow int

	// IgnoreSnow sets temperature to 25 °C everywhere so that no
	// precipitation falls as snow.
	IgnoreSnow bool

	// RoundDownPrecipitation truncates converted precipitation to 0.01 mm.
	RoundDownPrecipitation bool

	Outputs []Output

	// DerivedOutputs defines additional reportable variables as
	// expressions of the state variables.
	DerivedOutputs map[string]string
}

// DefaultConfig returns a configuration with the default settings and
// no forcing sources.
func DefaultConfig() Config {
	return Config{
		Forcing:                make(map[string]Source),
		Conversions:            make(Conversions),
		ReferenceETMethod:      HamonET,
		ShortwaveMethod:        DirectShortwave,
		Downscale:              DefaultDownscaleConfig(),
		RoundDownPrecipitation: true,
	}
}

// State holds the fields calculated for the current timestep.
type State struct {
	Precipitation  *sparse.DenseArray // m day-1
	Temperature    *sparse.DenseArray // °C
	ReferencePotET *sparse.DenseArray // m day-1

	// Penman-Monteith radiation terms [W m-2] and wind speed [m s-1].
	// They are nil for other methods.
	Extraterrestrial, Shortwave, Longwave, NetRadiation *sparse.DenseArray
	WindSpeed                                           *sparse.DenseArray
}

// Meteo runs the meteorological forcing pipeline one day at a time.
type Meteo struct {
	// Log receives progress messages.
	Log logrus.FieldLogger

	cfg        Config
	domain     *Domain
	reader     ForcingReader
	downscaler *Downscaler
	method     referenceET
	reporter   *Reporter
	derived    *derivedOutputs

	// vars are the forcing variables read each timestep.
	vars []string

	state        State
	derivedState map[string]*sparse.DenseArray
}

// New checks the configuration and creates a pipeline on domain d that
// reads forcing with r and reports to sink. Missing inputs for the
// selected methods are reported here rather than while running.
func New(cfg Config, d *Domain, r ForcingReader, sink Sink, log logrus.FieldLogger) (*Meteo, error) {
	if log == nil {
		l := logrus.New()
		l.Out = nopWriter{}
		log = l
	}
	m := &Meteo{
		Log:    log,
		cfg:    cfg,
		domain: d,
		reader: r,
	}
	for _, v := range []string{VarPrecipitation, VarTemperature} {
		if _, ok := cfg.Forcing[v]; !ok {
			return nil, fmt.Errorf("hydromet: forcing variable %q is required", v)
		}
	}
	m.vars = []string{VarPrecipitation, VarTemperature}
	if w := cfg.SmoothingWindow; w > 1 && w%2 == 0 {
		return nil, fmt.Errorf("hydromet: smoothing window width %d is not odd", w)
	}

	switch cfg.ReferenceETMethod {
	case InputET:
		m.method = inputET{}
	case HamonET:
		m.method = hamonET{domain: d}
	case PenmanMonteithET:
		pm, err := newPenmanMonteithET(d, cfg.ShortwaveMethod, cfg.SolarConstant, cfg.BristowCampbell)
		if err != nil {
			return nil, err
		}
		m.method = pm
	default:
		return nil, fmt.Errorf("hydromet: invalid reference ET method %v", cfg.ReferenceETMethod)
	}
	extra, err := m.method.variables(cfg.Forcing)
	if err != nil {
		return nil, err
	}
	m.vars = append(m.vars, extra...)

	if m.downscaler, err = NewDownscaler(d, r, cfg.Downscale); err != nil {
		return nil, err
	}

	if m.derived, err = newDerivedOutputs(cfg.DerivedOutputs, m.stateVariables()); err != nil {
		return nil, err
	}
	available := make(map[string]bool)
	for _, v := range append(m.stateVariables(), m.derived.Names()...) {
		available[v] = true
	}
	for _, o := range cfg.Outputs {
		if !available[o.Variable] {
			return nil, fmt.Errorf("hydromet: output variable %q is not calculated by the %v method", o.Variable, cfg.ReferenceETMethod)
		}
	}
	if m.reporter, err = NewReporter(cfg.Outputs, sink); err != nil {
		return nil, err
	}
	return m, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// stateVariables returns the names of the variables calculated by the
// configured methods.
func (m *Meteo) stateVariables() []string {
	o := []string{VarPrecipitation, VarTemperature, VarReferencePotET}
	if pm, ok := m.method.(*penmanMonteithET); ok {
		o = append(o, VarExtraterrestrial, VarShortwave, VarLongwave, VarNetRadiation, VarWindSpeed)
		if _, ok := pm.shortwave.(*bristowCampbellShortwave); ok {
			o = append(o, VarTempAnnual, VarDeltaTempMean)
		}
	}
	return o
}

// ForcingVariables returns the forcing variables read each timestep.
func (m *Meteo) ForcingVariables() []string {
	o := append([]string{}, m.vars...)
	sort.Strings(o)
	return o
}

// Domain returns the model domain.
func (m *Meteo) Domain() *Domain { return m.domain }

// State returns the fields of the most recent timestep.
func (m *Meteo) State() State { return m.state }

// Step updates the state for timestep ts and reports it.
func (m *Meteo) Step(ctx context.Context, ts *TimeStep) error {
	if err := m.Update(ctx, ts); err != nil {
		return err
	}
	return m.Report(ts)
}

// Update calculates the state for timestep ts. If it returns an error,
// the previous state is kept and nothing should be reported.
func (m *Meteo) Update(ctx context.Context, ts *TimeStep) error {
	in, err := m.read(ctx, ts)
	if err != nil {
		return err
	}
	for name, raw := range in {
		if name == VarPrecipitation {
			in[name] = m.cfg.Conversions.ConvertPrecipitation(m.domain, raw, m.cfg.RoundDownPrecipitation)
		} else {
			in[name] = m.cfg.Conversions.Convert(m.domain, name, raw)
		}
	}

	var s State
	if s.Precipitation, err = m.downscaler.Precipitation(ctx, ts, in[VarPrecipitation]); err != nil {
		return fmt.Errorf("hydromet: downscaling precipitation: %v", err)
	}
	if s.Temperature, err = m.downscaler.Temperature(ctx, ts, in[VarTemperature]); err != nil {
		return fmt.Errorf("hydromet: downscaling temperature: %v", err)
	}
	if err = m.method.compute(ts, in, &s); err != nil {
		return err
	}
	if m.cfg.ReferenceETMethod != HamonET {
		s.ReferencePotET = m.downscaler.ReferenceET(ts, s.ReferencePotET, s.Temperature)
	}
	m.postprocess(&s)
	m.state = s
	m.derivedState = nil

	m.Log.WithFields(logrus.Fields{
		"date": ts.Date.Format(dateFormat),
		"step": ts.Index,
	}).Debug("hydromet: updated meteorological forcing")
	return nil
}

// read reads the raw forcing for ts concurrently.
func (m *Meteo) read(ctx context.Context, ts *TimeStep) (fields, error) {
	results := make([]*sparse.DenseArray, len(m.vars))
	g, ctx := errgroup.WithContext(ctx)
	for i, v := range m.vars {
		i, v := i, v
		g.Go(func() error {
			data, err := m.reader.Read(ctx, m.cfg.Forcing[v], ts)
			if err != nil {
				return fmt.Errorf("hydromet: reading %s for %s: %v", v, ts.Date.Format(dateFormat), err)
			}
			if err := m.domain.checkShape(v, data); err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	in := make(fields, len(m.vars))
	for i, v := range m.vars {
		in[v] = results[i]
	}
	return in, nil
}

// Report accumulates the state and emits the outputs that are due at ts.
func (m *Meteo) Report(ts *TimeStep) error {
	return m.reporter.Update(ts, m.Value)
}

// Outputs returns the reported outputs.
func (m *Meteo) Outputs() []Output { return m.reporter.Outputs() }

// Value returns the current value of a state or derived variable.
func (m *Meteo) Value(name string) (*sparse.DenseArray, error) {
	var v *sparse.DenseArray
	switch name {
	case VarPrecipitation:
		v = m.state.Precipitation
	case VarTemperature:
		v = m.state.Temperature
	case VarReferencePotET:
		v = m.state.ReferencePotET
	case VarExtraterrestrial:
		v = m.state.Extraterrestrial
	case VarShortwave:
		v = m.state.Shortwave
	case VarLongwave:
		v = m.state.Longwave
	case VarNetRadiation:
		v = m.state.NetRadiation
	case VarWindSpeed:
		v = m.state.WindSpeed
	case VarTempAnnual, VarDeltaTempMean:
		if pm, ok := m.method.(*penmanMonteithET); ok {
			if bc, ok := pm.shortwave.(*bristowCampbellShortwave); ok {
				ta, dt := bc.state(m.domain.Shape())
				if name == VarTempAnnual {
					v = ta
				} else {
					v = dt
				}
			}
		}
	default:
		if m.derivedState == nil {
			var err error
			if m.derivedState, err = m.derived.evaluate(m.Value); err != nil {
				return nil, err
			}
		}
		v = m.derivedState[name]
	}
	if v == nil {
		return nil, fmt.Errorf("hydromet: variable %q is not available", name)
	}
	return v, nil
}
