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

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/hydromet/science/hamon"
)

// DownscaleConfig holds the downscaling settings.
type DownscaleConfig struct {
	// Precipitation, Temperature and ReferenceET enable downscaling of
	// the respective variables.
	Precipitation, Temperature, ReferenceET bool

	// PrecipitationUseFactor and TemperatureUseFactor select
	// multiplicative, mass-conserving downscaling instead of adding the
	// lapse rate correction directly.
	PrecipitationUseFactor, TemperatureUseFactor bool

	// UseHamonForReferenceET derives the reference ET downscaling factor
	// from Hamon ET of the downscaled temperature instead of from the
	// absolute downscaled temperature.
	UseHamonForReferenceET bool

	// ConsiderCellArea weights the per-unit normalization by cell area.
	ConsiderCellArea bool

	// MinCorrelation is the precipitation correlation at or below which
	// the lapse rate is not applied. MaxCorrelation is the temperature
	// correlation at or above which the lapse rate is not applied.
	MinCorrelation, MaxCorrelation float64

	// DrizzleLimit [m day-1] and MinLimit [m day-1] are the precipitation
	// and reference ET values below which cells are not rescaled.
	DrizzleLimit, MinLimit float64

	// Elevation is the high resolution elevation [m] and Units holds the
	// downscale unit identifier of each cell.
	Elevation, Units *sparse.DenseArray

	PrecipitationLapseRate, PrecipitationCorrelation Source
	TemperatureLapseRate, TemperatureCorrelation     Source
}

// DefaultDownscaleConfig returns the default settings, with downscaling
// disabled.
func DefaultDownscaleConfig() DownscaleConfig {
	return DownscaleConfig{
		PrecipitationUseFactor: true,
		ConsiderCellArea:       true,
		MinCorrelation:         0.85,
		MaxCorrelation:         -0.75,
		DrizzleLimit:           0.001,
		MinLimit:               0.001,
	}
}

func (c DownscaleConfig) enabled() bool {
	return c.Precipitation || c.Temperature || c.ReferenceET
}

// Downscaler corrects coarse resolution forcing using the anomaly of the
// high resolution elevation from its downscale unit mean.
type Downscaler struct {
	cfg       DownscaleConfig
	domain    *Domain
	partition *Partition
	anomaly   *sparse.DenseArray
	weights   *sparse.DenseArray
	reader    ForcingReader
}

// NewDownscaler checks the configuration and calculates the elevation
// anomaly. It returns an error if downscaling is enabled and the
// elevation, units, or lapse rate sources are missing.
func NewDownscaler(d *Domain, r ForcingReader, cfg DownscaleConfig) (*Downscaler, error) {
	ds := &Downscaler{cfg: cfg, domain: d, reader: r}
	if !cfg.enabled() {
		return ds, nil
	}
	if cfg.Elevation == nil || cfg.Units == nil {
		return nil, fmt.Errorf("hydromet: downscaling is enabled but the elevation or downscale units are missing")
	}
	if err := d.checkShape("elevation", cfg.Elevation); err != nil {
		return nil, err
	}
	if cfg.Precipitation && (cfg.PrecipitationLapseRate.File == "" || cfg.PrecipitationCorrelation.File == "") {
		return nil, fmt.Errorf("hydromet: precipitation downscaling is enabled but the lapse rate or correlation inputs are missing")
	}
	if cfg.Temperature && (cfg.TemperatureLapseRate.File == "" || cfg.TemperatureCorrelation.File == "") {
		return nil, fmt.Errorf("hydromet: temperature downscaling is enabled but the lapse rate or correlation inputs are missing")
	}
	var err error
	if ds.partition, err = NewPartition(d, cfg.Units); err != nil {
		return nil, err
	}
	ds.anomaly = ds.elevationAnomaly(cfg.Elevation)
	if cfg.ConsiderCellArea {
		ds.weights = d.CellArea
	}
	return ds, nil
}

// elevationAnomaly returns the difference between the elevation of each
// cell and the area weighted mean elevation of its unit.
func (ds *Downscaler) elevationAnomaly(dem *sparse.DenseArray) *sparse.DenseArray {
	dem = apply(cover(dem, 0), func(x float64) float64 { return math.Max(0, x) })
	area := ds.domain.CellArea
	mean := apply2(
		ds.partition.AreaTotal(apply2(dem, area, func(z, a float64) float64 { return z * a })),
		ds.partition.AreaTotal(area),
		func(za, a float64) float64 { return za / a },
	)
	anomaly := apply2(dem, mean, func(z, m float64) float64 { return z - m })
	ds.domain.IfThen(anomaly)
	return anomaly
}

// Anomaly returns the elevation anomaly [m].
func (ds *Downscaler) Anomaly() *sparse.DenseArray { return ds.anomaly }

// precipitationSlope returns the precipitation lapse rate for ts, in m
// per day per m of elevation, gated by its correlation.
func (ds *Downscaler) precipitationSlope(ctx context.Context, ts *TimeStep) (*sparse.DenseArray, error) {
	lapse, corr, err := ds.read(ctx, ts, ds.cfg.PrecipitationLapseRate, ds.cfg.PrecipitationCorrelation)
	if err != nil {
		return nil, err
	}
	return apply2(lapse, corr, func(l, c float64) float64 {
		if math.IsNaN(l) || math.IsNaN(c) || c <= ds.cfg.MinCorrelation {
			return 0
		}
		return math.Max(0, 0.001*l)
	}), nil
}

// temperatureSlope returns the temperature lapse rate for ts, in K per m
// of elevation, gated by its correlation.
func (ds *Downscaler) temperatureSlope(ctx context.Context, ts *TimeStep) (*sparse.DenseArray, error) {
	lapse, corr, err := ds.read(ctx, ts, ds.cfg.TemperatureLapseRate, ds.cfg.TemperatureCorrelation)
	if err != nil {
		return nil, err
	}
	return apply2(lapse, corr, func(l, c float64) float64 {
		if math.IsNaN(l) || math.IsNaN(c) || c >= ds.cfg.MaxCorrelation {
			return 0
		}
		return math.Min(0, l)
	}), nil
}

func (ds *Downscaler) read(ctx context.Context, ts *TimeStep, lapseSrc, corrSrc Source) (lapse, corr *sparse.DenseArray, err error) {
	if lapse, err = ds.reader.Read(ctx, lapseSrc, ts); err != nil {
		return nil, nil, fmt.Errorf("hydromet: reading lapse rate: %v", err)
	}
	if corr, err = ds.reader.Read(ctx, corrSrc, ts); err != nil {
		return nil, nil, fmt.Errorf("hydromet: reading lapse rate correlation: %v", err)
	}
	return lapse, corr, nil
}

// Precipitation returns downscaled precipitation [m day-1]. The result
// is never negative.
func (ds *Downscaler) Precipitation(ctx context.Context, ts *TimeStep, p *sparse.DenseArray) (*sparse.DenseArray, error) {
	if !ds.cfg.Precipitation {
		return p, nil
	}
	slope, err := ds.precipitationSlope(ctx, ts)
	if err != nil {
		return nil, err
	}
	g := ds.applySlope(p, slope)
	var o *sparse.DenseArray
	if ds.cfg.PrecipitationUseFactor {
		clampMin(g, 0)
		o = ds.normalize(p, g, func(x float64) bool { return x > ds.cfg.DrizzleLimit })
	} else {
		o = g
	}
	clampMin(o, 0)
	return o, nil
}

// Temperature returns downscaled temperature [°C].
func (ds *Downscaler) Temperature(ctx context.Context, ts *TimeStep, t *sparse.DenseArray) (*sparse.DenseArray, error) {
	if !ds.cfg.Temperature {
		return t, nil
	}
	slope, err := ds.temperatureSlope(ctx, ts)
	if err != nil {
		return nil, err
	}
	if !ds.cfg.TemperatureUseFactor {
		return ds.applySlope(t, slope), nil
	}
	tk := apply(t, func(x float64) float64 { return x + zeroCelsius })
	g := ds.applySlope(tk, slope)
	clampMin(g, 0)
	o := ds.normalize(tk, g, func(x float64) bool { return x > 0 })
	return apply(o, func(x float64) float64 { return x - zeroCelsius }), nil
}

// ReferenceET returns downscaled reference ET [m day-1] given downscaled
// temperature t [°C]. The result is never negative.
func (ds *Downscaler) ReferenceET(ts *TimeStep, et, t *sparse.DenseArray) *sparse.DenseArray {
	if !ds.cfg.ReferenceET {
		return et
	}
	var g *sparse.DenseArray
	if ds.cfg.UseHamonForReferenceET {
		g = apply2(t, ds.domain.Latitude, func(t, lat float64) float64 {
			return hamon.PotET(t, ts.DOY, ts.DaysInYear, lat)
		})
	} else {
		g = apply(t, func(x float64) float64 { return x + zeroCelsius })
	}
	clampMin(g, 0)
	o := ds.normalize(et, g, func(x float64) bool { return x > ds.cfg.MinLimit })
	clampMin(o, 0)
	return o
}

func (ds *Downscaler) applySlope(x, slope *sparse.DenseArray) *sparse.DenseArray {
	o := x.Copy()
	for i, v := range o.Elements {
		o.Elements[i] = v + slope.Elements[i]*ds.anomaly.Elements[i]
	}
	return o
}

// normalize multiplies x by the factor g, scaled per unit so that the
// (area weighted) mean of x over the eligible cells of each unit is
// unchanged. Cells where eligible(x) is false, or whose unit has no
// usable factor, keep a factor of 1.
func (ds *Downscaler) normalize(x, g *sparse.DenseArray, eligible func(float64) bool) *sparse.DenseArray {
	include := make([]bool, len(x.Elements))
	for i, v := range x.Elements {
		include[i] = ds.domain.Mask[i] && !math.IsNaN(v) && !math.IsNaN(g.Elements[i]) && eligible(v)
	}
	xg := apply2(x, g, func(x, g float64) float64 { return x * g })
	xMean := ds.partition.AreaAverage(x, ds.weights, include)
	xgMean := ds.partition.AreaAverage(xg, ds.weights, include)
	o := x.Copy()
	for i, ok := range include {
		if !ok {
			continue
		}
		m := xgMean.Elements[i]
		if m == 0 || math.IsNaN(m) {
			continue
		}
		o.Elements[i] = xg.Elements[i] * (xMean.Elements[i] / m)
	}
	return o
}
