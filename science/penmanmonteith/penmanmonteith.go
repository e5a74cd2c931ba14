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

// Package penmanmonteith calculates reference potential evapotranspiration
// for a short grass surface with the Penman-Monteith combination equation
// (Allen et al., 1998, FAO Irrigation and Drainage Paper 56), written in
// terms of aerodynamic and surface resistances so that wind speed may be
// measured at any height.
package penmanmonteith

import "math"

// physical constants
const (
	σ  = 5.670373e-8 // Stefan-Boltzmann constant [W m-2 K-4]
	κ  = 0.41        // Von Kármán constant
	cp = 1013.       // specific heat of moist air [J kg-1 K-1]
	ε  = 0.622       // ratio of molecular weights of water vapour and dry air
	rr = 287.058     // specific gas constant for dry air [J kg-1 K-1]

	zeroCelsius = 273.15
)

// SecondsPerDay is the length of a daily timestep [s].
const SecondsPerDay = 86400.

// Parameters describe the reference surface and the measurement setup.
type Parameters struct {
	// WindHeight is the height of the wind speed measurement [m].
	WindHeight float64

	// HumidityHeight is the height of the humidity measurement [m].
	HumidityHeight float64

	// CropHeight is the height of the reference crop [m].
	CropHeight float64

	// SurfaceResistance is the bulk surface resistance [s m-1].
	SurfaceResistance float64

	// Timestep is the length of the timestep [s].
	Timestep float64

	// MinWind is the lower bound applied to wind speed [m s-1] to
	// keep the aerodynamic resistance finite.
	MinWind float64
}

// DefaultParameters are the FAO reference grass parameters with
// meteorological measurements at 10 m and a daily timestep.
var DefaultParameters = Parameters{
	WindHeight:        10,
	HumidityHeight:    10,
	CropHeight:        0.12,
	SurfaceResistance: 70,
	Timestep:          SecondsPerDay,
	MinWind:           0.1,
}

// SatVapourPressure returns the saturation vapour pressure [Pa] at
// temperature t [°C].
func SatVapourPressure(t float64) float64 {
	return 610.8 * math.Exp(17.27*t/(t+237.3))
}

// SatVapourSlope returns the slope of the saturation vapour pressure
// curve [Pa K-1] at temperature t [°C].
func SatVapourSlope(t float64) float64 {
	return 4098 * SatVapourPressure(t) / ((t + 237.3) * (t + 237.3))
}

// LatentHeat returns the latent heat of vaporization [J kg-1] at
// temperature t [°C].
func LatentHeat(t float64) float64 {
	return 2.501e6 - 2361*t
}

// Psychrometric returns the psychrometric constant [Pa K-1] at
// pressure p [Pa] and temperature t [°C].
func Psychrometric(p, t float64) float64 {
	return cp * p / (ε * LatentHeat(t))
}

// Longwave returns the net outgoing longwave radiation [W m-2] for air
// temperature t [°C], actual vapour pressure e [Pa], and fraction, the
// ratio of incoming shortwave to extraterrestrial radiation. fraction
// is clamped to [0, 1]. The result is never negative.
func Longwave(t, e, fraction float64) float64 {
	fraction = math.Min(math.Max(fraction, 0), 1)
	tk := t + zeroCelsius
	emissivity := math.Max(0, 0.34-0.14*math.Sqrt(math.Max(e, 0)/1000))
	// Clear-sky shortwave is taken as 0.75 of extraterrestrial.
	cloud := math.Max(0, 1.35*math.Min(1, fraction/0.75)-0.35)
	return σ * tk * tk * tk * tk * emissivity * cloud
}

// NetRadiation returns net radiation [W m-2] from incoming shortwave
// sw [W m-2] and net outgoing longwave lw [W m-2], bounded below by zero.
func NetRadiation(sw, lw float64) float64 {
	return math.Max(0, sw-lw)
}

// DailyToFlux converts a daily radiation sum [J m-2 day-1] to a mean
// flux [W m-2].
func DailyToFlux(r float64) float64 {
	return r / 1e6 / 0.0864
}

// AerodynamicResistance returns the aerodynamic resistance [s m-1] for
// wind speed u [m s-1].
func (p Parameters) AerodynamicResistance(u float64) float64 {
	u = math.Max(u, p.MinWind)
	d := 2. / 3. * p.CropHeight
	zom := 0.123 * p.CropHeight
	zoh := 0.1 * zom
	return math.Log((p.WindHeight-d)/zom) * math.Log((p.HumidityHeight-d)/zoh) / (κ * κ * u)
}

// ReferenceET returns reference potential evapotranspiration [m per
// timestep] for net radiation rn [W m-2], ground heat flux g [W m-2],
// air temperature t [°C], wind speed u [m s-1], air pressure pa [Pa] and
// actual vapour pressure e [Pa]. The result is never negative.
func (p Parameters) ReferenceET(rn, g, t, u, pa, e float64) float64 {
	for _, v := range []float64{rn, g, t, u, pa, e} {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	es := SatVapourPressure(t)
	Δ := SatVapourSlope(t)
	λ := LatentHeat(t)
	γ := Psychrometric(pa, t)
	ρa := pa / (rr * (t + zeroCelsius))
	ra := p.AerodynamicResistance(u)

	λE := (Δ*(rn-g) + ρa*cp*math.Max(0, es-e)/ra) /
		(Δ + γ*(1+p.SurfaceResistance/ra))
	return math.Max(0, λE/λ*p.Timestep/1000)
}
