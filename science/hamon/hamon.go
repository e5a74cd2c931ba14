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

// Package hamon calculates reference potential evapotranspiration with
// the empirical temperature-based method of Hamon (1963).
package hamon

import "math"

// SatVapourPressure returns the saturation vapour pressure [kPa] over water
// (t >= 0 °C) or ice (t < 0 °C) at air temperature t [°C], after
// Murray (1967).
func SatVapourPressure(t float64) float64 {
	if t < 0 {
		return 0.6108 * math.Exp(21.87*t/(t+265.5))
	}
	return 0.6108 * math.Exp(17.27*t/(t+237.3))
}

// Declination returns the solar declination [radians] for the given
// day of the year.
func Declination(doy, daysInYear int) float64 {
	return 0.409 * math.Sin(2*math.Pi*float64(doy)/float64(daysInYear)-1.39)
}

// DayLength returns the number of daylight hours at latitude lat [degrees]
// on the given day of the year.
func DayLength(doy, daysInYear int, lat float64) float64 {
	φ := lat * math.Pi / 180
	arg := -math.Tan(φ) * math.Tan(Declination(doy, daysInYear))
	arg = math.Min(math.Max(arg, -1), 1)
	return 24 / math.Pi * math.Acos(arg)
}

// PotET returns Hamon reference potential evapotranspiration [m/day]
// for mean daily air temperature t [°C] at latitude lat [degrees].
// The result is never negative.
func PotET(t float64, doy, daysInYear int, lat float64) float64 {
	if math.IsNaN(t) || math.IsNaN(lat) {
		return math.NaN()
	}
	ρSat := 2.167 * SatVapourPressure(t) / (t + 273.15)
	d := DayLength(doy, daysInYear, lat) / 12
	return math.Max(0, 55*d*d*ρSat/1000)
}
