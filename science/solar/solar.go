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

// Package solar calculates top-of-atmosphere (extraterrestrial) solar
// radiation following Dingman (2002), Physical Hydrology, appendix E.
package solar

import "math"

// DefaultConstant is the solar constant integrated over a day
// [MJ m-2 day-1].
const DefaultConstant = 118.1

// DayAngle returns the day angle [radians] for the given day of the year.
// daysInYear should be 366 in leap years.
func DayAngle(doy, daysInYear int) float64 {
	return 2 * math.Pi * float64(doy-1) / float64(daysInYear)
}

// Declination returns the solar declination [radians] for day angle Γ.
func Declination(Γ float64) float64 {
	return 0.006918 - 0.399912*math.Cos(Γ) + 0.070257*math.Sin(Γ) -
		0.006758*math.Cos(2*Γ) + 0.000907*math.Sin(2*Γ) -
		0.002697*math.Cos(3*Γ) + 0.00148*math.Sin(3*Γ)
}

// Eccentricity returns the eccentricity correction factor of the earth's
// orbit [-] for day angle Γ.
func Eccentricity(Γ float64) float64 {
	return 1.000110 + 0.034221*math.Cos(Γ) + 0.001280*math.Sin(Γ) +
		0.000719*math.Cos(2*Γ) + 0.000077*math.Sin(2*Γ)
}

// SunsetHourAngle returns the sunset hour angle [radians] at latitude
// φ [radians] for declination δ [radians].
func SunsetHourAngle(φ, δ float64) float64 {
	arg := -math.Tan(φ) * math.Tan(δ)
	return math.Acos(math.Min(math.Max(arg, -1), 1))
}

// DayLength returns the number of daylight hours at latitude
// lat [degrees].
func DayLength(doy, daysInYear int, lat float64) float64 {
	δ := Declination(DayAngle(doy, daysInYear))
	return 24 / math.Pi * SunsetHourAngle(lat*math.Pi/180, δ)
}

// Extraterrestrial returns the daily extraterrestrial radiation
// [MJ m-2 day-1] at latitude lat [degrees] for the given day of the year,
// using solar constant s [MJ m-2 day-1].
func Extraterrestrial(doy, daysInYear int, lat, s float64) float64 {
	if math.IsNaN(lat) {
		return math.NaN()
	}
	Γ := DayAngle(doy, daysInYear)
	δ := Declination(Γ)
	φ := lat * math.Pi / 180
	ωs := SunsetHourAngle(φ, δ)
	r := s / math.Pi * Eccentricity(Γ) *
		(ωs*math.Sin(φ)*math.Sin(δ) + math.Cos(φ)*math.Cos(δ)*math.Sin(ωs))
	return math.Max(0, r)
}
