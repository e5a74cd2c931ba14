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

// Package hydromet prepares daily meteorological forcing (precipitation,
// temperature and reference potential evapotranspiration) on a gridded
// domain for hydrological models.
//
// Each simulated day, forcing grids are read, corrected with per-variable
// constants and factors, optionally downscaled against a high resolution
// elevation anomaly, and used to calculate reference evapotranspiration by
// one of several methods. The results are post-processed and reported as
// daily values or as monthly and annual totals, averages and period-end
// snapshots.
package hydromet

// Version gives the version number.
const Version = "0.1.0"

const zeroCelsius = 273.15 // K

// Names of the forcing and state variables.
const (
	VarPrecipitation  = "precipitation"  // m day-1
	VarTemperature    = "temperature"    // °C
	VarReferencePotET = "referencePotET" // m day-1

	// Auxiliary Penman-Monteith inputs.
	VarWindSpeed        = "wind_speed_10m"              // m s-1
	VarWindU            = "wind_speed_10m_u_comp"       // m s-1
	VarWindV            = "wind_speed_10m_v_comp"       // m s-1
	VarPressure         = "atmospheric_pressure"        // Pa
	VarExtraterrestrial = "extraterrestrial_radiation"  // J m-2 day-1
	VarShortwave        = "shortwave_radiation"         // J m-2 day-1
	VarNetSolar         = "surface_net_solar_radiation" // J m-2 day-1
	VarAlbedo           = "albedo"                      // -
	VarTMax             = "air_temperature_max"         // °C
	VarTMin             = "air_temperature_min"         // °C
	VarDewpoint         = "dewpoint_temperature_avg"    // °C

	// Penman-Monteith intermediate results, reported in W m-2.
	VarLongwave     = "longwave_radiation"
	VarNetRadiation = "net_radiation"

	// Bristow-Campbell state.
	VarTempAnnual    = "temp_annual"     // °C
	VarDeltaTempMean = "delta_temp_mean" // K
)
