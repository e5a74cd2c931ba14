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

// Package hydrometutil provides the command-line interface, configuration
// and input staging for the HydroMet meteorological forcing pipeline.
package hydrometutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/hydromet"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	pipeline := []*pflag.FlagSet{runCmd.Flags(), checkCmd.Flags()}

	// Options are the configuration options available to HydroMet.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum severity of logged messages: one of
              debug, info, warn or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile, if set, is a file that log messages are written to
              in addition to standard error. The file is rotated when it
              grows large.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the first simulated day. Format = "YYYY-MM-DD".`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the last simulated day, inclusive. Format = "YYYY-MM-DD".`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory that output files and the run
              manifest are written to. It can be a local directory or a
              bucket location such as gs://bucket/dir or s3://bucket/dir.`,
			shorthand:  "o",
			defaultVal: "hydromet_output",
			flagsets:   pipeline,
		},
		{
			name: "CacheSize",
			usage: `
              CacheSize is the number of climatological and constant forcing
              fields that are kept in memory.`,
			defaultVal: 100,
			flagsets:   pipeline,
		},
		{
			name: "Domain.CloneFile",
			usage: `
              Domain.CloneFile is a NetCDF file that defines the model grid
              with one dimensional latitude and longitude coordinates.
              It can be a local path, a URL, or a bucket location.`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "Domain.LatitudeVariable",
			usage: `
              Domain.LatitudeVariable is the latitude coordinate in Domain.CloneFile.`,
			defaultVal: "lat",
			flagsets:   pipeline,
		},
		{
			name: "Domain.LongitudeVariable",
			usage: `
              Domain.LongitudeVariable is the longitude coordinate in Domain.CloneFile.`,
			defaultVal: "lon",
			flagsets:   pipeline,
		},
		{
			name: "Domain.MaskVariable",
			usage: `
              Domain.MaskVariable, if set, is a grid in Domain.CloneFile that
              is nonzero inside the model domain.`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "Domain.CellAreaFile",
			usage: `
              Domain.CellAreaFile, if set, is a NetCDF file holding grid cell
              areas [m²]. Otherwise areas are calculated from the coordinates.`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "Domain.CellAreaVariable",
			usage: `
              Domain.CellAreaVariable is the cell area variable in Domain.CellAreaFile.`,
			defaultVal: "cellArea",
			flagsets:   pipeline,
		},
		{
			name: "ReferenceETMethod",
			usage: `
              ReferenceETMethod is the method for reference potential
              evapotranspiration: Input, Hamon, or PenmanMonteith.`,
			defaultVal: "Hamon",
			flagsets:   pipeline,
		},
		{
			name: "ShortwaveMethod",
			usage: `
              ShortwaveMethod is the source of incoming shortwave radiation
              for the PenmanMonteith method: Direct, NetRadiation, or
              BristowCampbell.`,
			defaultVal: "Direct",
			flagsets:   pipeline,
		},
		{
			name: "SolarConstant",
			usage: `
              SolarConstant [MJ m-2 day-1] is used to calculate
              extraterrestrial radiation when it is not read from forcing.`,
			defaultVal: 118.1,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.Precipitation",
			usage: `
              Downscale.Precipitation specifies whether precipitation is
              downscaled using the elevation anomaly.`,
			defaultVal: false,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.Temperature",
			usage: `
              Downscale.Temperature specifies whether temperature is
              downscaled using the elevation anomaly.`,
			defaultVal: false,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.ReferenceET",
			usage: `
              Downscale.ReferenceET specifies whether reference ET is
              redistributed following the downscaled temperature.`,
			defaultVal: false,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.PrecipitationUseFactor",
			usage: `
              Downscale.PrecipitationUseFactor specifies whether downscaled
              precipitation is rescaled to conserve the downscale unit mean.`,
			defaultVal: true,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.TemperatureUseFactor",
			usage: `
              Downscale.TemperatureUseFactor specifies whether downscaled
              temperature is rescaled, in Kelvin, to conserve the downscale
              unit mean.`,
			defaultVal: false,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.UseHamonForReferenceET",
			usage: `
              Downscale.UseHamonForReferenceET specifies whether the Hamon
              equation, rather than absolute temperature, gives the pattern
              reference ET is redistributed with.`,
			defaultVal: false,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.ConsiderCellArea",
			usage: `
              Downscale.ConsiderCellArea specifies whether downscale unit
              means are weighted by cell area.`,
			defaultVal: true,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.MinCorrelation",
			usage: `
              Downscale.MinCorrelation is the correlation between precipitation
              and elevation that the precipitation lapse rate is applied above.`,
			defaultVal: 0.85,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.MaxCorrelation",
			usage: `
              Downscale.MaxCorrelation is the correlation between temperature
              and elevation that the temperature lapse rate is applied below.`,
			defaultVal: -0.75,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.DrizzleLimit",
			usage: `
              Downscale.DrizzleLimit [m day-1] is the precipitation below which
              cells are not downscaled.`,
			defaultVal: 0.001,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.MinLimit",
			usage: `
              Downscale.MinLimit [m day-1] is the reference ET below which
              cells are not downscaled.`,
			defaultVal: 0.001,
			flagsets:   pipeline,
		},
		{
			name: "Downscale.DEMFile",
			usage: `
              Downscale.DEMFile is a NetCDF file holding high resolution
              elevation [m] on the model grid.`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "Downscale.DEMVariable",
			usage: `
              Downscale.DEMVariable is the elevation variable in Downscale.DEMFile.`,
			defaultVal: "dem",
			flagsets:   pipeline,
		},
		{
			name: "Downscale.UnitsFile",
			usage: `
              Downscale.UnitsFile is a NetCDF file assigning each grid cell
              the identifier of the coarse forcing cell it lies in.`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "Downscale.UnitsVariable",
			usage: `
              Downscale.UnitsVariable is the identifier variable in Downscale.UnitsFile.`,
			defaultVal: "units",
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.TempAnnualFile",
			usage: `
              BristowCampbell.TempAnnualFile, if set, is a NetCDF file with
              the initial mean annual temperature [°C]. Otherwise
              BristowCampbell.TempAnnualValue is used everywhere.`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.TempAnnualVariable",
			usage: `
              BristowCampbell.TempAnnualVariable is the variable in
              BristowCampbell.TempAnnualFile.`,
			defaultVal: VarTempAnnualDefault,
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.TempAnnualValue",
			usage: `
              BristowCampbell.TempAnnualValue [°C] is the initial mean annual
              temperature when no file is given.`,
			defaultVal: 10.0,
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.TempAnnualConstant",
			usage: `
              BristowCampbell.TempAnnualConstant is added to the initial mean
              annual temperature after it is multiplied by the factor.`,
			defaultVal: 0.0,
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.TempAnnualFactor",
			usage: `
              BristowCampbell.TempAnnualFactor multiplies the initial mean
              annual temperature.`,
			defaultVal: 1.0,
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.DeltaTempMeanFile",
			usage: `
              BristowCampbell.DeltaTempMeanFile, if set, is a NetCDF file with
              the initial mean diurnal temperature range [K]. Otherwise
              BristowCampbell.DeltaTempMeanValue is used everywhere.`,
			defaultVal: "",
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.DeltaTempMeanVariable",
			usage: `
              BristowCampbell.DeltaTempMeanVariable is the variable in
              BristowCampbell.DeltaTempMeanFile.`,
			defaultVal: VarDeltaTempMeanDefault,
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.DeltaTempMeanValue",
			usage: `
              BristowCampbell.DeltaTempMeanValue [K] is the initial mean
              diurnal temperature range when no file is given.`,
			defaultVal: 10.0,
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.DeltaTempMeanConstant",
			usage: `
              BristowCampbell.DeltaTempMeanConstant is added to the initial
              mean diurnal temperature range after it is multiplied by the factor.`,
			defaultVal: 0.0,
			flagsets:   pipeline,
		},
		{
			name: "BristowCampbell.DeltaTempMeanFactor",
			usage: `
              BristowCampbell.DeltaTempMeanFactor multiplies the initial mean
              diurnal temperature range.`,
			defaultVal: 1.0,
			flagsets:   pipeline,
		},
		{
			name: "SmoothingWindow",
			usage: `
              SmoothingWindow is the width, in grid cells, of the moving window
              used to smooth precipitation, temperature and reference ET.
              It must be odd. Values below 2 turn smoothing off.`,
			defaultVal: 0,
			flagsets:   pipeline,
		},
		{
			name: "IgnoreSnow",
			usage: `
              IgnoreSnow sets temperature to 25 °C everywhere so that all
              precipitation falls as rain.`,
			defaultVal: false,
			flagsets:   pipeline,
		},
		{
			name: "RoundDownPrecipitation",
			usage: `
              RoundDownPrecipitation truncates precipitation to 0.01 mm
              after conversion.`,
			defaultVal: true,
			flagsets:   pipeline,
		},
		{
			name: "DerivedOutputs",
			usage: `
              DerivedOutputs specifies additional output variables as
              expressions of the calculated variables, for example
              {"netPrecip": "precipitation - referencePotET"}. Functions
              exp(x), max(x, y) and min(x, y) are available.`,
			defaultVal: map[string]string{},
			flagsets:   pipeline,
		},
		{
			name: "PerturbPrecipitationStd",
			usage: `
              PerturbPrecipitationStd, if above zero, is the standard deviation
              of the random factor that precipitation is multiplied by each
              day, for ensemble runs.`,
			defaultVal: 0.0,
			flagsets:   pipeline,
		},
		{
			name: "Seed",
			usage: `
              Seed initializes the random number generator used for
              precipitation perturbation.`,
			defaultVal: 1,
			flagsets:   pipeline,
		},
	}
	for _, c := range hydromet.Cadences() {
		options = append(options, struct {
			name, usage, shorthand string
			defaultVal             interface{}
			flagsets               []*pflag.FlagSet
		}{
			name: "Outputs." + c.String(),
			usage: fmt.Sprintf(`
              Outputs.%s lists the variables reported as %s.`, c, cadenceDescriptions[c]),
			defaultVal: []string{},
			flagsets:   pipeline,
		})
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("HYDROMET")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
			case int:
				set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

// Default Bristow-Campbell state variable names.
const (
	VarTempAnnualDefault    = hydromet.VarTempAnnual
	VarDeltaTempMeanDefault = hydromet.VarDeltaTempMean
)

var cadenceDescriptions = map[hydromet.Cadence]string{
	hydromet.DailyTot: "daily values",
	hydromet.MonthTot: "monthly totals",
	hydromet.MonthAvg: "monthly averages of daily values",
	hydromet.MonthEnd: "values on the last day of each month",
	hydromet.AnnuaTot: "annual totals",
	hydromet.AnnuaAvg: "annual averages of daily values",
	hydromet.AnnuaEnd: "values on the last day of each year",
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(checkCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("hydromet: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "hydromet",
	Short: "Daily meteorological forcing for hydrological models.",
	Long: `HydroMet prepares daily precipitation, temperature and reference
potential evapotranspiration on a model grid for hydrological models.
Forcing is read from NetCDF files, corrected, optionally downscaled
using a high resolution elevation map, and reported as daily values or
as monthly and annual totals, averages and period-end values.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'HYDROMET_var' where 'var' is the
name of the variable to be set. Forcing sources can only be set in the
configuration file, as tables of the form:

	[Forcing.precipitation]
	File = "precip_[YEAR].nc"
	Variable = "tp"
	PerYear = true
	TimeIndex = "daily"   # daily, doy, month or constant
	Factor = 0.001        # converted = Constant + Factor * raw

Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of HydroMet.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("HydroMet v%s\n", hydromet.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline.",
	Long: `run calculates the meteorological forcing for every day from StartDate
to EndDate and writes the requested outputs to OutputDir, along with a
run.toml manifest describing the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := LoadConfig(Cfg)
		if err != nil {
			return err
		}
		log, closeLog, err := NewLogger(rc)
		if err != nil {
			return err
		}
		defer closeLog()
		_, err = Run(context.Background(), rc, log)
		return err
	},
	DisableAutoGenTag: true,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configuration.",
	Long: `check validates the configuration, loads the model domain and the
downscaling inputs, and calculates the first day without writing any output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := LoadConfig(Cfg)
		if err != nil {
			return err
		}
		log, closeLog, err := NewLogger(rc)
		if err != nil {
			return err
		}
		defer closeLog()
		if err := Check(context.Background(), rc, log); err != nil {
			return err
		}
		cmd.Println("configuration OK")
		return nil
	},
	DisableAutoGenTag: true,
}
