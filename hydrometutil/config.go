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

package hydrometutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/hydromet"
	"github.com/spf13/cast"
)

const dateFormat = "2006-01-02"

// RunConfig holds the settings for a HydroMet run.
type RunConfig struct {
	// RunID identifies the run in log messages and the run manifest.
	RunID string

	StartDate, EndDate time.Time

	// OutputDir is a local directory or a bucket location.
	OutputDir string

	LogFile, LogLevel string
	CacheSize         int

	Domain hydromet.DomainFiles

	// Meteo holds the pipeline settings. Its grids are not loaded until
	// the domain is known; see DEM, Units, TempAnnual and DeltaTempMean.
	Meteo hydromet.Config

	// DEM and Units are the downscaling elevation and unit grids.
	DEM, Units GridFile

	// TempAnnual and DeltaTempMean optionally give the initial
	// Bristow-Campbell state as grids.
	TempAnnual, DeltaTempMean GridFile

	PerturbPrecipitationStd float64
	Seed                    int64
}

// GridFile specifies a static grid in a NetCDF file.
type GridFile struct {
	File, Variable string
}

func (g GridFile) set() bool { return g.File != "" }

// settings holds the configuration values that are checked before
// they are converted into a RunConfig.
type settings struct {
	StartDate string `validate:"required,datetime=2006-01-02"`
	EndDate   string `validate:"required,datetime=2006-01-02"`
	OutputDir string `validate:"required"`
	LogLevel  string `validate:"oneof=debug info warn warning error"`
	CacheSize int    `validate:"gte=1"`
	CloneFile string `validate:"required"`

	SolarConstant   float64 `validate:"gt=0"`
	SmoothingWindow int     `validate:"gte=0"`
	MinCorrelation  float64 `validate:"gte=-1,lte=1"`
	MaxCorrelation  float64 `validate:"gte=-1,lte=1"`
	DrizzleLimit    float64 `validate:"gte=0"`
	MinLimit        float64 `validate:"gte=0"`

	PerturbPrecipitationStd float64 `validate:"gte=0"`

	Forcing          map[string]sourceSettings `validate:"required,min=1,dive"`
	DownscaleSources map[string]sourceSettings `validate:"dive"`
}

// sourceSettings is a forcing or lapse rate table.
type sourceSettings struct {
	File      string `validate:"required"`
	Variable  string
	PerYear   bool
	TimeIndex string `validate:"omitempty,oneof=daily doy month constant"`
	Constant  float64
	Factor    float64
}

var validate = validator.New()

// LoadConfig reads and checks the run settings held by cfg.
func LoadConfig(cfg *viper.Viper) (*RunConfig, error) {
	forcing, err := sourceTables(cfg.Get("Forcing"), "daily")
	if err != nil {
		return nil, fmt.Errorf("hydromet: reading Forcing: %v", err)
	}
	downscaleSources := make(map[string]sourceSettings)
	for _, name := range downscaleSourceNames {
		i := cfg.Get("Downscale." + name)
		if i == nil {
			continue
		}
		s, err := sourceTable(i, "month")
		if err != nil {
			return nil, fmt.Errorf("hydromet: reading Downscale.%s: %v", name, err)
		}
		downscaleSources[name] = s
	}

	s := settings{
		StartDate:               cfg.GetString("StartDate"),
		EndDate:                 cfg.GetString("EndDate"),
		OutputDir:               os.ExpandEnv(cfg.GetString("OutputDir")),
		LogLevel:                strings.ToLower(cfg.GetString("LogLevel")),
		CacheSize:               cfg.GetInt("CacheSize"),
		CloneFile:               os.ExpandEnv(cfg.GetString("Domain.CloneFile")),
		SolarConstant:           cfg.GetFloat64("SolarConstant"),
		SmoothingWindow:         cfg.GetInt("SmoothingWindow"),
		MinCorrelation:          cfg.GetFloat64("Downscale.MinCorrelation"),
		MaxCorrelation:          cfg.GetFloat64("Downscale.MaxCorrelation"),
		DrizzleLimit:            cfg.GetFloat64("Downscale.DrizzleLimit"),
		MinLimit:                cfg.GetFloat64("Downscale.MinLimit"),
		PerturbPrecipitationStd: cfg.GetFloat64("PerturbPrecipitationStd"),
		Forcing:                 forcing,
		DownscaleSources:        downscaleSources,
	}
	if err := validate.Struct(s); err != nil {
		return nil, validationError(err)
	}

	rc := &RunConfig{
		RunID:     uuid.New().String(),
		OutputDir: s.OutputDir,
		LogFile:   os.ExpandEnv(cfg.GetString("LogFile")),
		LogLevel:  s.LogLevel,
		CacheSize: s.CacheSize,
		Domain: hydromet.DomainFiles{
			CloneFile:         s.CloneFile,
			LatitudeVariable:  cfg.GetString("Domain.LatitudeVariable"),
			LongitudeVariable: cfg.GetString("Domain.LongitudeVariable"),
			MaskVariable:      cfg.GetString("Domain.MaskVariable"),
			CellAreaFile:      os.ExpandEnv(cfg.GetString("Domain.CellAreaFile")),
			CellAreaVariable:  cfg.GetString("Domain.CellAreaVariable"),
		},
		DEM: GridFile{
			File:     os.ExpandEnv(cfg.GetString("Downscale.DEMFile")),
			Variable: cfg.GetString("Downscale.DEMVariable"),
		},
		Units: GridFile{
			File:     os.ExpandEnv(cfg.GetString("Downscale.UnitsFile")),
			Variable: cfg.GetString("Downscale.UnitsVariable"),
		},
		TempAnnual: GridFile{
			File:     os.ExpandEnv(cfg.GetString("BristowCampbell.TempAnnualFile")),
			Variable: cfg.GetString("BristowCampbell.TempAnnualVariable"),
		},
		DeltaTempMean: GridFile{
			File:     os.ExpandEnv(cfg.GetString("BristowCampbell.DeltaTempMeanFile")),
			Variable: cfg.GetString("BristowCampbell.DeltaTempMeanVariable"),
		},
		PerturbPrecipitationStd: s.PerturbPrecipitationStd,
		Seed:                    cfg.GetInt64("Seed"),
	}
	// The dates have already been validated.
	rc.StartDate, _ = time.Parse(dateFormat, s.StartDate)
	rc.EndDate, _ = time.Parse(dateFormat, s.EndDate)
	if rc.EndDate.Before(rc.StartDate) {
		return nil, fmt.Errorf("hydromet: EndDate %s is before StartDate %s", s.EndDate, s.StartDate)
	}
	if w := s.SmoothingWindow; w > 1 && w%2 == 0 {
		return nil, fmt.Errorf("hydromet: SmoothingWindow %d must be odd", w)
	}

	m := hydromet.DefaultConfig()
	if m.ReferenceETMethod, err = hydromet.ParseReferenceETMethod(cfg.GetString("ReferenceETMethod")); err != nil {
		return nil, err
	}
	if m.ShortwaveMethod, err = hydromet.ParseShortwaveMethod(cfg.GetString("ShortwaveMethod")); err != nil {
		return nil, err
	}
	m.SolarConstant = s.SolarConstant
	m.SmoothingWindow = s.SmoothingWindow
	m.IgnoreSnow = cfg.GetBool("IgnoreSnow")
	m.RoundDownPrecipitation = cfg.GetBool("RoundDownPrecipitation")

	for name, f := range s.Forcing {
		src, err := f.source(name)
		if err != nil {
			return nil, fmt.Errorf("hydromet: Forcing.%s: %v", name, err)
		}
		m.Forcing[name] = src
		m.Conversions[name] = hydromet.Correction{Constant: f.Constant, Factor: f.Factor}
	}

	m.Downscale = hydromet.DownscaleConfig{
		Precipitation:          cfg.GetBool("Downscale.Precipitation"),
		Temperature:            cfg.GetBool("Downscale.Temperature"),
		ReferenceET:            cfg.GetBool("Downscale.ReferenceET"),
		PrecipitationUseFactor: cfg.GetBool("Downscale.PrecipitationUseFactor"),
		TemperatureUseFactor:   cfg.GetBool("Downscale.TemperatureUseFactor"),
		UseHamonForReferenceET: cfg.GetBool("Downscale.UseHamonForReferenceET"),
		ConsiderCellArea:       cfg.GetBool("Downscale.ConsiderCellArea"),
		MinCorrelation:         s.MinCorrelation,
		MaxCorrelation:         s.MaxCorrelation,
		DrizzleLimit:           s.DrizzleLimit,
		MinLimit:               s.MinLimit,
	}
	for name, f := range s.DownscaleSources {
		src, err := f.source(name)
		if err != nil {
			return nil, fmt.Errorf("hydromet: Downscale.%s: %v", name, err)
		}
		switch name {
		case "PrecipitationLapseRate":
			m.Downscale.PrecipitationLapseRate = src
		case "PrecipitationCorrelation":
			m.Downscale.PrecipitationCorrelation = src
		case "TemperatureLapseRate":
			m.Downscale.TemperatureLapseRate = src
		case "TemperatureCorrelation":
			m.Downscale.TemperatureCorrelation = src
		}
	}

	m.BristowCampbell = hydromet.BristowCampbellConfig{
		TempAnnualValue:    cfg.GetFloat64("BristowCampbell.TempAnnualValue"),
		DeltaTempMeanValue: cfg.GetFloat64("BristowCampbell.DeltaTempMeanValue"),
		TempAnnualCorrection: hydromet.Correction{
			Constant: cfg.GetFloat64("BristowCampbell.TempAnnualConstant"),
			Factor:   cfg.GetFloat64("BristowCampbell.TempAnnualFactor"),
		},
		DeltaTempMeanCorrection: hydromet.Correction{
			Constant: cfg.GetFloat64("BristowCampbell.DeltaTempMeanConstant"),
			Factor:   cfg.GetFloat64("BristowCampbell.DeltaTempMeanFactor"),
		},
	}

	m.Outputs = outputs(cfg)
	if m.DerivedOutputs, err = GetStringMapString("DerivedOutputs", cfg); err != nil {
		return nil, err
	}
	rc.Meteo = m
	return rc, nil
}

var downscaleSourceNames = []string{
	"PrecipitationLapseRate", "PrecipitationCorrelation",
	"TemperatureLapseRate", "TemperatureCorrelation",
}

// source converts the table to a forcing source. The variable name
// defaults to the name of the forcing variable.
func (s sourceSettings) source(name string) (hydromet.Source, error) {
	ti, err := hydromet.ParseTimeIndex(s.TimeIndex)
	if err != nil {
		return hydromet.Source{}, err
	}
	v := s.Variable
	if v == "" {
		v = name
	}
	if s.PerYear && !strings.Contains(s.File, "[YEAR]") {
		return hydromet.Source{}, fmt.Errorf("PerYear is set but file %s does not contain [YEAR]", s.File)
	}
	return hydromet.Source{File: s.File, Variable: v, PerYear: s.PerYear, TimeIndex: ti}, nil
}

// sourceTables decodes a table of source tables, keyed by variable name.
func sourceTables(i interface{}, timeIndex string) (map[string]sourceSettings, error) {
	if i == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapE(i)
	if err != nil {
		return nil, err
	}
	o := make(map[string]sourceSettings, len(m))
	for k, v := range m {
		s, err := sourceTable(v, timeIndex)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", k, err)
		}
		o[canonicalName(k)] = s
	}
	return o, nil
}

func sourceTable(i interface{}, timeIndex string) (sourceSettings, error) {
	m, err := cast.ToStringMapE(i)
	if err != nil {
		return sourceSettings{}, err
	}
	s := sourceSettings{TimeIndex: timeIndex, Factor: 1}
	for k, v := range m {
		switch strings.ToLower(k) {
		case "file":
			s.File, err = cast.ToStringE(v)
			s.File = os.ExpandEnv(s.File)
		case "variable":
			s.Variable, err = cast.ToStringE(v)
		case "peryear":
			s.PerYear, err = cast.ToBoolE(v)
		case "timeindex":
			s.TimeIndex, err = cast.ToStringE(v)
			s.TimeIndex = strings.ToLower(s.TimeIndex)
		case "constant":
			s.Constant, err = cast.ToFloat64E(v)
		case "factor":
			s.Factor, err = cast.ToFloat64E(v)
		default:
			err = fmt.Errorf("unknown setting %q", k)
		}
		if err != nil {
			return s, fmt.Errorf("%s: %v", k, err)
		}
	}
	return s, nil
}

// knownVariables are the variables that HydroMet reads or calculates.
var knownVariables = []string{
	hydromet.VarPrecipitation, hydromet.VarTemperature, hydromet.VarReferencePotET,
	hydromet.VarWindSpeed, hydromet.VarWindU, hydromet.VarWindV, hydromet.VarPressure,
	hydromet.VarExtraterrestrial, hydromet.VarShortwave, hydromet.VarNetSolar,
	hydromet.VarAlbedo, hydromet.VarTMax, hydromet.VarTMin, hydromet.VarDewpoint,
	hydromet.VarLongwave, hydromet.VarNetRadiation,
	hydromet.VarTempAnnual, hydromet.VarDeltaTempMean,
}

// canonicalName returns the spelling of a known variable that matches
// name regardless of case, or name itself.
func canonicalName(name string) string {
	for _, v := range knownVariables {
		if strings.EqualFold(v, name) {
			return v
		}
	}
	return name
}

// outputs returns the reported variables of every cadence.
func outputs(cfg *viper.Viper) []hydromet.Output {
	var o []hydromet.Output
	for _, c := range hydromet.Cadences() {
		for _, v := range cfg.GetStringSlice("Outputs." + c.String()) {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			o = append(o, hydromet.Output{Variable: canonicalName(v), Cadence: c})
		}
	}
	return o
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return i.(map[string]string), nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(i)
	case string:
		if strings.TrimSpace(i.(string)) == "" {
			return map[string]string{}, nil
		}
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("hydromet: decoding %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("hydromet: invalid type for %s: %#v", varName, i)
	}
}

// validationError lists the failed checks in a single error.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("hydromet: invalid configuration: %v", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "settings.")
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s must satisfy %s=%s (have %v)", field, fe.Tag(), fe.Param(), fe.Value())
		} else {
			msgs[i] = fmt.Sprintf("%s must satisfy %s (have %v)", field, fe.Tag(), fe.Value())
		}
	}
	sort.Strings(msgs)
	return fmt.Errorf("hydromet: invalid configuration: %s", strings.Join(msgs, "; "))
}
