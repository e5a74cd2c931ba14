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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kr/pretty"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/hydromet"
)

// configFile writes c to a configuration file and returns a
// configuration that reads it on top of the default settings.
func configFile(t *testing.T, c map[string]interface{}) *viper.Viper {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		t.Fatal(err)
	}
	f.Close()

	v := viper.New()
	for _, o := range options {
		if o.name != "config" {
			v.SetDefault(o.name, o.defaultVal)
		}
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	return v
}

func baseConfig() map[string]interface{} {
	return map[string]interface{}{
		"StartDate": "2001-01-01",
		"EndDate":   "2002-12-31",
		"OutputDir": "out",
		"Domain":    map[string]interface{}{"CloneFile": "clone.nc"},
		"Forcing": map[string]interface{}{
			"precipitation": map[string]interface{}{
				"File":     "p_[YEAR].nc",
				"Variable": "tp",
				"PerYear":  true,
				"Factor":   0.001,
			},
			"temperature": map[string]interface{}{
				"File":     "t.nc",
				"Constant": -273.15,
			},
		},
	}
}

func TestLoadConfig(t *testing.T) {
	c := baseConfig()
	c["ReferenceETMethod"] = "penmanmonteith"
	c["ShortwaveMethod"] = "BristowCampbell"
	c["Forcing"].(map[string]interface{})["air_temperature_max"] = map[string]interface{}{
		"File":      "tmax.nc",
		"TimeIndex": "DOY",
	}
	c["Downscale"] = map[string]interface{}{
		"Temperature": true,
		"DEMFile":     "dem.nc",
		"UnitsFile":   "units.nc",
		"TemperatureLapseRate": map[string]interface{}{
			"File":     "lapse.nc",
			"Variable": "tlapse",
		},
	}
	c["BristowCampbell"] = map[string]interface{}{"TempAnnualValue": 12.5}
	c["Outputs"] = map[string]interface{}{
		"dailyTot": []string{"precipitation"},
		"monthAvg": []string{"temperature", "netprecip"},
	}
	c["DerivedOutputs"] = map[string]interface{}{"netprecip": "precipitation - referencePotET"}

	rc, err := LoadConfig(configFile(t, c))
	if err != nil {
		t.Fatal(err)
	}
	if !rc.StartDate.Equal(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!rc.EndDate.Equal(time.Date(2002, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("dates: %v to %v", rc.StartDate, rc.EndDate)
	}
	if rc.RunID == "" {
		t.Error("missing run ID")
	}
	if rc.Domain.LatitudeVariable != "lat" || rc.CacheSize != 100 || rc.LogLevel != "info" {
		t.Errorf("defaults: %# v", pretty.Formatter(rc))
	}

	m := rc.Meteo
	if m.ReferenceETMethod != hydromet.PenmanMonteithET || m.ShortwaveMethod != hydromet.BristowCampbellShortwave {
		t.Errorf("methods: %v, %v", m.ReferenceETMethod, m.ShortwaveMethod)
	}
	wantForcing := map[string]hydromet.Source{
		hydromet.VarPrecipitation: {File: "p_[YEAR].nc", Variable: "tp", PerYear: true},
		hydromet.VarTemperature:   {File: "t.nc", Variable: hydromet.VarTemperature},
		hydromet.VarTMax:          {File: "tmax.nc", Variable: hydromet.VarTMax, TimeIndex: hydromet.DayOfYear},
	}
	if diff := pretty.Diff(m.Forcing, wantForcing); len(diff) > 0 {
		t.Errorf("forcing: %v", diff)
	}
	wantConversions := hydromet.Conversions{
		hydromet.VarPrecipitation: {Factor: 0.001},
		hydromet.VarTemperature:   {Constant: -273.15, Factor: 1},
		hydromet.VarTMax:          {Factor: 1},
	}
	if diff := pretty.Diff(m.Conversions, wantConversions); len(diff) > 0 {
		t.Errorf("conversions: %v", diff)
	}

	if !m.Downscale.Temperature || m.Downscale.Precipitation || !m.Downscale.PrecipitationUseFactor {
		t.Errorf("downscale switches: %+v", m.Downscale)
	}
	wantLapse := hydromet.Source{File: "lapse.nc", Variable: "tlapse", TimeIndex: hydromet.Monthly}
	if m.Downscale.TemperatureLapseRate != wantLapse {
		t.Errorf("lapse rate source: have %+v, want %+v", m.Downscale.TemperatureLapseRate, wantLapse)
	}
	if (rc.DEM != GridFile{File: "dem.nc", Variable: "dem"}) {
		t.Errorf("DEM: %+v", rc.DEM)
	}
	if m.BristowCampbell.TempAnnualValue != 12.5 || m.BristowCampbell.TempAnnualCorrection != hydromet.Identity {
		t.Errorf("Bristow-Campbell: %+v", m.BristowCampbell)
	}

	wantOutputs := []hydromet.Output{
		{Variable: hydromet.VarPrecipitation, Cadence: hydromet.DailyTot},
		{Variable: hydromet.VarTemperature, Cadence: hydromet.MonthAvg},
		{Variable: "netprecip", Cadence: hydromet.MonthAvg},
	}
	if diff := pretty.Diff(m.Outputs, wantOutputs); len(diff) > 0 {
		t.Errorf("outputs: %v", diff)
	}
	if m.DerivedOutputs["netprecip"] != "precipitation - referencePotET" {
		t.Errorf("derived outputs: %v", m.DerivedOutputs)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(c map[string]interface{})
		want   string
	}{
		{
			name:   "no start date",
			modify: func(c map[string]interface{}) { delete(c, "StartDate") },
			want:   "StartDate must satisfy required",
		},
		{
			name:   "bad date",
			modify: func(c map[string]interface{}) { c["EndDate"] = "2001-13-01" },
			want:   "EndDate must satisfy datetime",
		},
		{
			name:   "end before start",
			modify: func(c map[string]interface{}) { c["EndDate"] = "2000-12-31" },
			want:   "before StartDate",
		},
		{
			name:   "log level",
			modify: func(c map[string]interface{}) { c["LogLevel"] = "verbose" },
			want:   "LogLevel must satisfy oneof",
		},
		{
			name:   "no forcing",
			modify: func(c map[string]interface{}) { delete(c, "Forcing") },
			want:   "Forcing must satisfy required",
		},
		{
			name: "no forcing file",
			modify: func(c map[string]interface{}) {
				c["Forcing"].(map[string]interface{})["temperature"] = map[string]interface{}{"Variable": "t2m"}
			},
			want: "File must satisfy required",
		},
		{
			name: "unknown setting",
			modify: func(c map[string]interface{}) {
				c["Forcing"].(map[string]interface{})["temperature"] = map[string]interface{}{"File": "t.nc", "Scale": 2}
			},
			want: "unknown setting",
		},
		{
			name: "time index",
			modify: func(c map[string]interface{}) {
				c["Forcing"].(map[string]interface{})["temperature"] = map[string]interface{}{"File": "t.nc", "TimeIndex": "hourly"}
			},
			want: "TimeIndex must satisfy oneof",
		},
		{
			name: "year template",
			modify: func(c map[string]interface{}) {
				c["Forcing"].(map[string]interface{})["temperature"] = map[string]interface{}{"File": "t.nc", "PerYear": true}
			},
			want: "does not contain [YEAR]",
		},
		{
			name:   "method",
			modify: func(c map[string]interface{}) { c["ReferenceETMethod"] = "Thornthwaite" },
			want:   "invalid reference ET method",
		},
		{
			name:   "correlation",
			modify: func(c map[string]interface{}) { c["Downscale"] = map[string]interface{}{"MinCorrelation": 1.5} },
			want:   "MinCorrelation must satisfy lte=1",
		},
		{
			name:   "even smoothing window",
			modify: func(c map[string]interface{}) { c["SmoothingWindow"] = 2 },
			want:   "SmoothingWindow 2 must be odd",
		},
		{
			name:   "derived outputs",
			modify: func(c map[string]interface{}) { c["DerivedOutputs"] = "{not json" },
			want:   "decoding DerivedOutputs",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := baseConfig()
			tt.modify(c)
			_, err := LoadConfig(configFile(t, c))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestGetStringMapString(t *testing.T) {
	v := viper.New()
	v.Set("a", `{"x": "y + 1"}`)
	v.Set("b", map[string]interface{}{"x": "y"})
	v.Set("c", 3)
	if m, err := GetStringMapString("a", v); err != nil || m["x"] != "y + 1" {
		t.Errorf("json: %v, %v", m, err)
	}
	if m, err := GetStringMapString("b", v); err != nil || m["x"] != "y" {
		t.Errorf("map: %v, %v", m, err)
	}
	if m, err := GetStringMapString("unset", v); err != nil || len(m) != 0 {
		t.Errorf("unset: %v, %v", m, err)
	}
	if _, err := GetStringMapString("c", v); err == nil {
		t.Error("expected an error for an integer")
	}
}

func TestCanonicalName(t *testing.T) {
	for have, want := range map[string]string{
		"referencepotet": hydromet.VarReferencePotET,
		"PRECIPITATION":  hydromet.VarPrecipitation,
		"netprecip":      "netprecip",
	} {
		if c := canonicalName(have); c != want {
			t.Errorf("%s: have %s, want %s", have, c, want)
		}
	}
}
