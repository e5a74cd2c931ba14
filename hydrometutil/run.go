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
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hydromet"
	"github.com/spatialmodel/hydromet/internal/hash"
)

// ManifestFile is the name of the file in the output directory that
// describes a run.
const ManifestFile = "run.toml"

// Manifest describes a completed run.
type Manifest struct {
	RunID   string
	Version string

	// ConfigHash identifies the settings of the run. Runs with the
	// same inputs and settings have the same hash.
	ConfigHash string

	StartDate, EndDate string
	Steps              int

	ReferenceETMethod, ShortwaveMethod string

	// Forcing gives the file each forcing variable was read from.
	Forcing map[string]string

	PerturbPrecipitationStd float64 `toml:",omitzero"`
	Seed                    int64   `toml:",omitzero"`

	// Outputs are the reported variables and cadences, and Files are
	// the names of the output files.
	Outputs []string
	Files   []string

	Started, Finished time.Time
}

// Run calculates the forcing for every day of the run, writes the
// outputs and the run manifest to rc.OutputDir, and returns the manifest.
func Run(ctx context.Context, rc *RunConfig, log logrus.FieldLogger) (*Manifest, error) {
	started := time.Now()
	st := newStager(log)
	defer st.cleanup()

	d, cfg, err := setup(ctx, rc, st)
	if err != nil {
		return nil, err
	}

	var up uploader
	outDir, err := up.maybeUpload(rc.OutputDir)
	if err != nil {
		return nil, err
	}
	sink, err := hydromet.NewNCFSink(outDir, d, cfg.Outputs)
	if err != nil {
		return nil, err
	}
	m, err := hydromet.New(cfg, d, hydromet.NewNCFReader(d, rc.CacheSize), sink, log)
	if err != nil {
		sink.Close()
		return nil, err
	}
	clock, err := hydromet.NewClock(rc.StartDate, rc.EndDate)
	if err != nil {
		sink.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"start":   rc.StartDate.Format(dateFormat),
		"end":     rc.EndDate.Format(dateFormat),
		"steps":   clock.NumSteps(),
		"cells":   d.Len(),
		"refET":   cfg.ReferenceETMethod.String(),
		"outputs": len(m.Outputs()),
	}).Info("starting run")

	rng := rand.New(rand.NewSource(rc.Seed))
	steps := 0
	for {
		ts, err := clock.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			sink.Close()
			return nil, err
		}
		if err := step(ctx, rc, m, ts, rng, log); err != nil {
			sink.Close()
			return nil, err
		}
		steps++
		if ts.EndOfMonth || ts.LastStep {
			log.WithFields(logrus.Fields{
				"date": ts.Date.Format(dateFormat),
				"step": ts.Index,
				"of":   clock.NumSteps(),
			}).Info("progress")
		}
	}
	if err := sink.Close(); err != nil {
		return nil, fmt.Errorf("hydromet: closing output files: %v", err)
	}

	manifest := newManifest(rc, cfg, m, steps)
	manifest.Started = started
	manifest.Finished = time.Now()
	files := sink.Files()
	for _, f := range files {
		manifest.Files = append(manifest.Files, filepath.Base(f))
	}
	mPath := filepath.Join(outDir, ManifestFile)
	if err := writeManifest(mPath, manifest); err != nil {
		return nil, err
	}
	remote, err := up.uploadOutput(ctx, append(files, mPath))
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"files":    len(remote),
		"location": rc.OutputDir,
		"duration": time.Since(started).String(),
	}).Info("run complete")
	return manifest, nil
}

// step advances m by one day.
func step(ctx context.Context, rc *RunConfig, m *hydromet.Meteo, ts *hydromet.TimeStep, rng *rand.Rand, log logrus.FieldLogger) error {
	if err := m.Update(ctx, ts); err != nil {
		return err
	}
	if rc.PerturbPrecipitationStd > 0 {
		err := m.Perturb(hydromet.VarPrecipitation, rc.PerturbPrecipitationStd, rng)
		if err == hydromet.ErrUnsupportedPerturbation {
			log.WithField("date", ts.Date.Format(dateFormat)).Warn(err)
		} else if err != nil {
			return err
		}
	}
	if rc.LogLevel == "debug" {
		logState(log.WithField("date", ts.Date.Format(dateFormat)), m.State(), logrus.DebugLevel)
	}
	return m.Report(ts)
}

// logState logs summaries of the calculated fields.
func logState(log logrus.FieldLogger, s hydromet.State, lvl logrus.Level) {
	for _, v := range []struct {
		name string
		g    *sparse.DenseArray
	}{
		{hydromet.VarPrecipitation, s.Precipitation},
		{hydromet.VarTemperature, s.Temperature},
		{hydromet.VarReferencePotET, s.ReferencePotET},
		{hydromet.VarShortwave, s.Shortwave},
		{hydromet.VarNetRadiation, s.NetRadiation},
		{hydromet.VarWindSpeed, s.WindSpeed},
	} {
		if v.g == nil {
			continue
		}
		e := log.WithFields(summary(v.name, v.g))
		if lvl == logrus.DebugLevel {
			e.Debug("field summary")
		} else {
			e.Info("field summary")
		}
	}
}

// Check loads the inputs described by rc and calculates the first day
// without writing any output.
func Check(ctx context.Context, rc *RunConfig, log logrus.FieldLogger) error {
	st := newStager(log)
	defer st.cleanup()
	// Only the first year of per-year forcing is needed.
	first := *rc
	first.EndDate = rc.StartDate
	d, cfg, err := setup(ctx, &first, st)
	if err != nil {
		return err
	}
	m, err := hydromet.New(cfg, d, hydromet.NewNCFReader(d, rc.CacheSize), discard{}, log)
	if err != nil {
		return err
	}
	clock, err := hydromet.NewClock(rc.StartDate, rc.StartDate)
	if err != nil {
		return err
	}
	ts, err := clock.Next()
	if err != nil {
		return err
	}
	if err := m.Update(ctx, ts); err != nil {
		return err
	}
	logState(log.WithField("date", ts.Date.Format(dateFormat)), m.State(), logrus.InfoLevel)
	return m.Report(ts)
}

// discard is a sink that drops all output.
type discard struct{}

func (discard) Emit(hydromet.Output, *sparse.DenseArray, time.Time, int) error { return nil }
func (discard) Close() error                                                  { return nil }

// setup stages the input files, loads the model domain and returns the
// pipeline configuration with its grids loaded.
func setup(ctx context.Context, rc *RunConfig, st *stager) (*hydromet.Domain, hydromet.Config, error) {
	cfg := rc.Meteo
	var err error

	files := rc.Domain
	if files.CloneFile, err = st.maybeDownload(ctx, files.CloneFile); err != nil {
		return nil, cfg, err
	}
	if files.CellAreaFile, err = st.maybeDownload(ctx, files.CellAreaFile); err != nil {
		return nil, cfg, err
	}
	d, err := hydromet.LoadDomain(files)
	if err != nil {
		return nil, cfg, err
	}

	var years []int
	for y := rc.StartDate.Year(); y <= rc.EndDate.Year(); y++ {
		years = append(years, y)
	}
	cfg.Forcing = make(map[string]hydromet.Source, len(rc.Meteo.Forcing))
	for name, src := range rc.Meteo.Forcing {
		if cfg.Forcing[name], err = st.stageSource(ctx, src, years); err != nil {
			return nil, cfg, err
		}
	}
	for _, src := range []*hydromet.Source{
		&cfg.Downscale.PrecipitationLapseRate, &cfg.Downscale.PrecipitationCorrelation,
		&cfg.Downscale.TemperatureLapseRate, &cfg.Downscale.TemperatureCorrelation,
	} {
		if src.File == "" {
			continue
		}
		if *src, err = st.stageSource(ctx, *src, years); err != nil {
			return nil, cfg, err
		}
	}

	grid := func(g GridFile) (*sparse.DenseArray, error) {
		if !g.set() {
			return nil, nil
		}
		path, err := st.maybeDownload(ctx, g.File)
		if err != nil {
			return nil, err
		}
		return hydromet.ReadGrid(path, g.Variable)
	}
	if cfg.Downscale.Elevation, err = grid(rc.DEM); err != nil {
		return nil, cfg, err
	}
	if cfg.Downscale.Units, err = grid(rc.Units); err != nil {
		return nil, cfg, err
	}
	if cfg.BristowCampbell.TempAnnual, err = grid(rc.TempAnnual); err != nil {
		return nil, cfg, err
	}
	if cfg.BristowCampbell.DeltaTempMean, err = grid(rc.DeltaTempMean); err != nil {
		return nil, cfg, err
	}
	return d, cfg, nil
}

func newManifest(rc *RunConfig, cfg hydromet.Config, m *hydromet.Meteo, steps int) *Manifest {
	man := &Manifest{
		RunID:                   rc.RunID,
		Version:                 hydromet.Version,
		ConfigHash:              settingsKey(rc),
		StartDate:               rc.StartDate.Format(dateFormat),
		EndDate:                 rc.EndDate.Format(dateFormat),
		Steps:                   steps,
		ReferenceETMethod:       cfg.ReferenceETMethod.String(),
		Forcing:                 make(map[string]string),
		PerturbPrecipitationStd: rc.PerturbPrecipitationStd,
	}
	if cfg.ReferenceETMethod == hydromet.PenmanMonteithET {
		man.ShortwaveMethod = cfg.ShortwaveMethod.String()
	}
	if rc.PerturbPrecipitationStd > 0 {
		man.Seed = rc.Seed
	}
	for _, v := range m.ForcingVariables() {
		man.Forcing[v] = rc.Meteo.Forcing[v].File
	}
	for _, o := range m.Outputs() {
		man.Outputs = append(man.Outputs, o.String())
	}
	return man
}

// settingsKey returns a key that identifies the settings of a run,
// excluding its ID and log settings.
func settingsKey(rc *RunConfig) string {
	s := *rc
	s.RunID, s.LogFile, s.LogLevel = "", "", ""
	return hash.Key(s)
}

func writeManifest(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hydromet: creating run manifest: %v", err)
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return fmt.Errorf("hydromet: writing run manifest: %v", err)
	}
	return f.Close()
}

// ReadManifest reads a run manifest.
func ReadManifest(path string) (*Manifest, error) {
	m := new(Manifest)
	if _, err := toml.DecodeFile(path, m); err != nil {
		return nil, fmt.Errorf("hydromet: reading run manifest: %v", err)
	}
	return m, nil
}
