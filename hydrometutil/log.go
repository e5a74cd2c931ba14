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
	"io"
	"math"
	"os"
	"time"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a logger that writes messages at or above
// rc.LogLevel to standard error and, if rc.LogFile is set, to a rotated
// log file. Every message carries the run ID. The returned function
// closes the log file.
func NewLogger(rc *RunConfig) (logrus.FieldLogger, func() error, error) {
	lvl, err := logrus.ParseLevel(rc.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	l := logrus.New()
	l.Level = lvl
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	}
	closer := func() error { return nil }
	if rc.LogFile != "" {
		w := &lumberjack.Logger{
			Filename:   rc.LogFile,
			MaxSize:    64, // MB
			MaxBackups: 3,
		}
		l.Out = io.MultiWriter(os.Stderr, w)
		closer = w.Close
	} else {
		l.Out = os.Stderr
	}
	return l.WithField("run", rc.RunID), closer, nil
}

// summary returns the minimum, mean and maximum of the non-missing
// values of g as log fields.
func summary(name string, g *sparse.DenseArray) logrus.Fields {
	v := make([]float64, 0, len(g.Elements))
	for _, x := range g.Elements {
		if !math.IsNaN(x) {
			v = append(v, x)
		}
	}
	f := logrus.Fields{"variable": name, "cells": len(v)}
	if len(v) == 0 {
		return f
	}
	f["min"] = stats.StatsMin(v)
	f["mean"] = stats.StatsMean(v)
	f["max"] = stats.StatsMax(v)
	return f
}
