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
	"fmt"
	"io"
	"time"
)

// TimeStep holds calendar information about a simulated day.
type TimeStep struct {
	Date time.Time

	// Index is the 1-based number of the timestep within the run.
	Index int

	Day, Month, Year int

	// DOY is the day of the year, starting at 1.
	DOY        int
	DaysInYear int

	// MonthIndex and YearIndex count the months and years touched by the
	// run so far, starting at 1.
	MonthIndex, YearIndex int

	FirstStep, LastStep   bool
	EndOfMonth, EndOfYear bool
}

// Clock steps through the days between two dates.
type Clock struct {
	start, end time.Time
	prev       *TimeStep
}

// NewClock returns a clock that runs from start to end, inclusive.
// Times of day are ignored.
func NewClock(start, end time.Time) (*Clock, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("hydromet: end date %s is before start date %s",
			end.Format(dateFormat), start.Format(dateFormat))
	}
	return &Clock{start: start, end: end}, nil
}

const dateFormat = "2006-01-02"

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NumSteps returns the total number of timesteps.
func (c *Clock) NumSteps() int {
	return int(c.end.Sub(c.start).Hours()/24) + 1
}

// Next returns the next timestep, or io.EOF after the last one.
func (c *Clock) Next() (*TimeStep, error) {
	var date time.Time
	if c.prev == nil {
		date = c.start
	} else {
		date = c.prev.Date.AddDate(0, 0, 1)
	}
	if date.After(c.end) {
		return nil, io.EOF
	}
	ts := newTimeStep(date, c.prev)
	ts.LastStep = date.Equal(c.end)
	c.prev = ts
	return ts, nil
}

// newTimeStep creates the timestep for date, following prev (which is
// nil for the first step).
func newTimeStep(date time.Time, prev *TimeStep) *TimeStep {
	next := date.AddDate(0, 0, 1)
	ts := &TimeStep{
		Date:       date,
		Day:        date.Day(),
		Month:      int(date.Month()),
		Year:       date.Year(),
		DOY:        date.YearDay(),
		DaysInYear: daysInYear(date.Year()),
		EndOfMonth: next.Month() != date.Month(),
		EndOfYear:  next.Year() != date.Year(),
	}
	if prev == nil {
		ts.Index, ts.MonthIndex, ts.YearIndex = 1, 1, 1
		ts.FirstStep = true
		return ts
	}
	ts.Index = prev.Index + 1
	ts.MonthIndex, ts.YearIndex = prev.MonthIndex, prev.YearIndex
	if ts.Day == 1 {
		ts.MonthIndex++
	}
	if ts.DOY == 1 {
		ts.YearIndex++
	}
	return ts
}

func daysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
