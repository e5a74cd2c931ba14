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

// Command hydromet is a command-line interface for the HydroMet
// meteorological forcing pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/hydromet/hydrometutil"
)

func main() {
	if err := hydrometutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
