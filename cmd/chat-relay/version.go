// ABOUTME: Build and runtime version information for the version subcommand
// ABOUTME: Rendered as a right-aligned uitable

package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/gosuri/uitable"
)

func versionTable() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("version:", version)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				table.AddRow("commit:", s.Value)
			case "vcs.time":
				table.AddRow("buildDate:", s.Value)
			}
		}
	}
	table.AddRow("goVersion:", runtime.Version())
	table.AddRow("platform:", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
	return table.String() + "\n"
}
