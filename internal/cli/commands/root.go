// Copyright 2024 Dirstate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dirstate/internal/dirstate"
)

func init() {
	// Default logging to discard until a level is configured
	log.SetOutput(io.Discard)
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "dirstate",
	Short: "Track the state of a working directory",
	Long: `Track which files of a working directory belong to its parent revisions and
report how the directory differs from them.

The state is kept in a metadata directory (.repo by default) at the root of
the working directory. Run 'dirstate init' to create one.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("dirstate version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringP("repository", "R", "", "working directory root (default: search upwards from the current directory)")
	pf.String("meta-dir", dirstate.DefaultMetaDir, "name of the metadata directory")
	pf.String("log-level", "", "logging level: none, trace, debug, info, warn (overrides settings)")
	pf.Bool("log-stderr", false, "log to stderr instead of <meta-dir>/dirstate.log")
	_ = viper.BindPFlags(pf)

	viper.SetEnvPrefix("DIRSTATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
