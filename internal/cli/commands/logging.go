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
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the rotated log file inside the metadata directory.
const LogFileName = "dirstate.log"

// parseLevel maps a settings level name (case insensitive) to logrus.
// "none" and "" disable logging.
func parseLevel(level string) (log.Level, bool) {
	switch strings.ToLower(level) {
	case "trace":
		return log.TraceLevel, true
	case "debug":
		return log.DebugLevel, true
	case "info":
		return log.InfoLevel, true
	case "warn":
		return log.WarnLevel, true
	}
	return log.PanicLevel, false
}

// configureLogging routes logrus output for one command run. Logs go to
// a size-rotated file in metaPath unless toStderr is set.
func configureLogging(level, metaPath string, toStderr bool) {
	lvl, ok := parseLevel(level)
	if !ok {
		log.SetOutput(io.Discard)
		return
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: !toStderr})
	if toStderr || metaPath == "" {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(metaPath, LogFileName),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	})
}
