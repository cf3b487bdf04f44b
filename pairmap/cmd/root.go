// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	colorable "github.com/mattn/go-colorable"
	"github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"
)

// VERSION is the version of PairMap.
const VERSION = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "pairmap",
	Short: "Best-approximate paired-end read alignment",
	Long: fmt.Sprintf(`PairMap: best-approximate paired-end read alignment

PairMap seeds both mates of each read pair, extends seed hits in adaptive
batches, keeps the best and second-best pair for every read, and traces
back the final alignments.

Version: v%s
Author: Wei Shen <shenwei356@gmail.com>
Source code: https://github.com/shenwei356/PairMap

`, VERSION),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

var log *logging.Logger

var logFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{color}[%{level:.4s}]%{color:reset} %{message}`,
)

func stderrWriter() io.Writer {
	if runtime.GOOS == "windows" {
		return colorable.NewColorableStderr()
	}
	return os.Stderr
}

func init() {
	backend := logging.NewLogBackend(stderrWriter(), "", 0)
	backendFormatter := logging.NewBackendFormatter(backend, logFormat)
	logging.SetBackend(backendFormatter)
	log = logging.MustGetLogger("pairmap")

	RootCmd.PersistentFlags().IntP("threads", "j", runtime.NumCPU(),
		formatFlagUsage("Number of CPU cores to use. By default, it uses all available cores."))

	RootCmd.PersistentFlags().BoolP("quiet", "", false,
		formatFlagUsage("Do not print any verbose information. But you can write them to file with --log."))

	RootCmd.PersistentFlags().StringP("log", "", "",
		formatFlagUsage("Log file."))

	RootCmd.PersistentFlags().StringP("config", "", "",
		formatFlagUsage(fmt.Sprintf(`TOML file of default flag values, e.g., "max-ext = 400" or an "[align]" table. `+
			`By default, %s is read if it exists. Flags given on the command line take precedence.`, defaultConfigFile)))

	RootCmd.PersistentFlags().BoolP("debug", "", false,
		formatFlagUsage("Print debug information of every seeding pass and extension round."))

	RootCmd.CompletionOptions.DisableDefaultCmd = true
	RootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	RootCmd.SetUsageTemplate(usageTemplate(""))
}

// addLog writes the log to a file too, and returns the file handler.
func addLog(file string, verbose bool) *os.File {
	w, err := os.Create(file)
	if err != nil {
		checkError(fmt.Errorf("failed to write log file %s: %s", file, err))
	}

	var logFormat2 = logging.MustStringFormatter(
		`%{time:15:04:05.000} [%{level:.4s}] %{message}`,
	)
	backend := logging.NewLogBackend(w, "", 0)
	backendFormatter := logging.NewBackendFormatter(backend, logFormat2)

	if verbose {
		backend0 := logging.NewLogBackend(stderrWriter(), "", 0)
		backendFormatter0 := logging.NewBackendFormatter(backend0, logFormat)
		logging.SetBackend(backendFormatter0, backendFormatter)
	} else {
		logging.SetBackend(backendFormatter)
	}

	return w
}

// setLogLevel hides debug messages unless asked.
func setLogLevel(debug bool) {
	if debug {
		logging.SetLevel(logging.DEBUG, "pairmap")
	} else {
		logging.SetLevel(logging.INFO, "pairmap")
	}
}
