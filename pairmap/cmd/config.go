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
	"os"
	"sort"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// defaultConfigFile is read when --config is not given.
const defaultConfigFile = "~/.pairmap.toml"

// readConfig parses a TOML file of flag values. Top-level keys apply to
// every command, and a table named after a command applies to it only.
//
//	threads = 8
//
//	[align]
//	max-ext = 400
//	top-seed = true
func readConfig(file string, command string) (map[string]interface{}, error) {
	file, err := homedir.Expand(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var raw map[string]interface{}
	if err = toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", file)
	}

	values := make(map[string]interface{}, len(raw))
	for key, v := range raw {
		if _, ok := v.(map[string]interface{}); ok {
			continue
		}
		values[key] = v
	}
	if table, ok := raw[command].(map[string]interface{}); ok {
		for key, v := range table {
			if _, ok = v.(map[string]interface{}); ok {
				return nil, fmt.Errorf("nested table in config file %s: [%s.%s]", file, command, key)
			}
			values[key] = v
		}
	}
	return values, nil
}

// applyConfig sets flags from the config file unless they were given on
// the command line.
func applyConfig(cmd *cobra.Command) error {
	file := getFlagString(cmd, "config")
	if file == "" {
		expanded, err := homedir.Expand(defaultConfigFile)
		if err != nil {
			return nil
		}
		if ok, _ := pathutil.Exists(expanded); !ok {
			return nil
		}
		file = expanded
	}

	values, err := readConfig(file, cmd.Name())
	if err != nil {
		return err
	}
	return setFlags(cmd.Flags(), values)
}

func setFlags(flags *pflag.FlagSet, values map[string]interface{}) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var f *pflag.Flag
	for _, key := range keys {
		if key == "config" {
			return fmt.Errorf("config files can not include other config files")
		}
		if f = flags.Lookup(key); f == nil {
			return fmt.Errorf("unknown option in config file: %s", key)
		}
		if f.Changed {
			continue
		}

		var value string
		switch v := values[key].(type) {
		case []interface{}:
			for i, e := range v {
				if i > 0 {
					value += ","
				}
				value += fmt.Sprint(e)
			}
		default:
			value = fmt.Sprint(v)
		}
		if err := flags.Set(key, value); err != nil {
			return errors.Wrapf(err, "option %s in config file", key)
		}
	}
	return nil
}
