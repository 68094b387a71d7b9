/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	json "github.com/goccy/go-json"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/viewstore/internal/buildinfo"
	"github.com/l7mp/viewstore/pkg/controller"
	"github.com/l7mp/viewstore/pkg/types"
	"github.com/l7mp/viewstore/pkg/visualize"
)

// set with -ldflags "-X main.version=..."
var (
	version    string
	commitHash string
	buildDate  string
)

type fileList []string

func (l *fileList) String() string     { return strings.Join(*l, ",") }
func (l *fileList) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	var recipeFile, viewName, key, graphFormat string
	var extendFiles, dataFiles fileList
	var blocking bool

	flag.StringVar(&recipeFile, "recipe", "", "The recipe to install (YAML).")
	flag.Var(&extendFiles, "extend", "A recipe extension applied after the data is loaded, can be repeated.")
	flag.Var(&dataFiles, "data", "Rows to insert, as a YAML map from table name to a list of rows, can be repeated.")
	flag.StringVar(&viewName, "view", "", "The view to query.")
	flag.StringVar(&key, "key", "", "The lookup key as a JSON value, or a JSON list for compound keys. "+
		"Omit to dump the whole view.")
	flag.BoolVar(&blocking, "blocking", true, "Wait for pending writes before the lookup.")
	flag.StringVar(&graphFormat, "graph", "", "Print the dataflow graph instead of querying (dot, mermaid or markdown).")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := zap.New(zap.UseFlagOptions(&opts))
	setupLog := logger.WithName("setup")

	buildInfo := buildinfo.New(version, commitHash, buildDate)
	setupLog.Info(fmt.Sprintf("starting viewstore %s", buildInfo.String()))

	if recipeFile == "" {
		setupLog.Error(nil, "no recipe given, use -recipe")
		os.Exit(1)
	}

	c := controller.New(controller.Options{Logger: logger})

	data, err := os.ReadFile(recipeFile)
	if err != nil {
		setupLog.Error(err, "cannot read recipe", "file", recipeFile)
		os.Exit(1)
	}
	if err := c.InstallRecipeYAML(data); err != nil {
		setupLog.Error(err, "cannot install recipe", "file", recipeFile)
		os.Exit(1)
	}

	for _, file := range dataFiles {
		if err := load(c, file, setupLog); err != nil {
			setupLog.Error(err, "cannot load data", "file", file)
			os.Exit(1)
		}
	}

	for _, file := range extendFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			setupLog.Error(err, "cannot read recipe extension", "file", file)
			os.Exit(1)
		}
		if err := c.ExtendRecipeYAML(data); err != nil {
			setupLog.Error(err, "cannot extend recipe", "file", file)
			os.Exit(1)
		}
	}

	if graphFormat != "" {
		gen, ok := visualize.NewGenerator(graphFormat)
		if !ok {
			setupLog.Error(nil, "unknown graph format", "format", graphFormat)
			os.Exit(1)
		}
		fmt.Println(gen.Generate(c.Graph()))
		return
	}

	if viewName == "" {
		setupLog.Info("no view given, exiting", "tables", c.Tables(), "views", c.Views())
		return
	}

	rows, err := query(c, viewName, key, blocking)
	if err != nil {
		setupLog.Error(err, "lookup failed", "view", viewName, "key", key)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		setupLog.Error(err, "cannot encode result")
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// load inserts the rows of a data file, table by table in recipe order.
func load(c *controller.Controller, file string, log logr.Logger) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return err
	}
	rowsByTable := map[string][][]any{}
	if err := decodeJSON(js, &rowsByTable); err != nil {
		return err
	}

	for name := range rowsByTable {
		if _, err := c.Table(name); err != nil {
			return err
		}
	}

	for _, name := range c.Tables() {
		raw, ok := rowsByTable[name]
		if !ok {
			continue
		}
		t, err := c.Table(name)
		if err != nil {
			return err
		}
		for i, vs := range raw {
			row, err := toRow(vs)
			if err != nil {
				return fmt.Errorf("table %q row %d: %w", name, i, err)
			}
			if err := t.Insert(row); err != nil {
				return err
			}
		}
		log.V(1).Info("rows loaded", "table", name, "rows", len(raw))
	}
	return nil
}

func query(c *controller.Controller, viewName, key string, blocking bool) ([]types.Row, error) {
	v, err := c.View(viewName)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return v.Rows()
	}

	var raw any
	if json.Valid([]byte(key)) {
		if err := decodeJSON([]byte(key), &raw); err != nil {
			return nil, err
		}
	} else {
		// bare words are text keys
		raw = key
	}
	vs, ok := raw.([]any)
	if !ok {
		vs = []any{raw}
	}
	row, err := toRow(vs)
	if err != nil {
		return nil, err
	}
	return v.Lookup(row, blocking)
}

// decodeJSON keeps numbers as literals so that integers above 2^53 survive.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func toRow(vs []any) (types.Row, error) {
	row := make(types.Row, len(vs))
	for i, v := range vs {
		d, err := types.FromJSONValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = d
	}
	return row, nil
}
