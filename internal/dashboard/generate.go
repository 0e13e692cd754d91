// Package dashboard renders a Grafana dashboard for the stretch table.
package dashboard

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	jsoniter "github.com/json-iterator/go"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

var templateFiles = []string{
	"templates/wanemu-stretch.json.tmpl",
}

// Options fill the dashboard template. The datasource uid comes from the
// GREPTIMEDB_DATASOURCE_UID environment variable.
type Options struct {
	Title    string
	Database string
	Table    string
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
// It returns the written paths.
func Render(outDir string, opts Options) ([]string, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	if opts.Title == "" {
		opts.Title = "Gossip stretch"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, tplName := range templateFiles {
		t, err := template.New(filepath.Base(tplName)).Funcs(funcMap).ParseFS(templates, tplName)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, opts); err != nil {
			return nil, err
		}
		if !jsoniter.ConfigCompatibleWithStandardLibrary.Valid(buf.Bytes()) {
			return nil, fmt.Errorf("%s: rendered dashboard is not valid JSON", tplName)
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(tplName), ".tmpl"))
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return nil, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
