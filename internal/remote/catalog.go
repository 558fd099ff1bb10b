package remote

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"text/template"

	"github.com/evaleval/evalsync/internal/layout"
	"github.com/evaleval/evalsync/internal/table"
	"gopkg.in/yaml.v3"
)

// DataFile maps one split to its table in the dataset.
type DataFile struct {
	Split string `yaml:"split"`
	Path  string `yaml:"path"`
}

// DatasetConfig is one entry of the card's configs list.
type DatasetConfig struct {
	ConfigName string     `yaml:"config_name"`
	DataFiles  []DataFile `yaml:"data_files"`
}

// CardHeader is the YAML front matter of the catalog card.
type CardHeader struct {
	Configs []DatasetConfig `yaml:"configs"`
}

var cardBody = template.Must(template.New("card").Parse(`
# {{.Title}}

Evaluation results from various AI model leaderboards. Each leaderboard is a
separate split; nested fields are stored as JSON strings listed in the
"{{.MetadataKey}}" table metadata.

## Usage

` + "```python" + `
from datasets import load_dataset

# Load one leaderboard
dataset = load_dataset("{{.Dataset}}", split="{{.Example}}")

# Load all
dataset = load_dataset("{{.Dataset}}")
` + "```" + `

## Available Leaderboards (Splits)
{{range .Splits}}
- ` + "`{{.}}`" + `{{end}}
`))

// Catalog renders the dataset card listing every leaderboard split, sorted
// and deduplicated.
func Catalog(dataset, ext string, leaderboards []string) ([]byte, error) {
	splits := slices.Clone(leaderboards)
	sort.Strings(splits)
	splits = slices.Compact(splits)

	cfg := DatasetConfig{ConfigName: "default"}
	for _, lb := range splits {
		cfg.DataFiles = append(cfg.DataFiles, DataFile{Split: lb, Path: layout.TableKey(lb, ext)})
	}
	var header bytes.Buffer
	enc := yaml.NewEncoder(&header)
	enc.SetIndent(2)
	if err := enc.Encode(CardHeader{Configs: []DatasetConfig{cfg}}); err != nil {
		return nil, fmt.Errorf("encode card header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode card header: %w", err)
	}

	example := "<leaderboard>"
	if len(splits) > 0 {
		example = splits[0]
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header.Bytes())
	buf.WriteString("---\n")
	err := cardBody.Execute(&buf, map[string]any{
		"Title":       dataset,
		"Dataset":     dataset,
		"Example":     example,
		"Splits":      splits,
		"MetadataKey": table.MetadataKey,
	})
	if err != nil {
		return nil, fmt.Errorf("render card: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseCatalog reads the front matter of a card produced by Catalog.
func ParseCatalog(card []byte) (*CardHeader, error) {
	rest, ok := bytes.CutPrefix(card, []byte("---\n"))
	if !ok {
		return nil, fmt.Errorf("card has no front matter")
	}
	front, _, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return nil, fmt.Errorf("card front matter is not terminated")
	}
	var h CardHeader
	if err := yaml.Unmarshal(front, &h); err != nil {
		return nil, fmt.Errorf("decode card header: %w", err)
	}
	return &h, nil
}
