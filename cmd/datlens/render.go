package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// render writes v as JSON or YAML, or calls text for the human summary.
func render(v interface{}, text func(w io.Writer)) error {
	return renderTo(os.Stdout, outputFormat, v, text)
}

func renderTo(w io.Writer, format string, v interface{}, text func(w io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case "yaml":
		data, err := toYAML(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		text(w)
		return nil
	}
}

// toYAML renders v through its JSON encoding so YAML keys match the JSON
// field names and keep their order.
func toYAML(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to convert summary: %w", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	return out, nil
}

// blockStyle drops the flow style the JSON input carries.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func dryRunTag(dryRun bool) string {
	if dryRun {
		return yellow(" (dry run)")
	}
	return ""
}

func count(n int, c func(a ...interface{}) string) string {
	if n == 0 {
		return gray("0")
	}
	return c(n)
}
