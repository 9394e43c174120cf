package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/lwcomply/pkg/types"
)

// Formatter renders aggregate and alert reports.
type Formatter interface {
	FormatReport(report *types.AggregateReport, w io.Writer) error
	FormatAlerts(report *types.AlertReport, w io.Writer) error
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct{}

// NewFormatter creates a formatter based on format type
func NewFormatter(format string, pretty bool, noColor bool) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{Pretty: pretty}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	case "table":
		return NewTableFormatter(noColor), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func (f *JSONFormatter) FormatReport(report *types.AggregateReport, w io.Writer) error {
	return f.encode(report, w)
}

func (f *JSONFormatter) FormatAlerts(report *types.AlertReport, w io.Writer) error {
	return f.encode(report, w)
}

func (f *JSONFormatter) encode(v interface{}, w io.Writer) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

func (f *YAMLFormatter) FormatReport(report *types.AggregateReport, w io.Writer) error {
	return encodeYAML(report, w)
}

func (f *YAMLFormatter) FormatAlerts(report *types.AlertReport, w io.Writer) error {
	return encodeYAML(report, w)
}

func encodeYAML(v interface{}, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(v)
}

// WriteToFile writes formatted output to a file
func WriteToFile(formatter Formatter, report *types.AggregateReport, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		return formatter.FormatReport(report, w)
	})
}

// WriteAlertsToFile writes a formatted alert report to a file.
func WriteAlertsToFile(formatter Formatter, report *types.AlertReport, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		return formatter.FormatAlerts(report, w)
	})
}

func writeFile(filename string, format func(io.Writer) error) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	if err := format(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
