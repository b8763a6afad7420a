package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/sourcewatch/pkg/sourcewatch"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// encode writes v as JSON or YAML. It returns false for the table format.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case formatTable, "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (valid: table, json, yaml)", format)
	}
}

func writeRecords(w io.Writer, format string, records []sourcewatch.Record) error {
	if done, err := encode(w, format, records); done {
		return err
	}

	t := newTable([]int{12, 11, 60, 40}, "SOURCE", "CATEGORY", "TITLE", "URL")
	for _, r := range records {
		t.add(r.Source, r.Category.String(), r.Title, r.URL)
	}
	if err := t.render(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d records\n", len(records))
	return err
}

func writeResult(w io.Writer, format string, result *sourcewatch.Result) error {
	if done, err := encode(w, format, result); done {
		return err
	}

	if err := writeRecords(w, format, result.Records); err != nil {
		return err
	}
	fmt.Fprintln(w)

	t := newTable([]int{14, 11, 10, 7, 8, 10, 40}, "SOURCE", "CATEGORY", "STATE", "RECORDS", "ATTEMPTS", "DURATION", "ERROR")
	for _, o := range result.Outcomes {
		t.add(
			o.Source,
			o.Category.String(),
			o.StateName,
			strconv.Itoa(o.Records),
			strconv.Itoa(o.Attempts),
			o.Duration.Round(time.Millisecond).String(),
			failureText(o.ErrorClass, o.Error),
		)
	}
	if err := t.render(w); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nrun %s: %d records, %d duplicates removed, %d/%d sources failed\n",
		result.RunID, len(result.Records), result.Duplicates, len(result.Failed()), len(result.Outcomes))
	return err
}

func writeFailures(w io.Writer, errs map[string]error) {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := errs[name]
		fmt.Fprintf(w, "source %s failed: %s\n", name, failureText(sourcewatch.ErrorClass(err), err.Error()))
	}
}

func writeHealth(w io.Writer, format string, working, failed []string) error {
	report := struct {
		Working []string `json:"working" yaml:"working"`
		Failed  []string `json:"failed"  yaml:"failed"`
	}{Working: nonNil(working), Failed: nonNil(failed)}

	if done, err := encode(w, format, report); done {
		return err
	}

	t := newTable([]int{6, 70}, "STATUS", "URL")
	for _, u := range working {
		t.add("ok", u)
	}
	for _, u := range failed {
		t.add("failed", u)
	}
	return t.render(w)
}

func writeSources(w io.Writer, format string, sources []sourcewatch.Source) error {
	if done, err := encode(w, format, sources); done {
		return err
	}

	t := newTable([]int{14, 11, 8, 50}, "NAME", "CATEGORY", "FETCHER", "URL")
	for _, s := range sources {
		fetcherType := s.Fetcher
		if fetcherType == "" {
			fetcherType = "http"
		}
		t.add(s.Name, s.Category.String(), fetcherType, s.URL)
	}
	return t.render(w)
}

func failureText(class, msg string) string {
	if msg == "" {
		return ""
	}
	if class == "" {
		return msg
	}
	return class + ": " + msg
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// table renders fixed-width columns. Widths are display cells, so wide
// characters and emoji in headlines keep the columns aligned.
type table struct {
	widths []int
	rows   [][]string
}

func newTable(widths []int, headers ...string) *table {
	t := &table{widths: widths}
	t.add(headers...)
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) error {
	for _, row := range t.rows {
		var b strings.Builder
		for i, cell := range row {
			width := t.widths[len(t.widths)-1]
			if i < len(t.widths) {
				width = t.widths[i]
			}
			cell = strings.ReplaceAll(cell, "\n", " ")
			if i == len(row)-1 {
				b.WriteString(runewidth.Truncate(cell, width, "…"))
				break
			}
			b.WriteString(runewidth.FillRight(runewidth.Truncate(cell, width, "…"), width))
			b.WriteString("  ")
		}
		if _, err := fmt.Fprintln(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}
