// Package export renders a bundle with its computed timeline and validation
// report into downloadable formats and writes them to a destination.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"intervene/internal/domain"
	"intervene/internal/plan"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
	FormatDOT  Format = "dot"
	FormatSVG  Format = "svg"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatJSON, FormatCSV, FormatText, FormatDOT, FormatSVG}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatJSON, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid export format %q", s)
}

// Extension is the file extension for a format.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatDOT:
		return "text/vnd.graphviz"
	case FormatSVG:
		return "image/svg+xml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Document is the exported snapshot. Timeline is nil when the stored graph has
// a cycle; ScheduleError then carries the reason.
type Document struct {
	Bundle        domain.Bundle  `json:"bundle"`
	Timeline      *plan.Timeline `json:"timeline,omitempty"`
	ScheduleError string         `json:"schedule_error,omitempty"`
	Validation    plan.Report    `json:"validation"`
	ExportedAt    string         `json:"exported_at"`
}

// NewDocument validates and schedules b with policy.
func NewDocument(b domain.Bundle, policy plan.Policy, exportedAt string) Document {
	doc := Document{Bundle: b, Validation: plan.ValidateBundle(b), ExportedAt: exportedAt}
	tl, err := policy.ScheduleBundle(b)
	if err != nil {
		doc.ScheduleError = err.Error()
	} else {
		doc.Timeline = &tl
	}
	return doc
}

// ParseDocument reads a JSON export back, for re-import.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("invalid bundle export: %w", err)
	}
	if doc.Bundle.Name == "" && doc.Bundle.ID == "" {
		return doc, fmt.Errorf("invalid bundle export: missing bundle")
	}
	return doc, nil
}

// DecodeBundle accepts either a bare bundle or a JSON export document.
func DecodeBundle(data []byte) (domain.Bundle, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Bundle{}, errors.New("bundle body is empty")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return domain.Bundle{}, fmt.Errorf("invalid bundle: %w", err)
	}
	if _, ok := probe["bundle"]; ok {
		doc, err := ParseDocument(data)
		if err != nil {
			return domain.Bundle{}, err
		}
		return doc.Bundle, nil
	}
	var b domain.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Bundle{}, fmt.Errorf("invalid bundle: %w", err)
	}
	return b, nil
}

func Render(ctx context.Context, f Format, doc Document) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatCSV:
		return renderCSV(doc)
	case FormatText:
		return []byte(renderText(doc)), nil
	case FormatDOT:
		return []byte(ToDOT(doc)), nil
	case FormatSVG:
		return RenderSVG(ctx, ToDOT(doc))
	default:
		return nil, fmt.Errorf("invalid export format %q", f)
	}
}

func entryFor(doc Document, id string) (domain.TimelineEntry, bool) {
	if doc.Timeline == nil {
		return domain.TimelineEntry{}, false
	}
	return doc.Timeline.Entry(id)
}

func renderCSV(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"id", "name", "zone", "complexity", "micro_tasks", "resources", "depends_on", "start_week", "duration", "end_week", "critical_path", "slack"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, iv := range doc.Bundle.Interventions {
		var res []string
		for _, r := range iv.Resources {
			res = append(res, r.Type+":"+r.Name)
		}
		var deps []string
		for _, e := range plan.DependenciesOf(doc.Bundle.Dependencies, iv.ID) {
			deps = append(deps, e.FromInterventionID)
		}
		row := []string{iv.ID, iv.Name, string(iv.Zone), string(iv.Complexity), strconv.Itoa(len(iv.MicroTasks)),
			strings.Join(res, ";"), strings.Join(deps, ";"), "", "", "", "", ""}
		if e, ok := entryFor(doc, iv.ID); ok {
			row[7] = strconv.Itoa(e.StartWeek)
			row[8] = strconv.Itoa(e.Duration)
			row[9] = strconv.Itoa(e.EndWeek)
			row[10] = strconv.FormatBool(e.CriticalPath)
			row[11] = strconv.Itoa(e.Slack)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderText(doc Document) string {
	b := doc.Bundle
	var sb strings.Builder
	fmt.Fprintf(&sb, "Bundle: %s (%s)\n", b.Name, b.ID)
	if b.Description != "" {
		fmt.Fprintf(&sb, "%s\n", b.Description)
	}
	fmt.Fprintf(&sb, "Timeline window: %d weeks\n\n", b.Weeks())

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Intervention", "Complexity", "Tasks", "Start", "End", "Critical"})
	for _, iv := range b.Interventions {
		row := table.Row{iv.Label(), iv.Complexity, len(iv.MicroTasks), "-", "-", ""}
		if e, ok := entryFor(doc, iv.ID); ok {
			row[3], row[4] = e.StartWeek, e.EndWeek
			if e.CriticalPath {
				row[5] = "yes"
			}
		}
		tw.AppendRow(row)
	}
	sb.WriteString(tw.Render())
	sb.WriteString("\n\nDependencies:\n")
	if len(b.Dependencies) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, e := range b.Dependencies {
		flag := ""
		if e.CriticalPath {
			flag = " [critical]"
		}
		fmt.Fprintf(&sb, "  %s -> %s (%s)%s", e.FromInterventionID, e.ToInterventionID, e.Type, flag)
		if e.Description != "" {
			fmt.Fprintf(&sb, ": %s", e.Description)
		}
		sb.WriteString("\n")
	}
	if doc.Timeline != nil {
		fmt.Fprintf(&sb, "\nTotal duration: %d weeks\n", doc.Timeline.TotalWeeks)
	}
	if doc.ScheduleError != "" {
		fmt.Fprintf(&sb, "\nSchedule unavailable: %s\n", doc.ScheduleError)
	}
	if len(doc.Validation.Errors) > 0 {
		sb.WriteString("\nValidation issues:\n")
		for _, msg := range doc.Validation.Errors {
			fmt.Fprintf(&sb, "  - %s\n", msg)
		}
	}
	return sb.String()
}
