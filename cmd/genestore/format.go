package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"genestore/internal/history"
	"genestore/internal/model"
	"genestore/internal/persistence"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// printResult writes resp to w in the --format output format.
func printResult(w io.Writer, resp interface{}) error {
	out, err := FormatResponse(resp, OutputFormat(formatArg))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(out, "\n"))
	return err
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatYAML goes through JSON first so field names follow the json tags.
func formatYAML(resp interface{}) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return "", fmt.Errorf("failed to convert to YAML: %w", err)
	}
	plainStyle(&node)

	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(out), nil
}

// plainStyle drops the flow and quoting styles the JSON input left behind.
func plainStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		plainStyle(c)
	}
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *model.Project:
		return formatProjectHuman(v), nil
	case *model.Block:
		return formatBlockHuman(v), nil
	case model.BlockMap:
		return formatBlocksHuman(v), nil
	case *model.Rollup:
		return formatProjectHuman(v.Project) + "\n" + formatBlocksHuman(v.Blocks), nil
	case *model.Order:
		return formatOrderHuman(v), nil
	case []history.Commit:
		return formatLogHuman(v), nil
	case history.Commit:
		return formatCommitHuman(v), nil
	case persistence.SaveResult:
		if v.Skipped {
			return "No changes since the last save; nothing committed.", nil
		}
		return formatCommitHuman(*v.Commit), nil
	case []string:
		return strings.Join(v, "\n"), nil
	default:
		return formatJSON(resp)
	}
}

func formatProjectHuman(p *model.Project) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Project %s\n", p.ID))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("  Name:       %s\n", valueOrDefault(p.Metadata.Name, "(untitled)")))
	if p.Metadata.Description != "" {
		b.WriteString(fmt.Sprintf("  About:      %s\n", p.Metadata.Description))
	}
	b.WriteString(fmt.Sprintf("  Authors:    %s\n", valueOrDefault(strings.Join(p.Metadata.Authors, ", "), "-")))
	b.WriteString(fmt.Sprintf("  Components: %d\n", len(p.Components)))
	if p.Version == "" {
		b.WriteString("  Version:    (never saved)\n")
	} else {
		b.WriteString(fmt.Sprintf("  Version:    %s\n", shortSHA(p.Version)))
		b.WriteString(fmt.Sprintf("  Saved:      %s\n", humanize.Time(time.UnixMilli(p.LastSaved))))
	}
	return b.String()
}

func formatBlockHuman(blk *model.Block) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Block %s\n", blk.ID))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("  Name:        %s\n", valueOrDefault(blk.Metadata.Name, "(untitled)")))
	b.WriteString(fmt.Sprintf("  Project:     %s\n", blk.ProjectID))
	b.WriteString(fmt.Sprintf("  Components:  %s\n", valueOrDefault(strings.Join(blk.Components, ", "), "-")))
	if blk.Sequence.MD5 != "" {
		b.WriteString(fmt.Sprintf("  Sequence:    %s (%s bp)\n", blk.Sequence.MD5, humanize.Comma(int64(blk.Sequence.Length))))
	}
	if n := len(blk.Sequence.Annotations); n > 0 {
		b.WriteString(fmt.Sprintf("  Annotations: %d\n", n))
	}
	return b.String()
}

func formatBlocksHuman(blocks model.BlockMap) string {
	if len(blocks) == 0 {
		return "No blocks.\n"
	}
	ids := blocks.IDs()
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %-36s %-24s %10s %6s\n", "ID", "NAME", "LENGTH", "PARTS"))
	b.WriteString(fmt.Sprintf("  %-36s %-24s %10s %6s\n",
		strings.Repeat("-", 36), strings.Repeat("-", 24), strings.Repeat("-", 10), strings.Repeat("-", 6)))
	for _, id := range ids {
		blk := blocks[id]
		b.WriteString(fmt.Sprintf("  %-36s %-24s %10s %6d\n",
			id, truncate(blk.Metadata.Name, 24), humanize.Comma(int64(blk.Sequence.Length)), len(blk.Components)))
	}
	return b.String()
}

func formatOrderHuman(o *model.Order) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Order %s\n", o.ID))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("  Project:    %s @ %s\n", o.ProjectID, shortSHA(o.ProjectVersion)))
	b.WriteString(fmt.Sprintf("  User:       %s\n", o.User))
	b.WriteString(fmt.Sprintf("  Constructs: %d\n", len(o.Constructs)))
	if o.Status.Foundry != "" {
		b.WriteString(fmt.Sprintf("  Foundry:    %s\n", o.Status.Foundry))
	}
	if o.Status.TimeSent > 0 {
		b.WriteString(fmt.Sprintf("  Sent:       %s\n", humanize.Time(time.UnixMilli(o.Status.TimeSent))))
	}
	return b.String()
}

func formatLogHuman(commits []history.Commit) string {
	if len(commits) == 0 {
		return "No saves yet.\n"
	}
	var b strings.Builder
	for _, c := range commits {
		b.WriteString(fmt.Sprintf("%s  %-14s %-12s %s\n",
			shortSHA(c.SHA), humanize.Time(c.Time), truncate(c.Author, 12), firstLine(c.Message)))
	}
	return b.String()
}

func formatCommitHuman(c history.Commit) string {
	return fmt.Sprintf("Saved %s (%s) by %s\n  %s\n", shortSHA(c.SHA), humanize.Time(c.Time), c.Author, firstLine(c.Message))
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
