package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD068"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2C14E"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func stageLabel(stage int, name string) string {
	if name == "" {
		return fmt.Sprintf("stage-%02d", stage)
	}
	return fmt.Sprintf("stage-%02d %s", stage, name)
}

func renderResult(w io.Writer, result contracts.Result) {
	name := ""
	if contract, ok := contracts.Get(result.Stage); ok {
		name = contract.Name
	}
	status := okStyle.Render("valid")
	switch {
	case result.Blocked:
		status = errStyle.Render("blocked")
	case !result.Valid:
		status = warnStyle.Render("invalid (advisory)")
	}
	fmt.Fprintf(w, "%s  %s-stage  %s\n", titleStyle.Render(stageLabel(result.Stage, name)), result.Phase, status)
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  %s %s\n", errStyle.Render("x"), msg)
	}
	for _, msg := range result.Warnings {
		fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("!"), msg)
	}
}

func renderContractList(w io.Writer, docs []contracts.ContractDoc) {
	fmt.Fprintln(w, titleStyle.Render("Stage contracts"))
	for _, doc := range docs {
		upstream := make([]string, 0, len(doc.Consumes))
		for _, dep := range doc.Consumes {
			upstream = append(upstream, fmt.Sprintf("%d", dep.Stage))
		}
		consumes := dimStyle.Render("-")
		if len(upstream) > 0 {
			consumes = strings.Join(upstream, ",")
		}
		fmt.Fprintf(w, "  %-32s %-10s consumes %-16s produces %d fields\n", stageLabel(doc.Stage, doc.Name), doc.Phase, consumes, len(doc.Produces))
	}
}

func renderContract(w io.Writer, doc contracts.ContractDoc) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", titleStyle.Render(stageLabel(doc.Stage, doc.Name)), dimStyle.Render("phase: "+doc.Phase))
	if len(doc.Consumes) == 0 {
		b.WriteString("\nconsumes nothing\n")
	}
	for _, dep := range doc.Consumes {
		fmt.Fprintf(&b, "\nconsumes stage-%02d\n", dep.Stage)
		writeFieldDocs(&b, dep.Fields)
	}
	b.WriteString("\nproduces\n")
	writeFieldDocs(&b, doc.Produces)
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func writeFieldDocs(b *strings.Builder, fields []contracts.FieldDoc) {
	for _, field := range fields {
		req := "optional"
		if field.Required {
			req = "required"
		}
		var rules []string
		if field.MinLength > 0 {
			rules = append(rules, fmt.Sprintf("minLength %d", field.MinLength))
		}
		if field.MinItems > 0 {
			rules = append(rules, fmt.Sprintf("minItems %d", field.MinItems))
		}
		if field.Min != nil {
			rules = append(rules, fmt.Sprintf("min %g", *field.Min))
		}
		if field.Max != nil {
			rules = append(rules, fmt.Sprintf("max %g", *field.Max))
		}
		fmt.Fprintf(b, "  %-28s %-8s %-8s %s\n", field.Name, field.Type, req, dimStyle.Render(strings.Join(rules, ", ")))
	}
}

func renderReport(w io.Writer, report *pipeline.Report) {
	status := string(report.Status)
	switch report.Status {
	case pipeline.RunStatusComplete:
		status = okStyle.Render(status)
	case pipeline.RunStatusGated:
		status = warnStyle.Render(status)
	default:
		status = errStyle.Render(status)
	}
	fmt.Fprintf(w, "%s %s  venture %s  %s  %s\n", titleStyle.Render("run"), report.RunID, report.Venture, report.Enforcement, status)
	for _, entry := range report.Stages {
		mark := okStyle.Render("ok")
		switch entry.Status {
		case pipeline.StageStatusBlocked:
			mark = errStyle.Render("blocked")
		case pipeline.StageStatusFailed:
			mark = errStyle.Render("failed")
		}
		fmt.Fprintf(w, "  %-36s %s %s\n", stageLabel(entry.Stage, entry.Name), mark, dimStyle.Render(entry.Duration().String()))
		for _, msg := range entry.Warnings {
			fmt.Fprintf(w, "    %s %s\n", warnStyle.Render("!"), msg)
		}
		if entry.Error != "" {
			fmt.Fprintf(w, "    %s %s\n", errStyle.Render("x"), entry.Error)
		}
	}
	skipped := make([]int, 0, len(report.Skipped))
	for stage := range report.Skipped {
		skipped = append(skipped, stage)
	}
	sort.Ints(skipped)
	for _, stage := range skipped {
		reason := report.Skipped[stage]
		fmt.Fprintf(w, "  %-36s %s %s\n", stageLabel(stage, ""), warnStyle.Render(string(reason.Reason)), dimStyle.Render(reason.Detail))
	}
	if report.Reason != "" {
		fmt.Fprintf(w, "%s\n", dimStyle.Render(report.Reason))
	}
}
