package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pevans/coursefed"
	"github.com/pevans/coursefed/sources"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// printCatalog prints every source and department as a table.
func printCatalog(w io.Writer, catalog []sources.Summary) {
	if len(catalog) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Source", "Department", "Name", "Mode", "Pages"})
	for _, src := range catalog {
		for _, dept := range src.Departments {
			t.AppendRow(table.Row{src.ID, dept.ID, src.Name + " / " + dept.Name, dept.FetchMode, dept.Pages})
		}
	}
	t.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: coursefed <source> [department]  or  coursefed --all")
}

// printRunSummary prints a finished run.
func printRunSummary(w io.Writer, r coursefed.Report) {
	printArtifact(w, coursefed.NewArtifact(r))
}

// printArtifact prints per-source results, totals and errors.
func printArtifact(w io.Writer, a coursefed.Artifact) {
	fmt.Fprintf(w, "Run started %s\n\n", a.RunTimestamp.Format("2006-01-02 15:04:05 MST"))

	t := newTable(w)
	t.AppendHeader(table.Row{"Source", "Status", "Records", "Inserted", "Updated", "Pages", "Failed", "Rejected", "Duration", "Error"})
	for _, src := range a.PerSource {
		status := "ok"
		if !src.Success {
			status = "failed"
		}
		t.AppendRow(table.Row{
			src.Key,
			status,
			src.RecordCount,
			src.Inserted,
			src.Updated,
			src.Pages,
			src.PagesFailed,
			src.Rejected,
			(time.Duration(src.DurationMs) * time.Millisecond).String(),
			truncate(src.Error, 60),
		})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d/%d ok", a.Summary.Succeeded, a.Summary.SourcesAttempted), a.Summary.TotalRecords})
	t.Render()

	if len(a.Errors) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%d errors:\n", len(a.Errors))
	et := newTable(w)
	et.AppendHeader(table.Row{"Source", "URL", "Message"})
	for _, e := range a.Errors {
		et.AppendRow(table.Row{e.Source, e.URL, truncate(e.Message, 100)})
	}
	et.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
