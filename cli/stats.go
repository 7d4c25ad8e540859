package cli

import (
	"context"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement/store"
)

// StatsAction prints the movement counts recorded in a database and optionally plots them.
func StatsAction(c *cli.Context) error {
	logger := logging.NewLogger("stats")
	if !c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.WARN)
	}
	st, err := store.Open(c.Context, c.Path(statsFlagDB), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warnw("cannot close movement database", "error", err)
		}
	}()

	summary, err := st.Summary(c.Context)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", summaryTable(summary))

	if out := c.Path(statsFlagPlot); out != "" {
		if err := plotDistance(c.Context, st, c.Int(statsFlagLimit), out); err != nil {
			return err
		}
		printf(c.App.Writer, "wrote %s", out)
	}
	return nil
}

func summaryTable(summary store.Summary) string {
	t := table.NewWriter()
	t.SetTitle("Recorded movements")
	t.AppendHeader(table.Row{"Type", "Count"})
	kinds := make([]string, 0, len(summary.ByType))
	for kind := range summary.ByType {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		t.AppendRow(table.Row{kind, summary.ByType[kind]})
	}
	t.AppendFooter(table.Row{"Total", summary.Total})
	if summary.Total > 0 {
		t.AppendFooter(table.Row{"Runs", summary.Runs})
		t.AppendFooter(table.Row{"Mean distance (m)", summary.MeanDistance})
		t.AppendFooter(table.Row{"From", summary.First.Format(time.RFC3339)})
		t.AppendFooter(table.Row{"To", summary.Last.Format(time.RFC3339)})
	}
	return t.Render()
}

// plotDistance draws distance to the marker against seconds since the first plotted movement.
func plotDistance(ctx context.Context, st *store.Store, limit int, out string) error {
	records, err := st.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("no movements to plot")
	}
	pts := make(plotter.XYs, len(records))
	start := records[0].Timestamp
	for i, r := range records {
		pts[i] = plotter.XY{X: r.Timestamp.Sub(start).Seconds(), Y: r.Distance}
	}

	p := plot.New()
	p.Title.Text = "Distance to marker"
	p.X.Label.Text = "seconds"
	p.Y.Label.Text = "meters"
	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "cannot plot distance")
	}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())
	return errors.Wrapf(p.Save(10*vg.Inch, 4*vg.Inch, out), "cannot save plot to %q", out)
}
