package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atomgomba/orangebox/internal/blackbox"
	"github.com/atomgomba/orangebox/internal/common"
	"github.com/atomgomba/orangebox/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "dump":
		dumpCmd(os.Args[2:])
	case "sessions":
		sessionsCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`bbctl %s (built %s) <command> [options]

Commands:
  dump      [-i index] [-o out.csv] [-a] [-v level] [-metrics] [-progress] <path>
  sessions  [-a] <path>
  report    [-i index] [-o report.pdf] [-a] [--json out.json] <path>

Options must come before <path>.
`, version, buildDate)
}

func commonFlags(fs *flag.FlagSet) (index *int, allowInvalid *bool, verbosity *int) {
	index = fs.Int("i", 1, "session index (1-based)")
	allowInvalid = fs.Bool("a", false, "allow invalid/missing header (permissive mode)")
	verbosity = fs.Int("v", 0, "verbosity level as a number (e.g. -v 2); a bare, repeated -v is not accepted")
	return
}

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	index, allowInvalid, verbosity := commonFlags(fs)
	out := fs.String("o", "", "output CSV path (defaults to stdout)")
	metricsFlag := fs.Bool("metrics", false, "print decode throughput metrics")
	progressFlag := fs.Bool("progress", false, "display decode progress updates")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Println("required: <path>")
		os.Exit(1)
	}
	path := rest[0]

	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		if info, err := os.Stat(path); err == nil {
			metrics.SetTotalBytes(info.Size())
		}
	}

	p, err := blackbox.Load(path, *index, *allowInvalid)
	if err != nil {
		fmt.Println("load:", err)
		os.Exit(1)
	}
	p.Metrics = metrics

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Println("create output:", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	if metrics != nil {
		metrics.Start()
	}
	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}

	if err := writeCSV(w, p, *verbosity); err != nil {
		if stopProgress != nil {
			stopProgress()
		}
		fmt.Println("dump:", err)
		os.Exit(1)
	}
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}

	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Fprintf(os.Stderr, "Metrics: duration=%s frames=%d resyncs=%d processed=%s throughput=%.2f MiB/s\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Frames,
			snap.Resyncs,
			common.FormatBytes(snap.Bytes),
			snap.ThroughputBytesPerSecond()/(1024*1024),
		)
	}
}

func writeCSV(w io.Writer, p *blackbox.Parser, verbosity int) error {
	fields := p.FieldNames()
	header := append([]string{"frameType"}, fields...)
	if _, err := fmt.Fprintln(w, strings.Join(header, ",")); err != nil {
		return err
	}

	it := p.Frames()
	for {
		frame, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		row := make([]string, 0, len(frame.Data)+1)
		row = append(row, frame.Type.String())
		for _, v := range frame.Data {
			row = append(row, fmt.Sprintf("%d", v))
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, ",")); err != nil {
			return err
		}
	}

	if verbosity > 0 {
		fmt.Fprintf(os.Stderr, "resyncs: %d, events: %d\n", p.ResyncCount, len(p.Events()))
	}
	if verbosity > 1 {
		for _, ev := range p.Events() {
			fmt.Fprintf(os.Stderr, "event %d: %v\n", ev.Type, ev.Data)
		}
	}
	return nil
}

func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	allowInvalid := fs.Bool("a", false, "allow invalid/missing header (permissive mode)")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Println("required: <path>")
		os.Exit(1)
	}
	path := rest[0]

	p, err := blackbox.Load(path, 1, *allowInvalid)
	if err != nil {
		fmt.Println("load:", err)
		os.Exit(1)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tOFFSET")
	for i, ptr := range p.LogPointers() {
		fmt.Fprintf(tw, "%d\t%d\n", i+1, ptr)
	}
	tw.Flush()
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	index, allowInvalid, _ := commonFlags(fs)
	pdfPath := fs.String("o", "report.pdf", "output PDF path")
	jsonPath := fs.String("json", "", "also write the summary as JSON to this path")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Println("required: <path>")
		os.Exit(1)
	}
	path := rest[0]

	p, err := blackbox.Load(path, *index, *allowInvalid)
	if err != nil {
		fmt.Println("load:", err)
		os.Exit(1)
	}

	summary, err := report.Summarize(p, path)
	if err != nil {
		fmt.Println("summarize:", err)
		os.Exit(1)
	}

	if err := report.SaveSummaryPDF(summary, *pdfPath); err != nil {
		fmt.Println("write pdf:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote", *pdfPath)

	if *jsonPath != "" {
		if err := report.SaveSummaryJSON(summary, *jsonPath); err != nil {
			fmt.Println("write json:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", *jsonPath)
	}
}
