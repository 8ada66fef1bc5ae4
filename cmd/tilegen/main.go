// Command tilegen batch-compiles a directory of fixture files into
// kernel lists, printing a styled summary: glob fixtures, time each
// run, and print a summary table.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/c00lrain/plaidml/internal/compiler"
	"github.com/c00lrain/plaidml/internal/refimpl"
	"github.com/c00lrain/plaidml/internal/settings"
)

type runResult struct {
	Name     string
	Kernels  int
	Bytes    int64
	Flops    int64
	Elapsed  time.Duration
	Err      error
}

func main() {
	fixtureDir := flag.String("dir", "./fixtures", "directory of *.json compile fixtures")
	settingsFile := flag.String("settings", "", "hardware settings JSON file (defaults to a generic baseline)")
	tileTrials := flag.Int("tile-trials", 3, "max tile-size candidates retained per kernel")
	flag.Parse()

	hw := settings.Default()
	if *settingsFile != "" {
		loaded, err := settings.Load(*settingsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading settings: %v\n", err)
			os.Exit(1)
		}
		hw = loaded
	}

	files, err := filepath.Glob(filepath.Join(*fixtureDir, "*.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error finding fixtures: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no fixtures found in %s\n", *fixtureDir)
		os.Exit(1)
	}

	headerStyle := lipgloss.NewStyle().Bold(true)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	fmt.Println(headerStyle.Render(strings.Repeat("=", 72)))
	fmt.Println(headerStyle.Render("  tilegen batch compile"))
	fmt.Println(headerStyle.Render(strings.Repeat("=", 72)))
	fmt.Printf("found %d fixtures in %s\n\n", len(files), *fixtureDir)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("compiling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII))

	results := make([]runResult, 0, len(files))
	collab := refimpl.New()

	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		start := time.Now()

		result := runResult{Name: name}
		f, err := loadFixture(path)
		if err == nil {
			prog, perr := f.toProgram()
			if perr != nil {
				err = perr
			} else {
				trials := *tileTrials
				if f.TileTrials > 0 {
					trials = f.TileTrials
				}
				list, cerr := compiler.GenerateProgram(prog, f.toShapeMap(f.Inputs), f.toShapeMap(f.Outputs), hw, name, trials, collab)
				if cerr != nil {
					err = cerr
				} else {
					result.Kernels = len(list.Kernels)
					for _, k := range list.Kernels {
						result.Bytes += k.TotBytes
						result.Flops += k.TotFlops
					}
				}
			}
		}
		result.Err = err
		result.Elapsed = time.Since(start)
		results = append(results, result)
		_ = bar.Add(1)
	}
	fmt.Println()

	fmt.Println(headerStyle.Render(strings.Repeat("-", 72)))
	fmt.Printf("%-24s %10s %14s %14s %10s\n", "fixture", "kernels", "bytes", "flops", "time")
	fmt.Println(strings.Repeat("-", 72))
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("%-24s %s\n", r.Name, errStyle.Render("FAILED: "+r.Err.Error()))
			continue
		}
		fmt.Printf("%-24s %10d %14s %14s %10s\n",
			r.Name, r.Kernels, humanize.Bytes(uint64(r.Bytes)), humanize.Comma(r.Flops), r.Elapsed.Round(time.Microsecond))
	}
	fmt.Println(strings.Repeat("-", 72))
	fmt.Println(okStyle.Render(fmt.Sprintf("%d/%d compiled cleanly", len(results)-failed, len(results))))
}
