// graphtool is a CLI utility for inspecting SLAM result graph files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/unixpickle/essentials"

	"github.com/Faultbox/meshfuse/internal/fusion"
	"github.com/Faultbox/meshfuse/pkg/graph"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "list", "ls":
		cmdList(args)
	case "validate", "check":
		cmdValidate(args)
	case "frames":
		cmdFrames(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`graphtool - SLAM result graph utility

Usage:
  graphtool <command> [options]

Commands:
  info <graph.yaml>                  Show graph summary
  list <graph.yaml>                  List models with their poses and frames
  validate <graph.yaml>              Check structure and referenced model files
  frames [-k N] <graph.yaml>         Show which frames a fusion run keeps

Examples:
  graphtool info result/graph.yaml
  graphtool validate result/graph.yaml
  graphtool frames -k 5 result/graph.yaml`)
}

func loadGraph(path string) *graph.Graph {
	g, err := graph.Load(path)
	if err != nil {
		essentials.Die(err)
	}
	return g
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		essentials.Die("Usage: graphtool info <graph.yaml>")
	}
	g := loadGraph(args[0])

	fmt.Printf("Graph:   %s\n", args[0])
	fmt.Printf("Models:  %d\n", len(g.Models))
	fmt.Printf("Frames:  %d\n", g.FrameCount())

	if len(g.Frames) == 0 {
		return
	}

	// Frames per model
	counts := make([]int, 0, len(g.Models))
	for _, m := range g.Models {
		counts = append(counts, len(m.FrameIDs))
	}
	sort.Ints(counts)
	fmt.Printf("Frames per model: min %d, median %d, max %d\n",
		counts[0], counts[len(counts)/2], counts[len(counts)-1])

	first, last := g.Frames[0].Timestamp, g.Frames[0].Timestamp
	for _, f := range g.Frames {
		first = min(first, f.Timestamp)
		last = max(last, f.Timestamp)
	}
	fmt.Printf("Time span: %.3f s (%.3f to %.3f)\n", last-first, first, last)
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N models (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		essentials.Die("Usage: graphtool list <graph.yaml>")
	}
	g := loadGraph(fs.Arg(0))

	for i, m := range g.Models {
		if *limit > 0 && i >= *limit {
			fmt.Fprintf(os.Stderr, "\n(showing first %d models, use -n 0 for all)\n", *limit)
			break
		}
		t := m.Pose().Translation()
		fmt.Printf("model %-4d %-12s frames %-4d origin (%.3f, %.3f, %.3f)\n",
			m.ID, m.Filename, len(m.FrameIDs), t.X, t.Y, t.Z)
	}
}

func cmdValidate(args []string) {
	if len(args) < 1 {
		essentials.Die("Usage: graphtool validate <graph.yaml>")
	}
	g := loadGraph(args[0])
	dir := filepath.Dir(args[0])

	missing := 0
	for _, m := range g.Models {
		path := filepath.Join(dir, m.Filename)
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(os.Stderr, "model %d: %v\n", m.ID, err)
			missing++
		}
	}
	if missing > 0 {
		essentials.Die(fmt.Sprintf("%d model files missing", missing))
	}
	fmt.Printf("OK: %s\n", g)
}

func cmdFrames(args []string) {
	fs := flag.NewFlagSet("frames", flag.ExitOnError)
	interval := fs.Int("k", 1, "Keyframe interval")
	fs.Parse(args)

	if fs.NArg() < 1 {
		essentials.Die("Usage: graphtool frames [-k N] <graph.yaml>")
	}
	g := loadGraph(fs.Arg(0))

	selector := fusion.Selector{Interval: *interval}
	index, kept := 0, 0
	for _, m := range g.Models {
		var ids []int
		for _, fid := range m.FrameIDs {
			if selector.Keep(index) {
				ids = append(ids, fid)
			}
			index++
		}
		kept += len(ids)
		fmt.Printf("model %-4d keeps %v\n", m.ID, ids)
	}
	fmt.Fprintf(os.Stderr, "\n(%d of %d frames kept)\n", kept, index)
}
