// Command selections creates and inspects mineral selection files. Each run
// picks the colors at the given pixel coordinates of an image and stores
// them as samples of one mineral, merging with the file's existing minerals.
//
// Usage:
//
//	selections -image slide.tif -class Quartz -at 120,48 -at 130,52
//	selections -image slide.tif            (list the saved minerals)
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"mineral-classifier/internal/app"
	"mineral-classifier/internal/config"
	"mineral-classifier/internal/mineral"
	"mineral-classifier/internal/selection"
)

// point is one -at x,y argument.
type point struct{ x, y int }

// points collects repeated -at flags.
type points []point

func (p *points) String() string {
	parts := make([]string, len(*p))
	for i, pt := range *p {
		parts[i] = fmt.Sprintf("%d,%d", pt.x, pt.y)
	}
	return strings.Join(parts, " ")
}

func (p *points) Set(v string) error {
	xs, ys, ok := strings.Cut(v, ",")
	if !ok {
		return fmt.Errorf("want x,y, got %q", v)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return fmt.Errorf("bad x in %q: %w", v, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return fmt.Errorf("bad y in %q: %w", v, err)
	}
	*p = append(*p, point{x, y})
	return nil
}

func main() {
	var at points
	imagePath := flag.String("image", "", "Image the coordinates refer to")
	outPath := flag.String("out", "", "Selections file (default: <results>/<image>_selections.json)")
	class := flag.String("class", "", "Mineral to add or replace")
	flag.Var(&at, "at", "Pixel coordinate x,y (repeatable)")
	remove := flag.String("remove", "", "Mineral to delete")
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintf(os.Stderr, "Usage: selections -image <path> [-out file] [-class name -at x,y ...] [-remove name]\n")
		os.Exit(1)
	}

	s := app.NewSession(config.Default(), zerolog.Nop())
	if err := s.LoadImage(*imagePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading image: %v\n", err)
		os.Exit(1)
	}
	if *outPath != "" {
		if _, err := os.Stat(*outPath); err == nil {
			if err := s.LoadSelections(*outPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error reading selections: %v\n", err)
				os.Exit(1)
			}
		}
	}

	changed := false
	if *remove != "" {
		if !s.RemoveClass(*remove) {
			fmt.Fprintf(os.Stderr, "No mineral named %q\n", *remove)
			os.Exit(1)
		}
		fmt.Printf("Removed %s\n", *remove)
		changed = true
	}

	if *class != "" {
		if len(at) == 0 {
			fmt.Fprintf(os.Stderr, "Error: -class needs at least one -at x,y\n")
			os.Exit(1)
		}
		for _, pt := range at {
			sample, err := s.Pick(pt.x, pt.y)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error picking %d,%d: %v\n", pt.x, pt.y, err)
				os.Exit(1)
			}
			fmt.Printf("  (%d,%d) -> RGB(%d,%d,%d)\n", sample.X, sample.Y,
				sample.Color[0], sample.Color[1], sample.Color[2])
		}
		c, err := s.AddClass(*class)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error adding mineral: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set %s from %d samples\n", c.Name, len(c.Samples))
		changed = true
	}

	if changed {
		path, err := s.SaveSelections(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing selections: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
	}

	listClasses(s.Registry())
	if !changed && s.Registry().Len() == 0 {
		fmt.Printf("No selections found (looked for %s)\n",
			selection.PathFor(config.Default().ResultsDir(*imagePath), *imagePath))
	}
}

func listClasses(reg *mineral.Registry) {
	if reg.Len() == 0 {
		return
	}
	fmt.Printf("\n%-4s %-20s %8s %s\n", "Idx", "Mineral", "Samples", "Mean color")
	for i, c := range reg.Classes() {
		fmt.Printf("%-4d %-20s %8d RGB(%d,%d,%d)\n", i, c.Name, len(c.Samples),
			c.Color[0], c.Color[1], c.Color[2])
	}
}
