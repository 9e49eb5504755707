// Command carbontest runs carbon detection on a thin-section image and
// prints the dark components it found.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"mineral-classifier/internal/carbon"
	"mineral-classifier/internal/image"
	"mineral-classifier/internal/version"
)

func main() {
	imagePath := flag.String("image", "", "Path to thin-section image (TIFF, PNG, or JPEG)")
	threshold := flag.Int("threshold", carbon.DefaultParams().Threshold, "Gray level below which pixels are dark (0-255)")
	minBlob := flag.Int("min-blob", carbon.DefaultParams().MinBlobSize, "Dark components smaller than this are carbon")
	top := flag.Int("top", 20, "Components to list, largest first (0 lists all)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("carbontest"))
		return
	}
	if *imagePath == "" {
		fmt.Println("Usage: carbontest -image <path> [-threshold 30] [-min-blob 100] [-top 20]")
		os.Exit(1)
	}

	src, err := image.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	r := src.Raster
	fmt.Printf("Loaded %s image: %dx%d pixels\n", src.Format, r.Width, r.Height)
	if src.DPI > 0 {
		fmt.Printf("Resolution: %.0f dpi (%.2f µm/pixel)\n", src.DPI, src.PixelSize())
	}

	params := carbon.DefaultParams().WithThreshold(*threshold).WithMinBlobSize(*minBlob)
	fmt.Printf("\nDetection parameters:\n")
	fmt.Printf("  Gray threshold: < %d\n", params.Threshold)
	fmt.Printf("  Carbon blobs:   < %d px (4-connected)\n", params.MinBlobSize)

	fmt.Printf("\nDetecting carbon...\n")
	result, err := carbon.Detect(r, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	comps := append([]carbon.Component(nil), result.Components...)
	sort.SliceStable(comps, func(i, j int) bool { return comps[i].Area > comps[j].Area })
	if *top > 0 && len(comps) > *top {
		comps = comps[:*top]
	}

	fmt.Printf("\nFound %d dark components:\n", len(result.Components))
	fmt.Printf("%-8s %10s %8s\n", "Label", "Area", "Carbon")
	fmt.Println(strings.Repeat("-", 28))
	for _, c := range comps {
		fmt.Printf("%-8d %10d %8v\n", c.Label, c.Area, c.Carbon)
	}

	n := result.Mask.Count()
	fmt.Printf("\nTotal: %d carbon blobs, %d pixels (%.2f%% of image)\n",
		result.CarbonComponents(), n, 100*float64(n)/float64(r.Len()))
	if ps := src.PixelSize(); ps > 0 {
		fmt.Printf("Carbon area: %.4f mm²\n", float64(n)*ps*ps/1e6)
	}
}
