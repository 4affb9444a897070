package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr/pdftext"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file.pdf>",
	Short: "Probe and extract a local PDF through its text layer",
	Long: `probe runs page discovery and batched extraction against a local PDF with the
text-layer provider, without touching the record store. It prints the page
count found by probing next to the count read from the PDF page tree.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().Int("batch-size", 5, "pages per provider call")
	probeCmd.Flags().Int("max-pages", 50, "page cap")
	probeCmd.Flags().Int("stride", 10, "probe stride")
	probeCmd.Flags().Bool("text", false, "print the extracted text")
}

func runProbe(cmd *cobra.Command, args []string) error {
	logger := newLogger(common.LoadConfig(v).Log)
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	stride, _ := cmd.Flags().GetInt("stride")

	out := cmd.OutOrStdout()
	if n, err := ocr.CountPages(content); err == nil {
		fmt.Fprintf(out, "page tree: %d pages\n", n)
	} else {
		fmt.Fprintf(out, "page tree: unreadable (%v)\n", err)
	}

	docID := filepath.Base(path)
	call := ocr.Pages(pdftext.New(logger), ocr.Document{ID: docID, Content: content, ContentType: "application/pdf"})
	ctx := context.Background()

	pr := ocr.NewPageProbe(ocr.ProbeConfig{MaxPages: maxPages, Stride: stride, Window: batchSize}, logger).Probe(ctx, docID, call)
	fmt.Fprintf(out, "probe: %d pages, reported=%t capped=%t calls=%d\n", pr.TotalPages, pr.Reported, pr.Capped, pr.Calls)
	if pr.ProviderErr != nil {
		fmt.Fprintf(out, "probe error: %v\n", pr.ProviderErr)
	}

	res := ocr.NewBatchExtractor(ocr.BatchConfig{BatchSize: batchSize, MaxPages: maxPages}, logger).
		Extract(ctx, docID, call, pr.TotalPages, pr.First)
	fmt.Fprintf(out, "extract: %s\n", res.Summary())
	for _, b := range res.Batches {
		fmt.Fprintf(out, "  batch %d-%d %s\n", b.PageRange.First, b.PageRange.Last, b.Status)
	}
	if showText, _ := cmd.Flags().GetBool("text"); showText {
		fmt.Fprintln(out, res.Text)
	}
	return nil
}
