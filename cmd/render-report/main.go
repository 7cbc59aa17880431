package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/praxisworks/patent-agents/internal/agents"
)

func main() {
	inputPath := flag.String("input", "", "Path to markdown report")
	htmlPath := flag.String("html", "", "Optional path to write rendered HTML")
	pdfPath := flag.String("pdf", "", "Optional path to write rendered PDF (requires chromium)")
	timeout := flag.Duration("timeout", 60*time.Second, "PDF rendering timeout")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing required -input")
	}
	if *htmlPath == "" && *pdfPath == "" {
		log.Fatal("nothing to do: pass -html and/or -pdf")
	}

	markdown, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var htmlBuf bytes.Buffer
	if err := md.Convert(markdown, &htmlBuf); err != nil {
		log.Fatalf("convert markdown: %v", err)
	}

	if *htmlPath != "" {
		if err := os.WriteFile(*htmlPath, htmlBuf.Bytes(), 0o644); err != nil {
			log.Fatalf("write html: %v", err)
		}
		log.Printf("wrote %s", *htmlPath)
	}

	if *pdfPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		renderer := agents.NewChromiumPDFRenderer()
		blob, err := renderer.Render(ctx, htmlBuf.String())
		if err != nil {
			log.Fatalf("render pdf: %v", err)
		}
		if err := os.WriteFile(*pdfPath, blob, 0o644); err != nil {
			log.Fatalf("write pdf: %v", err)
		}
		log.Printf("wrote %s (%d bytes)", *pdfPath, len(blob))
	}
}
