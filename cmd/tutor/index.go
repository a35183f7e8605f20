package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/retrieval"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/tutor"
)

// IndexCmd embeds and stores a corpus file into the vector store. The corpus
// is a JSON array of documents:
//
//	[{"id": "q1", "content": "...", "category": "question",
//	  "question_id": "q1", "knowledge_nodes": ["linear_eq"]}]
type IndexCmd struct {
	Corpus string `arg:"" help:"Corpus JSON file." type:"path"`

	Concurrency int `help:"Parallel embedding workers." default:"4"`
}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(c.Corpus)
	if err != nil {
		return fmt.Errorf("failed to read corpus file: %w", err)
	}

	var docs []retrieval.Document
	if err := json.Unmarshal(content, &docs); err != nil {
		return fmt.Errorf("failed to parse corpus file: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("corpus file contains no documents")
	}

	svc, err := tutor.New(ctx, cfg, tutor.WithoutLoggerInit())
	if err != nil {
		return err
	}
	defer svc.Close()

	started := time.Now()
	if err := svc.IndexCorpus(ctx, docs, c.Concurrency); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Indexed %d documents in %s\n", len(docs), time.Since(started).Round(time.Millisecond))
	return nil
}
