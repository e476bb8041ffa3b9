package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/kafka"
)

var importModes = map[string]string{
	"append":    ingestion.OpInsert,
	"unique":    ingestion.OpUnique,
	"overwrite": ingestion.OpOverwrite,
}

func importOp(mode string) (string, error) {
	op, ok := importModes[mode]
	if !ok {
		return "", fmt.Errorf("unknown mode %q (want append, unique or overwrite)", mode)
	}
	return op, nil
}

func newImportCmd() *cobra.Command {
	var mode, origin string
	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import translation units into the local data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := importOp(mode)
			if err != nil {
				return err
			}
			if origin == "" {
				origin = filepath.Base(args[0])
			}
			table, err := localeTable()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			engine, err := openEngine()
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			readErr := ingestion.ReadUnits(f, func(line int, u ingestion.UnitPayload) error {
				ev := ingestion.NewImportEvent(op, &u, 0, origin)
				r := consumer.Apply(engine, table, &ev)
				counts[r.Status]++
				if r.Status != ingestion.StatusApplied {
					fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %s: %s\n", line, r.Status, r.Error)
				}
				return nil
			})
			closeErr := engine.Close()
			if readErr != nil {
				return readErr
			}
			if closeErr != nil {
				return closeErr
			}
			renderCounts(cmd.OutOrStdout(), counts)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "append", "append, unique or overwrite")
	cmd.Flags().StringVar(&origin, "origin", "", "origin recorded in unit metadata (default: file name)")
	return cmd
}

func newPublishCmd() *cobra.Command {
	var mode, origin string
	var batch int
	cmd := &cobra.Command{
		Use:   "publish <file.jsonl>",
		Short: "Publish translation units to the Kafka import topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := importOp(mode)
			if err != nil {
				return err
			}
			if origin == "" {
				origin = filepath.Base(args[0])
			}
			table, err := localeTable()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.UnitImport)
			defer producer.Close()
			pub := publisher.New(producer, table, batch)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			err = ingestion.ReadUnits(f, func(_ int, u ingestion.UnitPayload) error {
				return pub.Add(ctx, ingestion.NewImportEvent(op, &u, 0, origin))
			})
			if err != nil {
				return err
			}
			if err := pub.Flush(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d events to %s\n", pub.Published(), cfg.Kafka.Topics.UnitImport)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "append", "append, unique or overwrite")
	cmd.Flags().StringVar(&origin, "origin", "", "event origin and partition key (default: file name)")
	cmd.Flags().IntVar(&batch, "batch", 500, "events per Kafka write")
	return cmd
}
