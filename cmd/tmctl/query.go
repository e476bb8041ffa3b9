package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/connector"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

type queryFlags struct {
	sourceLocale string
	targetLocale string
	threshold    int
	maxHits      int
	remotes      []string
	noLocal      bool
	markup       bool
}

func (q *queryFlags) register(cmd *cobra.Command, remoteHelp string) {
	f := cmd.Flags()
	f.StringVarP(&q.sourceLocale, "source", "s", "", "source locale")
	f.StringVarP(&q.targetLocale, "target", "t", "", "target locale")
	f.IntVar(&q.threshold, "threshold", -1, "minimum score 0-100 (default from config)")
	f.IntVarP(&q.maxHits, "max-hits", "n", 0, "maximum hits, 0 for the configured default")
	f.StringSliceVarP(&q.remotes, "remote", "r", nil, remoteHelp)
}

func (q *queryFlags) settings() (threshold, maxHits int) {
	threshold = q.threshold
	if threshold < 0 {
		threshold = cfg.Matching.DefaultThreshold
	}
	maxHits = q.maxHits
	if maxHits == 0 {
		maxHits = cfg.Matching.MaxHits
	}
	return threshold, maxHits
}

func newQueryCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Fuzzy-match text against the local index and any remote servers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := connector.NewManager(connector.WithManagerThreshold(cfg.Matching.DefaultThreshold))
			if !q.noLocal {
				engine, err := openEngine()
				if err != nil {
					return err
				}
				defer engine.Close()
				table, err := localeTable()
				if err != nil {
					return err
				}
				sc := scorer.New(cfg.Matching.OrderPenaltyFloor, cfg.Matching.CodeMismatchPenalty)
				local := connector.NewSession(engine,
					connector.WithScorer(sc),
					connector.WithLocales(table),
					connector.WithName("local"),
					connector.WithThreshold(cfg.Matching.DefaultThreshold))
				if err := m.AddResource("local", local); err != nil {
					return err
				}
			}
			for _, addr := range q.remotes {
				remote := connector.NewRemoteSession(addr,
					connector.WithTimeout(cfg.RPC.Timeout),
					connector.WithRemoteName(addr),
					connector.WithRemoteThreshold(cfg.Matching.DefaultThreshold))
				if err := m.AddResource(addr, remote); err != nil {
					return err
				}
			}
			if len(m.Resources()) == 0 {
				return errors.New("nothing to query: --no-local needs at least one --remote")
			}
			return runQuery(cmd, m, q, func() (int, error) {
				if q.markup {
					return m.Query(fragment.Parse(args[0]))
				}
				return m.QueryText(args[0])
			})
		},
	}
	q.register(cmd, "tmserver RPC address to query as well (repeatable)")
	cmd.Flags().BoolVar(&q.noLocal, "no-local", false, "skip the local data directory")
	cmd.Flags().BoolVar(&q.markup, "markup", false, "parse inline codes such as <b1/> in the query")
	return cmd
}

func newConcordanceCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "concordance <text>",
		Short: "Find units whose source contains text as a phrase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch len(q.remotes) {
			case 0:
				engine, err := openEngine()
				if err != nil {
					return err
				}
				defer engine.Close()
				table, err := localeTable()
				if err != nil {
					return err
				}
				s := connector.NewSession(engine,
					connector.WithLocales(table),
					connector.WithName("local"),
					connector.WithThreshold(cfg.Matching.DefaultThreshold))
				return runQuery(cmd, s, q, func() (int, error) { return s.QueryConcordance(args[0]) })
			case 1:
				r := connector.NewRemoteSession(q.remotes[0],
					connector.WithTimeout(cfg.RPC.Timeout),
					connector.WithMode(proto.ModeConcordance),
					connector.WithRemoteName(q.remotes[0]),
					connector.WithRemoteThreshold(cfg.Matching.DefaultThreshold))
				return runQuery(cmd, r, q, func() (int, error) { return r.QueryText(args[0]) })
			default:
				return errors.New("concordance accepts at most one --remote")
			}
		},
	}
	q.register(cmd, "tmserver RPC address to search instead of the local data directory")
	return cmd
}

// runQuery opens tm, applies the flags, runs query and prints the hits.
func runQuery(cmd *cobra.Command, tm connector.TmQuery, q queryFlags, query func() (int, error)) error {
	if err := tm.Open(q.sourceLocale, q.targetLocale); err != nil {
		return err
	}
	defer tm.Close()
	threshold, maxHits := q.settings()
	if q.threshold >= 0 {
		if err := tm.SetThreshold(threshold); err != nil {
			return err
		}
	}
	if err := tm.SetMaximumHits(maxHits); err != nil {
		return err
	}
	n, err := query()
	if err != nil {
		return err
	}
	hits := make([]connector.QueryResult, 0, n)
	for tm.HasNext() {
		h, err := tm.Next()
		if err != nil {
			return err
		}
		hits = append(hits, h)
	}
	if len(hits) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no matches at or above %d%%\n", threshold)
		return nil
	}
	renderHits(cmd.OutOrStdout(), hits)
	return nil
}
