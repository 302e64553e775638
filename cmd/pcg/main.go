package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/logging"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/metrics"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/pkg/engine"
)

var (
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pcg",
	Short: "CLI for the probabilistic contextual graph engine",
	Long:  `A command-line interface for ingesting conversations and asking context-aware questions against a probabilistic contextual graph.`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		file, _ := cmd.Flags().GetString("file")
		fechaStr, _ := cmd.Flags().GetString("fecha")

		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			body = string(data)
		}
		if body == "" {
			return fmt.Errorf("body is required (use --body or --file)")
		}

		fecha, err := parseFecha(fechaStr)
		if err != nil {
			return err
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := context.Background()
		res, err := e.IngestConversation(ctx, title, body, fecha, nil, nil)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		if res.Duplicate {
			fmt.Printf("Conversation already known: %s\n", res.ConversationID)
			return nil
		}
		fmt.Printf("Ingested conversation %s: %d fragments, %d nodes added, %d edges added\n",
			res.ConversationID, res.TotalFragments, res.NodesAdded, res.EdgesAdded)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against the graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]
		k, _ := cmd.Flags().GetInt("top-k")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := context.Background()
		res, err := e.Ask(ctx, question, k)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Intent: %s (confidence %.2f)\n", res.Plan.Intent, res.Plan.Confidence)
		if res.Plan.Window != nil {
			fmt.Printf("Window: %s .. %s\n", res.Plan.Window.Start.Format(time.RFC3339), res.Plan.Window.End.Format(time.RFC3339))
		}
		fmt.Printf("Filtered out: %d\n", res.FilteredOut)
		fmt.Printf("Query tree (%d nodes):\n", len(res.Tree.Nodes))
		for i, n := range res.Tree.Nodes {
			fmt.Printf("  %d. %s (w_eff=%.4f, w_struct=%.4f, r_temp=%.4f) %s\n", i+1, n.Title, n.WEff, n.WStruct, n.RTemp, n.ContextType)
		}
		return nil
	},
}

var propagateCmd = &cobra.Command{
	Use:   "propagate <question>",
	Short: "Ask a question and spread activation to neighboring context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]
		k, _ := cmd.Flags().GetInt("top-k")
		maxSteps, _ := cmd.Flags().GetInt("max-steps")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := context.Background()
		res, err := e.AskWithPropagation(ctx, question, k, maxSteps)
		if err != nil {
			return fmt.Errorf("propagate failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Direct contexts: %d\n", len(res.DirectContexts))
		fmt.Printf("Reinforced by propagation: %d\n", len(res.IndirectContexts))
		fmt.Printf("Discovered only via propagation: %d\n", len(res.OnlyViaPropagation))
		fmt.Printf("Total nodes reached: %d\n", res.TotalNodesReached)
		for _, id := range res.OnlyViaPropagation {
			fmt.Printf("  + %s (activation=%.4f, depth=%d, via=%s)\n", id, res.Activation[id], res.Depth[id], res.Source[id])
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display graph statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		stats := e.Stats()
		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Println("Graph statistics:")
		fmt.Printf("  Nodes:         %d\n", stats.NodeCount)
		fmt.Printf("  Edges:         %d\n", stats.EdgeCount)
		fmt.Printf("  Conversations: %d\n", stats.ConversationCount)
		return nil
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute every edge in the graph from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := context.Background()
		fmt.Println("Recomputing edges...")
		err = e.RecomputeAll(ctx, func(done, total int) {
			if verbose {
				fmt.Printf("\r%d/%d", done, total)
			}
		})
		if verbose {
			fmt.Println()
		}
		if err != nil {
			return fmt.Errorf("recompute failed: %w", err)
		}
		stats := e.Stats()
		fmt.Printf("Recompute complete: %d nodes, %d edges\n", stats.NodeCount, stats.EdgeCount)
		return nil
	},
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "View or update process-wide parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		p := e.Params()
		changed := false
		if cmd.Flags().Changed("tau-sim") {
			v, _ := cmd.Flags().GetFloat64("tau-sim")
			p.TauSim = v
			changed = true
		}
		if cmd.Flags().Changed("k") {
			v, _ := cmd.Flags().GetInt("k")
			p.K = v
			changed = true
		}
		if cmd.Flags().Changed("alpha-temp") {
			v, _ := cmd.Flags().GetFloat64("alpha-temp")
			p.AlphaTemp = v
			changed = true
		}
		if cmd.Flags().Changed("lambda-decay") {
			v, _ := cmd.Flags().GetFloat64("lambda-decay")
			p.LambdaDecay = v
			changed = true
		}
		if cmd.Flags().Changed("tau-act") {
			v, _ := cmd.Flags().GetFloat64("tau-act")
			p.TauAct = v
			changed = true
		}
		if cmd.Flags().Changed("exclude-temporal-edges") {
			v, _ := cmd.Flags().GetBool("exclude-temporal-edges")
			p.ExcludeTemporalEdges = v
			changed = true
		}

		if changed {
			if err := e.Configure(context.Background(), p); err != nil {
				return fmt.Errorf("configure failed: %w", err)
			}
			p = e.Params()
			fmt.Println("Parameters updated.")
		}

		data, _ := json.MarshalIndent(p, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

func parseFecha(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid --fecha (expected RFC3339): %w", err)
	}
	return &t, nil
}

func openEngine() (*engine.Engine, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory not specified")
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	cfg := engine.DefaultConfig(dataDir)
	cfg.Logger = logging.NewStdLogger(level)
	cfg.Metrics = metrics.Noop()

	return engine.Open(context.Background(), cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "pcgdata", "Data directory (graph snapshot, vector index, conversation table)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	ingestCmd.Flags().String("title", "", "Conversation title")
	ingestCmd.Flags().String("body", "", "Conversation body text")
	ingestCmd.Flags().String("file", "", "Read body text from a file instead of --body")
	ingestCmd.Flags().String("fecha", "", "Conversation timestamp, RFC3339 (omit for an atemporal/knowledge fragment)")
	ingestCmd.Flags().Bool("json", false, "Output as JSON")

	queryCmd.Flags().Int("top-k", 5, "Number of candidates to select")
	queryCmd.Flags().Bool("json", false, "Output as JSON")

	propagateCmd.Flags().Int("top-k", 5, "Number of seed candidates")
	propagateCmd.Flags().Int("max-steps", 2, "Propagation steps (capped at 3)")
	propagateCmd.Flags().Bool("json", false, "Output as JSON")

	statsCmd.Flags().Bool("json", false, "Output as JSON")

	configureCmd.Flags().Float64("tau-sim", model.DefaultParameters().TauSim, "Edge creation threshold (0.1-0.9); changing it triggers a full recompute")
	configureCmd.Flags().Int("k", model.DefaultParameters().K, "Default candidate count (3-15)")
	configureCmd.Flags().Float64("alpha-temp", model.DefaultParameters().AlphaTemp, "Temporal reinforcement factor base (0.5-3.0)")
	configureCmd.Flags().Float64("lambda-decay", model.DefaultParameters().LambdaDecay, "Propagation per-step decay (0.1-1.0)")
	configureCmd.Flags().Float64("tau-act", model.DefaultParameters().TauAct, "Propagation activation floor (0.01-0.5)")
	configureCmd.Flags().Bool("exclude-temporal-edges", model.DefaultParameters().ExcludeTemporalEdges, "Exclude purely temporal edges from propagation")

	rootCmd.AddCommand(ingestCmd, queryCmd, propagateCmd, statsCmd, recomputeCmd, configureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
