package detectctl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"detectd/pkg/types"
)

// Config carries the persistent CLI settings.
type Config struct {
	Server string
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// BuildRootCmd constructs the Cobra command tree for detectctl.
func BuildRootCmd() *cobra.Command {
	cfg := &Config{Server: envStr("DETECTD_SERVER", "http://127.0.0.1:8080")}
	root := &cobra.Command{
		Use:           "detectctl",
		Short:         "Control a running detectd instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Server, "server", cfg.Server, "detectd base URL (defaults DETECTD_SERVER)")

	client := func() *Client { return NewClient(cfg.Server) }

	statusCmd := &cobra.Command{Use: "status", Short: "Show detector states, memory ledger, and counters", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client().Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	}}

	detectorsCmd := &cobra.Command{Use: "detectors", Short: "List registered detectors", RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := client().Detectors(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, ds)
	}}

	var force bool
	loadCmd := &cobra.Command{Use: "load <id>...", Short: "Load one or more detectors", Args: cobra.MinimumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if err := client().Load(cmd.Context(), id, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %s\n", id)
		}
		return nil
	}}
	loadCmd.Flags().BoolVar(&force, "force", false, "Reload even if already loaded")

	unloadCmd := &cobra.Command{Use: "unload <id>...", Short: "Unload one or more detectors", Args: cobra.MinimumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if err := client().Unload(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unloaded %s\n", id)
		}
		return nil
	}}

	var detectors string
	var sequential bool
	var timeoutMs int
	analyzeCmd := &cobra.Command{
		Use:     "analyze <image-file>",
		Short:   "Run the detector ensemble over an image",
		Example: "  detectctl analyze photo.png --detectors freq-cnn-v2,patch-vit",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := analyzeRequestFromFile(args[0], detectors, sequential, timeoutMs)
			if err != nil {
				return err
			}
			agg, err := client().Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, agg)
		},
	}
	analyzeCmd.Flags().StringVar(&detectors, "detectors", "", "Comma-separated detector IDs (empty runs all)")
	analyzeCmd.Flags().BoolVar(&sequential, "sequential", false, "Run detectors one at a time")
	analyzeCmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "Per-detector budget in ms (0=server default)")

	cacheCmd := &cobra.Command{Use: "cache", Short: "Artifact cache administration", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("cache requires a subcommand: stats|clear")
	}}
	cacheStats := &cobra.Command{Use: "stats", Short: "Show cache contents and size", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client().CacheStats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	}}
	cacheClear := &cobra.Command{Use: "clear", Short: "Drop every cached artifact", RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().ClearCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
		return nil
	}}
	cacheCmd.AddCommand(cacheStats, cacheClear)

	root.AddCommand(statusCmd, detectorsCmd, loadCmd, unloadCmd, analyzeCmd, cacheCmd)
	return root
}

// analyzeRequestFromFile reads an image and builds the analyze payload.
func analyzeRequestFromFile(path, detectors string, sequential bool, timeoutMs int) (types.AnalyzeRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.AnalyzeRequest{}, err
	}
	req := types.AnalyzeRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(b),
		MIME:        mime.TypeByExtension(filepath.Ext(path)),
		TimeoutMs:   timeoutMs,
	}
	if detectors != "" {
		for _, id := range strings.Split(detectors, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.Detectors = append(req.Detectors, id)
			}
		}
	}
	if sequential {
		par := false
		req.Parallel = &par
	}
	return req, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the CLI with the given arguments.
func Execute(ctx context.Context, args []string) error {
	root := BuildRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
