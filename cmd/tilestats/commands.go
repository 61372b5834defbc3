package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/tilestats/internal/core/config"
	"github.com/mohammed-shakir/tilestats/internal/logger"
	"github.com/mohammed-shakir/tilestats/internal/worker"
)

const datasetKey = "cli"

type callFile struct {
	Method worker.Method `json:"method"`
	Params any           `json:"params"`
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:   "tilestats",
		Short: "Run widget calls against a dataset of loaded tiles",
		Long: `tilestats loads a dataset description (tiles plus options) from a YAML or
JSON file and answers one widget call against it, printing the protocol
response as JSON.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(newCallCmd(&logLevel), newExtractCmd(&logLevel))
	return root
}

func newCallCmd(logLevel *string) *cobra.Command {
	var datasetPath, requestPath, method, params string
	cmd := &cobra.Command{
		Use:     "call",
		Aliases: []string{"aggregate"},
		Short:   "Answer one method call",
		Example: `  # method and params from a file
  tilestats call --dataset points.yaml --request sum.yaml

  # inline
  tilestats call --dataset points.yaml --method formula --params '{"column":"pop","operation":"sum"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req callFile
			switch {
			case requestPath != "":
				if err := readDocument(requestPath, &req); err != nil {
					return fmt.Errorf("read request: %w", err)
				}
			case method != "":
				req.Method = worker.Method(method)
				if params != "" {
					req.Params = json.RawMessage(params)
				}
			default:
				return errors.New("either --request or --method is required")
			}
			return runCall(cmd, *logLevel, datasetPath, req)
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset file (.yaml, .yml or .json)")
	cmd.Flags().StringVar(&requestPath, "request", "", "request file holding method and params")
	cmd.Flags().StringVar(&method, "method", "", "method name")
	cmd.Flags().StringVar(&params, "params", "", "method params as JSON")
	_ = cmd.MarkFlagRequired("dataset")
	cmd.MarkFlagsMutuallyExclusive("request", "method")
	return cmd
}

func newExtractCmd(logLevel *string) *cobra.Command {
	var datasetPath, filterPath string
	var columns []string
	var limit int
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the records matching a spatial filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := map[string]any{}
			if filterPath != "" {
				var f any
				if err := readDocument(filterPath, &f); err != nil {
					return fmt.Errorf("read filter: %w", err)
				}
				p["spatialFilter"] = f
			}
			if len(columns) > 0 {
				p["columns"] = columns
			}
			if limit > 0 {
				p["limit"] = limit
			}
			return runCall(cmd, *logLevel, datasetPath, callFile{Method: worker.MethodExtract, Params: p})
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset file (.yaml, .yml or .json)")
	cmd.Flags().StringVar(&filterPath, "filter", "", "GeoJSON polygon or multipolygon file")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to keep")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func runCall(cmd *cobra.Command, logLevel, datasetPath string, req callFile) error {
	var spec worker.DatasetSpec
	if err := readDocument(datasetPath, &spec); err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}

	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{Level: logLevel, Component: "cli"}, cmd.ErrOrStderr())
	log := logger.NewSlog(&zl)

	d := worker.NewDispatcher(worker.NewRegistry(),
		worker.WithLogger(log),
		worker.WithParallelism(cfg.ExtractParallelism),
		worker.WithUniqueIDProperty(cfg.UniqueIDProperty),
		worker.WithViewDefaults(cfg.TileSize, cfg.AggregationResLevel),
	)
	ex := worker.NewExecutor(d, false)
	defer ex.Close()

	ctx := cmd.Context()
	ir, err := ex.Init(ctx, datasetKey, spec)
	if err != nil {
		return err
	}
	if !ir.OK {
		return fmt.Errorf("init dataset: %s", ir.Error)
	}

	resp, err := ex.Call(ctx, datasetKey, req.Method, req.Params)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if !resp.OK {
		log.Debug("call failed", "method", string(req.Method), "err", resp.Error)
		return errors.New(resp.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readDocument decodes a YAML or JSON file into v. YAML is converted to
// JSON first so that v's JSON tags and unmarshalers apply.
func readDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, ".json") {
		return json.Unmarshal(data, v)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}
	return json.Unmarshal(raw, v)
}
