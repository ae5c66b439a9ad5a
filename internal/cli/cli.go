// Package cli implements jobctl, the operator command line for the job store.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/jobstore/internal/config"
	"github.com/timmy/jobstore/internal/storage"
)

type options struct {
	server  string
	timeout time.Duration
	config  string
}

// BuildCLI returns the jobctl root command.
func BuildCLI() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "jobctl",
		Short:        "Operate a job store",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("JOBSTORE_URL", "http://localhost:8080"), "job store base URL")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().StringVarP(&opts.config, "config", "c", "", "config file, used by upload")

	rootCmd.AddCommand(
		buildCreateCommand(opts),
		buildGetCommand(opts),
		buildListCommand(opts),
		buildItemsCommand(opts),
		buildSubmitCommand(opts),
		buildRedispatchCommand(opts),
		buildRerunCommand(opts),
		buildPurgeCommand(opts),
		buildUploadCommand(opts),
	)
	return rootCmd
}

func (o *options) client() *Client {
	return NewClient(o.server, o.timeout)
}

func buildCreateCommand(opts *options) *cobra.Command {
	var specFile string
	var empty bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job from a JSON job specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readJSON(specFile)
			if err != nil {
				return err
			}
			body, err := opts.client().CreateJob(cmd.Context(), spec, empty)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringVarP(&specFile, "spec", "f", "", "job specification file, - for stdin")
	cmd.Flags().BoolVar(&empty, "empty", false, "create a periodic job without data")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func buildGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get JOB_ID",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, err := opts.client().GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func buildListCommand(opts *options) *cobra.Command {
	var (
		types     []string
		submitter int64
		dataFile  string
		completed string
		fatal     string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			for _, t := range types {
				query.Add("type", t)
			}
			if submitter > 0 {
				query.Set("submitter", strconv.FormatInt(submitter, 10))
			}
			if dataFile != "" {
				query.Set("datafile", dataFile)
			}
			if completed != "" {
				query.Set("completed", completed)
			}
			if fatal != "" {
				query.Set("fatal", fatal)
			}
			query.Set("limit", strconv.Itoa(limit))
			query.Set("offset", strconv.Itoa(offset))

			body, err := opts.client().ListJobs(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "job types to include")
	cmd.Flags().Int64Var(&submitter, "submitter", 0, "submitter number")
	cmd.Flags().StringVar(&dataFile, "datafile", "", "data file URN")
	cmd.Flags().StringVar(&completed, "completed", "", "true or false")
	cmd.Flags().StringVar(&fatal, "fatal", "", "true or false")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func buildItemsCommand(opts *options) *cobra.Command {
	var chunkType string

	cmd := &cobra.Command{
		Use:   "items JOB_ID CHUNK_ID",
		Short: "Show the items of a chunk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			chunkID, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid chunk id %q", args[1])
			}
			body, err := opts.client().Items(cmd.Context(), id, chunkID, chunkType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringVarP(&chunkType, "type", "t", "PARTITIONED", "PARTITIONED, PROCESSED or DELIVERED")
	return cmd
}

func buildSubmitCommand(opts *options) *cobra.Command {
	var chunkFile string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a processed or delivered chunk",
		RunE: func(cmd *cobra.Command, args []string) error {
			chunk, err := readJSON(chunkFile)
			if err != nil {
				return err
			}
			body, err := opts.client().SubmitChunk(cmd.Context(), chunk)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringVarP(&chunkFile, "chunk", "f", "", "chunk file, - for stdin")
	_ = cmd.MarkFlagRequired("chunk")
	return cmd
}

func buildRedispatchCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "redispatch JOB_ID",
		Short: "Republish the unfinished chunks of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, err := opts.client().Redispatch(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func buildRerunCommand(opts *options) *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "rerun JOB_ID",
		Short: "Create a new job from an earlier job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, err := opts.client().Rerun(cmd.Context(), id, failedOnly)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "rerun only the items that failed")
	return cmd
}

func buildPurgeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Run a retention sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.client().Purge(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

// buildUploadCommand stores a local file in the data file store and prints its URN.
func buildUploadCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a data file and print its URN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.config)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			objectStorage, err := storage.NewStorage(&cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			urn, err := storage.NewDataFiles(objectStorage, cfg.Storage.Prefix).Put(cmd.Context(), f, info.Size())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), urn)
			return err
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func readJSON(path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: not valid JSON", path)
	}
	return data, nil
}

func printJSON(w io.Writer, body json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		_, err = w.Write(body)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Execute runs jobctl until ctx is done.
func Execute(ctx context.Context) error {
	return BuildCLI().ExecuteContext(ctx)
}
