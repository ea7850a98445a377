package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/catalog"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/config"
	constant "github.com/LerianStudio/lib-bookshelf/bookshelf/constants"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/mongo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const pricePlaces = 2

type sessionOpener func(ctx context.Context, cfg *config.Config) (*session, error)

type cli struct {
	out     io.Writer
	envFile string
	open    sessionOpener
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out, open: openSession}

	return c.rootCommand()
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookshelf",
		Short:         "Query, report on and index a MongoDB books collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(c.availableCommand(), c.reportsCommand(), c.indexesCommand(), c.allCommand())

	return root
}

func (c *cli) availableCommand() *cobra.Command {
	var page, size int64

	cmd := &cobra.Command{
		Use:   "available",
		Short: "List in-stock books published after the threshold year, cheapest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), func(ctx context.Context, s *session) (any, error) {
				return findAvailable(ctx, s.catalog, catalog.Page{Number: page, Size: size})
			})
		},
	}

	cmd.Flags().Int64Var(&page, "page", constant.DefaultPage, "page number, starting at 1")
	cmd.Flags().Int64Var(&size, "size", constant.DefaultPageSize, "books per page")

	return cmd
}

func (c *cli) reportsCommand() *cobra.Command {
	var concurrent bool

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Average price by genre, top author and books per decade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), func(ctx context.Context, s *session) (any, error) {
				return reports(ctx, s.catalog, concurrent)
			})
		},
	}

	cmd.Flags().BoolVar(&concurrent, "concurrent", false, "run the three pipelines in parallel")

	return cmd
}

func (c *cli) indexesCommand() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Ensure the title and author/publishedYear indexes and explain a title lookup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), func(ctx context.Context, s *session) (any, error) {
				if !cmd.Flags().Changed("title") {
					return provision(ctx, s, nil)
				}

				return provision(ctx, s, &title)
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", constant.DefaultExplainTitle, "title used by the explained lookup")

	return cmd
}

func (c *cli) allCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run available, reports and indexes in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), func(ctx context.Context, s *session) (any, error) {
				available, err := findAvailable(ctx, s.catalog, catalog.DefaultPage())
				if err != nil {
					return nil, err
				}

				report, err := reports(ctx, s.catalog, false)
				if err != nil {
					return nil, err
				}

				diagnostic, err := provision(ctx, s, nil)
				if err != nil {
					return nil, err
				}

				return allOutput{Available: available, Reports: report, Indexes: diagnostic}, nil
			})
		},
	}
}

// run loads configuration, opens a session, runs fn and prints its result.
// The session is closed whatever fn returns.
func (c *cli) run(ctx context.Context, fn func(context.Context, *session) (any, error)) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(config.Options{DotEnvFiles: []string{c.envFile}})
	if err != nil {
		return err
	}

	s, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := s.close(context.WithoutCancel(ctx)); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close session: %w", closeErr))
		}
	}()

	result, err := fn(ctx, s)
	if err != nil {
		if s.logger != nil {
			s.logger.Log(ctx, log.LevelError, "command failed", log.Err(err))
		}

		return err
	}

	return writeJSON(c.out, result)
}

func findAvailable(ctx context.Context, cat *catalog.Catalog, page catalog.Page) ([]catalog.BookSummary, error) {
	results, err := cat.FindAvailable(ctx, page)
	if err != nil {
		return nil, err
	}

	return results.All(ctx)
}

type genreOutput struct {
	Genre        string          `json:"genre"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
}

type reportOutput struct {
	AveragePriceByGenre []genreOutput            `json:"averagePriceByGenre"`
	TopAuthor           *catalog.AuthorBookCount `json:"topAuthor"`
	BooksByDecade       []catalog.DecadeCount    `json:"booksByDecade"`
}

func reports(ctx context.Context, cat *catalog.Catalog, concurrent bool) (*reportOutput, error) {
	var opts []catalog.ReportOption
	if concurrent {
		opts = append(opts, catalog.WithConcurrentReports())
	}

	report, err := cat.Reports(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return newReportOutput(report), nil
}

func newReportOutput(report *catalog.Report) *reportOutput {
	genres := make([]genreOutput, 0, len(report.AveragePriceByGenre))
	for _, g := range report.AveragePriceByGenre {
		genres = append(genres, genreOutput{Genre: g.Genre, AveragePrice: g.RoundedAverage(pricePlaces)})
	}

	return &reportOutput{
		AveragePriceByGenre: genres,
		TopAuthor:           report.TopAuthor,
		BooksByDecade:       report.BooksByDecade,
	}
}

type indexesOutput struct {
	*catalog.Diagnostic
	Present []mongo.IndexInfo `json:"present"`
}

// provision ensures the indexes and explains title, or the configured title
// when nil.
func provision(ctx context.Context, s *session, title *string) (*indexesOutput, error) {
	var (
		diagnostic *catalog.Diagnostic
		err        error
	)

	if title == nil {
		diagnostic, err = s.catalog.ProvisionAndExplain(ctx)
	} else {
		diagnostic, err = provisionWithTitle(ctx, s.catalog, *title)
	}

	if err != nil {
		return nil, err
	}

	present, err := s.indexes.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	return &indexesOutput{Diagnostic: diagnostic, Present: present}, nil
}

func provisionWithTitle(ctx context.Context, cat *catalog.Catalog, title string) (*catalog.Diagnostic, error) {
	outcomes, err := cat.EnsureIndexes(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := cat.ExplainTitleLookup(ctx, title)
	if err != nil {
		return nil, err
	}

	return &catalog.Diagnostic{Indexes: outcomes, Explain: stats}, nil
}

type allOutput struct {
	Available []catalog.BookSummary `json:"available"`
	Reports   *reportOutput         `json:"reports"`
	Indexes   *indexesOutput        `json:"indexes"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
