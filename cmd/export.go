package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/urfave/cli/v3"

	"github.com/ocsearch/ocsearch/pkg/config"
	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/exportcache"
	"github.com/ocsearch/ocsearch/pkg/plugins"
	"github.com/ocsearch/ocsearch/pkg/search"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

// ExportCommand creates the export command
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Build (or reuse) the export artifact for a query",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "type",
				Usage:    "Search type id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "lang",
				Usage: "Language (en or fr)",
				Value: "en",
			},
			&cli.StringFlag{
				Name:  "query",
				Usage: "URL query string, e.g. 'search_text=roads&page=2'",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runExport(ctx, c.String("config"), c.String("type"), c.String("lang"), c.String("query"))
		},
	}
}

func runExport(ctx context.Context, configPath, searchType, langCode, rawQuery string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lang, ok := definitions.ParseLanguage(langCode)
	if !ok {
		return fmt.Errorf("unknown language %q", langCode)
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("parsing query string: %w", err)
	}

	store, err := definitions.OpenStore(cfg.DefinitionsDB)
	if err != nil {
		return fmt.Errorf("opening definitions store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close definitions store: %v\n", err)
		}
	}()

	provider, err := definitions.NewProvider(ctx, store)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}

	engine := solr.NewClient(cfg.SolrURL, cfg.SolrTimeout.Duration)

	exports, err := exportcache.New(exportcache.Config{
		Dir:       cfg.Export.CacheDir,
		BaseURL:   cfg.Export.CacheURL,
		Freshness: cfg.Export.Freshness.Duration,
		MaxRows:   cfg.Export.MaxRows,
		Compress:  cfg.Export.Compress,
	})
	if err != nil {
		return fmt.Errorf("creating export cache: %w", err)
	}

	service := search.New(provider, engine, plugins.GlobalRegistry(), exports)

	result, err := service.Export(ctx, searchType, lang, values)
	if err != nil {
		if errors.Is(err, exportcache.ErrNoResults) {
			fmt.Println("No results, nothing exported")
			return nil
		}
		return err
	}

	fmt.Println(result.Path)
	return nil
}
