package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"formulary/internal/config"
	"formulary/internal/ingest"
	"formulary/internal/repository"
	"formulary/internal/service"
	"formulary/internal/utils"

	"github.com/urfave/cli/v2"
)

var Version = "dev"

func main() {
	app := newCLIApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	return &cli.App{
		Name:    "formctl",
		Usage:   "Formulary data administration",
		Version: Version,
		Commands: []*cli.Command{
			schemaCmd(),
			ingestCmd(),
			reindexCmd(),
			parseCmd(),
		},
	}
}

// schemaCmd creates the drugs and query_logs tables plus indexes.
func schemaCmd() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Create the formulary tables and indexes (idempotent)",
		Action: func(c *cli.Context) error {
			repo, _, err := openRepo()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer repo.Close()

			if err := repo.CreateSchema(context.Background()); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			log.Println("✅ Schema created")
			return nil
		},
	}
}

// ingestCmd loads the formulary CSVs and upserts the merged rows.
func ingestCmd() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load the preferred drugs list and PA/MND list CSVs into the database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "preferred-csv", Value: "data/preferred_drugs_list.csv", Usage: "Path to the preferred medical drugs list CSV"},
			&cli.StringFlag{Name: "pa-mnd-csv", Value: "data/pa_mnd_list.csv", Usage: "Path to the PA/MND medicine list CSV"},
		},
		Action: func(c *cli.Context) error {
			preferredPath := c.String("preferred-csv")
			paPath := c.String("pa-mnd-csv")

			log.Printf("Loading preferred drugs list from %s...", preferredPath)
			preferred, err := ingest.LoadPreferredCSV(preferredPath)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Printf("   Loaded %d rows", len(preferred))

			log.Printf("Loading PA/MND list from %s...", paPath)
			paNames, err := ingest.LoadPANamesCSV(paPath)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Printf("   Loaded %d PA/MND entries", len(paNames))

			merged := ingest.Merge(preferred, paNames)
			log.Printf("Merged into %d rows", len(merged))

			repo, _, err := openRepo()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer repo.Close()

			applied, errors := repo.UpsertRows(context.Background(), merged)
			for _, e := range errors {
				log.Printf("Warning: %s", e)
			}
			if applied == 0 && len(errors) > 0 {
				return cli.Exit("ingest failed", 1)
			}

			log.Printf("✅ Ingest complete: %d rows applied", applied)
			return nil
		},
	}
}

// reindexCmd rebuilds the Meilisearch name index from the database.
func reindexCmd() *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Rebuild the autocomplete name index from the database",
		Action: func(c *cli.Context) error {
			repo, cfg, err := openRepo()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer repo.Close()

			if !cfg.Meili.Enabled {
				return cli.Exit("MEILI_URL is not configured", 1)
			}

			names, err := repo.ListDrugNames(context.Background())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			nameIndex := repository.NewNameIndex(cfg.Meili.URL, cfg.Meili.APIKey, cfg.Meili.IndexName)
			indexed, err := nameIndex.Rebuild(names)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			log.Printf("✅ Indexed %d drug names", indexed)
			return nil
		},
	}
}

// parseCmd runs the rule-based query understanding offline, printing the
// intent as JSON. Useful for checking how a query will classify without a
// database or model.
func parseCmd() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Classify a query and print the rule-based intent",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("query text is required", 1)
			}

			query := c.Args().First()
			intent := service.Classify(query)

			out, err := utils.PrettyPrintJSON(intent)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Println(out)
			return nil
		},
	}
}

// openRepo loads configuration and connects to the database.
func openRepo() (*repository.PostgresRepository, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		return nil, nil, err
	}
	return repo, cfg, nil
}
