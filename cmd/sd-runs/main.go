package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"voltalpha/internal/config"
	"voltalpha/internal/dashboard"
	"voltalpha/internal/store"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sd-runs <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version            Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  list [-symbol S] [-algorithm A] [-limit N]\n")
		fmt.Fprintf(os.Stderr, "                     List stored runs, newest first\n")
		fmt.Fprintf(os.Stderr, "  show <id> [-tx N]  Print a stored run's summary and ledger\n")
		fmt.Fprintf(os.Stderr, "  delete <id>        Delete a stored run\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("sd-runs %s\n", version)
		return
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer runs.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		symbol := fs.String("symbol", "", "only runs for this ticker")
		algorithm := fs.String("algorithm", "", "only runs of this algorithm id")
		limit := fs.Int("limit", 50, "maximum runs to list (0 for all)")
		fs.Parse(os.Args[2:])

		list, err := runs.ListRuns(ctx, store.RunFilter{Symbol: *symbol, Algorithm: *algorithm, Limit: *limit})
		if err != nil {
			log.Fatalf("listing runs: %v", err)
		}
		if len(list) == 0 {
			fmt.Println("no runs")
			return
		}
		if err := dashboard.RenderRuns(os.Stdout, list); err != nil {
			log.Fatalf("rendering runs: %v", err)
		}

	case "show":
		fs := flag.NewFlagSet("show", flag.ExitOnError)
		tx := fs.Int("tx", 20, "print the last N transactions (0 for all)")
		id := parseID(fs, os.Args[2:])

		run, err := runs.GetRun(ctx, id)
		if errors.Is(err, store.ErrRunNotFound) {
			log.Fatalf("run %d not found", id)
		}
		if err != nil {
			log.Fatalf("loading run: %v", err)
		}
		title := fmt.Sprintf("run %d: %s %s  %s..%s", run.ID, run.Symbol, run.Algorithm,
			run.Start.Format("2006-01-02"), run.End.Format("2006-01-02"))
		if err := dashboard.RenderSummary(os.Stdout, title, run.Summary); err != nil {
			log.Fatalf("rendering summary: %v", err)
		}
		if len(run.Transactions) > 0 {
			fmt.Println()
			if err := dashboard.RenderTransactions(os.Stdout, run.Transactions, *tx); err != nil {
				log.Fatalf("rendering transactions: %v", err)
			}
		}

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		id := parseID(fs, os.Args[2:])
		if err := runs.DeleteRun(ctx, id); err != nil {
			log.Fatalf("deleting run %d: %v", id, err)
		}
		fmt.Printf("deleted run %d\n", id)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

// parseID reads a run id given either before or after the subcommand's
// flags.
func parseID(fs *flag.FlagSet, args []string) int64 {
	if len(args) > 0 {
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			fs.Parse(args[1:])
			return id
		}
	}
	fs.Parse(args)
	if fs.NArg() < 1 {
		log.Fatal("missing run id")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		log.Fatalf("invalid run id %q", fs.Arg(0))
	}
	return id
}
