package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/campuslink/notifier/internal/config"
	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/storage"
	"github.com/campuslink/notifier/internal/suppression"
)

const usage = `suppressctl manages the suppression list directly against the store.

Usage:
  suppressctl check <address>              report whether an address is suppressed
  suppressctl suppress <address> <reason>  add a suppression (reason: bounce|complaint)
  suppressctl remove <address>             operator override, clears the address
  suppressctl list                         print every suppression record

Configuration is read from CONFIG_PATH (default config/config.yaml) with
the same environment overrides as the server.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		fatal("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		fatal("initializing storage: %v", err)
	}
	svc := suppression.NewService(store, nil)

	switch os.Args[1] {
	case "check":
		requireArgs(3)
		blocked, err := svc.IsSuppressed(ctx, os.Args[2])
		if err != nil {
			fatal("check: %v", err)
		}
		if blocked {
			rec, _ := svc.Get(ctx, os.Args[2])
			fmt.Printf("%s is SUPPRESSED", os.Args[2])
			if rec != nil {
				fmt.Printf(" (reason=%s subtype=%s since=%s)",
					rec.Reason, rec.Subtype, rec.FirstSeenAt.Format(time.RFC3339))
			}
			fmt.Println()
			os.Exit(1)
		}
		fmt.Printf("%s is clear\n", os.Args[2])

	case "suppress":
		requireArgs(4)
		reason := domain.SuppressionReason(os.Args[3])
		if reason != domain.ReasonBounce && reason != domain.ReasonComplaint {
			fatal("reason must be bounce or complaint, got %q", os.Args[3])
		}
		subtype := domain.BounceSubtype("")
		if reason == domain.ReasonBounce {
			subtype = domain.SubtypePermanent
		}
		if err := svc.Suppress(ctx, os.Args[2], reason, subtype, "suppressctl", "operator"); err != nil {
			fatal("suppress: %v", err)
		}
		fmt.Printf("suppressed %s (%s)\n", os.Args[2], reason)

	case "remove":
		requireArgs(3)
		err := svc.Unsuppress(ctx, os.Args[2])
		if err == suppression.ErrNotFound {
			fatal("%s is not suppressed", os.Args[2])
		}
		if err != nil {
			fatal("remove: %v", err)
		}
		fmt.Printf("removed suppression for %s\n", os.Args[2])

	case "list":
		recs, err := svc.List(ctx)
		if err != nil {
			fatal("list: %v", err)
		}
		if len(recs) == 0 {
			fmt.Println("no suppressions")
			return
		}
		for _, rec := range recs {
			fmt.Printf("%-40s %-10s %-12s %s\n",
				rec.Email, rec.Reason, rec.Subtype, rec.FirstSeenAt.Format(time.RFC3339))
		}
		fmt.Printf("total: %d\n", len(recs))

	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "dynamodb":
		return storage.NewDynamoStore(ctx, cfg.Storage.DynamoDBTable, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	case "postgres":
		return storage.NewPostgresStore(cfg.Storage.DatabaseURL)
	default:
		return nil, fmt.Errorf("storage type %q is not usable from the CLI", cfg.Storage.Type)
	}
}

func requireArgs(n int) {
	if len(os.Args) < n {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
