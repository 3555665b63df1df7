package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/beaconmeet/relay-server-go/internal/database"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/repository"
	"github.com/beaconmeet/relay-server-go/internal/util"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/generate-api-key.go <name> <admin|tester> [rate-limit-per-minute]\n")
		os.Exit(1)
	}

	name := os.Args[1]
	class := model.KeyClass(os.Args[2])
	if class != model.KeyClassAdmin && class != model.KeyClassTester {
		fmt.Fprintf(os.Stderr, "Error: class must be admin or tester\n")
		os.Exit(1)
	}

	rateLimit := 60
	if len(os.Args) > 3 {
		n, err := strconv.Atoi(os.Args[3])
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid rate limit %q\n", os.Args[3])
			os.Exit(1)
		}
		rateLimit = n
	}

	key, err := util.GenerateAPIKey("bk_" + string(class))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	hash := util.HashToken(key)

	fmt.Printf("key:  %s\n", key)
	fmt.Printf("hash: %s\n\n", hash)

	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		created, err := insertKey(databaseURL, model.CreateAPIKeyParams{
			Name:            name,
			KeyHash:         hash,
			Class:           class,
			RateLimitPerMin: rateLimit,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("stored as %s\n", created.ID)
		return
	}

	fmt.Printf("DATABASE_URL not set; insert it yourself:\n")
	fmt.Printf("INSERT INTO api_keys (name, key_hash, class, rate_limit_per_minute, created_at)\n")
	fmt.Printf("VALUES ('%s', '%s', '%s', %d, '%s');\n",
		name, hash, class, rateLimit, time.Now().UTC().Format(time.RFC3339))
}

func insertKey(databaseURL string, params model.CreateAPIKeyParams) (*model.APIKey, error) {
	db, err := database.Connect(databaseURL, 10*time.Second)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}

	var created *model.APIKey
	err = db.WithTx(ctx, func(tx *sqlx.Tx) error {
		key, err := repository.NewAPIKeyRepository(db.DB).WithTx(tx).Create(ctx, params)
		created = key
		return err
	})
	return created, err
}
