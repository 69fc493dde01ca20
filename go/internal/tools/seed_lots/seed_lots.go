package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/auction/rpc"
	"github.com/mcdev12/fantasta/go/internal/models"
)

// Lot mirrors the JSON asset
type Lot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Group     string `json:"group"`
	BaseValue int    `json:"base_value"`
}

func main() {
	path := flag.String("file", "go/internal/assets/lots.json", "JSON list of lots")
	flag.Parse()
	_ = godotenv.Load()

	// 1) Load the JSON list
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var lots []Lot
	if err := json.Unmarshal(data, &lots); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Talk to the authority
	authority := os.Getenv("AUTHORITY_URL")
	if authority == "" {
		authority = "http://localhost:8080"
	}
	client := rpc.NewClient(&http.Client{Timeout: 10 * time.Second}, authority)

	// 3) Add and count
	var (
		total    = len(lots)
		inserted int
		skipped  int
		errs     int
	)

	for _, l := range lots {
		lot, err := engine.ValidateLot(models.Lot{
			ID:        l.ID,
			Name:      l.Name,
			Category:  models.Category(l.Category),
			Group:     l.Group,
			BaseValue: l.BaseValue,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping lot %q: %v\n", l.Name, err)
			skipped++
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err = client.Forward(ctx, coordinator.Command{Type: coordinator.CmdAddLot, Lot: &lot})
		cancel()
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, engine.ErrInvalidLot), engine.IsRejection(err):
			fmt.Fprintf(os.Stderr, "authority rejected lot %q: %v\n", l.Name, err)
			skipped++
		default:
			fmt.Fprintf(os.Stderr, "error adding lot %q: %v\n", l.Name, err)
			errs++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Lots seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
