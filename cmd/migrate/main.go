// Package main imports observations exported as JSON lines (one observation per
// line, e.g. a table dump) into the SQLite store.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"trafficflow/internal/model"
	"trafficflow/internal/repository/sqlite"
	"trafficflow/internal/service/classifier"
)

func main() {
	cliApp := &cli.App{
		Name:  "traffic-migrate",
		Usage: "import exported observations into the database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Required: true, Usage: "JSON lines `FILE` to import"},
			&cli.StringFlag{Name: "db", Value: "data/traffic.db", Usage: "database path"},
		},
		Action: func(c *cli.Context) error {
			return migrate(c.Context, c.String("in"), c.String("db"))
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func migrate(ctx context.Context, inPath, dbPath string) error {
	fmt.Printf("Importing observations from %s into %s\n", inPath, dbPath)

	file, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	observations, skipped, err := readObservations(file)
	if err != nil {
		return err
	}

	if len(observations) == 0 {
		fmt.Println("No observations found to import")
		return nil
	}

	db, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("Inserting %d observations (%d skipped)...\n", len(observations), skipped)
	if err := sqlite.NewObservationRepository(db).InsertBatch(ctx, observations); err != nil {
		return err
	}

	fmt.Printf("Imported %d observations\n", len(observations))
	return nil
}

// readObservations parses one observation per line. Lines without a key or with a
// negative count are skipped. Direction is always recomputed from the counts.
func readObservations(f *os.File) ([]model.TrafficObservation, int, error) {
	var observations []model.TrafficObservation
	skipped := 0

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var obs model.TrafficObservation
		if err := json.Unmarshal(scanner.Bytes(), &obs); err != nil || obs.Key == "" {
			log.Printf("Skipping line %d: not an observation", line)
			skipped++
			continue
		}
		if obs.Top < 0 || obs.Left < 0 || obs.Bottom < 0 || obs.Right < 0 {
			log.Printf("Skipping line %d: negative lane count in %s", line, obs.Key)
			skipped++
			continue
		}
		obs.Direction = classifier.Classify(obs.Counts())
		observations = append(observations, obs)
	}

	return observations, skipped, scanner.Err()
}
