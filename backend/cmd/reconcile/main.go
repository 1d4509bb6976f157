package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"currents/backend/pkg/config"
	"currents/backend/pkg/logger"
)

// The reconcile binary audits the graph for debris the serving path never
// produces on its own but operators still meet after restores and manual
// edits: comments without a parent post, posts without an author edge, and
// comments nobody wrote. With -repair it deletes what it found; without it,
// it only reports.

type check struct {
	name   string
	count  string
	repair string
}

var checks = []check{
	{
		name: "orphaned comments",
		count: `
			MATCH (c:Comment)
			WHERE NOT (:Post)-[:HAS_COMMENT]->(c)
			RETURN count(c) as n
		`,
		repair: `
			MATCH (c:Comment)
			WHERE NOT (:Post)-[:HAS_COMMENT]->(c)
			DETACH DELETE c
		`,
	},
	{
		name: "posts without author",
		count: `
			MATCH (p:Post)
			WHERE NOT (:Account)-[:POSTED]->(p)
			RETURN count(p) as n
		`,
		repair: `
			MATCH (p:Post)
			WHERE NOT (:Account)-[:POSTED]->(p)
			OPTIONAL MATCH (p)-[:HAS_COMMENT]->(c:Comment)
			DETACH DELETE c, p
		`,
	},
	{
		name: "comments without author",
		count: `
			MATCH (c:Comment)
			WHERE NOT (:Account)-[:WROTE]->(c)
			RETURN count(c) as n
		`,
		repair: `
			MATCH (c:Comment)
			WHERE NOT (:Account)-[:WROTE]->(c)
			DETACH DELETE c
		`,
	},
}

func main() {
	repair := flag.Bool("repair", false, "Delete what the audit finds instead of only reporting")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph audit...", zap.Bool("repair", *repair))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	counts := make([]int64, len(checks))

	// The audit reads are independent; run them concurrently.
	g, auditCtx := errgroup.WithContext(ctx)
	for i, chk := range checks {
		i, chk := i, chk
		g.Go(func() error {
			n, err := runCount(auditCtx, driver, chk.count)
			if err != nil {
				return fmt.Errorf("%s: %w", chk.name, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal("Audit failed", zap.Error(err))
	}

	dirty := false
	for i, chk := range checks {
		log.Info("Audit result",
			zap.String("check", chk.name),
			zap.Int64("count", counts[i]),
		)
		if counts[i] > 0 {
			dirty = true
		}
	}

	if !dirty {
		log.Info("Graph is clean")
		return
	}

	if !*repair {
		log.Warn("Graph has debris, re-run with -repair to delete it")
		os.Exit(1)
	}

	// Repairs run sequentially; each delete can change what the next sees.
	for i, chk := range checks {
		if counts[i] == 0 {
			continue
		}
		if err := runRepair(ctx, driver, chk.repair); err != nil {
			log.Fatal("Repair failed", zap.String("check", chk.name), zap.Error(err))
		}
		log.Info("Repaired", zap.String("check", chk.name), zap.Int64("deleted", counts[i]))
	}

	log.Info("Audit complete")
}

func runCount(ctx context.Context, driver neo4j.DriverWithContext, cypher string) (int64, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := record.Get("n")
	count, ok := n.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", n)
	}
	return count, nil
}

func runRepair(ctx context.Context, driver neo4j.DriverWithContext, cypher string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, cypher, nil)
	return err
}
