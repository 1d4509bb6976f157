package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"currents/backend/internal/graph"
	"currents/backend/internal/posts"
	"currents/backend/pkg/config"
	"currents/backend/pkg/logger"
)

// Seeds a handful of demo accounts, a small follow graph and a few posts so
// the feeds have something to show in development.

type seedAccount struct {
	id, handle, name string
	follows          []string
}

var demoAccounts = []seedAccount{
	{id: "alice", handle: "alice", name: "Alice Moreau", follows: []string{"bo", "carol"}},
	{id: "bo", handle: "bo_k", name: "Bo Karlsen", follows: []string{"alice"}},
	{id: "carol", handle: "carol", name: "Carol Ibe", follows: []string{"alice", "bo"}},
	{id: "dev", handle: "dev", name: "Devi Natarajan", follows: nil},
}

var demoPosts = []struct {
	author, content string
}{
	{"alice", "First post on the new network"},
	{"bo", "Hello from the fjords"},
	{"carol", "Anyone else testing the feeds?"},
	{"alice", "Second one, checking pagination"},
}

func main() {
	wipe := flag.Bool("wipe", false, "Delete all demo data before seeding")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	graphRepo := graph.NewRepository(driver)
	postRepo := posts.NewRepository(driver, nil)

	if err := graphRepo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to create account constraints", zap.Error(err))
	}
	if err := postRepo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to create post constraints", zap.Error(err))
	}

	if *wipe {
		log.Info("Wiping demo data...")
		if err := wipeDemoData(ctx, driver); err != nil {
			log.Fatal("Failed to wipe demo data", zap.Error(err))
		}
	}

	log.Info("Creating accounts...")
	for _, a := range demoAccounts {
		if _, err := graphRepo.UpsertAccount(ctx, a.id, a.handle, a.name, ""); err != nil {
			log.Fatal("Failed to create account", zap.String("id", a.id), zap.Error(err))
		}
	}

	log.Info("Creating follow edges...")
	for _, a := range demoAccounts {
		for _, target := range a.follows {
			if err := graphRepo.Follow(ctx, a.id, target); err != nil {
				log.Fatal("Failed to create follow",
					zap.String("follower", a.id),
					zap.String("followee", target),
					zap.Error(err),
				)
			}
		}
	}

	log.Info("Creating posts...")
	for _, p := range demoPosts {
		if _, err := postRepo.Create(ctx, p.author, p.content, nil); err != nil {
			log.Fatal("Failed to create post", zap.String("author", p.author), zap.Error(err))
		}
	}

	log.Info("Seeding complete",
		zap.Int("accounts", len(demoAccounts)),
		zap.Int("posts", len(demoPosts)),
	)
}

func wipeDemoData(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (a:Account)
		WHERE a.id IN $ids
		OPTIONAL MATCH (a)-[:POSTED]->(p:Post)
		OPTIONAL MATCH (p)-[:HAS_COMMENT]->(c:Comment)
		DETACH DELETE c, p, a
	`

	ids := make([]string, 0, len(demoAccounts))
	for _, a := range demoAccounts {
		ids = append(ids, a.id)
	}

	_, err := session.Run(ctx, query, map[string]interface{}{"ids": ids})
	return err
}
