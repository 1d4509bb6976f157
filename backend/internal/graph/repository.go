package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"go.uber.org/zap"

	apperrors "currents/backend/pkg/errors"
	"currents/backend/pkg/logger"
)

// Repository handles all Neo4j social graph operations
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// EnsureSchema creates the uniqueness constraints the account model relies on.
// Safe to run on every startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		`CREATE CONSTRAINT account_id_unique IF NOT EXISTS FOR (a:Account) REQUIRE a.id IS UNIQUE`,
		`CREATE CONSTRAINT account_handle_unique IF NOT EXISTS FOR (a:Account) REQUIRE a.handle IS UNIQUE`,
	}

	for _, stmt := range constraints {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return apperrors.NewTransientStore("ensure graph schema", err)
		}
	}

	return nil
}

// isConstraintViolation reports whether err is a Neo4j uniqueness constraint failure
func isConstraintViolation(err error) bool {
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.Contains(neoErr.Code, "ConstraintValidationFailed")
	}
	return false
}
