package mlm

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(logger *zap.Logger) (store *Store, err error) {
	// config
	purl := os.Getenv("MLM_DB")
	if purl == "" {
		return nil, fmt.Errorf("env MLM_DB is not set")
	}
	port := os.Getenv("MLM_DB_PORT")
	if port == "" {
		return nil, fmt.Errorf("env MLM_DB_PORT is not set")
	}
	user := os.Getenv("MLM_DB_USER")
	if user == "" {
		return nil, fmt.Errorf("env MLM_DB_USER is not set")
	}
	password := os.Getenv("MLM_DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("env MLM_DB_PASSWORD is not set")
	}
	database := os.Getenv("MLM_DB_BASE")
	if database == "" {
		return nil, fmt.Errorf("env MLM_DB_BASE is not set")
	}
	dsn := "postgres://" + user + ":" + password + "@" + purl + ":" + port + "/" + database

	pool, err := pgxpool.New(context.Background(), dsn)
	return &Store{pool, logger}, err
}

func (s *Store) logSQL(err error, sql string, args []any) {
	s.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", sql),
		zap.Any("args", args),
	)
}
