package db

import (
	"context"
	"fmt"
	"net/url"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NewDBPoolParams struct {
	DBHost string
	DBPort string
	DBName string
	// AppName shows up as application_name in pg_stat_activity, the api
	// server and the mcp binary set different ones
	AppName        string
	TracingEnabled bool
}

func NewDBPool(ctx context.Context, params NewDBPoolParams) (*pgxpool.Pool, error) {
	appName := params.AppName
	if appName == "" {
		appName = "gymtrack"
	}
	connString := fmt.Sprintf(
		"postgres://postgres@%s:%s/%s?application_name=%s",
		params.DBHost, params.DBPort, params.DBName, url.QueryEscape(appName),
	)
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if params.TracingEnabled {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer()
	}

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	return db, nil
}
