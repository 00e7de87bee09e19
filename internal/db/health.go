package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthProbe reports database connectivity for the ops health endpoint.
type HealthProbe struct {
	pool *pgxpool.Pool
}

func NewHealthProbe(pool *pgxpool.Pool) *HealthProbe {
	return &HealthProbe{pool: pool}
}

func (p *HealthProbe) Name() string { return "database" }

func (p *HealthProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
