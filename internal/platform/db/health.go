package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Dependency is a named backing service probed by the readiness endpoint.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// PoolDependency wraps the pool as a readiness Dependency.
func PoolDependency(pool *pgxpool.Pool) Dependency {
	return Dependency{Name: "database", Ping: pool.Ping}
}

// HealthHandler pings every dependency and answers 503 if any of them fails.
// stats may be nil.
func HealthHandler(deps []Dependency, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(deps))
		for _, d := range deps {
			if err := d.Ping(ctx); err != nil {
				results[d.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[d.Name] = "ok"
		}

		body := map[string]interface{}{
			"status":       "healthy",
			"dependencies": results,
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		if stats != nil {
			body["pool"] = stats()
		}
		return c.JSON(status, body)
	}
}
