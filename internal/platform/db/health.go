package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type poolReport struct {
	Total    int32  `json:"total"`
	Idle     int32  `json:"idle"`
	Acquired int32  `json:"acquired"`
	Max      int32  `json:"max"`
	Waited   int64  `json:"empty_acquire_count"`
	PingTime string `json:"ping"`
}

type healthReport struct {
	Status string      `json:"status"`
	Mode   string      `json:"mode"`
	Error  string      `json:"error,omitempty"`
	Pool   *poolReport `json:"pool,omitempty"`
}

// HealthHandler reports datastore health. A nil pool means the server runs on
// the in-memory demo stores, which are always healthy.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if pool == nil {
			return c.JSON(http.StatusOK, healthReport{Status: "healthy", Mode: "memory"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		stat := pool.Stat()
		report := healthReport{
			Status: "healthy",
			Mode:   "postgres",
			Pool: &poolReport{
				Total:    stat.TotalConns(),
				Idle:     stat.IdleConns(),
				Acquired: stat.AcquiredConns(),
				Max:      stat.MaxConns(),
				Waited:   stat.EmptyAcquireCount(),
				PingTime: time.Since(start).String(),
			},
		}
		if err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
