// Package testutil starts the database containers used by integration tests.
// Each container is started once per test binary and reaped by testcontainers
// when the binary exits. Tests are skipped in -short mode or when no container
// runtime is available.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startTimeout = 3 * time.Minute

type container struct {
	once     sync.Once
	endpoint string
	err      error
}

func (c *container) get(t *testing.T, name string, start func(ctx context.Context) (string, error)) string {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", name)
	}

	c.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		c.endpoint, c.err = start(ctx)
	})
	if c.err != nil {
		t.Skipf("%s container unavailable: %v", name, c.err)
	}
	return c.endpoint
}

var redisC, postgresC, mongoC container

// RedisAddress returns host:port of a running Redis.
func RedisAddress(t *testing.T) string {
	return redisC.get(t, "redis", func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			return "", err
		}
		return c.Endpoint(ctx, "")
	})
}

// PostgresDSN returns a pgx connection string for an empty database.
func PostgresDSN(t *testing.T) string {
	return postgresC.get(t, "postgres", func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForLog("ready to accept connections"),
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return fmt.Sprintf("postgres://sagaflow:sagaflow@%s:%s/sagaflow_test?sslmode=disable", host, port.Port())
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "sagaflow",
				"POSTGRES_PASSWORD": "sagaflow",
				"POSTGRES_DB":       "sagaflow_test",
			}),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := c.Endpoint(ctx, "")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("postgres://sagaflow:sagaflow@%s/sagaflow_test?sslmode=disable", endpoint), nil
	})
}

// MongoURI returns a mongodb:// URI of a running MongoDB.
func MongoURI(t *testing.T) string {
	return mongoC.get(t, "mongo", func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("Waiting for connections"),
			),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := c.Endpoint(ctx, "")
		if err != nil {
			return "", err
		}
		return "mongodb://" + endpoint, nil
	})
}
