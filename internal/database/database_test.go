package database

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/oracle-alpha-go/internal/config"
)

func TestPostgresDB_Close_NilPool(t *testing.T) {
	db := &PostgresDB{Pool: nil}

	assert.NotPanics(t, func() {
		db.Close()
	})
}

func TestPostgresDB_HealthCheck_NotConnected(t *testing.T) {
	var db *PostgresDB
	assert.EqualError(t, db.HealthCheck(context.Background()), "database not connected")
	assert.EqualError(t, (&PostgresDB{}).HealthCheck(context.Background()), "database not connected")
}

func TestRedisClient_HealthCheck_NotConnected(t *testing.T) {
	client := &RedisClient{Client: nil}

	assert.NotPanics(t, func() {
		client.Close()
	})
	assert.EqualError(t, client.HealthCheck(context.Background()), "redis not connected")
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "components",
			cfg:  config.DatabaseConfig{Host: "db", Port: 5432, User: "oracle", Password: "secret", DBName: "oracle_alpha", SSLMode: "require"},
			want: "host=db port=5432 user=oracle password=secret dbname=oracle_alpha sslmode=require",
		},
		{
			name: "default sslmode",
			cfg:  config.DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", DBName: "oracle_alpha"},
			want: "host=localhost port=5432 user=postgres password= dbname=oracle_alpha sslmode=disable",
		},
		{
			name: "url wins",
			cfg:  config.DatabaseConfig{Host: "ignored", DatabaseURL: "postgres://u:p@pg:5432/oracle"},
			want: "postgres://u:p@pg:5432/oracle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.cfg))
		})
	}
}

func TestNewPostgresConnection_InvalidConfig(t *testing.T) {
	db, err := NewPostgresConnection(context.Background(), config.DatabaseConfig{DatabaseURL: "invalid-url"}, nil)
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to parse database config")
}

func TestNewRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisConnection(context.Background(), config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}, nil)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mustPort(t, mr)
	mr.Close()

	client, err := NewRedisConnection(context.Background(), config.RedisConfig{Host: host, Port: port}, nil)
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}
