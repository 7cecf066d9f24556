package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	ddl := Schema()
	require.NotEmpty(t, ddl)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS public.bookings",
		"CREATE TABLE IF NOT EXISTS public.admins",
		"confirmation_token TEXT UNIQUE",
		"CHECK (party_size >= 1)",
		"'pending_confirmation', 'confirmed', 'rejected'",
	} {
		assert.Contains(t, ddl, want)
	}
}

func TestNewPoolRejectsBadDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "::not a dsn::", PoolOptions{})
	assert.ErrorContains(t, err, "failed to parse database config")
}
