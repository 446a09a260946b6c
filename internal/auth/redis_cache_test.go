package auth

import (
	"context"
	"testing"

	"campus-loyalty/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestActorCacheIntegration exercises the cache against a real Redis container.
func TestActorCacheIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cache, err := InitializeActorCache(host+":"+port.Port(), nil)
	require.NoError(t, err)
	defer cache.Close()

	// Miss before anything is cached.
	user, err := cache.Get(ctx, "customer1")
	require.NoError(t, err)
	assert.Nil(t, user)

	cached := &models.User{
		ID:       1,
		Utorid:   "customer1",
		Role:     models.RoleRegular,
		Points:   100,
		Verified: true,
	}
	require.NoError(t, cache.Set(ctx, cached))

	user, err = cache.Get(ctx, "customer1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, cached.ID, user.ID)
	assert.Equal(t, cached.Utorid, user.Utorid)
	assert.Equal(t, cached.Role, user.Role)
	assert.Equal(t, cached.Points, user.Points)

	// Invalidation turns the hit back into a miss.
	require.NoError(t, cache.Invalidate(ctx, "customer1"))
	user, err = cache.Get(ctx, "customer1")
	require.NoError(t, err)
	assert.Nil(t, user)
}
