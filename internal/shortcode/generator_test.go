package shortcode

import (
	"context"
	"math/big"
	"testing"
	"time"

	"fastlink/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupGenerator(t *testing.T, opts ...Option) (*Generator, *cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewRedisCache(client, "shortlink:")
	return NewGenerator(c, zap.NewNop().Sugar(), opts...), c, mr
}

func TestEncodeBase62(t *testing.T) {
	assert.Equal(t, "a", encodeBase62(big.NewInt(0)))
	assert.Equal(t, "9", encodeBase62(big.NewInt(61)))
	assert.Equal(t, "ba", encodeBase62(big.NewInt(62)))
	assert.Equal(t, "bb", encodeBase62(big.NewInt(63)))
}

func TestCandidate_Deterministic(t *testing.T) {
	g, _, _ := setupGenerator(t)

	first := g.Candidate("https://example.com", "")
	assert.Len(t, first, DefaultLength)
	assert.Equal(t, first, g.Candidate("https://example.com", ""))
	assert.NotEqual(t, first, g.Candidate("https://example.com", "1"))
	assert.True(t, Valid(first))
}

func TestGenerate_ReservesCode(t *testing.T) {
	g, c, mr := setupGenerator(t, WithReserveTTL(time.Minute))
	ctx := context.Background()

	code, err := g.Generate(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, g.Candidate("https://example.com", ""), code)

	url, err := c.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)
	assert.Equal(t, time.Minute, mr.TTL("shortlink:"+code))
}

func TestGenerate_RetriesWithSalt(t *testing.T) {
	g, c, _ := setupGenerator(t)
	ctx := context.Background()

	taken := g.Candidate("https://example.com", "")
	require.NoError(t, c.Set(ctx, taken, "https://other.example", 0))

	code, err := g.Generate(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, g.Candidate("https://example.com", "1"), code)
}

func TestGenerate_Exclude(t *testing.T) {
	g, _, _ := setupGenerator(t)

	first := g.Candidate("https://example.com", "")
	code, err := g.Generate(context.Background(), "https://example.com", first)
	require.NoError(t, err)
	assert.NotEqual(t, first, code)
}

func TestGenerate_Exhausted(t *testing.T) {
	g, c, _ := setupGenerator(t, WithMaxAttempts(3))
	ctx := context.Background()

	salts := []string{"", "1", "2"}
	for _, salt := range salts {
		require.NoError(t, c.Set(ctx, g.Candidate("https://example.com", salt), "x", 0))
	}

	_, err := g.Generate(ctx, "https://example.com")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestGenerate_CacheUnavailable(t *testing.T) {
	g, _, mr := setupGenerator(t)
	mr.Close()

	code, err := g.Generate(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, g.Candidate("https://example.com", ""), code)
}

func TestWithLength(t *testing.T) {
	g, _, _ := setupGenerator(t, WithLength(8))
	assert.Len(t, g.Candidate("https://example.com", ""), 8)
	assert.Equal(t, 8, g.Length())
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("a1B2c"))
	assert.True(t, Valid("promo2026"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("has space"))
	assert.False(t, Valid("under_score"))
	assert.False(t, Valid("0123456789012345678901234567890123"))
}
