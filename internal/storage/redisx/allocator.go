package redisx

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
)

const counterKeyPrefix = "orderpay:counter:"

// allocateScript runs as one Redis command, so the read and the write are never interleaved.
const allocateScript = `
local seed = tonumber(ARGV[1])
local ceiling = tonumber(ARGV[2])
local current = redis.call('GET', KEYS[1])
local next = seed
if current then
  next = tonumber(current) + 1
  if next >= ceiling or next < seed then
    next = seed
  end
end
redis.call('SET', KEYS[1], next)
return next
`

// releaseScript rewinds the counter only while it still holds the released number.
// Releasing the seed deletes the key so the next allocation hands the seed out again.
const releaseScript = `
local current = redis.call('GET', KEYS[1])
if not current or tonumber(current) ~= tonumber(ARGV[1]) then
  return 0
end
if tonumber(ARGV[1]) <= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
else
  redis.call('SET', KEYS[1], tonumber(ARGV[1]) - 1)
end
return 1
`

type evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Allocator implements repository.OrderNumberAllocator on Redis.
type Allocator struct {
	client evaler
}

// NewAllocator wraps a Redis client.
func NewAllocator(client evaler) *Allocator {
	return &Allocator{client: client}
}

// Allocate returns the next order number for merchantID.
func (a *Allocator) Allocate(ctx context.Context, merchantID string) (int, error) {
	if merchantID == "" {
		return 0, domainErrors.Validation("merchantId is required")
	}
	n, err := a.client.Eval(ctx, allocateScript, []string{counterKey(merchantID)},
		strconv.Itoa(model.OrderNumberSeed), strconv.Itoa(model.OrderNumberCeiling)).Int()
	if err != nil {
		return 0, domainErrors.Storage(err, "allocate order number")
	}
	return n, nil
}

// Release hands number back when it is still the latest allocation for merchantID.
// Otherwise the number stays burnt and a gap remains in the sequence.
func (a *Allocator) Release(ctx context.Context, merchantID string, number int) error {
	if merchantID == "" || number == 0 {
		return nil
	}
	err := a.client.Eval(ctx, releaseScript, []string{counterKey(merchantID)},
		strconv.Itoa(number), strconv.Itoa(model.OrderNumberSeed)).Err()
	if err != nil {
		return domainErrors.Storage(err, "release order number")
	}
	return nil
}

func counterKey(merchantID string) string {
	return counterKeyPrefix + merchantID
}
