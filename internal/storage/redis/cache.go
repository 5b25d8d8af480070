// Package redis caches rendered cart views in Redis.
package redis

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/gallery-checkout/internal/domain/cart"
)

var _ cart.ViewCache = (*CartCache)(nil)

// CartCache stores each buyer's display lines under cart:<buyer id>. Entries
// expire after the base TTL plus up to a minute of jitter.
type CartCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartCache creates a CartCache. A non-positive ttl defaults to 15 minutes.
func NewCartCache(client redis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CartCache{client: client, ttl: ttl}
}

func (c *CartCache) Get(ctx context.Context, buyerID int64) ([]cart.Line, error) {
	data, err := c.client.Get(ctx, cacheKey(buyerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	lines, err := decodeLines(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cart view")
	}
	return lines, nil
}

func (c *CartCache) Set(ctx context.Context, buyerID int64, lines []cart.Line) error {
	ttl := c.ttl + time.Duration(rand.Int64N(int64(time.Minute)))
	if err := c.client.Set(ctx, cacheKey(buyerID), encodeLines(lines), ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, buyerID int64) error {
	if err := c.client.Del(ctx, cacheKey(buyerID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func cacheKey(buyerID int64) string {
	return "cart:" + strconv.FormatInt(buyerID, 10)
}

func encodeLines(lines []cart.Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.Obj(func(e *jx.Encoder) {
			e.Field("artwork_id", func(e *jx.Encoder) { e.Int64(l.ArtworkID) })
			e.Field("title", func(e *jx.Encoder) { e.Str(l.Title) })
			e.Field("price", func(e *jx.Encoder) { e.Str(l.Price.String()) })
			e.Field("image_url", func(e *jx.Encoder) { e.Str(l.ImageURL) })
		})
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeLines(data []byte) ([]cart.Line, error) {
	lines := []cart.Line{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var l cart.Line
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "artwork_id":
				l.ArtworkID, err = d.Int64()
			case "title":
				l.Title, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					l.Price, err = decimal.NewFromString(s)
				}
			case "image_url":
				l.ImageURL, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}
