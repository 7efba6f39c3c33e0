package rdx

import (
	"encoding/json"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"vitrina/globals"
	"vitrina/models"
)

var Conn *redis.Client

func init() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	Conn = redis.NewClient(&redis.Options{Addr: addr})
}

func RdxSet(key, value string) error {
	return Conn.Set(globals.Ctx, key, value, 0).Err()
}

func RdxHset(hash, field, value string) error {
	return Conn.HSet(globals.Ctx, hash, field, value).Err()
}

func RdxHdel(hash, field string) (int64, error) {
	return Conn.HDel(globals.Ctx, hash, field).Result()
}

const stockSnapshotTTL = 30 * time.Second

func stockKey(productID string) string {
	return "stock:snapshot:" + productID
}

// CacheStockSnapshot stores an advisory stock view with a short TTL. Stale
// reads are acceptable here: the reservation transaction is the authority.
func CacheStockSnapshot(snap models.StockSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return Conn.Set(globals.Ctx, stockKey(snap.ProductID), data, stockSnapshotTTL).Err()
}

func CachedStockSnapshot(productID string) (models.StockSnapshot, bool) {
	var snap models.StockSnapshot
	data, err := Conn.Get(globals.Ctx, stockKey(productID)).Bytes()
	if err != nil {
		return snap, false
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false
	}
	return snap, true
}

func DropStockSnapshot(productID string) {
	Conn.Del(globals.Ctx, stockKey(productID))
}
