package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"promo-system/internal/config"
	"promo-system/internal/logger"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/go-redis/redis/v8"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis, context.Context) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	return &Client{client: rdb, log: log}, mr, context.Background()
}

func TestConnectSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	cfg := &config.RedisConfig{Host: "127.0.0.1", Port: mr.Port(), DB: 0}

	client, err := Connect(cfg, log)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	cfg := &config.RedisConfig{Host: "127.0.0.1", Port: "0", DB: 0}
	if _, err := Connect(cfg, log); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestCloseNil(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Fatalf("expected nil error on nil client close, got %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	key := GenerateKey("prefix", "123")
	if key != "prefix:123" {
		t.Fatalf("unexpected key: %s", key)
	}
}

func TestGetDocument(t *testing.T) {
	client, mr, ctx := newTestClient(t)

	type payload struct {
		Value string `json:"value"`
	}

	if err := mr.Set("key1", `{"value":"data"}`); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	var got payload
	if err := client.Get(ctx, "key1", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Value != "data" {
		t.Fatalf("unexpected value: %+v", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	client, _, ctx := newTestClient(t)
	var dest struct{}
	err := client.Get(ctx, "absent", &dest)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGetBrokenDocument(t *testing.T) {
	client, mr, ctx := newTestClient(t)
	_ = mr.Set("broken", "{not json")
	var dest struct{}
	err := client.Get(ctx, "broken", &dest)
	if err == nil || errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected unmarshal error, got %v", err)
	}
}

func TestGetMultiple(t *testing.T) {
	client, mr, ctx := newTestClient(t)

	_ = mr.Set("one", `{"v":"1"}`)
	_ = mr.Set("two", `{"n":2}`)

	result, err := client.GetMultiple(ctx, []string{"one", "two", "absent"})
	if err != nil {
		t.Fatalf("get multiple failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result))
	}
	if _, ok := result["one"]; !ok {
		t.Fatalf("expected key 'one'")
	}

	empty, err := client.GetMultiple(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result for no keys, got %v err=%v", empty, err)
	}
}

func TestGetIntAndTTL(t *testing.T) {
	client, mr, ctx := newTestClient(t)

	client.client.Set(ctx, "counter", 5, 2*time.Second)

	val, err := client.GetInt(ctx, "counter")
	if err != nil {
		t.Fatalf("get int failed: %v", err)
	}
	if val != 5 {
		t.Fatalf("unexpected int value: %d", val)
	}

	ttl, err := client.TTL(ctx, "counter")
	if err != nil {
		t.Fatalf("ttl failed: %v", err)
	}
	if ttl <= 0 {
		t.Fatalf("expected positive ttl, got %v", ttl)
	}

	mr.FastForward(3 * time.Second)
	if _, err := client.GetInt(ctx, "counter"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for expired key, got %v", err)
	}
}

func TestIncrAndExpire(t *testing.T) {
	client, mr, ctx := newTestClient(t)
	val, err := client.Incr(ctx, "hits")
	if err != nil || val != 1 {
		t.Fatalf("expected incr to 1, got %d err=%v", val, err)
	}
	if err := client.Expire(ctx, "hits", time.Second); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := client.GetInt(ctx, "hits"); err == nil {
		t.Fatalf("expected key expired")
	}
}

func TestHealth(t *testing.T) {
	client, mr, ctx := newTestClient(t)
	if err := client.Health(ctx); err != nil {
		t.Fatalf("health failed: %v", err)
	}
	mr.Close()
	if err := client.Health(ctx); err == nil {
		t.Fatalf("expected health error after server stop")
	}

	var nilClient *Client
	if err := nilClient.Health(ctx); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
