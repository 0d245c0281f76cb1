package utils

import (
	"context"
	"testing"
	"time"
)

func TestRedisDefaults(t *testing.T) {
	got := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if got.ReadTimeout != 500*time.Millisecond || got.WriteTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected io timeouts: %+v", got)
	}
	if got.PoolSize != 20 {
		t.Fatalf("expected pool size 20, got %d", got.PoolSize)
	}

	got = RedisConfig{ReadTimeout: time.Second}.withDefaults()
	if got.ReadTimeout != time.Second {
		t.Fatalf("explicit timeout overwritten: %s", got.ReadTimeout)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestPingRedis_NilClient(t *testing.T) {
	if err := PingRedis(context.Background(), nil, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
