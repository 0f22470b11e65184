package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

func TestBuildOptions(t *testing.T) {
	opts := buildOptions(ClientConfig{
		Host:         "ch",
		Port:         8123,
		Database:     "binpull",
		User:         "u",
		Password:     "p",
		UseHTTP:      true,
		AsyncInsert:  true,
		WaitForAsync: true,
		MaxExecTime:  30 * time.Second,
	})
	if opts.Addr[0] != "ch:8123" {
		t.Fatalf("addr = %v", opts.Addr)
	}
	if opts.Protocol != ch.HTTP {
		t.Fatalf("protocol = %v", opts.Protocol)
	}
	if opts.Auth.Database != "binpull" || opts.Auth.Username != "u" {
		t.Fatalf("auth = %+v", opts.Auth)
	}
	if opts.Settings["async_insert"] != 1 || opts.Settings["wait_for_async_insert"] != 1 {
		t.Fatalf("settings = %v", opts.Settings)
	}
	if opts.Settings["max_execution_time"] != 30 {
		t.Fatalf("max_execution_time = %v", opts.Settings["max_execution_time"])
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
