package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/config"
	"cashflow/internal/core"
)

func TestFactory_CreateBackend(t *testing.T) {
	tests := []struct {
		name    string
		config  func(t *testing.T) Config
		wantErr bool
	}{
		{
			name:   "memory",
			config: func(*testing.T) Config { return Config{Type: MemoryBackend, Origin: "a"} },
		},
		{
			name: "sqlite",
			config: func(t *testing.T) Config {
				return Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "cashflow.db"), Origin: "a"}
			},
		},
		{
			name:    "sqlite without path",
			config:  func(*testing.T) Config { return Config{Type: SQLiteBackend} },
			wantErr: true,
		},
		{
			name:    "unknown type",
			config:  func(*testing.T) Config { return Config{Type: "sheets"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := NewFactory(nil).CreateBackend(ctx, tt.config(t))
			if tt.wantErr {
				if err == nil {
					t.Fatal("CreateBackend() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					t.Errorf("Cleanup() error = %v", err)
				}
			}()

			if res.Feed != nil {
				t.Error("Feed should be nil without AMQP_URL")
			}
			if err := res.Ready(ctx); err != nil {
				t.Errorf("Ready() error = %v", err)
			}

			var got []core.Transaction
			unsubscribe, err := res.Store.Subscribe(ctx, "u1", func(txs []core.Transaction) { got = txs })
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			defer unsubscribe()

			_, err = res.Store.Create(ctx, core.Transaction{
				OwnerID:     "u1",
				Amount:      decimal.NewFromInt(9),
				Kind:        core.KindIncome,
				Description: "Refund",
				OccurredAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if len(got) != 1 || got[0].Description != "Refund" {
				t.Errorf("subscriber saw %+v", got)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) should fail")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("FromAppConfig() should reject unknown backends")
	}

	a, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPExchange: "ex"})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	b, _ := FromAppConfig(&config.Config{DataBackend: "memory"})
	if a.Type != SQLiteBackend || a.SQLiteDBPath != "x.db" || a.AMQPExchange != "ex" {
		t.Errorf("FromAppConfig() = %+v", a)
	}
	if a.Origin == "" || a.Origin == b.Origin {
		t.Errorf("each process needs its own origin, got %q and %q", a.Origin, b.Origin)
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 2 || got[0] != "sqlite" || got[1] != "memory" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}
