package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/internal/config"
	"github.com/google/uuid"
)

func testConfig(t *testing.T, store string) config.Config {
	t.Helper()

	dir := t.TempDir()
	return config.Config{
		Store:           store,
		SQLitePath:      filepath.Join(dir, "accounts.db"),
		BoltPath:        filepath.Join(dir, "accounts.bolt"),
		Stream:          "accounts2",
		RetryMaxTries:   3,
		RetryMaxElapsed: time.Second,
	}
}

func runCommand(t *testing.T, cfg config.Config, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	if err := run(context.Background(), cfg, args, &out); err != nil {
		t.Fatalf("run(%v) error: %v", args, err)
	}

	return out.String()
}

func TestRun_PersistsAcrossInvocations(t *testing.T) {
	for _, store := range []string{config.StoreSQLite, config.StoreBolt} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(t, store)

			const id = "0b8d5f8e-7f5c-4a44-9f4e-7a8d7b6e3c21"
			runCommand(t, cfg, "add", "-id", id, "-name", "Alice", "-attr", "plan=free")
			runCommand(t, cfg, "add", "-name", "Bob")
			runCommand(t, cfg, "add", "-id", id, "-name", "Alicia", "-attr", "plan=pro", "-attr", "region=eu")

			if got := runCommand(t, cfg, "count"); got != "2\n" {
				t.Errorf("unexpected count: %q", got)
			}

			listed := runCommand(t, cfg, "list")
			if want := id + "\tAlicia\tplan=pro\tregion=eu\n"; !strings.HasPrefix(listed, want) {
				t.Errorf("unexpected list output: wanted prefix %q got %q", want, listed)
			}

			runCommand(t, cfg, "remove", "-id", id)
			if got := runCommand(t, cfg, "count"); got != "1\n" {
				t.Errorf("unexpected count after remove: %q", got)
			}
		})
	}
}

func TestRun_Import(t *testing.T) {
	for _, store := range []string{config.StoreSQLite, config.StoreBolt} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(t, store)

			const (
				alice = "0b8d5f8e-7f5c-4a44-9f4e-7a8d7b6e3c21"
				bob   = "3f1d2c4b-5a6e-4f70-8192-a3b4c5d6e7f8"
			)

			records := []string{
				fmt.Sprintf(`{"id":%q,"name":"Alice"}`, alice),
				fmt.Sprintf(`{"id":%q,"name":"Bob","attributes":{"plan":"pro"}}`, bob),
			}
			for i := range 40 {
				records = append(records, fmt.Sprintf(`{"id":%q,"name":"Alice %02d"}`, alice, i))
			}
			records = append(records, fmt.Sprintf(`{"id":%q,"name":"Alicia"}`, alice))

			path := filepath.Join(t.TempDir(), "accounts.json")
			if err := os.WriteFile(path, []byte("["+strings.Join(records, ",")+"]"), 0o600); err != nil {
				t.Fatalf("WriteFile() error: %v", err)
			}

			if got := runCommand(t, cfg, "import", "-file", path, "-workers", "8"); got != "imported 43 accounts, 2 total\n" {
				t.Errorf("unexpected import output: %q", got)
			}

			want := alice + "\tAlicia\n" + bob + "\tBob\tplan=pro\n"
			if got := runCommand(t, cfg, "list"); got != want {
				t.Errorf("unexpected list output: wanted %q got %q", want, got)
			}
		})
	}
}

func TestLastPerID(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	got := lastPerID([]accounts.Account{
		{ID: a, Name: "first"},
		{ID: b, Name: "only"},
		{ID: a, Name: "second"},
		{ID: a, Name: "last"},
	})

	want := []accounts.Account{{ID: a, Name: "last"}, {ID: b, Name: "only"}}
	if len(got) != len(want) {
		t.Fatalf("unexpected record count: wanted %d got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("unexpected record at %d: wanted %+v got %+v", i, want[i], got[i])
		}
	}
}

func TestRun_Errors(t *testing.T) {
	cfg := testConfig(t, config.StoreMemory)

	for _, tt := range []struct {
		name      string
		haveArgs  []string
		wantUsage bool
	}{
		{name: "no command", wantUsage: true},
		{name: "help", haveArgs: []string{"help"}, wantUsage: true},
		{name: "unknown command", haveArgs: []string{"frobnicate"}, wantUsage: true},
		{name: "add without name", haveArgs: []string{"add"}, wantUsage: true},
		{name: "add with bad attribute", haveArgs: []string{"add", "-name", "x", "-attr", "novalue"}, wantUsage: true},
		{name: "add with bad id", haveArgs: []string{"add", "-name", "x", "-id", "nope"}},
		{name: "remove with bad id", haveArgs: []string{"remove", "-id", "nope"}},
		{name: "import without file", haveArgs: []string{"import"}, wantUsage: true},
		{name: "import missing file", haveArgs: []string{"import", "-file", filepath.Join(t.TempDir(), "missing.json")}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), cfg, tt.haveArgs, &bytes.Buffer{})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := errors.Is(err, errUsage); got != tt.wantUsage {
				t.Errorf("unexpected usage error: wanted %v got %v (%v)", tt.wantUsage, got, err)
			}
		})
	}
}
