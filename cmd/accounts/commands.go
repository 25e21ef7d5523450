package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/internal/config"
	"github.com/go-estoria/accounts/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// run executes one command against a freshly initialised repository.
func run(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "help" {
		return errUsage
	}

	command, args := args[0], args[1:]

	var exec func(context.Context, *repository.Repository, []string, io.Writer) error
	switch command {
	case "list":
		exec = list
	case "count":
		exec = count
	case "add":
		exec = add
	case "remove":
		exec = remove
	case "import":
		exec = importFile
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s event store: %w", cfg.Store, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("closing event store failed", "error", err)
		}
	}()

	repo, err := repository.New(store,
		repository.WithStreamName(cfg.Stream),
		repository.WithLogger(slog.Default().WithGroup("repository")),
	)
	if err != nil {
		return fmt.Errorf("creating account repository: %w", err)
	}

	if err := repo.Initialise(ctx); err != nil {
		return err
	}

	return exec(ctx, repo, args, stdout)
}

func list(_ context.Context, repo *repository.Repository, _ []string, stdout io.Writer) error {
	for _, account := range repo.GetAllAccounts() {
		fmt.Fprintf(stdout, "%s\t%s", account.ID, account.Name)

		keys := make([]string, 0, len(account.Attributes))
		for k := range account.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(stdout, "\t%s=%s", k, account.Attributes[k])
		}

		fmt.Fprintln(stdout)
	}

	return nil
}

func count(_ context.Context, repo *repository.Repository, _ []string, stdout io.Writer) error {
	fmt.Fprintln(stdout, repo.NumberAccounts())
	return nil
}

func add(ctx context.Context, repo *repository.Repository, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		name  = fs.String("name", "", "account name")
		id    = fs.String("id", "", "account ID (default: a new ID)")
		attrs = attributeFlag{}
	)
	fs.Var(attrs, "attr", "attribute as key=value, repeatable")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("add: %w: %w", err, errUsage)
	}

	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("add: -name is required: %w", errUsage)
	}

	account := accounts.Account{ID: uuid.New(), Name: *name}
	if *id != "" {
		parsed, err := uuid.Parse(*id)
		if err != nil {
			return fmt.Errorf("add: invalid -id: %w", err)
		}

		account.ID = parsed
	}

	if len(attrs) > 0 {
		account.Attributes = attrs
	}

	if err := repo.AddOrUpdate(ctx, account); err != nil {
		return err
	}

	fmt.Fprintln(stdout, account.ID)
	return nil
}

func remove(ctx context.Context, repo *repository.Repository, args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	id := fs.String("id", "", "account ID")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("remove: %w: %w", err, errUsage)
	}

	parsed, err := uuid.Parse(*id)
	if err != nil {
		return fmt.Errorf("remove: invalid -id: %w", err)
	}

	return repo.RemoveAccount(ctx, parsed)
}

// importFile adds or updates every account in a JSON array. Accounts are
// written concurrently. When an ID appears more than once, the last record
// for it in the file wins.
func importFile(ctx context.Context, repo *repository.Repository, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		path    = fs.String("file", "", "path to a JSON array of accounts")
		workers = fs.Int("workers", 8, "concurrent writers")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("import: %w: %w", err, errUsage)
	}

	if *path == "" {
		return fmt.Errorf("import: -file is required: %w", errUsage)
	}

	if *workers < 1 {
		return fmt.Errorf("import: -workers must be positive: %w", errUsage)
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	var records []accounts.Account
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("import: decoding %s: %w", *path, err)
	}

	for i, record := range records {
		if record.ID == uuid.Nil {
			return fmt.Errorf("import: record %d: %w", i, accounts.ErrMissingAccountID)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)

	for _, record := range lastPerID(records) {
		g.Go(func() error {
			return repo.AddOrUpdate(ctx, record)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	fmt.Fprintf(stdout, "imported %d accounts, %d total\n", len(records), repo.NumberAccounts())
	return nil
}

// lastPerID keeps the last record for each ID, in order of first appearance.
func lastPerID(records []accounts.Account) []accounts.Account {
	index := make(map[uuid.UUID]int, len(records))
	unique := make([]accounts.Account, 0, len(records))

	for _, record := range records {
		if i, ok := index[record.ID]; ok {
			unique[i] = record
			continue
		}

		index[record.ID] = len(unique)
		unique = append(unique, record)
	}

	return unique
}

// attributeFlag collects repeated key=value flags.
type attributeFlag map[string]string

func (f attributeFlag) String() string {
	pairs := make([]string, 0, len(f))
	for k, v := range f {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return strings.Join(pairs, ",")
}

func (f attributeFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return errors.New("attribute must be key=value")
	}

	f[key] = val
	return nil
}
