package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"fintrack/internal/auth"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/repository"
)

func main() {
	cli.LoadEnvFile()
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	defaults := config.Load()

	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	fullName := fs.String("name", "", "Full name (defaults to the username)")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	backendFlag := fs.String("backend", "sqlite", "Storage backend: "+strings.Join(persistentBackends(), " or "))
	dbPath := fs.String("db", defaults.SQLiteDBPath, "Path to the SQLite database file")
	dbURL := fs.String("database-url", defaults.DatabaseURL, "Postgres connection URL")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-name <full name>] [-password <password>] [-backend "+strings.Join(persistentBackends(), "|")+"] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	name := *fullName
	if strings.TrimSpace(name) == "" {
		name = *username
	}
	in := core.RegisterInput{Username: *username, Password: password, FullName: name}
	if err := in.Validate(); err != nil {
		return err
	}

	bt := backend.BackendType(*backendFlag)
	if bt == backend.MemoryBackend {
		return fmt.Errorf("memory backend cannot persist users")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backend.Config{
		Type:         bt,
		SQLiteDBPath: *dbPath,
		DatabaseURL:  *dbURL,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer res.Cleanup()

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := res.Repository.CreateUser(ctx, core.User{
		Username:     in.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("user %s already exists", in.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Username, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// persistentBackends lists the backends that keep users across runs.
func persistentBackends() []string {
	var out []string
	for _, bt := range backend.GetBackendTypes() {
		if bt != backend.MemoryBackend {
			out = append(out, bt.String())
		}
	}
	return out
}
