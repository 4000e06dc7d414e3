// Command userctl manages staff accounts from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/internal/app"
	"github.com/charlesng35/formdesk/internal/database"
	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/logger"
)

const usage = `usage: userctl [-config dir] <command> [arguments]

commands:
  status <email> <activate|deactivate>   change whether a user may sign in
  create -name N -email E -password P [-role superadmin|admin|user]
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("userctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var paths []string
	if strings.TrimSpace(configPath) != "" {
		paths = append(paths, configPath)
	}
	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}
	cfg.Server.LogLevel = "warn"
	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	db, err := database.Open(cfg.Database.ConnectionConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := database.AutoMigrateAndSeed(db); err != nil {
		return fmt.Errorf("auto-migrate database: %w", err)
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return err
	}
	users, err := services.NewUserService(db, audit)
	if err != nil {
		return err
	}
	return dispatch(ctx, users, fs.Args(), out)
}

func dispatch(ctx context.Context, users *services.UserService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	switch args[0] {
	case "status":
		return setStatus(ctx, users, args[1:], out)
	case "create":
		return createUser(ctx, users, args[1:], out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func setStatus(ctx context.Context, users *services.UserService, args []string, out io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: status needs an email and activate or deactivate", errUsage)
	}

	var active bool
	switch strings.ToLower(args[1]) {
	case "activate":
		active = true
	case "deactivate":
	default:
		return fmt.Errorf("%w: unknown status %q", errUsage, args[1])
	}

	user, changed, err := users.SetStatusByEmail(ctx, args[0], active)
	if err != nil {
		return err
	}

	state := "inactive"
	if active {
		state = "active"
	}
	if !changed {
		fmt.Fprintf(out, "%s is already %s\n", user.Email, state)
		return nil
	}
	logger.WithModule("userctl").Info("user status changed",
		zap.String("user_id", user.ID),
		zap.Bool("active", active))
	fmt.Fprintf(out, "%s is now %s\n", user.Email, state)
	return nil
}

func createUser(ctx context.Context, users *services.UserService, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(out)

	var input services.CreateUserInput
	fs.StringVar(&input.Name, "name", "", "Display name")
	fs.StringVar(&input.Email, "email", "", "Login email")
	fs.StringVar(&input.Password, "password", "", "Initial password")
	fs.StringVar(&input.Role, "role", models.RoleUser, "Role: superadmin, admin or user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if input.Email == "" || input.Password == "" {
		return fmt.Errorf("%w: create needs -email and -password", errUsage)
	}
	if input.Name == "" {
		input.Name = input.Email
	}

	user, err := users.Create(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s (%s) with role %s\n", user.Email, user.ID, user.RoleName())
	return nil
}
