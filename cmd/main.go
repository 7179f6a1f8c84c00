/*
Package main is the entry point of the terminal client.

It loads configuration, initializes the global logging system, wires the client
components at a single composition root and dispatches to a subcommand. OS interrupt
signals (SIGINT, SIGTERM) cancel the running command so that channels, the loopback
server and the local store are released cleanly.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cfoclient/internal/configs"
	"cfoclient/internal/pkg/logx"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"whoami", "Probe the backend session and print the signed-in user", runWhoami},
	{"login", "Sign in with email and password", runLogin},
	{"register", "Create an account", runRegister},
	{"logout", "Sign out", runLogout},
	{"oauth", "Sign in through an external identity provider", runOAuth},
	{"chat", "Open the global chat or a team chat room", runChat},
	{"guard", "Show how the route guard treats a path", runGuard},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cfoclient <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == os.Args[1] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		os.Exit(2)
	}

	// Load .env file; variables already set in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: .env file could not be loaded: %v\n", err)
	}

	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Debug().
		Str("environment", cfg.Environment).
		Str("backend_url", cfg.BackendURL).
		Str("realtime_url", cfg.RealtimeURL).
		Str("command", cmd.name).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize client")
	}

	runErr := cmd.run(ctx, a, os.Args[2:])
	a.Close()

	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
