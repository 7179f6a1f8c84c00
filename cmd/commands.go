package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"cfoclient/internal/app/chat"
	"cfoclient/internal/app/guard"
	"cfoclient/internal/app/oauth"
	"cfoclient/internal/app/routes"
	"cfoclient/internal/app/session"
	"cfoclient/internal/app/user"
	"cfoclient/internal/handler"
	"cfoclient/internal/pkg/limiter"
	"cfoclient/internal/pkg/logx"
	"cfoclient/internal/ui"
)

var stdin = bufio.NewReader(os.Stdin)

// promptLine reads one line of input after printing prompt.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptPassword prompts for a password without echoing it when stdin is a terminal.
func promptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return promptLine(prompt)
	}

	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	return string(password), nil
}

// signIn initializes the store and, when email is set and no session exists,
// signs in with a prompted password.
func signIn(ctx context.Context, a *app, email string) error {
	a.store.Initialize(ctx)
	if _, ok := a.store.User(); ok || email == "" {
		return nil
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	res := a.store.Login(ctx, email, password)
	if !res.OK {
		if res.RequiresConfirmation {
			a.history.Navigate(routes.Target{Path: routes.CheckEmail})
		}
		return errors.New(ui.Error(res.Err))
	}

	a.history.Navigate(routes.PostLogin(res.ProfileCompleted, ""))
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	email := fs.String("email", "", "sign in as this account first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := signIn(ctx, a, *email); err != nil {
		return err
	}
	fmt.Println(ui.Session(a.store.Snapshot()))
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	redirect := fs.String("redirect", "", "destination after sign-in")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("login: -email is required")
	}

	a.store.Initialize(ctx)

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	res := a.store.Login(ctx, *email, password)
	if !res.OK {
		if res.RequiresConfirmation {
			a.history.Navigate(routes.Target{Path: routes.CheckEmail})
		}
		return errors.New(ui.Error(res.Err))
	}

	target := routes.PostLogin(res.ProfileCompleted, *redirect)
	a.history.Navigate(target)

	fmt.Println(ui.Session(a.store.Snapshot()))
	fmt.Println(ui.Success("Continue at " + target.String()))
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "full name")
	role := fs.String("role", string(user.RoleParticipant), "participant or judge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *name == "" {
		return errors.New("register: -email and -name are required")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	res := a.store.Register(ctx, session.RegisterInput{
		Email:    *email,
		Password: password,
		FullName: *name,
		Role:     user.Role(*role),
	})
	if !res.OK {
		return errors.New(ui.Error(res.Err))
	}

	a.history.Navigate(routes.Target{Path: routes.CheckEmail})
	fmt.Println(ui.Success(res.Message))
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.store.Initialize(ctx)
	a.store.Logout(ctx)
	if err := a.auth.SignOut(ctx); err != nil {
		logx.Warn("Failed to forget provider session", "error", err.Error())
	}

	a.history.Navigate(routes.Target{Path: routes.Home})
	fmt.Println(ui.Success("Signed out."))
	return nil
}

func runOAuth(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("oauth", flag.ContinueOnError)
	provider := fs.String("provider", "google", "identity provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.store.Initialize(ctx)

	authorizeURL, err := a.auth.AuthorizeURL(ctx, *provider, a.cfg.CallbackURL())
	if err != nil {
		return err
	}

	callback := oauth.NewHandler(a.auth, a.api, a.store, a.history,
		oauth.WithPhaseObserver(func(p oauth.Phase) {
			logx.Debug("OAuth callback phase", "phase", p.String())
		}),
	)

	results := make(chan oauth.Result, 1)
	server := &http.Server{
		Addr: fmt.Sprintf("127.0.0.1:%d", a.cfg.CallbackPort),
		Handler: handler.Router(ctx, &handler.AppDeps{
			Callback: callback,
			Done:     func(r oauth.Result) { results <- r },
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logx.Error(err, "Callback server failed")
		}
	}()

	fmt.Println("Open this URL in your browser to continue:")
	fmt.Println()
	fmt.Println("  " + authorizeURL)
	fmt.Println()

	var result oauth.Result
	select {
	case result = <-results:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Warn("Callback server forced to shutdown", "error", err.Error())
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if result.Err != nil {
		return errors.New(ui.Error(result.Err))
	}

	fmt.Println(ui.Session(a.store.Snapshot()))
	if result.Target != nil {
		fmt.Println(ui.Success("Continue at " + result.Target.String()))
	}
	return nil
}

func runGuard(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("guard", flag.ContinueOnError)
	email := fs.String("email", "", "sign in as this account after mounting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: cfoclient guard [-email address] <path>")
	}

	loc, err := url.Parse(fs.Arg(0))
	if err != nil {
		return err
	}

	a.history.OnNavigate(func(e routes.Entry) {
		fmt.Println("navigate:", routes.PathWithQuery(e.URL))
	})
	a.history.Navigate(routes.Target{Path: loc.Path, Query: loc.Query()})

	g := guard.Mount(a.store, a.history, guard.ParamsFor(loc.Path), func(d guard.Decision) {
		fmt.Println(ui.Decision(d))
	})
	defer g.Unmount()

	if err := signIn(ctx, a, *email); err != nil {
		return err
	}

	last := g.Decision()
	if last.Outcome == guard.Redirect {
		fmt.Println(ui.Decision(last))
	}
	return nil
}

func runChat(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	email := fs.String("email", "", "sign in as this account first")
	team := fs.String("team", "", "team id; empty opens the global chat")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := signIn(ctx, a, *email); err != nil {
		return err
	}
	u, ok := a.store.User()
	if !ok {
		return errors.New("chat: sign in first (use -email)")
	}

	sources := chat.Sources{API: a.api, REST: a.rest, User: u, Admin: u.IsAdmin()}
	throttle := limiter.NewKeyedLimiter(chat.ResubscribeInterval, chat.ResubscribeBurst)
	go throttle.RunCleanup(ctx, limiter.CleanupInterval)

	room := chat.NewRoom(sources.For, chat.FromTransport(a.transport),
		chat.WithUploader(a.uploader), chat.WithThrottle(throttle))
	defer room.Close()

	var (
		mu        sync.Mutex
		printed   = map[string]struct{}{}
		lastState chat.State
	)
	unsubscribe := room.Subscribe(func(s chat.Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		if s.State != lastState {
			lastState = s.State
			if status := ui.RoomStatus(s); status != "" {
				fmt.Println(status)
			}
		}
		for _, m := range s.Messages {
			if _, seen := printed[m.ID]; seen {
				continue
			}
			printed[m.ID] = struct{}{}
			fmt.Println(ui.Message(m, u.ID))
		}
	})
	defer unsubscribe()

	ref := chat.Global()
	if *team != "" {
		ref = chat.Team(*team)
	}

	fmt.Println(ui.RoomHeader(ref))
	room.Select(ctx, ref)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := chatCommand(ctx, room, line); quit {
				return nil
			}
		}
	}
}

// chatCommand handles one input line and reports whether the session should end.
func chatCommand(ctx context.Context, room *chat.Room, line string) bool {
	switch {
	case line == "/quit":
		return true

	case line == "/retry":
		room.Retry(ctx)

	case strings.HasPrefix(line, "/file "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/file "))
		f, err := os.Open(path)
		if err != nil {
			fmt.Println(err)
			return false
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			fmt.Println(err)
			return false
		}
		if customErr := room.SendFile(ctx, filepath.Base(path), info.Size(), f); customErr != nil {
			fmt.Println(ui.Error(customErr))
		}

	default:
		if customErr := room.Send(ctx, line); customErr != nil {
			fmt.Println(ui.Error(customErr))
		}
	}
	return false
}
