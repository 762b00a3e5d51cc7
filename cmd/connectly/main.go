package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/connectly-api/connectly/internal/auth"
	"github.com/connectly-api/connectly/internal/client"
	"github.com/connectly-api/connectly/internal/config"
	"github.com/connectly-api/connectly/internal/eventlog"
	httpapp "github.com/connectly-api/connectly/internal/http"
	"github.com/connectly-api/connectly/internal/model"
	"github.com/connectly-api/connectly/internal/rate"
	"github.com/connectly-api/connectly/internal/settings"
	"github.com/connectly-api/connectly/internal/store"
	"github.com/connectly-api/connectly/internal/store/sqlite"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Token    string `json:"token"`
	TokenExp string `json:"token_expires"`
}

func main() {
	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Printf("connectly %s (%s, built %s)\n", version, commit, buildTime)
		return
	}

	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "setup":
		runSetup(args)
	case "register":
		cmdRegister(args)
	case "login":
		cmdLogin(args)
	case "logout":
		cmdLogout(args)
	case "post":
		cmdPost(args)
	case "comment":
		cmdComment(args)
	case "read", "list":
		cmdRead(args)
	case "status", "whoami":
		cmdStatus(args)
	case "config":
		cmdConfig(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`connectly - Social posting platform

Usage: connectly <command> [options]

Quick Start:
  connectly register --name alice --password secret123   # Register + log in
  connectly post --content "Hello Connectly"

Client Commands:
  register            Register a new account and log in
  login               Log in with an existing account
  logout              Invalidate the stored token
  post                Create a post
  comment             Comment on a post
  read                Read posts from the server
  status              Show current config and token status
  config              View or change server settings (admin)

Server:
  server              Start the Connectly server (default if no command)
  setup               Provision the bootstrap admin account

Examples:
  connectly register --name alice --email alice@example.com --password secret123
  connectly post --title "Sunset" --type image --content "golden hour" \
      --meta file_size=204800 --meta file_type=jpg
  connectly comment --post 42 --text "Love this!"
  connectly read --limit 10
  connectly read --post 42                               # View post with comments

Environment Variables (server):
  CONNECTLY_ADDR                Listen address (default: :8080)
  CONNECTLY_DB                  Database path (default: connectly.db)
  CONNECTLY_LOG_DIR             Event log directory (default: logs)
  CONNECTLY_LOG_LEVEL           Minimum event severity (default: info)
  CONNECTLY_TOKEN_TTL           Token lifetime (default: 24h)
  CONNECTLY_BOOTSTRAP_ADMIN     Admin username for setup (default: admin)
  CONNECTLY_BOOTSTRAP_PASSWORD  Admin password for setup (generated if unset)`)
}

// ============================================================================
// SERVER
// ============================================================================

func runServer() {
	cfg := config.Load()
	cfg.Version, cfg.Commit, cfg.BuildTime = version, commit, buildTime

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	events, err := eventlog.Init(cfg.LogFile())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open event log")
	}
	defer events.Close()
	events.SetLevel(cfg.LogLevel)

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer st.Close()

	limiter := rate.NewMemory(time.Hour)
	authSvc := auth.NewService(st, cfg.TokenTTL)
	server := httpapp.NewServer(st, authSvc, limiter, settings.Shared(), events, cfg)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("connectly listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// runSetup provisions the bootstrap admin account: creates the user if it is
// missing and ensures it carries the admin role. Safe to run repeatedly.
func runSetup(args []string) {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	username := fs.String("admin", "", "Admin username (default from CONNECTLY_BOOTSTRAP_ADMIN)")
	fs.Parse(args)

	cfg := config.Load()
	if *username != "" {
		cfg.BootstrapAdmin = *username
	}

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	password := cfg.BootstrapPassword
	generated := false
	if password == "" {
		password, err = generatePassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating password: %v\n", err)
			os.Exit(1)
		}
		generated = true
	}

	user, err := st.GetUserByUsername(ctx, cfg.BootstrapAdmin)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		hash, err := auth.HashPassword(password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
			os.Exit(1)
		}
		id, err := st.CreateUser(ctx, &model.User{
			Username:     cfg.BootstrapAdmin,
			Email:        cfg.BootstrapEmail,
			PasswordHash: hash,
			CreatedAt:    time.Now(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating admin: %v\n", err)
			os.Exit(1)
		}
		user, err = st.GetUser(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading admin: %v\n", err)
			os.Exit(1)
		}
		created = true
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Error looking up admin: %v\n", err)
		os.Exit(1)
	}

	for _, role := range []string{model.RoleAdmin, model.RoleUser} {
		if err := st.AssignRole(ctx, user.ID, role); err != nil && !errors.Is(err, store.ErrDuplicateRole) {
			fmt.Fprintf(os.Stderr, "Error assigning role %s: %v\n", role, err)
			os.Exit(1)
		}
	}

	if created {
		fmt.Printf("✓ Created admin '%s'\n", user.Username)
		if generated {
			fmt.Printf("  Password: %s\n", password)
			fmt.Println("  Store this password now; it is not saved anywhere else.")
		}
	} else {
		fmt.Printf("✓ Admin '%s' already exists; roles verified\n", user.Username)
	}
}

// ============================================================================
// CLIENT COMMANDS
// ============================================================================

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "Username (required)")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (required, min 8 chars)")
	url := fs.String("url", "http://localhost:8080", "Connectly server URL")
	fs.Parse(args)

	if *name == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: --name and --password are required")
		fmt.Fprintln(os.Stderr, "Usage: connectly register --name <username> --password <password>")
		os.Exit(1)
	}

	c := client.New(strings.TrimSuffix(*url, "/"))
	if err := c.RegisterAndLogin(*name, *email, *password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := CLIConfig{
		BaseURL:  c.BaseURL,
		Username: *name,
		Token:    c.Token,
		TokenExp: c.TokenExp.Format(time.RFC3339),
	}
	if err := saveCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Registered and logged in as '%s'\n", *name)
	fmt.Printf("  Token expires: %s\n", cfg.TokenExp)
	fmt.Println("\nReady to post! Example:")
	fmt.Println("  connectly post --content \"My first post\"")
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	name := fs.String("name", "", "Username")
	password := fs.String("password", "", "Password")
	url := fs.String("url", "", "Connectly server URL (defaults to saved)")
	fs.Parse(args)

	cfg, _ := loadCLIConfig()
	if *name != "" {
		cfg.Username = *name
	}
	if *url != "" {
		cfg.BaseURL = strings.TrimSuffix(*url, "/")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: --name and --password are required")
		os.Exit(1)
	}

	c := client.New(cfg.BaseURL)
	if err := c.Login(cfg.Username, *password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg.Token = c.Token
	cfg.TokenExp = c.TokenExp.Format(time.RFC3339)
	if err := saveCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Logged in as '%s'\n", cfg.Username)
	fmt.Printf("  Expires: %s\n", cfg.TokenExp)
}

func cmdLogout(args []string) {
	c, cfg, err := loadAuthenticatedClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := c.Logout(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Token = ""
	cfg.TokenExp = ""
	if err := saveCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Logged out")
}

func cmdPost(args []string) {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	title := fs.String("title", "", "Post title (optional)")
	content := fs.String("content", "", "Post content (required)")
	postType := fs.String("type", "", "Post type: text, image, video, article, poll")
	var metaFlags stringList
	fs.Var(&metaFlags, "meta", "Metadata key=value (repeatable)")
	fs.Parse(args)

	if *content == "" {
		fmt.Fprintln(os.Stderr, "Error: --content is required")
		os.Exit(1)
	}

	c, _, err := loadAuthenticatedClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	metadata := map[string]any{}
	for _, pair := range metaFlags {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: bad --meta %q, want key=value\n", pair)
			os.Exit(1)
		}
		metadata[key] = value
	}

	post, err := c.CreatePost(*postType, *title, *content, metadata)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Posted: %s\n", post.Title)
	fmt.Printf("  ID: %d (%s)\n", post.ID, post.PostType)
}

func cmdComment(args []string) {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	postID := fs.Int64("post", 0, "Post ID (required)")
	text := fs.String("text", "", "Comment text (required)")
	fs.Parse(args)

	if *postID == 0 || *text == "" {
		fmt.Fprintln(os.Stderr, "Error: --post and --text are required")
		os.Exit(1)
	}

	c, _, err := loadAuthenticatedClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	comment, err := c.CreateComment(*postID, *text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Commented on post %d\n", *postID)
	fmt.Printf("  ID: %d\n", comment.ID)
}

func cmdRead(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Number of posts")
	postID := fs.Int64("post", 0, "Get specific post with comments")
	fs.Parse(args)

	cfg, _ := loadCLIConfig()
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	c := client.New(baseURL)

	if *postID != 0 {
		post, err := c.GetPost(*postID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s\n", post.Title)
		fmt.Printf("  By %s | %s | %d comments\n", post.AuthorUsername, post.PostType, post.CommentCount)
		fmt.Printf("\n  %s\n", post.Content)

		comments, err := c.GetComments(*postID)
		if err == nil && len(comments) > 0 {
			fmt.Printf("\n  --- Comments (%d) ---\n", len(comments))
			for _, comment := range comments {
				fmt.Printf("  [%d] %s: %s\n", comment.ID, comment.AuthorUsername, comment.Text)
			}
		}
		return
	}

	posts, err := c.GetPosts(*limit, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nConnectly")
	fmt.Println()
	for i, p := range posts {
		fmt.Printf("%d. %s\n", i+1, p.Title)
		fmt.Printf("   %s | %d comments | by %s | #%d\n\n",
			p.PostType, p.CommentCount, p.AuthorUsername, p.ID)
	}
}

func cmdStatus(args []string) {
	cfg, err := loadCLIConfig()
	if err != nil {
		fmt.Println("Status: Not logged in")
		fmt.Println("\nRun: connectly register --name <name> --password <password>")
		return
	}

	fmt.Printf("User:   %s\n", cfg.Username)
	fmt.Printf("Server: %s\n", cfg.BaseURL)

	if cfg.Token == "" {
		fmt.Println("Token:  Not authenticated")
		fmt.Println("\nRun: connectly login")
		return
	}
	exp, _ := time.Parse(time.RFC3339, cfg.TokenExp)
	if time.Now().After(exp) {
		fmt.Println("Token:  Expired")
		fmt.Println("\nRun: connectly login")
		return
	}
	fmt.Printf("Token:  Valid until %s\n", cfg.TokenExp)

	c, _, err := loadAuthenticatedClient()
	if err != nil {
		return
	}
	if identity, err := c.WhoAmI(); err == nil {
		fmt.Printf("Roles:  %s\n", strings.Join(identity.Roles, ", "))
	}
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	var setFlags stringList
	fs.Var(&setFlags, "set", "Setting NAME=VALUE (repeatable, admin only)")
	fs.Parse(args)

	c, _, err := loadAuthenticatedClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(setFlags) > 0 {
		values := map[string]any{}
		for _, pair := range setFlags {
			name, raw, ok := strings.Cut(pair, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: bad --set %q, want NAME=VALUE\n", pair)
				os.Exit(1)
			}
			values[name] = parseSettingValue(raw)
		}
		if err := c.SetConfig(values); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Updated %d setting(s)\n", len(values))
	}

	current, err := c.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Server settings:")
	for name, value := range current {
		fmt.Printf("  %s = %v\n", name, value)
	}
}

// parseSettingValue interprets CLI setting values the way the API would
// receive them from JSON: bools and numbers where they parse, else strings.
func parseSettingValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// stringList collects repeated flag values.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func connectlyDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".connectly")
}

func cliConfigPath() string {
	return filepath.Join(connectlyDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not logged in - run 'connectly register' or 'connectly login'")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(connectlyDir(), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(cliConfigPath(), data, 0600)
}

func loadAuthenticatedClient() (*client.Client, CLIConfig, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, CLIConfig{}, err
	}
	if cfg.Token == "" {
		return nil, CLIConfig{}, errors.New("not authenticated - run 'connectly login'")
	}
	if cfg.TokenExp != "" {
		exp, _ := time.Parse(time.RFC3339, cfg.TokenExp)
		if time.Now().After(exp) {
			return nil, CLIConfig{}, errors.New("token expired - run 'connectly login'")
		}
	}

	c := client.New(cfg.BaseURL)
	c.Token = cfg.Token
	c.TokenExp, _ = time.Parse(time.RFC3339, cfg.TokenExp)
	return c, cfg, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
