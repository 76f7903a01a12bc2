package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/soullink/internal/api"
	"github.com/kalambet/soullink/internal/autonomy"
	"github.com/kalambet/soullink/internal/backend"
	"github.com/kalambet/soullink/internal/chat"
	"github.com/kalambet/soullink/internal/config"
	"github.com/kalambet/soullink/internal/dispatch"
	"github.com/kalambet/soullink/internal/entity"
	"github.com/kalambet/soullink/internal/feed"
	"github.com/kalambet/soullink/internal/pet"
	"github.com/kalambet/soullink/internal/session"
	"github.com/kalambet/soullink/internal/storage"
)

// apiTokenRecord names the storage record holding the bearer token the
// HTTP API expects. Generated on first start, overridable with
// SOULLINK_API_TOKEN.
const apiTokenRecord = "api_token"

// autonomyReplyDelay is how long after a character reply the persona
// may follow up with feed activity.
const autonomyReplyDelay = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the soullink server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running soullink server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show soullink system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "soullink.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "soullink version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("soullink is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("soullink is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Ensure an API token exists for bearer auth.
	apiToken, err := ensureAPIToken(store)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// The stores flush changed collections through this hook; failures
	// are logged, never retried.
	persist := func(key string, value any) {
		if err := store.SaveJSON(key, value); err != nil {
			slog.Error("persisting record", "key", key, "error", err)
		}
	}

	// Build the in-memory stores and rehydrate them from storage.
	entities := entity.NewStore(entity.PersistFunc(persist))
	sessions := session.NewStore(session.PersistFunc(persist))
	pets := pet.NewKeeper(pet.PersistFunc(persist))
	posts := feed.NewStore(feed.PersistFunc(persist))
	if err := hydrate(store, entities, sessions, pets, posts); err != nil {
		return fmt.Errorf("hydrating state: %w", err)
	}

	// Wire the conversation orchestrator.
	client := backend.NewClient()
	sched := dispatch.NewScheduler(time.Duration(cfg.Dispatch.FragmentStaggerMs) * time.Millisecond)
	feedSvc := feed.NewService(posts, entities, client, feed.Probabilities{
		Post:    cfg.Autonomy.PostProbability,
		Comment: cfg.Autonomy.CommentProbability,
	}, slog.Default(), nil)
	chatSvc := chat.NewService(entities, sessions, pets, feedSvc, client, sched, chat.Options{
		GeneralWeights: dispatch.KindWeights{
			Voice: cfg.Dispatch.VoiceProbGeneral,
			Image: cfg.Dispatch.ImageProbGeneral,
		},
		AttachmentWeights: dispatch.KindWeights{
			Voice: cfg.Dispatch.VoiceProbAttachment,
			Image: cfg.Dispatch.ImageProbAttachment,
		},
		DurationFactor:     cfg.Dispatch.VoiceDurationFactor,
		TransferAcceptProb: cfg.Autonomy.TransferAcceptProb,
		TransferDelay:      time.Duration(cfg.Autonomy.TransferDelayMs) * time.Millisecond,
		AutonomyDelay:      autonomyReplyDelay,
	}, slog.Default(), nil)
	defer chatSvc.Close()

	// Start the background autonomy loop: pet decay plus unprompted
	// feed activity.
	runner := autonomy.NewRunner(pets, feedSvc, entities, nil, time.Duration(cfg.Autonomy.TickSeconds)*time.Second)
	go runner.Run(ctx)

	// Build HTTP handler and server.
	deps := api.Deps{
		Entities: entities,
		Sessions: sessions,
		Feed:     posts,
		FeedSvc:  feedSvc,
		Pets:     pets,
		Chat:     chatSvc,
		Client:   client,
		Token:    apiToken,
	}
	handler := api.NewHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(deps)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Serve until a signal or server error; the second goroutine turns
	// context cancellation into a graceful shutdown.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "soullink listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ensureAPIToken returns the bearer token for the HTTP API, generating
// and persisting one on first start. SOULLINK_API_TOKEN overrides the
// stored token without replacing it.
func ensureAPIToken(store *storage.Store) (string, error) {
	if token := os.Getenv("SOULLINK_API_TOKEN"); token != "" {
		return token, nil
	}
	var token string
	if err := store.LoadJSON(apiTokenRecord, &token); err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}
	token = uuid.NewString()
	if err := store.SaveJSON(apiTokenRecord, token); err != nil {
		return "", err
	}
	return token, nil
}

// hydrate restores the in-memory stores from their persisted records.
// Missing records leave the defaults in place.
func hydrate(store *storage.Store, entities *entity.Store, sessions *session.Store, pets *pet.Keeper, posts *feed.Store) error {
	var profiles []entity.ConnectionProfile
	if err := store.LoadJSON(entity.RecordProfiles, &profiles); err != nil {
		return err
	}
	var personas []entity.Persona
	if err := store.LoadJSON(entity.RecordPersonas, &personas); err != nil {
		return err
	}
	var packs []entity.WorldKnowledgePack
	if err := store.LoadJSON(entity.RecordWorldPacks, &packs); err != nil {
		return err
	}
	var presets []entity.PromptPreset
	if err := store.LoadJSON(entity.RecordPresets, &presets); err != nil {
		return err
	}
	entities.Hydrate(profiles, personas, packs, presets)

	var user entity.UserProfile
	if err := store.LoadJSON(entity.RecordUserProfile, &user); err != nil {
		return err
	}
	if user.Name != "" || user.ID != "" {
		entities.HydrateUserProfile(user)
	}

	histories := make(map[string][]session.Message)
	if err := store.LoadJSON(session.RecordHistories, &histories); err != nil {
		return err
	}
	var groups []session.Group
	if err := store.LoadJSON(session.RecordGroups, &groups); err != nil {
		return err
	}
	var quick []session.QuickChat
	if err := store.LoadJSON(session.RecordQuickChats, &quick); err != nil {
		return err
	}
	sessions.Hydrate(histories, groups, quick)

	var petState pet.State
	if err := store.LoadJSON(pet.RecordKey, &petState); err != nil {
		return err
	}
	if petState.Name != "" {
		pets.Hydrate(petState)
	}

	var feedPosts []feed.Post
	if err := store.LoadJSON(feed.RecordKey, &feedPosts); err != nil {
		return err
	}
	posts.Hydrate(feedPosts)

	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("soullink is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop soullink (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to soullink (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Show persona/group counts if server is running.
	if running {
		if apiClient, err := newAPIClient(); err == nil {
			if resp, err := apiClient.get(context.Background(), "/personas/"); err == nil {
				var personas []json.RawMessage
				if json.NewDecoder(resp.Body).Decode(&personas) == nil {
					printStatus("Personas", "%d", len(personas))
				}
				resp.Body.Close()
			}
			if resp, err := apiClient.get(context.Background(), "/groups/"); err == nil {
				var groups []json.RawMessage
				if json.NewDecoder(resp.Body).Decode(&groups) == nil {
					printStatus("Groups", "%d", len(groups))
				}
				resp.Body.Close()
			}
			if resp, err := apiClient.get(context.Background(), "/pet"); err == nil {
				var state struct {
					Name   string  `json:"name"`
					Energy float64 `json:"energy"`
					Mood   float64 `json:"mood"`
				}
				if json.NewDecoder(resp.Body).Decode(&state) == nil {
					printStatus("Pet", "%s (energy %.0f, mood %.0f)", state.Name, state.Energy, state.Mood)
				}
				resp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
