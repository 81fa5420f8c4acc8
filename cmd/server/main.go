package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"filedrop/internal/application/auth"
	"filedrop/internal/application/media"
	"filedrop/internal/application/registry"
	"filedrop/internal/config"
	"filedrop/internal/infrastructure/ffmpeg"
	"filedrop/internal/infrastructure/filesystem"
	"filedrop/internal/infrastructure/identity"
	"filedrop/internal/infrastructure/watcher"
	"filedrop/internal/logging"
	httptransport "filedrop/internal/transport/http"
	"filedrop/web"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logging.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal("server failed", zap.Error(err))
	}
	logging.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	_ = mime.AddExtensionType(".m3u8", "application/vnd.apple.mpegurl")
	_ = mime.AddExtensionType(".ts", "video/mp2t")
	_ = mime.AddExtensionType(".mp4", "video/mp4")
	_ = mime.AddExtensionType(".webm", "video/webm")
	_ = mime.AddExtensionType(".mov", "video/quicktime")

	store := filesystem.NewStore(cfg.FilesDir, cfg.HLSDir)
	if err := store.EnsureDirs(); err != nil {
		return fmt.Errorf("storage init: %w", err)
	}

	var policy registry.RefreshPolicy = registry.FullRescan{}
	if cfg.RegistryRefresh == config.RefreshPreserve {
		policy = registry.PreservingRescan{}
	}
	fileRegistry := registry.New(store, policy)
	if err := fileRegistry.Rescan(); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	fileWatcher, err := watcher.New(store.FilesRoot(), cfg.WatchDebounce, fileRegistry.OnFilesystemEvent)
	if err != nil {
		return fmt.Errorf("watcher init: %w", err)
	}

	converter := ffmpeg.NewConverter(cfg.FFmpegPath, store, cfg.HLSSegmentSeconds, cfg.TranscodeTimeout)
	mediaService := media.NewService(store, converter, fileRegistry)

	provider, err := newIdentityProvider(ctx, cfg)
	if err != nil {
		return err
	}
	authService, err := auth.NewService(auth.Options{
		Provider:  provider,
		Whitelist: auth.NewWhitelist(cfg.Whitelist),
		Hosts: auth.CallbackHosts{
			Dev:    cfg.DevHost,
			Local:  cfg.LocalHost,
			Remote: cfg.RemoteHost,
		},
		Port:       cfg.Port,
		Secret:     cfg.SessionSecret,
		SessionTTL: time.Duration(cfg.SessionTTLHours) * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	handler := httptransport.NewHandler(mediaService, authService, httptransport.Options{
		PublicBaseURL:  cfg.PublicBaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		SecureCookies:  strings.HasPrefix(cfg.PublicBaseURL, "https://"),
	})
	router := httptransport.NewRouter(handler, httptransport.RouterOptions{
		HLSDir: cfg.HLSDir,
		Assets: web.Assets,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           httptransport.Wrap(router, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := fileWatcher.Start(gctx); err != nil {
			return fmt.Errorf("watcher start: %w", err)
		}
		<-fileWatcher.Done()
		return nil
	})

	g.Go(func() error {
		logging.Info("server started",
			zap.String("addr", srv.Addr),
			zap.String("public_url", cfg.PublicBaseURL),
			zap.String("auth_provider", provider.Name()),
			zap.Int("files", fileRegistry.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutdown signal received, closing HTTP server")
		fileWatcher.Stop()
		return shutdownServer(srv, shutdownTimeout, mediaService.CancelTranscodes)
	})

	return g.Wait()
}

// shutdownServer drains in-flight requests for up to timeout, then aborts
// background work and force-closes whatever is left.
func shutdownServer(srv *http.Server, timeout time.Duration, abort func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	abort()
	if errors.Is(err, context.DeadlineExceeded) {
		logging.Warn("graceful shutdown timed out, forcing close", zap.Duration("timeout", timeout))
		return srv.Close()
	}
	return err
}

func newIdentityProvider(ctx context.Context, cfg config.Config) (auth.IdentityProvider, error) {
	switch cfg.AuthProvider {
	case config.ProviderOIDC:
		p, err := identity.NewOIDC(ctx, identity.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return identity.NewDiscord(identity.DiscordConfig{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordSecret,
		}), nil
	}
}
