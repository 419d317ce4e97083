package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"fcpd/internal/config"
	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/logging"
	"fcpd/internal/microservices/http-api/handler"
	"fcpd/internal/microservices/http-api/middleware"
	"fcpd/internal/microservices/http-api/service"
	"fcpd/internal/microservices/tcp"
	"fcpd/internal/tools"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the FUDI bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigFile(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := newBridge(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := b.start(ctx); err != nil {
			b.shutdown()
			return err
		}

		select {
		case <-ctx.Done():
			logger.Info("received_shutdown_signal")
		case <-b.done():
			logger.Info("server_closed_by_peer")
		}
		b.shutdown()
		logger.Info("server_stopped_gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// bridge is everything serve runs: store, document, FUDI server, tools
// and the optional operator API
type bridge struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    host.Store
	doc      *host.Document
	srv      *tcp.Server
	tools    *tools.Tools
	http     *http.Server
	httpAddr string
	closed   chan struct{}
}

func newBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bridge, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	doc := host.NewDocument(cfg.Document, store, logger)
	restored, err := doc.Restore(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to restore document %s: %w", cfg.Document, err)
	}
	logger.Info("document_restored", "document", cfg.Document, "store", cfg.Store, "objects", restored)

	srv := tcp.NewServer(tcp.Options{
		ListenAddress:       cfg.ListenAddress,
		ListenPort:          cfg.ListenPort,
		PollInterval:        cfg.PollInterval,
		CallbackDialTimeout: cfg.CallbackDialTimeout,
		MessageRate:         cfg.MessageRate,
		MessageBurst:        cfg.MessageBurst,
		AuthSecret:          cfg.AuthSecret,
		Logger:              logger,
	}, fudi.NewCodec(nil, doc))

	t := tools.New(doc, tools.Options{AllowRaw: cfg.AllowRaw, Logger: logger})
	if err := t.Register(srv); err != nil {
		store.Close()
		return nil, err
	}

	return &bridge{
		cfg:    cfg,
		logger: logger,
		store:  store,
		doc:    doc,
		srv:    srv,
		tools:  t,
		closed: make(chan struct{}),
	}, nil
}

// openStore picks the persistence back-end named in the config
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (host.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return host.NewMemoryStore(), nil
	case config.StoreRedis:
		return host.NewRedisStore(cfg.RedisURL, cfg.RedisPassword, cfg.CacheExpiry())
	case config.StorePostgres:
		return host.OpenPostgresStore(cfg.DatabaseURL)
	case config.StoreHybrid:
		fast, err := host.NewRedisStore(cfg.RedisURL, cfg.RedisPassword, cfg.CacheExpiry())
		if err != nil {
			return nil, err
		}
		durable, err := host.OpenPostgresStore(cfg.DatabaseURL)
		if err != nil {
			fast.Close()
			return nil, err
		}
		hybrid := host.NewHybridStore(fast, durable, logger)
		hybrid.StartBatchWriter(ctx)
		return hybrid, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func (b *bridge) start(ctx context.Context) error {
	if err := b.srv.Start(ctx); err != nil {
		return err
	}
	go func() {
		b.srv.Wait()
		close(b.closed)
	}()

	if b.cfg.HTTPPort == 0 {
		return nil
	}
	if !b.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	var validator middleware.TokenValidator
	if b.cfg.AuthSecret != "" {
		validator = tcp.NewAuthService(b.cfg.AuthSecret)
	}
	router := handler.NewRouter(service.NewBridgeService(b.srv, b.tools, b.logger), validator, b.logger)

	ln, err := net.Listen("tcp", net.JoinHostPort(b.cfg.ListenAddress, strconv.Itoa(b.cfg.HTTPPort)))
	if err != nil {
		return fmt.Errorf("failed to bind operator api: %w", err)
	}
	b.http = &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	b.httpAddr = ln.Addr().String()
	b.logger.Info("operator_api_listening", "addr", b.httpAddr)
	go func() {
		if err := b.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("operator_api_error", "error", err.Error())
		}
	}()
	return nil
}

// done is closed once the FUDI server stopped, e.g. on a peer's close
func (b *bridge) done() <-chan struct{} {
	return b.closed
}

func (b *bridge) shutdown() {
	if b.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := b.http.Shutdown(ctx); err != nil {
			b.logger.Warn("operator_api_shutdown_failed", "error", err.Error())
		}
		cancel()
	}
	b.srv.Terminate()
	b.tools.Close()
	if err := b.store.Close(); err != nil {
		b.logger.Error("failed_to_close_store", "error", err.Error())
	}
}
