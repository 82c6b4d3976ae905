package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookreview/pkg/api"
	"bookreview/pkg/bookview"
	"bookreview/pkg/catalog"
	"bookreview/pkg/config"
	"bookreview/pkg/database"
	"bookreview/pkg/goodreads"
	"bookreview/pkg/ledger"
	"bookreview/pkg/logging"
	"bookreview/pkg/search"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var openDatabase = database.Open

// CLI is the command tree of the bookreview binary.
type CLI struct {
	Serve  ServeCmd  `cmd:"" default:"1" help:"Run the book review HTTP service"`
	Import ImportCmd `cmd:"" help:"Load books from an isbn,title,author,year CSV file"`
}

type ServeCmd struct {
	Port int `help:"Listen port (overrides HTTP_PORT)"`
}

type ImportCmd struct {
	File string `short:"f" required:"" help:"Path to the books CSV file"`
}

// runtime carries what every command needs after startup.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bookreview"),
		kong.Description("Book review service: search, reviews and rating statistics."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("bookreview", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := ctx.Run(&runtime{cfg: cfg, logger: logger, out: os.Stdout}); err != nil {
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func (s *ServeCmd) Run(rt *runtime) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, rt.cfg.DB, rt.logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	port := rt.cfg.HTTPPort
	if s.Port != 0 {
		port = s.Port
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           buildRouter(db, rt.cfg, rt.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("book review service starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (i *ImportCmd) Run(rt *runtime) error {
	ctx := context.Background()

	f, err := os.Open(i.File)
	if err != nil {
		return fmt.Errorf("open %s: %w", i.File, err)
	}
	defer f.Close()

	db, err := openDatabase(ctx, rt.cfg.DB, rt.logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	result, err := catalog.New(db).Import(ctx, f)
	if err != nil {
		return err
	}

	rt.logger.Info("catalog import finished",
		slog.String("file", i.File),
		slog.Int("read", result.Read),
		slog.Int64("inserted", result.Inserted),
		slog.Int64("skipped", result.Skipped()),
	)
	fmt.Fprintln(rt.out, result)
	return nil
}

func buildRouter(db *gorm.DB, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	books := catalog.New(db)
	reviews := ledger.New(db, logger)

	external := goodreads.New(cfg.Goodreads, logger)
	if !external.Enabled() {
		logger.Warn("GOODREADS_KEY is not set, external statistics are disabled")
	}

	ping := func(ctx context.Context) error { return database.Ping(ctx, db) }
	h := api.NewHandler(
		search.New(db, cfg.SearchLimit),
		reviews,
		bookview.New(db, books, reviews, external),
		ping,
		logger,
	)
	return api.NewRouter(h, logger)
}
