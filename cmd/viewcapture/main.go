// viewcapture captures view-only documents rendered by a web viewer and
// reassembles their pages into a PDF.
//
// Usage:
//
//	viewcapture capture [options] <url>
//	viewcapture serve [-config file.yaml]
//	viewcapture info [-p range] <file.pdf>
package main

import (
	"context"
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

	"github.com/redis/go-redis/v9"

	"github.com/porticus-lab/viewcapture"
	"github.com/porticus-lab/viewcapture/internal/config"
	"github.com/porticus-lab/viewcapture/internal/jobs"
	"github.com/porticus-lab/viewcapture/internal/logging"
	"github.com/porticus-lab/viewcapture/internal/pdf"
	"github.com/porticus-lab/viewcapture/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "capture":
		err = runCapture(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`viewcapture - capture view-only documents as PDF

Usage:
  viewcapture capture [options] <url>
  viewcapture serve [-config file.yaml]
  viewcapture info [-p range] <file.pdf>

Commands:
  capture   Capture one document and write it as a PDF
  serve     Run the HTTP job service
  info      Display page count and dimensions of a PDF

Capture options:
  -o <file>         Output file (default: output.pdf)
  -data-dir <dir>   Keep downloaded page images in dir (default: temporary)
  -chrome <path>    Browser executable (default: auto-detect)
  -no-sandbox       Disable the browser sandbox (containers running as root)
  -download         Download a browser when none is installed
  -page-order       Order pages by their page number instead of discovery
  -v                Log progress to stderr

Info options:
  -p <range>        Page range, e.g. "1", "1-5", "1,3,5" (default: all)

Examples:
  viewcapture capture -o report.pdf https://drive.google.com/file/d/<id>/view
  viewcapture serve -config viewcapture.yaml
  viewcapture info -p 1-3 report.pdf
`)
}

// runCapture implements the "capture" command.
func runCapture(args []string) error {
	var (
		outputFile = "output.pdf"
		dataDir    string
		target     string
		verbose    bool
		opts       []viewcapture.Option
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o", "-data-dir", "-chrome":
			flag := args[i]
			i++
			if i >= len(args) {
				return fmt.Errorf("%s requires an argument", flag)
			}
			switch flag {
			case "-o":
				outputFile = args[i]
			case "-data-dir":
				dataDir = args[i]
			case "-chrome":
				opts = append(opts, viewcapture.WithChromePath(args[i]))
			}
		case "-no-sandbox":
			opts = append(opts, viewcapture.WithNoSandbox())
		case "-download":
			opts = append(opts, viewcapture.WithAutoDownload())
		case "-page-order":
			opts = append(opts, viewcapture.WithPageOrder(true))
		case "-v":
			verbose = true
		default:
			if strings.HasPrefix(args[i], "-") {
				return fmt.Errorf("unknown option: %s", args[i])
			}
			target = args[i]
		}
	}

	if target == "" {
		return fmt.Errorf("no URL specified")
	}
	if verbose {
		opts = append(opts, viewcapture.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}

	if dataDir == "" {
		tmp, err := os.MkdirTemp("", "viewcapture-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dataDir = tmp
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capt, err := viewcapture.CaptureURL(ctx, target, dataDir, opts...)
	if err != nil {
		return err
	}
	if err := capt.Result.WriteToFile(outputFile, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputFile, err)
	}

	fmt.Printf("Wrote %s: %d pages (%s)\n", outputFile, capt.Result.PageCount(), capt.Outcome)
	if missing := capt.MissingPages(); len(missing) > 0 {
		fmt.Printf("Missing pages (capture order): %v\n", oneBased(missing))
	}
	if !capt.LikelyComplete {
		fmt.Fprintln(os.Stderr, "warning: scrolling ended while new pages were still appearing; the document may be incomplete")
	}
	return nil
}

func oneBased(seqs []int) []int {
	out := make([]int, len(seqs))
	for i, s := range seqs {
		out[i] = s + 1
	}
	return out
}

// runServe implements the "serve" command.
func runServe(args []string) error {
	var configFile string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config":
			i++
			if i >= len(args) {
				return fmt.Errorf("-config requires an argument")
			}
			configFile = args[i]
		default:
			return fmt.Errorf("unknown option: %s", args[i])
		}
	}

	cfg, err := config.Load(configFile, ".env")
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(logging.Options{
		Dir:     cfg.Log.Dir,
		Level:   level,
		Console: !cfg.Production(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	if err := logging.Cleanup(cfg.Log.Dir, cfg.Log.MaxFiles); err != nil {
		logger.Warn("log cleanup failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var registry jobs.Registry = jobs.NewMemoryRegistry()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		registry = jobs.NewRedisRegistry(client, cfg.Redis.TTL)
		logger.Info("using redis job registry", "addr", cfg.Redis.Addr)
	}

	var mirror jobs.Mirror
	if cfg.Minio.Endpoint != "" {
		m, err := jobs.NewMinioMirror(ctx, jobs.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Region:    cfg.Minio.Region,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return err
		}
		mirror = m
		logger.Info("mirroring artifacts", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
	}

	capturer := viewcapture.NewCapturer(captureOptions(cfg, logger)...)
	storage := jobs.NewLocalStorage(cfg.DataDir)
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "jobs"), 0o755); err != nil {
		return err
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	coord := jobs.NewCoordinator(jobCtx, registry, storage, capturer, jobs.Options{
		MaxSessions: cfg.Capture.MaxSessions,
		Mirror:      mirror,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: server.New(coord, server.Options{
			PublicDir:   cfg.Server.PublicDir,
			LogDir:      cfg.Log.Dir,
			LogUser:     cfg.Server.LogUser,
			LogPassword: cfg.Server.LogPassword,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", "port", cfg.Server.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownIn)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancelJobs()
	coord.Wait()
	logger.Info("server exited")
	return nil
}

func captureOptions(cfg *config.Config, logger *slog.Logger) []viewcapture.Option {
	c := cfg.Capture
	norm := viewcapture.DefaultNormalizeConfig()
	norm.Width = c.NormalizedWidth

	opts := []viewcapture.Option{
		viewcapture.WithScrollPacing(c.ScrollDelay, c.SettleDelay),
		viewcapture.WithNavigationTimeout(c.NavigationTimeout),
		viewcapture.WithFetchConcurrency(c.FetchConcurrency),
		viewcapture.WithNormalize(norm),
		viewcapture.WithPageOrder(c.PageOrder),
		viewcapture.WithLogger(logger),
	}
	if c.ChromePath != "" {
		opts = append(opts, viewcapture.WithChromePath(c.ChromePath))
	}
	if c.NoSandbox {
		opts = append(opts, viewcapture.WithNoSandbox())
	}
	if c.AutoDownload {
		opts = append(opts, viewcapture.WithAutoDownload())
	}
	return opts
}

// runInfo implements the "info" command.
func runInfo(args []string) error {
	var pageRange, inputFile string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-p":
			i++
			if i >= len(args) {
				return fmt.Errorf("-p requires an argument")
			}
			pageRange = args[i]
		default:
			if strings.HasPrefix(args[i], "-") {
				return fmt.Errorf("unknown option: %s", args[i])
			}
			inputFile = args[i]
		}
	}
	if inputFile == "" {
		return fmt.Errorf("no input file specified")
	}

	doc, err := pdf.Open(inputFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inputFile, err)
	}

	pages, err := doc.Pages()
	if err != nil {
		return fmt.Errorf("reading pages: %w", err)
	}
	indices, err := parsePageRange(pageRange, len(pages))
	if err != nil {
		return fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	fmt.Printf("File:    %s\n", inputFile)
	fmt.Printf("Version: PDF-%s\n", doc.Version())
	fmt.Printf("Pages:   %d\n", len(pages))

	if len(indices) > 0 {
		fmt.Println()
		fmt.Println("Page dimensions:")
		for _, idx := range indices {
			info := doc.GetPageInfo(pages[idx])
			fmt.Printf("  Page %d: %.0f x %.0f pt", idx+1, info.Width, info.Height)
			if info.Rotation != 0 {
				fmt.Printf(" (rotated %d°)", info.Rotation)
			}
			for _, img := range doc.PageImages(pages[idx]) {
				fmt.Printf(" [%s %dx%d %s", img.Name, img.Width, img.Height, img.ColorSpace)
				if img.Filter != "" {
					fmt.Printf(" %s", img.Filter)
				}
				if img.HasMask {
					fmt.Print(" +alpha")
				}
				fmt.Print("]")
			}
			fmt.Println()
		}
	}

	return nil
}

// parsePageRange converts a page range string to a slice of 0-based page indices.
// Supported formats: "" (all), "3" (single page), "1-5" (range), "1,3,5" (list).
func parsePageRange(spec string, total int) ([]int, error) {
	if spec == "" {
		indices := make([]int, total)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	var indices []int
	seen := make(map[int]bool)
	add := func(p int) {
		if !seen[p] {
			indices = append(indices, p-1)
			seen[p] = true
		}
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid page number: %s", lo)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid page number: %s", hi)
			}
			if start < 1 || end > total || start > end {
				return nil, fmt.Errorf("page range %d-%d out of bounds (1-%d)", start, end, total)
			}
			for p := start; p <= end; p++ {
				add(p)
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid page number: %s", part)
		}
		if p < 1 || p > total {
			return nil, fmt.Errorf("page %d out of bounds (1-%d)", p, total)
		}
		add(p)
	}

	return indices, nil
}
