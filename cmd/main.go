package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/services"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/utils"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/xprinter"
)

const (
	appName         = "Perfect Menu XPrinter"
	appVersion      = "1.1.0"
	shutdownTimeout = 5 * time.Second
)

// --- Main ---

func main() {
	scan := flag.Bool("scan", false, "scan the local network for printers and add them to the printers file")
	flag.Parse()

	// 1. Load Configuration
	config, err := utils.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(config.LogLevel, config.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Logger error:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("Configuration loaded",
		zap.String("app", appName),
		zap.String("version", appVersion),
		zap.Int("port", config.Port),
		zap.String("api_prefix", config.APIPrefix),
		zap.String("client_dir", config.ClientDir))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := xprinter.NewClient(logger.Named("xprinter"))

	// 2. Discovery (only on request)
	if *scan {
		if err := discover(ctx, client, config, logger); err != nil {
			logger.Fatal("Discovery failed", zap.Error(err))
		}
		return
	}

	// 3. HTML renderer, when Chrome is available
	var renderer services.BillRenderer
	sys := utils.DetectSystem(config.ChromePath)
	if sys.ChromePresent {
		renderer = services.NewRenderer(sys.ChromePath, logger.Named("render"))
		logger.Info("Chrome found",
			zap.String("os", sys.OS),
			zap.String("arch", sys.Architecture),
			zap.String("path", sys.ChromePath),
			zap.String("version", utils.ChromeVersion(sys.ChromePath)))
	} else {
		logger.Warn("Chrome not found, print_html is disabled")
	}

	// 4. Start Agent for each Printer
	var wg sync.WaitGroup
	if config.AgentWSURL != "" {
		printers, err := utils.LoadPrinters(config.PrintersFile)
		if err != nil {
			logger.Error("Error loading printers", zap.String("file", config.PrintersFile), zap.Error(err))
		}
		for _, p := range printers {
			if !p.IsEnabled || p.AgentKey == "" {
				continue
			}
			wg.Add(1)
			go func(printer model.Printer) {
				defer wg.Done()
				services.RunAgent(ctx, printer, config, client, logger.Named("agent"))
			}(p)
		}
	}

	// 5. HTTP server
	server := services.NewServer(config, client, renderer, logger.Named("http"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if ip, err := utils.DetectLocalIP(); err == nil {
			logger.Info("Server listening", zap.String("url", fmt.Sprintf("http://%s:%d", ip, config.Port)))
		} else {
			logger.Info("Server listening", zap.String("addr", httpServer.Addr))
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	wg.Wait()
}

// discover scans the local subnet and merges the result into the printers file.
func discover(ctx context.Context, client *xprinter.Client, config model.Config, logger *zap.Logger) error {
	localIP, err := utils.DetectLocalIP()
	if err != nil {
		return err
	}
	found, err := services.DiscoverPrinters(ctx, client, localIP, model.DefaultPrinterPort, logger.Named("discovery"))
	if err != nil {
		return err
	}
	if err := utils.SavePrinters(config.PrintersFile, found); err != nil {
		return err
	}
	logger.Info("Printers saved", zap.Int("found", len(found)), zap.String("file", config.PrintersFile))
	return nil
}
