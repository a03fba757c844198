package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/escpos"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/printerr"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/utils"
)

const (
	defaultTestTimeout  = 1500 * time.Millisecond
	defaultPrintTimeout = 4 * time.Second
	maxRequestTimeout   = 30 * time.Second
)

// PrinterClient is the connection manager as seen by the HTTP layer and the agent.
type PrinterClient interface {
	Probe(ctx context.Context, t model.Target) error
	Transmit(ctx context.Context, t model.Target, data []byte) error
}

// BillRenderer turns a bill into an encoded PNG.
type BillRenderer interface {
	RenderBill(ctx context.Context, bill model.Bill, opts model.EncodeOptions) ([]byte, error)
}

// Server is the HTTP API used by the POS UI.
type Server struct {
	config   model.Config
	printer  PrinterClient
	renderer BillRenderer
	logger   *zap.Logger
	router   *gin.Engine
}

// NewServer wires the routes. renderer may be nil, which disables print_html.
func NewServer(cfg model.Config, printer PrinterClient, renderer BillRenderer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.LogDev {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		config:   cfg,
		printer:  printer,
		renderer: renderer,
		logger:   logger,
	}
	s.setup()
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setup() {
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestLogger(), s.cors())

	api := s.router.Group(s.config.APIPrefix)
	api.POST("/printers/xprinter/test", s.handleTest)
	api.POST("/printers/xprinter/print", s.handlePrint)
	api.POST("/printers/xprinter/print_png", s.handlePrintPNG)
	api.POST("/printers/xprinter/print_html", s.handlePrintHTML)

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.NoRoute(s.handleStatic)
}

// --- Middleware ---

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = s.config.CORSOrigin
		}
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// --- Request Bodies ---

type targetRequest struct {
	Host      string       `json:"host"`
	Port      model.Number `json:"port"`
	TimeoutMs model.Number `json:"timeoutMs"`
}

func (r targetRequest) target(defaultTimeout time.Duration) (model.Target, error) {
	if strings.TrimSpace(r.Host) == "" {
		return model.Target{}, &printerr.ValidationError{Field: "host", Reason: "Missing host"}
	}
	port := int(r.Port)
	if port == 0 {
		port = model.DefaultPrinterPort
	}
	if port < 1 || port > 65535 {
		return model.Target{}, &printerr.ValidationError{Field: "port", Reason: "must be between 1 and 65535"}
	}
	timeout := defaultTimeout
	if ms := r.TimeoutMs.Float(); ms > 0 {
		timeout = min(time.Duration(ms*float64(time.Millisecond)), maxRequestTimeout)
	}
	return model.Target{Host: strings.TrimSpace(r.Host), Port: port, Timeout: timeout}, nil
}

type testRequest struct {
	targetRequest
}

type printRequest struct {
	targetRequest
	Bill *model.Bill          `json:"bill"`
	Opts *model.EncodeOptions `json:"opts"`
}

type printPNGRequest struct {
	targetRequest
	PNGBase64 string   `json:"pngBase64"`
	DataURL   string   `json:"dataUrl"`
	Threshold *float64 `json:"threshold"`
}

type printHTMLRequest struct {
	printRequest
	Threshold *float64 `json:"threshold"`
}

// readJSON decodes the body into v. An empty body leaves v untouched.
func readJSON(c *gin.Context, v any) error {
	body, err := c.GetRawData()
	if err != nil {
		return &printerr.ValidationError{Reason: "Unreadable body"}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &printerr.ValidationError{Reason: "Invalid JSON body"}
	}
	return nil
}

// --- Handlers ---

// handleTest checks TCP connectivity to a printer.
func (s *Server) handleTest(c *gin.Context) {
	var req testRequest
	if err := readJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	target, err := req.target(defaultTestTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.printer.Probe(c.Request.Context(), target); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handlePrint prints a bill as ESC/POS text.
func (s *Server) handlePrint(c *gin.Context) {
	var req printRequest
	if err := readJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	target, err := req.target(defaultPrintTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	if req.Bill == nil {
		s.fail(c, &printerr.ValidationError{Field: "bill", Reason: "Missing bill"})
		return
	}

	s.send(c, target, escpos.EncodeReceipt(*req.Bill, s.encodeOptions(req.Opts)))
}

// handlePrintPNG prints a bitmap sent as base64 or as a data URL.
func (s *Server) handlePrintPNG(c *gin.Context) {
	var req printPNGRequest
	if err := readJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	target, err := req.target(defaultPrintTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	threshold, err := thresholdOf(req.Threshold)
	if err != nil {
		s.fail(c, err)
		return
	}

	b64 := imagePayload(req.PNGBase64, req.DataURL)
	if b64 == "" {
		s.fail(c, &printerr.ValidationError{Field: "pngBase64", Reason: "Missing PNG data"})
		return
	}
	raw, err := decodeBase64(b64)
	if err != nil || len(raw) < 8 {
		s.fail(c, &printerr.ValidationError{Field: "pngBase64", Reason: "Invalid base64 PNG"})
		return
	}

	data, err := escpos.EncodeImageFile(raw, threshold)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.send(c, target, data)
}

// handlePrintHTML renders the bill server-side and prints it as a bitmap.
func (s *Server) handlePrintHTML(c *gin.Context) {
	if s.renderer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "HTML rendering is not available (Chrome not found)"})
		return
	}
	var req printHTMLRequest
	if err := readJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	target, err := req.target(defaultPrintTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	if req.Bill == nil {
		s.fail(c, &printerr.ValidationError{Field: "bill", Reason: "Missing bill"})
		return
	}
	threshold, err := thresholdOf(req.Threshold)
	if err != nil {
		s.fail(c, err)
		return
	}

	png, err := s.renderer.RenderBill(c.Request.Context(), *req.Bill, s.encodeOptions(req.Opts))
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := escpos.EncodeImageFile(png, threshold)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.send(c, target, data)
}

// handleStatic serves the built SPA, falling back to index.html for client routes.
func (s *Server) handleStatic(c *gin.Context) {
	method := c.Request.Method
	p := c.Request.URL.Path
	apiRoot := s.config.APIPrefix
	if apiRoot == "" {
		apiRoot = "/printers"
	}
	if (method != http.MethodGet && method != http.MethodHead) || strings.HasPrefix(p, apiRoot+"/") || s.config.ClientDir == "" {
		c.String(http.StatusNotFound, "Not Found")
		return
	}

	index := filepath.Join(s.config.ClientDir, "index.html")
	file := filepath.Join(s.config.ClientDir, filepath.FromSlash(path.Clean("/"+p)))
	if fi, err := os.Stat(file); err != nil || fi.IsDir() {
		file = index
	}
	if _, err := os.Stat(file); err != nil {
		c.String(http.StatusNotFound, "Not Found")
		return
	}
	c.File(file)
}

// --- Helpers ---

func (s *Server) encodeOptions(opts *model.EncodeOptions) model.EncodeOptions {
	var out model.EncodeOptions
	if opts != nil {
		out = *opts
	}
	if out.Width <= 0 {
		out.Width = s.config.PrintWidth
	}
	return out
}

func (s *Server) send(c *gin.Context, target model.Target, data []byte) {
	jobID := utils.NewJobID()
	ctx := model.WithJobID(c.Request.Context(), jobID)
	if err := s.printer.Transmit(ctx, target, data); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "jobId": jobID})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	var verr *printerr.ValidationError
	switch {
	case errors.As(err, &verr):
		msg = verr.Reason
	case printerr.KindOf(err) == printerr.KindDecode:
		msg = "Invalid PNG image data"
	}

	fields := []zap.Field{
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.String("kind", printerr.KindOf(err).String()),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Print request failed", fields...)
	} else {
		s.logger.Info("Print request rejected", fields...)
	}
	c.JSON(status, gin.H{"ok": false, "error": msg})
}

func statusFor(err error) int {
	switch printerr.KindOf(err) {
	case printerr.KindValidation, printerr.KindDecode:
		return http.StatusBadRequest
	case printerr.KindTimeout, printerr.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func thresholdOf(v *float64) (int, error) {
	if v == nil {
		return escpos.DefaultThreshold, nil
	}
	t := math.Round(*v)
	if t < 0 || t > 255 {
		return 0, &printerr.ValidationError{Field: "threshold", Reason: "threshold must be between 0 and 255"}
	}
	return int(t), nil
}

// imagePayload picks the base64 text, dropping any data URL prefix.
func imagePayload(pngBase64, dataURL string) string {
	s := pngBase64
	if s == "" {
		if !strings.Contains(dataURL, "base64,") {
			return ""
		}
		s = dataURL
	}
	if i := strings.LastIndex(s, "base64,"); i >= 0 {
		s = s[i+len("base64,"):]
	}
	return strings.TrimSpace(s)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
