package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/escpos"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/printerr"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/utils"
)

// DefaultReconnectDelay is the pause between agent connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// errUnregistered ends an agent session at the server's request.
var errUnregistered = errors.New("unregistered by server")

// --- WebSocket Agent Logic ---

// Agent relays print jobs pushed by the order service to one printer.
type Agent struct {
	printer        model.Printer
	wsURL          string
	apiKey         string
	client         PrinterClient
	logger         *zap.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
}

// NewAgent returns an agent for p. The logger is tagged with the printer name.
func NewAgent(p model.Printer, cfg model.Config, client PrinterClient, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.Width <= 0 {
		p.Width = cfg.PrintWidth
	}
	return &Agent{
		printer:        p,
		wsURL:          cfg.AgentWSURL,
		apiKey:         cfg.APIKey,
		client:         client,
		logger:         logger.With(zap.String("printer", p.Name)),
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
	}
}

// RunAgent keeps an agent connected for p until ctx is cancelled.
func RunAgent(ctx context.Context, p model.Printer, cfg model.Config, client PrinterClient, logger *zap.Logger) {
	NewAgent(p, cfg, client, logger).Run(ctx)
}

// Run connects, serves and reconnects until ctx is done.
func (a *Agent) Run(ctx context.Context) {
	ctx = model.WithPrinterName(ctx, a.printer.Name)
	a.logger.Info("Connecting to WebSocket...", zap.String("url", a.wsURL))

	for {
		err := a.runOnce(ctx)
		if ctx.Err() != nil {
			a.logger.Info("Agent stopped")
			return
		}
		if errors.Is(err, errUnregistered) {
			a.logger.Info("Server requested unregister")
		} else {
			a.logger.Warn("Disconnected, reconnecting", zap.Duration("delay", a.reconnectDelay), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopped")
			return
		case <-time.After(a.reconnectDelay):
		}
	}
}

// runOnce serves a single WebSocket session.
func (a *Agent) runOnce(ctx context.Context) error {
	header := http.Header{}
	header.Add("X-Api-Key", a.apiKey)

	conn, _, err := a.dialer.DialContext(ctx, a.wsURL, header)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the agent is stopped.
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	a.logger.Info("Connected")
	return a.handleConnection(ctx, conn)
}

func (a *Agent) handleConnection(ctx context.Context, conn *websocket.Conn) error {
	regMsg := model.WSMessage{
		Type:     model.MessageTypeRegister,
		AgentKey: a.printer.AgentKey,
	}
	if err := conn.WriteJSON(regMsg); err != nil {
		return fmt.Errorf("failed to send register: %w", err)
	}

	for {
		var msg model.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		switch msg.Type {
		case model.MessageTypeRegistered:
			a.logger.Info("Successfully registered with server")

		case model.MessageTypePing:
			if err := conn.WriteJSON(model.WSMessage{Type: model.MessageTypePong, AgentKey: a.printer.AgentKey}); err != nil {
				return fmt.Errorf("failed to send pong: %w", err)
			}

		case model.MessageTypePrintBill, model.MessageTypePrintPNG:
			if err := a.handlePrintJob(ctx, conn, msg); err != nil {
				return err
			}

		case model.MessageTypeUnregister:
			return errUnregistered

		default:
			a.logger.Warn("Unknown message type", zap.String("type", string(msg.Type)))
		}
	}
}

// handlePrintJob prints one job and reports the outcome. Only a failure to
// report ends the session.
func (a *Agent) handlePrintJob(ctx context.Context, conn *websocket.Conn, msg model.WSMessage) error {
	jobID := msg.JobID
	if jobID == "" {
		jobID = utils.NewJobID()
	}
	ctx = model.WithJobID(ctx, jobID)
	a.logger.Info("Received print job", zap.String("job_id", jobID), zap.String("type", string(msg.Type)))

	reply := model.WSMessage{
		Type:     model.MessageTypePrinted,
		AgentKey: a.printer.AgentKey,
		JobID:    jobID,
	}
	if err := a.print(ctx, msg); err != nil {
		a.logger.Warn("Failed to print",
			zap.String("job_id", jobID),
			zap.String("kind", printerr.KindOf(err).String()),
			zap.Error(err))
		reply.Type = model.MessageTypePrintFailed
		reply.Error = err.Error()
	}

	if err := conn.WriteJSON(reply); err != nil {
		return fmt.Errorf("failed to send %s: %w", reply.Type, err)
	}
	return nil
}

func (a *Agent) print(ctx context.Context, msg model.WSMessage) error {
	var data []byte
	switch msg.Type {
	case model.MessageTypePrintBill:
		if len(msg.Bill) == 0 {
			return &printerr.ValidationError{Field: "bill", Reason: "Missing bill"}
		}
		var bill model.Bill
		if err := json.Unmarshal(msg.Bill, &bill); err != nil {
			return &printerr.ValidationError{Field: "bill", Reason: "Invalid bill JSON"}
		}
		opts := model.EncodeOptions{Width: a.printer.Width}
		if msg.Opts != nil {
			opts = *msg.Opts
			if opts.Width <= 0 {
				opts.Width = a.printer.Width
			}
		}
		data = escpos.EncodeReceipt(bill, opts)

	case model.MessageTypePrintPNG:
		raw, err := decodeBase64(imagePayload(msg.PNGBase64, ""))
		if err != nil || len(raw) < 8 {
			return &printerr.ValidationError{Field: "pngBase64", Reason: "Invalid base64 PNG"}
		}
		threshold := escpos.DefaultThreshold
		if msg.Threshold != nil {
			threshold = *msg.Threshold
		}
		if data, err = escpos.EncodeImageFile(raw, threshold); err != nil {
			return err
		}
	}

	return a.client.Transmit(ctx, a.printer.Target(), data)
}

