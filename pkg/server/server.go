// Package server exposes the projection factory as a NATS request/reply
// service. Each request gets its own factory and therefore its own name cache.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/nats-io/nats.go"
	sdkerrors "github.com/wehubfusion/Hodos/pkg/errors"
	"github.com/wehubfusion/Hodos/pkg/projection"
	"github.com/wehubfusion/Hodos/pkg/tree"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FactoryFunc returns a fresh factory for one request.
type FactoryFunc func() (*projection.Factory, error)

// Config holds the subscription settings.
type Config struct {
	Subject    string
	QueueGroup string
	// RequestTimeout bounds the work done for one request. Zero means no limit.
	RequestTimeout time.Duration
}

// Server answers projection requests on a NATS subject.
type Server struct {
	config     Config
	newFactory FactoryFunc
	logger     *zap.Logger
	hub        *sentry.Hub
	tracer     trace.Tracer

	mu  sync.Mutex
	sub *nats.Subscription
}

// New creates a server. hub may be nil to disable error reporting.
func New(cfg Config, newFactory FactoryFunc, logger *zap.Logger, hub *sentry.Hub) (*Server, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}
	if newFactory == nil {
		return nil, fmt.Errorf("factory func cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Server{
		config:     cfg,
		newFactory: newFactory,
		logger:     logger,
		hub:        hub,
		tracer:     otel.Tracer("hodos/server"),
	}, nil
}

// Start subscribes to the configured subject on conn.
func (s *Server) Start(conn *nats.Conn) error {
	if conn == nil || !conn.IsConnected() {
		return sdkerrors.ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return fmt.Errorf("server already started")
	}

	sub, err := conn.QueueSubscribe(s.config.Subject, s.config.QueueGroup, s.onMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Subject, err)
	}
	s.sub = sub

	s.logger.Info("Projection server started",
		zap.String("subject", s.config.Subject),
		zap.String("queue_group", s.config.QueueGroup))
	return nil
}

// Stop drains the subscription so in-flight requests are answered.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Drain()
	s.sub = nil
	s.logger.Info("Projection server stopped", zap.String("subject", s.config.Subject))
	return err
}

func (s *Server) onMessage(msg *nats.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), headerCarrier(msg.Header))
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	if msg.Reply == "" {
		s.logger.Warn("Dropping projection request without reply subject",
			zap.String("subject", msg.Subject))
		return
	}
	if err := msg.Respond(s.Handle(ctx, msg.Data)); err != nil {
		s.logger.Error("Failed to send projection response",
			zap.String("reply", msg.Reply),
			zap.Error(err))
		s.report(err)
	}
}

// Handle decodes a request, runs the projection and encodes the response.
// Failures are returned as a Response with Error set.
func (s *Server) Handle(ctx context.Context, data []byte) []byte {
	ctx, span := s.tracer.Start(ctx, "server.Handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int("request.size", len(data))))
	defer span.End()

	start := time.Now()
	resp, err := s.handle(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		code := sdkerrors.Code(err)
		s.logger.Error("Projection request failed",
			zap.String("code", code),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if code == sdkerrors.CodeInternal {
			s.report(err)
		}
		resp = &Response{Error: &ErrorBody{Code: code, Message: err.Error()}}
	} else {
		span.SetStatus(codes.Ok, "")
		s.logger.Debug("Projection request served", zap.Duration("elapsed", time.Since(start)))
	}

	out, err := json.Marshal(resp)
	if err != nil {
		s.report(err)
		out, _ = json.Marshal(&Response{Error: &ErrorBody{Code: sdkerrors.CodeInternal, Message: err.Error()}})
	}
	return out
}

func (s *Server) handle(ctx context.Context, data []byte) (*Response, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, sdkerrors.InvalidRequest("malformed request body", err)
	}
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return nil, sdkerrors.InvalidRequest(err.Error(), nil)
	}
	if req.Tree == nil {
		return nil, sdkerrors.InvalidRequest("tree is required", nil)
	}
	if err := req.Tree.Validate(); err != nil {
		return nil, sdkerrors.InvalidRequest("invalid tree", err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("projection.kind", string(kind)),
		attribute.Int("tree.nodes", tree.Count(req.Tree)),
	)

	factory, err := s.newFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create factory: %w", err)
	}

	switch kind {
	case KindMaster:
		m, err := factory.CreateMasterNode(ctx, req.Tree)
		return &Response{Master: m}, err
	case KindView:
		v, err := factory.CreateNodeViewModel(ctx, req.Tree, req.IncludeChildren)
		return &Response{View: v}, err
	default:
		e, err := factory.CreateExplorerNode(ctx, req.Tree)
		return &Response{Explorer: e}, err
	}
}

func (s *Server) report(err error) {
	if s.hub != nil {
		s.hub.CaptureException(err)
	}
}

// Send publishes req on subject and waits for the response.
func Send(ctx context.Context, conn *nats.Conn, subject string, req *Request) (*Response, error) {
	if conn == nil || !conn.IsConnected() {
		return nil, sdkerrors.ErrNotConnected
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))

	reply, err := conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("projection request failed: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}
