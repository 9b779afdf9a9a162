package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReplyMethod is the full gRPC method name served by the companion sidecar.
const ReplyMethod = "/tranquili.companion.v1.CompanionService/Reply"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errEmptyReply               = errors.New("companion returned an empty reply")
)

// GrpcResponder calls the companion sidecar over gRPC. Requests and replies
// are google.protobuf.Struct messages, so no generated stubs are needed.
type GrpcResponder struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

// GrpcConfig holds configuration for the gRPC responder.
type GrpcConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcConfig returns default configuration for addr.
func DefaultGrpcConfig(addr string) GrpcConfig {
	return GrpcConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   20 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcResponder dials the companion sidecar and waits until the connection
// is ready, failing fast on a bad endpoint.
func NewGrpcResponder(cfg GrpcConfig, logger *slog.Logger) (*GrpcResponder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, errors.New("companion address is required")
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to companion at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("companion at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to companion service", "address", cfg.Address)

	return &GrpcResponder{
		conn:    conn,
		addr:    cfg.Address,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Reply sends the turn and its history to the sidecar.
func (c *GrpcResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	payload, err := encodeReplyRequest(req)
	if err != nil {
		return "", err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, ReplyMethod, payload, out); err != nil {
		c.logger.Warn("companion reply failed", "error", err, "user_id", req.UserID)
		return "", fmt.Errorf("companion reply: %w", err)
	}
	return decodeReply(out)
}

// Close closes the gRPC connection.
func (c *GrpcResponder) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close companion connection: %w", err)
	}
	return nil
}

func encodeReplyRequest(req ReplyRequest) (*structpb.Struct, error) {
	history := make([]any, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, map[string]any{
			"role": string(m.Role),
			"text": m.Text,
		})
	}
	payload, err := structpb.NewStruct(map[string]any{
		"user_id": req.UserID,
		"message": req.Message,
		"history": history,
	})
	if err != nil {
		return nil, fmt.Errorf("encode companion request: %w", err)
	}
	return payload, nil
}

func decodeReply(out *structpb.Struct) (string, error) {
	if errMsg := out.GetFields()["error"].GetStringValue(); errMsg != "" {
		return "", fmt.Errorf("companion reply: %s", errMsg)
	}
	reply := strings.TrimSpace(out.GetFields()["reply"].GetStringValue())
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}
