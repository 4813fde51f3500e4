package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/logger"
)

const errorDomain = "appointment-booking"

// NewGRPCServer собирает сервер: календарь, health и reflection.
func NewGRPCServer(calendar CalendarServer, tokens *auth.Manager) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor,
		authInterceptor(tokens),
	))
	RegisterCalendarServiceServer(srv, calendar)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CalendarServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)
	return srv, hs
}

// authInterceptor: Bearer из metadata authorization → auth.Context.
// Битый токен: Unauthenticated; отсутствие токена решает сам метод.
func authInterceptor(tokens *auth.Manager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		values := md.Get("authorization")
		if len(values) == 0 || values[0] == "" {
			return handler(ctx, req)
		}
		raw, ok := strings.CutPrefix(values[0], "Bearer ")
		if !ok || tokens == nil {
			return nil, toStatus(apperror.ErrUnauthorized)
		}
		ac, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, toStatus(apperror.ErrUnauthorized)
		}
		ctx = auth.WithContext(ctx, ac)
		ctx = logger.WithUserID(ctx, ac.UserID.String())
		return handler(ctx, req)
	}
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	started := time.Now()
	ctx = logger.WithComponent(ctx, "grpc")
	resp, err := handler(ctx, req)
	code := status.Code(err)
	attrs := []any{"method", info.FullMethod, "code", code.String(), "elapsed_ms", time.Since(started).Milliseconds()}
	if code == codes.Internal || code == codes.Unavailable {
		logger.ErrorContext(ctx, "grpc request failed", append(attrs, "error", err)...)
	} else {
		logger.InfoContext(ctx, "grpc request", attrs...)
	}
	return resp, err
}

// toStatus маппит ошибку ядра на gRPC-статус; код ошибки уходит в ErrorInfo.Reason.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isAppError(err) {
		return err
	}
	ae := apperror.From(err)

	var c codes.Code
	switch ae.Code {
	case apperror.CodeUnauthorized:
		c = codes.Unauthenticated
	case apperror.CodeForbidden:
		c = codes.PermissionDenied
	case apperror.CodeSlotAlreadyBooked, apperror.CodeOverlappingSchedule, apperror.CodeExceptionExists:
		c = codes.AlreadyExists
	case apperror.CodeInvalidOrExpiredToken, apperror.CodeInvalidStatusTransition, apperror.CodeSlotUnavailable:
		c = codes.FailedPrecondition
	default:
		switch ae.Kind {
		case apperror.KindValidation:
			c = codes.InvalidArgument
		case apperror.KindNotFound:
			c = codes.NotFound
		default:
			c = codes.Unavailable
		}
	}

	st := status.New(c, apperror.PublicMessage(err))
	info := &errdetails.ErrorInfo{Reason: string(ae.Code), Domain: errorDomain, Metadata: ae.Fields}
	if withDetails, derr := st.WithDetails(info); derr == nil {
		st = withDetails
	}
	return st.Err()
}

func isAppError(err error) bool {
	var ae *apperror.Error
	return errors.As(err, &ae)
}
