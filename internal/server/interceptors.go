package server

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain tags ErrorInfo details produced by this server.
const ErrorDomain = "skirmish"

// grpcCode maps a rule violation to a gRPC status code.
func grpcCode(code violation.Code) codes.Code {
	switch code {
	case violation.CodeNotFound:
		return codes.NotFound
	case violation.CodeUnknownUnitType, violation.CodeOutOfBounds, violation.CodeInvalidTarget,
		violation.CodeInvalidSnapshot:
		return codes.InvalidArgument
	case violation.CodeNotOwner:
		return codes.PermissionDenied
	case violation.CodeExecutionFailed:
		return codes.Internal
	default:
		return codes.FailedPrecondition
	}
}

// toStatus converts an error to a gRPC status error. Violations keep their
// code and metadata in an ErrorInfo detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var v *violation.Error
	if !errors.As(err, &v) {
		return status.Error(codes.Internal, err.Error())
	}
	st := status.New(grpcCode(v.Code), v.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(v.Code),
		Domain:   ErrorDomain,
		Metadata: v.Metadata,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ViolationCode extracts the violation code from a status error, or "".
func ViolationCode(err error) violation.Code {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return violation.Code(info.GetReason())
		}
	}
	return ""
}

// RecoveryInterceptor turns handler panics into codes.Internal.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs each call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", code.String()),
		}
		switch code {
		case codes.OK:
			logger.Debug("rpc completed", fields...)
		case codes.Internal, codes.Unknown:
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		default:
			logger.Info("rpc rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

// StreamLoggingInterceptor logs stream lifetimes.
func StreamLoggingInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logger.Info("stream closed",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		)
		return err
	}
}
