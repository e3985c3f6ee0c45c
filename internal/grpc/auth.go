package grpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AdminTokenMetadataKey carries the admin token on mutating calls.
const AdminTokenMetadataKey = "x-rdpso-admin-token"

// AdminUnaryInterceptor rejects mutating unary calls lacking the admin token.
// An empty token leaves every method open.
func AdminUnaryInterceptor(token string) grpc.UnaryServerInterceptor {
	normalized := strings.TrimSpace(token)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if normalized != "" && MutatingMethods[info.FullMethod] {
			if err := checkToken(ctx, normalized); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

// AdminStreamInterceptor mirrors AdminUnaryInterceptor for streams.
func AdminStreamInterceptor(token string) grpc.StreamServerInterceptor {
	normalized := strings.TrimSpace(token)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if normalized != "" && MutatingMethods[info.FullMethod] {
			if err := checkToken(ss.Context(), normalized); err != nil {
				return err
			}
		}
		return handler(srv, ss)
	}
}

func checkToken(ctx context.Context, expected string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	candidate := extractToken(md)
	if candidate == "" {
		return status.Error(codes.Unauthenticated, "missing admin token")
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) != 1 {
		return status.Error(codes.PermissionDenied, "invalid admin token")
	}
	return nil
}

func extractToken(md metadata.MD) string {
	for _, value := range md.Get(AdminTokenMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if strings.HasPrefix(strings.ToLower(value), "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}
