package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// metadataAuthorization is the gRPC metadata key carrying the bearer token.
// gRPC lowercases metadata keys.
const metadataAuthorization = "authorization"

// UnaryServerInterceptor returns a gRPC unary server interceptor applying
// the filter to the "authorization" metadata value. Anonymous calls reach
// the handler without an identity; rejected tokens fail the call with
// codes.Unauthenticated, or codes.Unavailable for UNAVAIL errors from a
// custom [Verifier].
func (f *Filter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := f.authenticateGRPC(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor with the
// same behavior as [Filter.UnaryServerInterceptor].
func (f *Filter) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := f.authenticateGRPC(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticateGRPC runs the filter against incoming metadata and returns
// the context to hand to the handler.
func (f *Filter) authenticateGRPC(ctx context.Context) (context.Context, error) {
	var authHeader string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(metadataAuthorization); len(values) > 0 {
			authHeader = values[0]
		}
	}

	identity, err := f.Authenticate(ctx, authHeader)
	if err != nil {
		return ctx, grpcStatus(err)
	}
	if identity != nil {
		ctx = ContextWithIdentity(ctx, identity)
	}
	return ctx, nil
}

// grpcStatus converts a verification error to a status error. The message
// carries only the error code.
func grpcStatus(err error) error {
	code := sserr.GetCode(err)
	if sserr.IsUnavailable(err) {
		return status.Errorf(codes.Unavailable, "authentication unavailable: %s", code)
	}
	return status.Errorf(codes.Unauthenticated, "invalid bearer token: %s", code)
}

// wrappedServerStream wraps a grpc.ServerStream to override its Context method.
// This is necessary because ServerStream.Context() returns the original stream
// context, which does not contain the identity added by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context containing identity information.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
