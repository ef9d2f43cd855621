package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// mockServerStream implements grpc.ServerStream for testing.
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func incoming(authorization string) context.Context {
	if authorization == "" {
		return metadata.NewIncomingContext(context.Background(), metadata.MD{})
	}
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(metadataAuthorization, authorization))
}

func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		ctx          context.Context
		verifier     *stubVerifier
		wantCode     codes.Code
		wantSubject  string
		wantAnon     bool
		wantVerified bool
	}{
		{
			name:         "valid token",
			ctx:          incoming("Bearer abc.def.ghi"),
			verifier:     &stubVerifier{identity: NewBasicIdentity("guest-7")},
			wantCode:     codes.OK,
			wantSubject:  "guest-7",
			wantVerified: true,
		},
		{
			name:     "no metadata",
			ctx:      context.Background(),
			verifier: &stubVerifier{},
			wantCode: codes.OK,
			wantAnon: true,
		},
		{
			name:     "no authorization",
			ctx:      incoming(""),
			verifier: &stubVerifier{},
			wantCode: codes.OK,
			wantAnon: true,
		},
		{
			name:         "rejected token",
			ctx:          incoming("Bearer abc.def.ghi"),
			verifier:     &stubVerifier{err: sserr.New(sserr.CodeBadSignature, "token signature is invalid")},
			wantCode:     codes.Unauthenticated,
			wantVerified: true,
		},
		{
			name:         "verifier unavailable",
			ctx:          incoming("Bearer abc.def.ghi"),
			verifier:     &stubVerifier{err: sserr.New(sserr.CodeUnavailableKeyProvider, "down")},
			wantCode:     codes.Unavailable,
			wantVerified: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			filter := NewFilter(tt.verifier, WithFilterLogger(discardLogger()))
			interceptor := filter.UnaryServerInterceptor()

			var handlerCtx context.Context
			_, err := interceptor(tt.ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/bookings.v1.Bookings/List"},
				func(ctx context.Context, _ any) (any, error) {
					handlerCtx = ctx
					return "ok", nil
				})

			assert.Equal(t, tt.wantCode, status.Code(err))
			assert.Equal(t, tt.wantVerified, len(tt.verifier.calls()) == 1)
			if tt.wantCode != codes.OK {
				assert.Nil(t, handlerCtx, "handler must not run")
				assert.NotContains(t, err.Error(), "token signature is invalid")
				return
			}
			require.NotNil(t, handlerCtx)
			identity, ok := IdentityFromContext(handlerCtx)
			if tt.wantAnon {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantSubject, identity.Subject())
		})
	}
}

func TestStreamServerInterceptor(t *testing.T) {
	t.Parallel()

	filter := NewFilter(&stubVerifier{identity: NewBasicIdentity("guest-7")}, WithFilterLogger(discardLogger()))
	interceptor := filter.StreamServerInterceptor()

	var subject string
	err := interceptor(nil, &mockServerStream{ctx: incoming("Bearer abc.def.ghi")},
		&grpc.StreamServerInfo{FullMethod: "/bookings.v1.Bookings/Watch"},
		func(_ any, ss grpc.ServerStream) error {
			subject = MustIdentityFromContext(ss.Context()).Subject()
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, "guest-7", subject)
}

func TestStreamServerInterceptor_Rejected(t *testing.T) {
	t.Parallel()

	filter := NewFilter(&stubVerifier{err: sserr.New(sserr.CodeAuthenticationExpired, "token has expired")},
		WithFilterLogger(discardLogger()))
	interceptor := filter.StreamServerInterceptor()

	called := false
	err := interceptor(nil, &mockServerStream{ctx: incoming("Bearer abc.def.ghi")},
		&grpc.StreamServerInfo{FullMethod: "/bookings.v1.Bookings/Watch"},
		func(any, grpc.ServerStream) error {
			called = true
			return nil
		})

	assert.False(t, called)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "AUTH_002")
}
