package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TokenValidator resolves a signed session token into an identity id.
// An invalid, unknown, or expired token returns "" with a nil error;
// a non-nil error means the credential store itself failed.
type TokenValidator func(token string) (identityID string, err error)

// InterceptorConfig configures the auth interceptor behavior
type InterceptorConfig struct {
	*Config

	// Validate resolves session tokens. Required.
	Validate TokenValidator

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but IdentityIDFromContext returns "".
	RequireAuth bool

	// PublicMethods don't require auth when RequireAuth is true.
	// Keys are full method names like "/lyria.songs.v1.Songs/List".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods
// except the listed ones.
func NewInterceptorConfig(validate TokenValidator, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Validate:      validate,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests
func OptionalAuthConfig(validate TokenValidator) *InterceptorConfig {
	return &InterceptorConfig{
		Config:      DefaultConfig(),
		Validate:    validate,
		RequireAuth: false,
	}
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that resolves the
// session token from metadata into an identity id on the context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := resolveIdentity(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns the stream counterpart of
// UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := resolveIdentity(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func resolveIdentity(ctx context.Context, config *InterceptorConfig, fullMethod string) (context.Context, error) {
	identityID := ""
	if token := TokenFromContext(ctx, config.Config); token != "" {
		id, err := config.Validate(token)
		if err != nil {
			return nil, status.Error(codes.Unavailable, "authentication unavailable")
		}
		identityID = id
	}

	if config.RequireAuth && !config.PublicMethods[fullMethod] && identityID == "" {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	if identityID != "" {
		ctx = withIdentityID(ctx, identityID)
	}
	return ctx, nil
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
