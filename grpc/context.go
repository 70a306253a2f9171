// Package grpc exposes the "current identity" surface to internal gRPC
// services (song generation, task backends) that sit behind the web layer:
// a unary/stream interceptor resolves the session token carried in request
// metadata into an identity id on the context.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyToken is the gRPC metadata key carrying the signed
// session token, as issued to the browser cookie.
const DefaultMetadataKeyToken = "x-session-token"

type identityIDKey struct{}

// Config holds the metadata key configuration
type Config struct {
	// MetadataKeyToken is the gRPC metadata key for the session token.
	// Defaults to "x-session-token".
	MetadataKeyToken string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{MetadataKeyToken: DefaultMetadataKeyToken}
}

// EnsureDefaults fills in default values for any unset fields
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyToken == "" {
		c.MetadataKeyToken = DefaultMetadataKeyToken
	}
}

// TokenFromContext extracts the raw session token from incoming metadata,
// or "" when none was sent.
func TokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeyToken); len(values) > 0 {
		return values[0]
	}
	return ""
}

// TokenToOutgoingContext attaches a session token to outgoing metadata so
// the web layer can forward the caller's session to backend services.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyToken, token)
}

// IdentityIDFromContext returns the identity id resolved by the
// interceptor, or "" for anonymous requests.
func IdentityIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityIDKey{}).(string)
	return id
}

// IsAuthenticated reports whether the context carries a resolved identity
func IsAuthenticated(ctx context.Context) bool {
	return IdentityIDFromContext(ctx) != ""
}

func withIdentityID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, identityIDKey{}, id)
}
