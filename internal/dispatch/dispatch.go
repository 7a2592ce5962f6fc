package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/studiowebux/postdad/internal/types"
)

// TokenProvider returns a bearer token for an OAuth2-authenticated
// request. Implementations cache obtained tokens and only trigger the
// interactive authorization flow when no valid token is available.
type TokenProvider func(ctx context.Context, cfg *types.OAuthConfig) (string, error)

// Dispatcher sends resolved requests over the transport their
// definition selects. It is the sole writer of the shared cookie jar.
// A Dispatcher is safe for concurrent use.
type Dispatcher struct {
	Jar        *Jar
	TLS        *types.TLSConfig
	OAuthToken TokenProvider

	// GRPCBridge is the bridge binary invoked for gRPC requests.
	// Defaults to "grpcurl" when empty.
	GRPCBridge string
}

// New creates a dispatcher around a fresh cookie jar using the TLS
// settings found in the process environment.
func New() *Dispatcher {
	return &Dispatcher{
		Jar: NewJar(),
		TLS: TLSFromEnv(),
	}
}

// Dispatch sends the resolved request and produces a normalized
// result. It never blocks past the request's deadline and never
// returns a Go error: every transport fault is data in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req *types.ResolvedRequest) *types.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	switch req.Transport {
	case types.TransportHTTP, "":
		return d.sendHTTP(ctx, req)
	case types.TransportWebSocket:
		return d.sendWebSocket(ctx, req)
	case types.TransportGRPC:
		return d.sendGRPC(ctx, req)
	default:
		return types.TransportFailure(fmt.Sprintf("unsupported transport: %s", req.Transport), 0)
	}
}

// classifyErr renders a transport error, flagging deadline hits as
// timeouts so runners can tell them apart from connect failures.
func classifyErr(err error, ctx context.Context, elapsed time.Duration) *types.ExecutionResult {
	if ctx.Err() == context.DeadlineExceeded {
		return types.TransportFailure(fmt.Sprintf("timeout after %s", elapsed.Round(time.Millisecond)), elapsed)
	}
	return types.TransportFailure(err.Error(), elapsed)
}
