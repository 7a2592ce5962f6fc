package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/studiowebux/postdad/internal/types"
)

// sendGRPC delegates the call to the grpcurl bridge process. The
// bridge inherits the request deadline through the exec context; a
// non-zero exit or unreadable output is a TransportFailure.
func (d *Dispatcher) sendGRPC(ctx context.Context, req *types.ResolvedRequest) *types.ExecutionResult {
	start := time.Now()

	if req.Body.GRPC == nil || req.Body.GRPC.ServiceMethod == "" {
		return types.TransportFailure("grpc request missing service/method", time.Since(start))
	}
	grpc := req.Body.GRPC

	bridge := d.GRPCBridge
	if bridge == "" {
		bridge = "grpcurl"
	}
	if _, err := exec.LookPath(bridge); err != nil {
		return types.TransportFailure(
			fmt.Sprintf("%s not found, install it: https://github.com/fullstorydev/grpcurl", bridge),
			time.Since(start))
	}

	var args []string
	if grpc.Plaintext || !strings.HasPrefix(req.URL, "https") {
		args = append(args, "-plaintext")
	}
	if grpc.ProtoPath != "" {
		args = append(args, "-import-path", filepath.Dir(grpc.ProtoPath), "-proto", grpc.ProtoPath)
	}
	for _, h := range req.Headers {
		args = append(args, "-H", fmt.Sprintf("%s: %s", h.Name, h.Value))
	}
	if payload := strings.TrimSpace(grpc.Payload); payload != "" && payload != "{}" {
		args = append(args, "-d", payload)
	}
	args = append(args, strings.TrimPrefix(strings.TrimPrefix(req.URL, "grpc://"), "grpcs://"))
	args = append(args, grpc.ServiceMethod)

	cmd := exec.CommandContext(ctx, bridge, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return types.TransportFailure(fmt.Sprintf("timeout after %s", elapsed.Round(time.Millisecond)), elapsed)
		}
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = strings.TrimSpace(stdout.String())
		}
		if reason == "" {
			reason = err.Error()
		}
		return types.TransportFailure(reason, elapsed)
	}

	body := stdout.String()
	return &types.ExecutionResult{
		Status:       200,
		StatusText:   "200 OK",
		Headers:      map[string]string{"Content-Type": "application/json"},
		Body:         body,
		DurationMs:   elapsed.Milliseconds(),
		ResponseSize: len(body),
	}
}
