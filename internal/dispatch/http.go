package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/studiowebux/postdad/internal/types"
)

// sendHTTP performs a standard request/response exchange: encode the
// body variant, inject auth and jar cookies, send, capture Set-Cookie
// into the jar, and normalize the response.
func (d *Dispatcher) sendHTTP(ctx context.Context, req *types.ResolvedRequest) *types.ExecutionResult {
	start := time.Now()

	bodyReader, contentType, requestSize, err := encodeBody(req.Body)
	if err != nil {
		return types.TransportFailure(fmt.Sprintf("failed to encode body: %v", err), time.Since(start))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return types.TransportFailure(fmt.Sprintf("failed to create request: %v", err), time.Since(start))
	}

	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if res := d.applyAuth(ctx, httpReq, req.Auth); res != nil {
		return res
	}

	host := hostOf(req.URL)
	if d.Jar != nil && host != "" {
		if cookie := d.Jar.Header(host); cookie != "" {
			httpReq.Header.Set("Cookie", cookie)
		}
	}

	client, err := buildHTTPClient(d.TLS)
	if err != nil {
		return types.TransportFailure(fmt.Sprintf("failed to configure HTTP client: %v", err), time.Since(start))
	}

	resp, err := client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return classifyErr(err, ctx, elapsed)
	}
	defer resp.Body.Close()

	if d.Jar != nil && host != "" {
		d.Jar.Store(host, resp.Header.Values("Set-Cookie"))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.TransportFailure(fmt.Sprintf("failed to read response body: %v", err), elapsed)
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return &types.ExecutionResult{
		Status:       resp.StatusCode,
		StatusText:   resp.Status,
		Headers:      headers,
		Body:         string(bodyBytes),
		DurationMs:   elapsed.Milliseconds(),
		RequestSize:  requestSize,
		ResponseSize: len(bodyBytes),
	}
}

// applyAuth mutates the outbound header set per the auth variant.
// Returns a non-nil failure result when a token cannot be obtained.
func (d *Dispatcher) applyAuth(ctx context.Context, httpReq *http.Request, auth types.Auth) *types.ExecutionResult {
	switch auth.Kind {
	case types.AuthBearer:
		httpReq.Header.Set("Authorization", "Bearer "+auth.Token)
	case types.AuthBasic:
		creds := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		httpReq.Header.Set("Authorization", "Basic "+creds)
	case types.AuthOAuth2:
		if d.OAuthToken == nil {
			return types.TransportFailure("oauth2 auth configured but no token provider available", 0)
		}
		token, err := d.OAuthToken(ctx, auth.OAuth)
		if err != nil {
			return types.TransportFailure(fmt.Sprintf("oauth2 token acquisition failed: %v", err), 0)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// encodeBody turns the body variant into a reader plus the implied
// content type and payload size.
func encodeBody(body types.Body) (io.Reader, string, int, error) {
	switch body.Kind {
	case types.BodyGraphQL:
		if body.GraphQL == nil {
			return nil, "", 0, nil
		}
		envelope := map[string]interface{}{"query": body.GraphQL.Query}
		if vars := strings.TrimSpace(body.GraphQL.Variables); vars != "" {
			var parsed interface{}
			if err := json.Unmarshal([]byte(vars), &parsed); err != nil {
				return nil, "", 0, fmt.Errorf("invalid graphql variables: %w", err)
			}
			envelope["variables"] = parsed
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return nil, "", 0, err
		}
		return bytes.NewReader(payload), "application/json", len(payload), nil

	case types.BodyMultipart:
		if len(body.Parts) == 0 {
			return nil, "", 0, nil
		}
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		for _, part := range body.Parts {
			if part.IsFile {
				data, err := os.ReadFile(part.Value)
				if err != nil {
					return nil, "", 0, fmt.Errorf("multipart part %s: %w", part.Name, err)
				}
				fw, err := writer.CreateFormFile(part.Name, filepath.Base(part.Value))
				if err != nil {
					return nil, "", 0, err
				}
				if _, err := fw.Write(data); err != nil {
					return nil, "", 0, err
				}
			} else if err := writer.WriteField(part.Name, part.Value); err != nil {
				return nil, "", 0, err
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", 0, err
		}
		return &buf, writer.FormDataContentType(), buf.Len(), nil

	default:
		if body.Text == "" {
			return nil, body.ContentType, 0, nil
		}
		return strings.NewReader(body.Text), body.ContentType, len(body.Text), nil
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
