package types

import (
	"strings"
	"time"
)

// TransportKind selects the wire protocol for a request. The set is
// closed; the dispatcher switches over it rather than subclassing.
type TransportKind string

const (
	TransportHTTP      TransportKind = "http"
	TransportWebSocket TransportKind = "websocket"
	TransportGRPC      TransportKind = "grpc"
)

// BodyKind identifies the request body variant.
type BodyKind string

const (
	BodyRaw       BodyKind = "raw"
	BodyMultipart BodyKind = "multipart"
	BodyGraphQL   BodyKind = "graphql"
	BodyGRPC      BodyKind = "grpc"
)

// Header is an ordered header entry. Duplicate names are allowed,
// which is why headers are a slice and not a map.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MultipartPart is one part of a multipart/form-data body.
// When IsFile is set, Value is a path to the file to upload.
type MultipartPart struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	IsFile bool   `json:"isFile,omitempty"`
}

// GraphQLBody carries a GraphQL query and its variables document.
// On dispatch it is wrapped into the standard {"query","variables"}
// JSON envelope.
type GraphQLBody struct {
	Query     string `json:"query"`
	Variables string `json:"variables,omitempty"`
}

// GRPCBody describes a call delegated to the grpcurl bridge.
type GRPCBody struct {
	ServiceMethod string `json:"serviceMethod"`
	ProtoPath     string `json:"protoPath,omitempty"`
	Payload       string `json:"payload,omitempty"`
	Plaintext     bool   `json:"plaintext,omitempty"`
}

// Body is the request body variant. Kind selects which of the other
// fields is meaningful; BodyRaw uses Text and ContentType.
type Body struct {
	Kind        BodyKind        `json:"kind,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
	Text        string          `json:"text,omitempty"`
	Parts       []MultipartPart `json:"parts,omitempty"`
	GraphQL     *GraphQLBody    `json:"graphql,omitempty"`
	GRPC        *GRPCBody       `json:"grpc,omitempty"`
}

// IsEmpty reports whether the body carries no payload at all.
func (b Body) IsEmpty() bool {
	switch b.Kind {
	case BodyMultipart:
		return len(b.Parts) == 0
	case BodyGraphQL:
		return b.GraphQL == nil || b.GraphQL.Query == ""
	case BodyGRPC:
		return b.GRPC == nil || b.GRPC.Payload == ""
	default:
		return b.Text == ""
	}
}

// AuthKind identifies the auth variant applied at dispatch time.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthOAuth2 AuthKind = "oauth2"
)

// OAuthConfig holds OAuth 2.0 authorization-code flow settings.
type OAuthConfig struct {
	AuthURL      string `json:"authUrl"`
	TokenURL     string `json:"tokenUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Scope        string `json:"scope,omitempty"`
	CallbackPort int    `json:"callbackPort,omitempty"`
}

// Auth is the request auth variant. Kind selects the fields in use.
type Auth struct {
	Kind     AuthKind     `json:"kind,omitempty"`
	Token    string       `json:"token,omitempty"`
	Username string       `json:"username,omitempty"`
	Password string       `json:"password,omitempty"`
	OAuth    *OAuthConfig `json:"oauth,omitempty"`
}

// WebSocketMessage is one step in a scripted WebSocket exchange.
// Direction is "send" or "receive"; TimeoutSec bounds a receive step.
type WebSocketMessage struct {
	Name       string `json:"name,omitempty"`
	Type       string `json:"type,omitempty"` // text, json, binary
	Content    string `json:"content,omitempty"`
	Direction  string `json:"direction"`
	TimeoutSec int    `json:"timeoutSec,omitempty"`
}

// ChainRule extracts a value from a source request's response body
// into a variable binding usable by later requests.
type ChainRule struct {
	Target string `json:"target"`
	Path   string `json:"path"`
	Source string `json:"source,omitempty"`
}

// RequestDefinition is the declarative request owned by a collection.
// Definitions are immutable during execution; the pipeline produces a
// ResolvedRequest snapshot instead of mutating in place.
type RequestDefinition struct {
	Name           string        `json:"name,omitempty"`
	Transport      TransportKind `json:"transport,omitempty"`
	Method         string        `json:"method"`
	URL            string        `json:"url"`
	Headers        []Header      `json:"headers,omitempty"`
	Body           Body          `json:"body,omitempty"`
	Auth           Auth          `json:"auth,omitempty"`
	ExpectedStatus int           `json:"expectedStatus,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	PreScript      string        `json:"preScript,omitempty"`
	PostScript     string        `json:"postScript,omitempty"`
	Chain          []ChainRule   `json:"chain,omitempty"`
	Messages       []WebSocketMessage `json:"messages,omitempty"`
}

// TransportOrDefault returns the transport kind, defaulting to HTTP.
func (r *RequestDefinition) TransportOrDefault() TransportKind {
	if r.Transport == "" {
		return TransportHTTP
	}
	return r.Transport
}

// ExpectedStatusOrDefault returns the expected status, defaulting to 200.
func (r *RequestDefinition) ExpectedStatusOrDefault() int {
	if r.ExpectedStatus == 0 {
		return 200
	}
	return r.ExpectedStatus
}

// TimeoutOrDefault returns the per-request deadline, defaulting to 30s.
func (r *RequestDefinition) TimeoutOrDefault() time.Duration {
	if r.Timeout <= 0 {
		return 30 * time.Second
	}
	return r.Timeout
}

// Environment is a named set of variable bindings selectable at
// runtime. BaseURL is exposed to templates as {{base_url}}.
type Environment struct {
	Name      string            `json:"name"`
	BaseURL   string            `json:"baseUrl,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Bindings flattens the environment into a lookup map, folding
// BaseURL in under "base_url" when it is not already bound.
func (e *Environment) Bindings() map[string]string {
	out := make(map[string]string, len(e.Variables)+1)
	for k, v := range e.Variables {
		out[k] = v
	}
	if e.BaseURL != "" {
		if _, ok := out["base_url"]; !ok {
			out["base_url"] = e.BaseURL
		}
	}
	return out
}

// ResolvedRequest is the frozen per-execution snapshot handed to the
// dispatcher after variable resolution and the pre-request hook. Once
// dispatch begins it is never mutated again.
type ResolvedRequest struct {
	Name      string
	Transport TransportKind
	Method    string
	URL       string
	Headers   []Header
	Body      Body
	Auth      Auth
	Timeout   time.Duration
	Messages  []WebSocketMessage
}

// HeaderMap collapses the ordered header list into a map, joining
// duplicate names with a comma the way net/http renders them.
func (r *ResolvedRequest) HeaderMap() map[string]string {
	out := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		if prev, ok := out[h.Name]; ok {
			out[h.Name] = prev + ", " + h.Value
		} else {
			out[h.Name] = h.Value
		}
	}
	return out
}

// SetHeader replaces every header matching name (case-insensitive)
// with a single entry, appending when absent.
func (r *ResolvedRequest) SetHeader(name, value string) {
	kept := r.Headers[:0]
	found := false
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			if !found {
				kept = append(kept, Header{Name: h.Name, Value: value})
				found = true
			}
			continue
		}
		kept = append(kept, h)
	}
	if !found {
		kept = append(kept, Header{Name: name, Value: value})
	}
	r.Headers = kept
}

// GetHeader returns the first header value matching name, or "".
func (r *ResolvedRequest) GetHeader(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// TLSConfig carries the transport-boundary TLS material. It is
// populated from environment variables by the dispatcher, not from
// the engine's variable system.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}
