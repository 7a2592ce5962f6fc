// Package loader reads collections and environments from their
// block-syntax files. A collection file holds request blocks, an
// environment file holds env blocks:
//
//	request "Login" {
//	  method          = "POST"
//	  url             = "{{base_url}}/login"
//	  headers         = { "Content-Type" = "application/json" }
//	  body            = "{\"user\":\"{{user}}\"}"
//	  expected_status = 200
//	  extract         = { auth_token = "token" }
//	}
//
//	env "dev" {
//	  base_url = "https://api.dev.example.com"
//	  user     = "alice"
//	}
//
// The engine only consumes the parsed shapes; nothing else in the
// repository touches the file format.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/studiowebux/postdad/internal/types"
)

// Collection is an ordered, named set of request definitions.
type Collection struct {
	Name     string
	Requests []*types.RequestDefinition
}

// Request returns the definition with the given name, or nil.
func (c *Collection) Request(name string) *types.RequestDefinition {
	for _, r := range c.Requests {
		if r.Name == name {
			return r
		}
	}
	return nil
}

type collectionFile struct {
	Requests []requestBlock `hcl:"request,block"`
	Remain   hcl.Body       `hcl:",remain"`
}

type requestBlock struct {
	Name             string            `hcl:"name,label"`
	Method           string            `hcl:"method"`
	URL              string            `hcl:"url"`
	Transport        *string           `hcl:"transport"`
	Headers          map[string]string `hcl:"headers,optional"`
	Body             *string           `hcl:"body"`
	ContentType      *string           `hcl:"content_type"`
	ExpectedStatus   *int              `hcl:"expected_status"`
	TimeoutSec       *int              `hcl:"timeout"`
	Extract          map[string]string `hcl:"extract,optional"`
	PreScript        *string           `hcl:"pre_request_script"`
	PostScript       *string           `hcl:"post_request_script"`
	GraphQLQuery     *string           `hcl:"graphql_query"`
	GraphQLVariables *string           `hcl:"graphql_variables"`

	Auth     *authBlock     `hcl:"auth,block"`
	GRPC     *grpcBlock     `hcl:"grpc,block"`
	Parts    []partBlock    `hcl:"part,block"`
	Messages []messageBlock `hcl:"message,block"`
}

type authBlock struct {
	Kind         string  `hcl:"kind"`
	Token        *string `hcl:"token"`
	Username     *string `hcl:"username"`
	Password     *string `hcl:"password"`
	AuthURL      *string `hcl:"auth_url"`
	TokenURL     *string `hcl:"token_url"`
	ClientID     *string `hcl:"client_id"`
	ClientSecret *string `hcl:"client_secret"`
	Scope        *string `hcl:"scope"`
	CallbackPort *int    `hcl:"callback_port"`
}

type grpcBlock struct {
	ServiceMethod string  `hcl:"service_method"`
	ProtoPath     *string `hcl:"proto_path"`
	Payload       *string `hcl:"payload"`
	Plaintext     *bool   `hcl:"plaintext"`
}

type partBlock struct {
	Name   string `hcl:"name,label"`
	Value  string `hcl:"value"`
	IsFile *bool  `hcl:"is_file"`
}

type messageBlock struct {
	Name       string  `hcl:"name,label"`
	Direction  string  `hcl:"direction"`
	Type       *string `hcl:"type"`
	Content    *string `hcl:"content"`
	TimeoutSec *int    `hcl:"timeout"`
}

// LoadCollectionFile parses one collection file. The collection is
// named after the file stem; requests keep their order of appearance.
func LoadCollectionFile(path string) (*Collection, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
	}

	var raw collectionFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %s", path, diags.Error())
	}

	col := &Collection{Name: stem(path)}
	for i := range raw.Requests {
		def, err := buildDefinition(&raw.Requests[i])
		if err != nil {
			return nil, fmt.Errorf("request %q in %s: %w", raw.Requests[i].Name, path, err)
		}
		col.Requests = append(col.Requests, def)
	}
	return col, nil
}

// LoadCollectionDir parses every .hcl file in dir, sorted by file
// name. A missing directory is created and comes back empty.
func LoadCollectionDir(dir string) ([]*Collection, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collections directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections directory: %w", err)
	}

	var cols []*Collection
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".hcl" {
			continue
		}
		col, err := LoadCollectionFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols, nil
}

type environmentFile struct {
	Envs []struct {
		Name   string   `hcl:"name,label"`
		Remain hcl.Body `hcl:",remain"`
	} `hcl:"env,block"`
	Remain hcl.Body `hcl:",remain"`
}

// LoadEnvironments parses the environment file. Every attribute of an
// env block is a variable; base_url additionally populates the
// environment's BaseURL.
func LoadEnvironments(path string) ([]types.Environment, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
	}

	var raw environmentFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %s", path, diags.Error())
	}

	var envs []types.Environment
	for _, block := range raw.Envs {
		attrs, diags := block.Remain.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("env %q in %s: %s", block.Name, path, diags.Error())
		}

		env := types.Environment{Name: block.Name, Variables: make(map[string]string, len(attrs))}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("env %q attribute %q: %s", block.Name, name, diags.Error())
			}
			str, err := convert.Convert(val, cty.String)
			if err != nil {
				return nil, fmt.Errorf("env %q attribute %q is not a string: %w", block.Name, name, err)
			}
			if name == "base_url" {
				env.BaseURL = str.AsString()
				continue
			}
			env.Variables[name] = str.AsString()
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func buildDefinition(b *requestBlock) (*types.RequestDefinition, error) {
	def := &types.RequestDefinition{
		Name:   b.Name,
		Method: strings.ToUpper(b.Method),
		URL:    b.URL,
	}
	if b.Transport != nil {
		switch k := types.TransportKind(*b.Transport); k {
		case types.TransportHTTP, types.TransportWebSocket, types.TransportGRPC:
			def.Transport = k
		default:
			return nil, fmt.Errorf("unknown transport %q", *b.Transport)
		}
	}
	if b.ExpectedStatus != nil {
		def.ExpectedStatus = *b.ExpectedStatus
	}
	if b.TimeoutSec != nil {
		def.Timeout = time.Duration(*b.TimeoutSec) * time.Second
	}
	if b.PreScript != nil {
		def.PreScript = *b.PreScript
	}
	if b.PostScript != nil {
		def.PostScript = *b.PostScript
	}

	// Attribute maps carry no order, so sort for a stable definition.
	for _, name := range sortedKeys(b.Headers) {
		def.Headers = append(def.Headers, types.Header{Name: name, Value: b.Headers[name]})
	}
	for _, target := range sortedKeys(b.Extract) {
		def.Chain = append(def.Chain, types.ChainRule{Target: target, Path: b.Extract[target], Source: b.Name})
	}

	def.Body = buildBody(b)
	if err := buildAuth(b.Auth, def); err != nil {
		return nil, err
	}

	for _, m := range b.Messages {
		msg := types.WebSocketMessage{Name: m.Name, Direction: m.Direction}
		if m.Type != nil {
			msg.Type = *m.Type
		}
		if m.Content != nil {
			msg.Content = *m.Content
		}
		if m.TimeoutSec != nil {
			msg.TimeoutSec = *m.TimeoutSec
		}
		def.Messages = append(def.Messages, msg)
	}
	return def, nil
}

func buildBody(b *requestBlock) types.Body {
	switch {
	case b.GRPC != nil:
		body := types.Body{Kind: types.BodyGRPC, GRPC: &types.GRPCBody{ServiceMethod: b.GRPC.ServiceMethod}}
		if b.GRPC.ProtoPath != nil {
			body.GRPC.ProtoPath = *b.GRPC.ProtoPath
		}
		if b.GRPC.Payload != nil {
			body.GRPC.Payload = *b.GRPC.Payload
		}
		if b.GRPC.Plaintext != nil {
			body.GRPC.Plaintext = *b.GRPC.Plaintext
		}
		return body
	case b.GraphQLQuery != nil:
		gql := &types.GraphQLBody{Query: *b.GraphQLQuery}
		if b.GraphQLVariables != nil {
			gql.Variables = *b.GraphQLVariables
		}
		return types.Body{Kind: types.BodyGraphQL, GraphQL: gql}
	case len(b.Parts) > 0:
		body := types.Body{Kind: types.BodyMultipart}
		for _, p := range b.Parts {
			part := types.MultipartPart{Name: p.Name, Value: p.Value}
			if p.IsFile != nil {
				part.IsFile = *p.IsFile
			}
			body.Parts = append(body.Parts, part)
		}
		return body
	default:
		body := types.Body{Kind: types.BodyRaw}
		if b.Body != nil {
			body.Text = *b.Body
		}
		if b.ContentType != nil {
			body.ContentType = *b.ContentType
		}
		return body
	}
}

func buildAuth(a *authBlock, def *types.RequestDefinition) error {
	if a == nil {
		return nil
	}
	switch types.AuthKind(a.Kind) {
	case types.AuthBearer:
		if a.Token == nil {
			return fmt.Errorf("bearer auth requires a token")
		}
		def.Auth = types.Auth{Kind: types.AuthBearer, Token: *a.Token}
	case types.AuthBasic:
		if a.Username == nil || a.Password == nil {
			return fmt.Errorf("basic auth requires username and password")
		}
		def.Auth = types.Auth{Kind: types.AuthBasic, Username: *a.Username, Password: *a.Password}
	case types.AuthOAuth2:
		if a.AuthURL == nil || a.TokenURL == nil || a.ClientID == nil {
			return fmt.Errorf("oauth2 auth requires auth_url, token_url and client_id")
		}
		cfg := &types.OAuthConfig{AuthURL: *a.AuthURL, TokenURL: *a.TokenURL, ClientID: *a.ClientID}
		if a.ClientSecret != nil {
			cfg.ClientSecret = *a.ClientSecret
		}
		if a.Scope != nil {
			cfg.Scope = *a.Scope
		}
		if a.CallbackPort != nil {
			cfg.CallbackPort = *a.CallbackPort
		}
		def.Auth = types.Auth{Kind: types.AuthOAuth2, OAuth: cfg}
	case types.AuthNone:
		def.Auth = types.Auth{Kind: types.AuthNone}
	default:
		return fmt.Errorf("unknown auth kind %q", a.Kind)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
