// Package resolver substitutes {{name}} placeholders in request
// templates. Lookup order is chain bindings first, then the active
// environment; unresolved placeholders are left verbatim and recorded
// as warnings, never an error. Resolution is pure: the same inputs
// always produce the same output, and resolving an already-resolved
// string returns it unchanged.
package resolver

import (
	"fmt"
	"strings"

	"github.com/studiowebux/postdad/internal/types"
)

// Resolved is the outcome of resolving a single template string.
type Resolved struct {
	Value    string
	Warnings []string
}

// Resolver resolves placeholders against a fixed pair of binding
// sets. A Resolver is cheap to build and is created per execution so
// in-flight executions keep their snapshot when the environment is
// switched underneath them.
type Resolver struct {
	env   map[string]string
	chain map[string]string
}

// New creates a resolver over the given environment and chain
// bindings. Either map may be nil.
func New(env, chain map[string]string) *Resolver {
	if env == nil {
		env = map[string]string{}
	}
	if chain == nil {
		chain = map[string]string{}
	}
	return &Resolver{env: env, chain: chain}
}

// Resolve substitutes every {{identifier}} token in input. Chain
// bindings shadow environment bindings with the same name. Unknown
// identifiers stay verbatim and are reported in Warnings.
func (r *Resolver) Resolve(input string) Resolved {
	if !strings.Contains(input, "{{") {
		return Resolved{Value: input}
	}

	var out strings.Builder
	var warnings []string
	rest := input
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)
			break
		}
		end += start

		out.WriteString(rest[:start])
		token := rest[start : end+2]
		name := strings.TrimSpace(rest[start+2 : end])

		if v, ok := r.chain[name]; ok {
			out.WriteString(v)
		} else if v, ok := r.env[name]; ok {
			out.WriteString(v)
		} else {
			out.WriteString(token)
			warnings = append(warnings, fmt.Sprintf("unresolved variable: %s", name))
		}
		rest = rest[end+2:]
	}

	return Resolved{Value: out.String(), Warnings: warnings}
}

// ResolveRequest produces the resolved snapshot of a definition:
// URL, header values, body fields and auth fields all pass through
// Resolve uniformly. The definition itself is never mutated.
func (r *Resolver) ResolveRequest(def *types.RequestDefinition) (*types.ResolvedRequest, []string) {
	var warnings []string
	take := func(s string) string {
		res := r.Resolve(s)
		warnings = append(warnings, res.Warnings...)
		return res.Value
	}

	resolved := &types.ResolvedRequest{
		Name:      def.Name,
		Transport: def.TransportOrDefault(),
		Method:    def.Method,
		URL:       take(def.URL),
		Timeout:   def.TimeoutOrDefault(),
	}

	for _, h := range def.Headers {
		resolved.Headers = append(resolved.Headers, types.Header{
			Name:  h.Name,
			Value: take(h.Value),
		})
	}

	body := def.Body
	body.Text = take(body.Text)
	if len(body.Parts) > 0 {
		parts := make([]types.MultipartPart, len(body.Parts))
		for i, p := range body.Parts {
			parts[i] = types.MultipartPart{Name: p.Name, Value: take(p.Value), IsFile: p.IsFile}
		}
		body.Parts = parts
	}
	if body.GraphQL != nil {
		gql := *body.GraphQL
		gql.Query = take(gql.Query)
		gql.Variables = take(gql.Variables)
		body.GraphQL = &gql
	}
	if body.GRPC != nil {
		g := *body.GRPC
		g.ServiceMethod = take(g.ServiceMethod)
		g.Payload = take(g.Payload)
		body.GRPC = &g
	}
	resolved.Body = body

	auth := def.Auth
	auth.Token = take(auth.Token)
	auth.Username = take(auth.Username)
	auth.Password = take(auth.Password)
	resolved.Auth = auth

	if len(def.Messages) > 0 {
		msgs := make([]types.WebSocketMessage, len(def.Messages))
		for i, m := range def.Messages {
			msgs[i] = m
			msgs[i].Content = take(m.Content)
		}
		resolved.Messages = msgs
	}

	return resolved, warnings
}

// ExtractVariableNames returns the unique placeholder names found in
// input, without the {{ }} brackets, in first-seen order.
func ExtractVariableNames(input string) []string {
	seen := make(map[string]bool)
	var names []string
	rest := input
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			break
		}
		name := strings.TrimSpace(rest[start+2 : start+end])
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[start+end+2:]
	}
	return names
}
