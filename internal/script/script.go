// Package script runs pre-request and post-request hooks in an
// embedded ECMAScript interpreter (goja). Scripts only see the
// registered capability functions; no file system, network or process
// access is reachable from a hook. A parse or runtime fault is
// returned as an error for the pipeline to capture as ScriptFailure,
// never a panic.
package script

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/studiowebux/postdad/internal/types"
)

// MaxScriptDuration bounds a single hook run. Hooks are synchronous
// pure transforms; anything longer is a runaway loop.
const MaxScriptDuration = 5 * time.Second

// PreOutcome carries what a pre-request hook is allowed to change:
// the outbound request (already mutated in place) and the variable
// bindings it wrote.
type PreOutcome struct {
	Bindings map[string]string
	Logs     []string
}

// PostOutcome carries what a post-request hook may produce: recorded
// assertions and debug prints. The request is already sent, so
// nothing else is writable.
type PostOutcome struct {
	Assertions []types.AssertionOutcome
	Logs       []string
}

// RunPre executes a pre-request hook against the resolved request.
// The hook may rewrite headers, body, URL and variable bindings; the
// request entry state is exposed through the METHOD, URL and BODY
// constants. vars is both input and output.
func RunPre(source string, req *types.ResolvedRequest, vars map[string]string) (out *PreOutcome, err error) {
	out = &PreOutcome{Bindings: vars}
	if strings.TrimSpace(source) == "" {
		return out, nil
	}
	if vars == nil {
		vars = make(map[string]string)
		out.Bindings = vars
	}

	rt, stop := newRuntime()
	defer stop()
	defer recoverFault(&err)

	registerCommon(rt, vars, &out.Logs)
	mustSet(rt, "set_header", func(name, value string) { req.SetHeader(name, value) })
	mustSet(rt, "get_header", func(name string) string { return req.GetHeader(name) })
	mustSet(rt, "set_body", func(body string) {
		req.Body = types.Body{Kind: types.BodyRaw, ContentType: req.Body.ContentType, Text: body}
	})
	mustSet(rt, "set_url", func(url string) { req.URL = url })

	mustSet(rt, "METHOD", req.Method)
	mustSet(rt, "URL", req.URL)
	mustSet(rt, "BODY", req.Body.Text)

	if _, err := rt.RunString(source); err != nil {
		return out, scriptError(err)
	}
	return out, nil
}

// RunPost executes a post-request hook against an execution result.
// The hook has read access to status, elapsed time, headers and body,
// a JSONPath evaluator over the body, and the test() recorder. It can
// not mutate the already-sent request.
func RunPost(source string, result *types.ExecutionResult) (out *PostOutcome, err error) {
	out = &PostOutcome{}
	if strings.TrimSpace(source) == "" {
		return out, nil
	}

	rt, stop := newRuntime()
	defer stop()
	defer recoverFault(&err)

	// Post hooks get the pure helpers and variable reads too, but
	// variable writes land in a throwaway map: the snapshot is frozen.
	registerCommon(rt, map[string]string{}, &out.Logs)

	mustSet(rt, "test", func(name string, passed bool) {
		out.Assertions = append(out.Assertions, types.AssertionOutcome{Name: name, Passed: passed})
	})
	mustSet(rt, "status_code", func() int { return result.Status })
	mustSet(rt, "response_time", func() int64 { return result.DurationMs })
	mustSet(rt, "response_body", func() string { return result.Body })
	mustSet(rt, "get_header", func(name string) string {
		for k, v := range result.Headers {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	})
	mustSet(rt, "json_path", func(query string) string {
		return JSONPath(result.Body, query)
	})

	if _, err := rt.RunString(source); err != nil {
		return out, scriptError(err)
	}
	return out, nil
}

// JSONPath evaluates a JSONPath-style query against a JSON body and
// returns the first match as a string, or "" on no match or malformed
// input. Queries in the "$.a.b[0]" form are normalized to gjson path
// syntax.
func JSONPath(body, query string) string {
	res := gjson.Get(body, normalizePath(query))
	if !res.Exists() {
		return ""
	}
	return res.String()
}

// normalizePath maps "$.items[0].id" onto gjson's "items.0.id".
func normalizePath(query string) string {
	p := strings.TrimSpace(query)
	p = strings.TrimPrefix(p, "$")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return strings.Trim(p, ".")
}

// newRuntime builds a fresh interpreter with the watchdog armed.
// The returned stop function disarms it.
func newRuntime() (*goja.Runtime, func()) {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())

	timer := time.AfterFunc(MaxScriptDuration, func() {
		rt.Interrupt("script exceeded time limit")
	})
	return rt, func() { timer.Stop() }
}

// registerCommon installs the capability functions shared by both
// hook stages.
func registerCommon(rt *goja.Runtime, vars map[string]string, logs *[]string) {
	mustSet(rt, "set_var", func(name, value string) { vars[name] = value })
	mustSet(rt, "get_var", func(name string) string { return vars[name] })
	mustSet(rt, "timestamp", func() int64 { return time.Now().Unix() })
	mustSet(rt, "timestamp_ms", func() int64 { return time.Now().UnixMilli() })
	mustSet(rt, "uuid", func() string { return uuid.NewString() })
	mustSet(rt, "base64_encode", func(text string) string {
		return base64.StdEncoding.EncodeToString([]byte(text))
	})
	mustSet(rt, "base64_decode", func(text string) string {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return ""
		}
		return string(decoded)
	})
	mustSet(rt, "print", func(msg string) { *logs = append(*logs, msg) })
}

func mustSet(rt *goja.Runtime, name string, value interface{}) {
	if err := rt.Set(name, value); err != nil {
		panic(fmt.Sprintf("script host: registering %s: %v", name, err))
	}
}

// recoverFault converts interpreter panics (including interrupts that
// unwound through host callbacks) into ordinary script errors.
func recoverFault(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("script fault: %v", r)
	}
}

func scriptError(err error) error {
	if ex, ok := err.(*goja.Exception); ok {
		return fmt.Errorf("script error: %s", ex.Error())
	}
	if _, ok := err.(*goja.InterruptedError); ok {
		return fmt.Errorf("script error: interrupted: exceeded %s", MaxScriptDuration)
	}
	return fmt.Errorf("script error: %v", err)
}
