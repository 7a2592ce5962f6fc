/*
Package dispatch sends resolved requests over their selected
transport and normalizes the outcome.

# Overview

The Dispatcher is polymorphic over a closed transport set:
  - HTTP/HTTPS (http.go): request/response with auth injection,
    cookie-jar state and body variant encoding
  - WebSocket (websocket.go): scripted send/receive sequences over a
    gorilla/websocket connection with lifecycle tracking
  - gRPC (grpc.go): delegation to a grpcurl bridge subprocess

Each transport produces the same *types.ExecutionResult shape; the
caller never sees a Go error from Dispatch. Transport faults, including
timeouts, are data inside the result.

# Deadlines

Every dispatch runs under a context deadline derived from the
request's timeout. Exceeding it is reported as a timeout failure,
never an indefinite block. The engine does not retry; retrying is the
runner's decision.

# Cookie jar

The Jar (jar.go) is shared across every request of a session and is
written only by the dispatcher: Set-Cookie headers on responses are
stored per host, matching entries are replayed as a Cookie header on
later requests to the same host, and expiry directives are honored.

# Auth

The auth variant mutates outbound headers at dispatch time:
  - Bearer: Authorization: Bearer <token>
  - Basic: Authorization: Basic <base64(user:pass)>
  - OAuth2: Authorization: Bearer <token> from the configured
    TokenProvider, which caches tokens and only starts the interactive
    browser flow when none is valid

# Transport environment

TLS material (custom CA, client cert/key for mTLS, a verification
kill-switch) comes from POSTDAD_* environment variables; proxies use
the standard HTTP_PROXY/HTTPS_PROXY/NO_PROXY set. These settings are
owned by the transport boundary, not the variable resolver.
*/
package dispatch
