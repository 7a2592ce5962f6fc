package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/studiowebux/postdad/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCollectionFile(t *testing.T) {
	path := writeFile(t, "api.hcl", `
request "Login" {
  method          = "post"
  url             = "{{base_url}}/login"
  headers         = { "Content-Type" = "application/json" }
  body            = "{\"user\":\"{{user}}\"}"
  expected_status = 201
  timeout         = 10
  extract         = { auth_token = "token" }

  post_request_script = "test(\"created\", status_code() == 201);"
}

request "Profile" {
  method = "GET"
  url    = "{{base_url}}/me"

  auth {
    kind  = "bearer"
    token = "{{auth_token}}"
  }
}
`)

	col, err := LoadCollectionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if col.Name != "api" {
		t.Errorf("collection name = %q, want api", col.Name)
	}
	if len(col.Requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(col.Requests))
	}

	login := col.Requests[0]
	if login.Name != "Login" || login.Method != "POST" {
		t.Errorf("first request wrong: %+v", login)
	}
	if login.ExpectedStatus != 201 {
		t.Errorf("expected_status = %d", login.ExpectedStatus)
	}
	if login.Timeout != 10*time.Second {
		t.Errorf("timeout = %s", login.Timeout)
	}
	if len(login.Headers) != 1 || login.Headers[0].Name != "Content-Type" {
		t.Errorf("headers = %+v", login.Headers)
	}
	if len(login.Chain) != 1 || login.Chain[0].Target != "auth_token" || login.Chain[0].Path != "token" {
		t.Errorf("chain = %+v", login.Chain)
	}
	if login.PostScript == "" {
		t.Error("post script should be kept")
	}

	profile := col.Requests[1]
	if profile.Auth.Kind != types.AuthBearer || profile.Auth.Token != "{{auth_token}}" {
		t.Errorf("auth = %+v", profile.Auth)
	}
}

func TestLoadCollectionBodyVariants(t *testing.T) {
	path := writeFile(t, "variants.hcl", `
request "Search" {
  method            = "POST"
  url               = "{{base_url}}/graphql"
  graphql_query     = "query { user(id: $id) { name } }"
  graphql_variables = "{\"id\": 1}"
}

request "Upload" {
  method = "POST"
  url    = "{{base_url}}/files"

  part "meta" {
    value = "{\"kind\":\"avatar\"}"
  }
  part "file" {
    value   = "./avatar.png"
    is_file = true
  }
}

request "Grpc" {
  method = "POST"
  url    = "localhost:50051"
  transport = "grpc"

  grpc {
    service_method = "user.UserService/GetUser"
    payload        = "{\"id\": 1}"
    plaintext      = true
  }
}
`)

	col, err := LoadCollectionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	gql := col.Requests[0].Body
	if gql.Kind != types.BodyGraphQL || gql.GraphQL.Query == "" || gql.GraphQL.Variables == "" {
		t.Errorf("graphql body = %+v", gql)
	}

	up := col.Requests[1].Body
	if up.Kind != types.BodyMultipart || len(up.Parts) != 2 {
		t.Fatalf("multipart body = %+v", up)
	}
	if !up.Parts[1].IsFile || up.Parts[1].Value != "./avatar.png" {
		t.Errorf("file part = %+v", up.Parts[1])
	}

	g := col.Requests[2]
	if g.Transport != types.TransportGRPC || g.Body.GRPC.ServiceMethod != "user.UserService/GetUser" {
		t.Errorf("grpc request = %+v", g)
	}
	if !g.Body.GRPC.Plaintext {
		t.Error("plaintext flag lost")
	}
}

func TestLoadCollectionWebSocketMessages(t *testing.T) {
	path := writeFile(t, "ws.hcl", `
request "Echo" {
  method    = "GET"
  url       = "ws://localhost:8080/echo"
  transport = "websocket"

  message "hello" {
    direction = "send"
    type      = "json"
    content   = "{\"op\":\"hello\"}"
  }
  message "ack" {
    direction = "receive"
    timeout   = 5
  }
}
`)

	col, err := LoadCollectionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := col.Requests[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Direction != "send" || msgs[0].Content == "" {
		t.Errorf("send step = %+v", msgs[0])
	}
	if msgs[1].Direction != "receive" || msgs[1].TimeoutSec != 5 {
		t.Errorf("receive step = %+v", msgs[1])
	}
}

func TestLoadCollectionRejectsUnknownAuth(t *testing.T) {
	path := writeFile(t, "bad.hcl", `
request "X" {
  method = "GET"
  url    = "http://localhost/"

  auth {
    kind = "digest"
  }
}
`)
	if _, err := LoadCollectionFile(path); err == nil {
		t.Error("unknown auth kind should be rejected")
	}
}

func TestLoadEnvironments(t *testing.T) {
	path := writeFile(t, "environments.hcl", `
env "dev" {
  base_url = "https://api.dev.example.com"
  token    = "dev_token_123"
}

env "prod" {
  base_url = "https://api.example.com"
  token    = "prod_secret_abc"
}
`)

	envs, err := LoadEnvironments(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("envs = %d, want 2", len(envs))
	}
	if envs[0].Name != "dev" || envs[0].BaseURL != "https://api.dev.example.com" {
		t.Errorf("dev env = %+v", envs[0])
	}
	if envs[0].Variables["token"] != "dev_token_123" {
		t.Errorf("dev token = %q", envs[0].Variables["token"])
	}
	if b := envs[0].Bindings(); b["base_url"] != "https://api.dev.example.com" {
		t.Errorf("base_url binding = %q", b["base_url"])
	}
}

func TestLoadCollectionDir(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []struct{ name, content string }{
		{"b.hcl", "request \"Two\" {\n  method = \"GET\"\n  url = \"http://localhost/2\"\n}\n"},
		{"a.hcl", "request \"One\" {\n  method = \"GET\"\n  url = \"http://localhost/1\"\n}\n"},
		{"notes.txt", "ignored"},
	} {
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte(f.content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cols, err := LoadCollectionDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(cols) != 2 || cols[0].Name != "a" || cols[1].Name != "b" {
		t.Errorf("collections out of order: %+v", cols)
	}
	if cols[0].Request("One") == nil {
		t.Error("lookup by name failed")
	}
}
