package command

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/yndnr/routemesh-go/internal/auth"
	"github.com/yndnr/routemesh-go/internal/storage"
)

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "routemesh-server" {
		t.Errorf("Name = %q", app.Name)
	}
	if app.Action == nil {
		t.Error("root command should serve by default")
	}

	commands := make(map[string]bool)
	for _, cmd := range app.Commands {
		commands[cmd.Name] = true
	}
	for _, name := range []string{"serve", "config", "user", "hash-password", "token"} {
		if !commands[name] {
			t.Errorf("missing command: %s", name)
		}
	}

	flags := make(map[string]bool)
	for _, f := range app.Flags {
		flags[f.Names()[0]] = true
	}
	for _, name := range []string{"config", "log-level", "output"} {
		if !flags[name] {
			t.Errorf("missing global flag: %s", name)
		}
	}
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
server:
  http:
    addr: "127.0.0.1:9000"
resources:
  - path: /echo
    service: Echo
    methods: [GET]
redirects:
  - from: /old
    to: /echo
auth:
  mode: bearer
  jwt_secret: "0123456789abcdef-secret"
  restrict: [/echo]
`)

	out, err := runApp(t, "", "-c", path, "-o", "json", "config", "check")
	if err != nil {
		t.Fatalf("config check: %v", err)
	}

	var got configSummary
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if strings.Join(got.Sources, ",") != "defaults,file,env" {
		t.Errorf("Sources = %v", got.Sources)
	}
	if got.Listen != "tcp://127.0.0.1:9000" {
		t.Errorf("Listen = %q", got.Listen)
	}
	if len(got.Resources) != 1 || got.Resources[0].Service != "echo" {
		t.Errorf("Resources = %+v", got.Resources)
	}
	if got.Redirects["/old"] != "/echo" {
		t.Errorf("Redirects = %v", got.Redirects)
	}
	if got.AuthMode != "bearer" || got.AuthRestrict[0] != "/echo" {
		t.Errorf("auth = %q %v", got.AuthMode, got.AuthRestrict)
	}
	if strings.Contains(out, "0123456789abcdef-secret") {
		t.Error("jwt secret printed unmasked")
	}
}

func TestConfigCheck_Table(t *testing.T) {
	out, err := runApp(t, "", "--log-level", "warn", "config", "check")
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	for _, want := range []string{"SETTING", "listen", "tcp://127.0.0.1:8080", "max_redirects", "warn (json)", "defaults < env < overrides"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCheck_Invalid(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "log:\n  level: loud\n")
	if _, err := runApp(t, "", "-c", path, "config", "check"); err == nil {
		t.Fatal("config check accepted an invalid log level")
	}
	if _, err := runApp(t, "", "-o", "xml", "config", "check"); err == nil {
		t.Fatal("config check accepted an unknown output format")
	}
}

func TestUserCommands(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "auth:\n  store_dir: "+dir+"/users\n")

	if _, err := runApp(t, "s3cret-pass\n", "-c", path, "user", "add", "--password-stdin", "--role", "ops", "--role", "admin", "alice"); err != nil {
		t.Fatalf("user add: %v", err)
	}
	if _, err := runApp(t, "", "-c", path, "user", "add", "--password", "other", "bob"); err != nil {
		t.Fatalf("user add bob: %v", err)
	}
	if _, err := runApp(t, "", "-c", path, "user", "add", "carol"); err == nil {
		t.Error("user add without a password should fail")
	}

	out, err := runApp(t, "", "-c", path, "-o", "json", "user", "list")
	if err != nil {
		t.Fatalf("user list: %v", err)
	}
	var users []userView
	if err := json.Unmarshal([]byte(out), &users); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(users) != 2 || users[0].Name != "alice" || users[1].Name != "bob" {
		t.Fatalf("users = %+v", users)
	}
	if strings.Join(users[0].Roles, ",") != "admin,ops" {
		t.Errorf("roles = %v, want sorted", users[0].Roles)
	}
	if strings.Contains(out, "argon2id") {
		t.Error("user list leaked a password hash")
	}

	if _, err := runApp(t, "", "-c", path, "user", "rm", "bob"); err != nil {
		t.Fatalf("user rm: %v", err)
	}
	if _, err := runApp(t, "", "-c", path, "user", "rm", "bob"); err == nil {
		t.Error("removing a missing user should fail")
	}

	store, err := storage.OpenBadgerUserStore(storage.BadgerConfig{Dir: dir + "/users"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	u, err := store.Get(t.Context(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := auth.VerifyPassword("s3cret-pass", u.PasswordHash); err != nil || !ok {
		t.Errorf("stored hash does not verify: %v %v", ok, err)
	}
	if _, err := store.Get(t.Context(), "bob"); err == nil {
		t.Error("bob still present after removal")
	}
}

func TestHashPassword(t *testing.T) {
	out, err := runApp(t, "hunter22\n", "hash-password")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	if ok, err := auth.VerifyPassword("hunter22", hash); err != nil || !ok {
		t.Errorf("VerifyPassword(%q) = %v, %v", hash, ok, err)
	}

	if _, err := runApp(t, "", "hash-password"); err == nil {
		t.Error("hash-password with empty stdin should fail")
	}
}

func TestTokenIssue(t *testing.T) {
	const secret = "0123456789abcdef-secret"
	path := writeConfigFile(t, t.TempDir(), `
auth:
  mode: bearer
  jwt_secret: "`+secret+`"
  jwt_issuer: routemesh-test
`)

	out, err := runApp(t, "", "-c", path, "token", "issue", "--role", "admin", "--ttl", "5m", "svc-backup")
	if err != nil {
		t.Fatalf("token issue: %v", err)
	}

	bearer, err := auth.NewBearerAuth(auth.BearerConfig{Secret: []byte(secret), Issuer: "routemesh-test"})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := bearer.Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "svc-backup" || !claims.HasRole("admin") {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := runApp(t, "", "token", "issue", "x"); err == nil {
		t.Error("token issue without a secret should fail")
	}
}
