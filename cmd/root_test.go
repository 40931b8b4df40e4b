package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/baybook/internal/secret"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"version", "keys", "seal", "book", "server", "runs", "user"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Fatalf("missing command %q", name)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil || !strings.HasPrefix(out, "baybook dev") {
		t.Fatalf("version = %q, %v", out, err)
	}
}

func TestKeysThenSeal(t *testing.T) {
	out, err := run(t, "", "keys")
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			t.Fatalf("bad line %q", line)
		}
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfgPath := filepath.Join(t.TempDir(), "baybook.yaml")
	if err := os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, "hunter2\n", "seal", "--config", cfgPath)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed := strings.TrimSpace(out)
	if !secret.IsSealed(sealed) {
		t.Fatalf("seal output = %q", sealed)
	}

	hash, _ := secret.DecodeKey(env["BAYBOOK_COOKIE_HASH_KEY"])
	block, _ := secret.DecodeKey(env["BAYBOOK_COOKIE_BLOCK_KEY"])
	s, err := secret.NewSealer(hash, block)
	if err != nil {
		t.Fatal(err)
	}
	if plain, err := s.Open(sealed); err != nil || plain != "hunter2" {
		t.Fatalf("Open = %q, %v", plain, err)
	}
}

func TestSealWithoutKeys(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "baybook.yaml")
	if err := os.WriteFile(cfgPath, []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "x\n", "seal", "--config", cfgPath); err == nil {
		t.Fatalf("expected error without keys")
	}
}

func TestBookRejectsIncompleteConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "baybook.yaml")
	if err := os.WriteFile(cfgPath, []byte("portal:\n  carpark: Wynyard Lane\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, "", "book", "--config", cfgPath, "--no-history")
	if err == nil || !strings.Contains(err.Error(), "portal.username") {
		t.Fatalf("err = %v", err)
	}
}
