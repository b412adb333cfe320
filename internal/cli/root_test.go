package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

const gitStubScript = `#!/bin/sh
case "$1" in
--version) echo "git version 2.43.0"; exit 0 ;;
ls-remote) echo "abc123	HEAD"; exit 0 ;;
show-ref) printf 'abc123def456abc123def456abc123def456abc1 refs/tags/1.0.0\n'; exit 0 ;;
remote)
  case "$2" in
  get-url) echo "https://example/repo.git"; exit 0 ;;
  esac
  exit 0 ;;
rev-parse)
  case "$2" in
  --show-toplevel) pwd ;;
  HEAD) echo "abc123def456abc123def456abc123def456abc1" ;;
  esac
  exit 0 ;;
esac
exit 0
`

const hgStubScript = `#!/bin/sh
case "$1" in
--version) echo "Mercurial Distributed SCM (version 6.5.1)"; exit 0 ;;
identify) echo "abort: not found" >&2; exit 255 ;;
root) echo "abort: no repository found" >&2; exit 255 ;;
esac
exit 0
`

func setupStubTools(t *testing.T) {
	t.Helper()

	binDir := t.TempDir()
	for name, script := range map[string]string{"git": gitStubScript, "hg": hgStubScript} {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte(script), 0o755); err != nil {
			t.Fatalf("failed to write stub %s: %v", name, err)
		}
	}

	t.Setenv("ORT_GIT_COMMAND", filepath.Join(binDir, "git"))
	t.Setenv("ORT_HG_COMMAND", filepath.Join(binDir, "hg"))
	t.Setenv("ORT_COMMAND_TIMEOUT", "")
	t.Setenv("ORT_VERBOSE", "")
	t.Setenv("ORT_CONFIG_PATH", filepath.Join(t.TempDir(), "config.yaml"))
}

func TestProbeJSON(t *testing.T) {
	setupStubTools(t)

	command := NewRootCommand()
	buffer := &bytes.Buffer{}
	command.SetOut(buffer)
	command.SetErr(buffer)
	command.SetArgs([]string{"--json", "probe"})

	err := command.Execute()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	var parsed map[string][]map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &parsed); err != nil {
		t.Fatalf("expected valid json output, got: %s (%v)", buffer.String(), err)
	}

	backends := parsed["backends"]
	if len(backends) != 2 {
		t.Fatalf("expected two backends, got: %v", backends)
	}

	if backends[0]["kind"] != "Git" || backends[0]["tool_version"] != "2.43.0" {
		t.Fatalf("unexpected first backend: %v", backends[0])
	}

	if backends[1]["kind"] != "Mercurial" || backends[1]["tool_version"] != "6.5.1" {
		t.Fatalf("unexpected second backend: %v", backends[1])
	}
}

func TestProbeClaimsURL(t *testing.T) {
	setupStubTools(t)

	command := NewRootCommand()
	buffer := &bytes.Buffer{}
	command.SetOut(buffer)
	command.SetErr(buffer)
	command.SetArgs([]string{"probe", "https://example/repo.git"})

	err := command.Execute()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	output := buffer.String()
	if !strings.Contains(output, "Git") || !strings.Contains(output, "claims URL") {
		t.Fatalf("expected Git to claim the URL, got: %s", output)
	}
}

func TestDownloadJSON(t *testing.T) {
	setupStubTools(t)
	targetDir := filepath.Join(t.TempDir(), "checkout")

	command := NewRootCommand()
	buffer := &bytes.Buffer{}
	command.SetOut(buffer)
	command.SetErr(buffer)
	command.SetArgs([]string{"--json", "download", "https://example/repo.git",
		"--vcs-type", "git", "--version", "1.0.0", "--output", targetDir})

	err := command.Execute()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	var parsed map[string]string
	if err := json.Unmarshal(buffer.Bytes(), &parsed); err != nil {
		t.Fatalf("expected valid json output, got: %s (%v)", buffer.String(), err)
	}

	if parsed["revision"] != "abc123def456abc123def456abc123def456abc1" {
		t.Fatalf("unexpected revision: %q", parsed["revision"])
	}

	if parsed["dir"] != targetDir {
		t.Fatalf("unexpected dir: %q", parsed["dir"])
	}
}

func TestDownloadRequiresOutput(t *testing.T) {
	setupStubTools(t)

	command := NewRootCommand()
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"download", "https://example/repo.git"})

	if err := command.Execute(); err == nil {
		t.Fatal("expected missing --output to fail")
	}
}

func TestInfoSmoke(t *testing.T) {
	setupStubTools(t)

	command := NewRootCommand()
	buffer := &bytes.Buffer{}
	command.SetOut(buffer)
	command.SetErr(buffer)
	command.SetArgs([]string{"info", t.TempDir()})

	err := command.Execute()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	output := buffer.String()
	if !strings.Contains(output, "https://example/repo.git") || !strings.Contains(output, "abc123def456") {
		t.Fatalf("expected remote and revision in output, got: %s", output)
	}
}

func TestAuthLoginStatusLogout(t *testing.T) {
	setupStubTools(t)
	keyring.MockInit()

	runCommand := func(args ...string) (string, error) {
		command := NewRootCommand()
		buffer := &bytes.Buffer{}
		command.SetOut(buffer)
		command.SetErr(buffer)
		command.SetArgs(args)
		err := command.Execute()
		return buffer.String(), err
	}

	output, err := runCommand("auth", "login", "--host", "code.example.com", "--username", "carol", "--password", "s3cret")
	if err != nil {
		t.Fatalf("expected login to succeed, got: %v", err)
	}
	if !strings.Contains(output, "mode=basic") {
		t.Fatalf("expected basic auth mode, got: %s", output)
	}

	output, err = runCommand("auth", "status")
	if err != nil {
		t.Fatalf("expected status to succeed, got: %v", err)
	}
	if !strings.Contains(output, "https://code.example.com") {
		t.Fatalf("expected stored host, got: %s", output)
	}

	if _, err = runCommand("auth", "logout", "--host", "code.example.com"); err != nil {
		t.Fatalf("expected logout to succeed, got: %v", err)
	}

	output, err = runCommand("auth", "status")
	if err != nil {
		t.Fatalf("expected status to succeed, got: %v", err)
	}
	if !strings.Contains(output, "No stored credentials") {
		t.Fatalf("expected empty credential store, got: %s", output)
	}
}
