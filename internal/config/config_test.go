package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: 9000
forges:
  - type: github
    token: ${JMERGE_TEST_TOKEN:-fallback-token}
    bot_user: pr-bot
tracker:
  type: jira
  url: https://bugs.example.org
  user: bot
  token: secret
engine:
  max_workers: 8
scheduler:
  poll_spec: "@every 30s"
bots:
  - name: jdk
    forge: github
    repo: openjdk/jdk
    issue_project: JDK
    enable_csr: true
    enable_backport: true
    accept_simple_merges: true
    integrators:
      - duke
    blocking_check_labels:
      csr: "The CSR for this change has not been approved"
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jmerge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxWorkers != 8 {
		t.Errorf("Engine.MaxWorkers = %d", cfg.Engine.MaxWorkers)
	}
	// Unset fields keep defaults
	if cfg.Engine.ItemTimeout != defaultItemTimeout {
		t.Errorf("Engine.ItemTimeout = %d, want default", cfg.Engine.ItemTimeout)
	}

	if len(cfg.Bots) != 1 {
		t.Fatalf("len(Bots) = %d, want 1", len(cfg.Bots))
	}
	bot := cfg.Bots[0]
	if bot.Repo != "openjdk/jdk" {
		t.Errorf("bot.Repo = %q", bot.Repo)
	}
	if !bot.EnableCSR || !bot.EnableBackport || !bot.AcceptSimpleMerges {
		t.Error("bot feature flags not parsed")
	}
	if bot.BlockingCheckLabels["csr"] == "" {
		t.Error("blocking_check_labels not parsed")
	}
}

func TestLoad_BotDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	bot := cfg.Bots[0]
	if bot.ReviewMerge != ReviewMergeNever {
		t.Errorf("ReviewMerge default = %q, want %q", bot.ReviewMerge, ReviewMergeNever)
	}
	if bot.CheckSummaryCap != 65000 {
		t.Errorf("CheckSummaryCap default = %d, want 65000", bot.CheckSummaryCap)
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("JMERGE_TEST_VAR", "hello")
	defer os.Unsetenv("JMERGE_TEST_VAR")

	got := expandEnvVars("value: ${JMERGE_TEST_VAR}")
	if got != "value: hello" {
		t.Errorf("expandEnvVars = %q", got)
	}

	// Default value when unset
	got = expandEnvVars("value: ${JMERGE_UNSET_VAR:-fallback}")
	if got != "value: fallback" {
		t.Errorf("expandEnvVars with default = %q", got)
	}

	// Unset without default expands to empty
	got = expandEnvVars("value: ${JMERGE_UNSET_VAR}")
	if got != "value: " {
		t.Errorf("expandEnvVars unset = %q", got)
	}
}

func TestExpandEnvVars_TokenLoaded(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Forges[0].Token != "fallback-token" {
		t.Errorf("Token = %q, want fallback", cfg.Forges[0].Token)
	}
}

func TestServerAddress(t *testing.T) {
	s := ServerConfig{Host: "0.0.0.0", Port: 8080}
	if s.Address() != "0.0.0.0:8080" {
		t.Errorf("Address() = %q", s.Address())
	}
}

func TestGetForge(t *testing.T) {
	cfg := Default()
	cfg.Forges = []ForgeConfig{{Type: "github", Token: "t"}}

	if cfg.GetForge("github") == nil {
		t.Error("GetForge(github) should find the forge")
	}
	if cfg.GetForge("gitlab") != nil {
		t.Error("GetForge(gitlab) should be nil")
	}
}

func TestIsIntegrator(t *testing.T) {
	b := BotConfig{Integrators: []string{"duke", "alice"}}
	if !b.IsIntegrator("duke") {
		t.Error("duke should be an integrator")
	}
	if b.IsIntegrator("mallory") {
		t.Error("mallory should not be an integrator")
	}
}

func TestTargetBranchAllowed(t *testing.T) {
	b := BotConfig{AllowedTargetBranches: "master|jdk.*"}
	cases := map[string]bool{
		"master":  true,
		"jdk17u":  true,
		"feature": false,
	}
	for ref, want := range cases {
		if got := b.TargetBranchAllowed(ref); got != want {
			t.Errorf("TargetBranchAllowed(%q) = %v, want %v", ref, got, want)
		}
	}

	// Empty pattern allows everything
	open := BotConfig{}
	if !open.TargetBranchAllowed("anything") {
		t.Error("empty pattern should allow all refs")
	}
}
