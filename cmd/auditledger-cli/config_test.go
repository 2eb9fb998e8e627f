package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// resetFlags restores global flag state after each test.
func resetFlags(t *testing.T) {
	t.Helper()
	orig := struct{ url, key, fmt string }{flagURL, flagKey, flagFmt}
	t.Cleanup(func() {
		flagURL = orig.url
		flagKey = orig.key
		flagFmt = orig.fmt
	})
}

// writeHomeConfig points HOME at a temp dir and writes content as the config
// file. Empty content leaves the file absent.
func writeHomeConfig(t *testing.T, content string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	if content == "" {
		return home
	}
	dir := filepath.Join(home, ".auditledger")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return home
}

const profilesYAML = `
active_profile: staging
profiles:
  default:
    url: http://default:3040
    api_key: default-key
  staging:
    url: http://staging:4040
    api_key: staging-key
`

func TestResolveConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		flagURL string
		flagKey string
		wantURL string
		wantKey string
	}{
		{
			name:    "defaults without env or file",
			wantURL: defaultURL,
		},
		{
			name:    "env fills url and key",
			env:     map[string]string{"AUDITLEDGER_URL": "http://env:9090", "AUDITLEDGER_API_KEY": "env-key"},
			wantURL: "http://env:9090",
			wantKey: "env-key",
		},
		{
			name:    "explicit flag beats env",
			env:     map[string]string{"AUDITLEDGER_URL": "http://env:9090"},
			flagURL: "http://flag:1234",
			wantURL: "http://flag:1234",
		},
		{
			name:    "flat file",
			file:    "url: http://file:8080\napi_key: file-key\n",
			wantURL: "http://file:8080",
			wantKey: "file-key",
		},
		{
			name:    "active profile",
			file:    profilesYAML,
			wantURL: "http://staging:4040",
			wantKey: "staging-key",
		},
		{
			name:    "default profile when none active",
			file:    "profiles:\n  default:\n    url: http://dflt:5050\n    api_key: dflt-key\n",
			wantURL: "http://dflt:5050",
			wantKey: "dflt-key",
		},
		{
			name:    "env key beats file key",
			env:     map[string]string{"AUDITLEDGER_API_KEY": "env-wins"},
			file:    "url: http://file:9000\napi_key: file-key\n",
			wantURL: "http://file:9000",
			wantKey: "env-wins",
		},
		{
			name:    "malformed file is ignored",
			file:    ":::not-yaml:::",
			wantURL: defaultURL,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resetFlags(t)
			t.Setenv("AUDITLEDGER_URL", "")
			t.Setenv("AUDITLEDGER_API_KEY", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			writeHomeConfig(t, tc.file)

			flagURL = defaultURL
			if tc.flagURL != "" {
				flagURL = tc.flagURL
			}
			flagKey = tc.flagKey
			resolveConfig()

			if flagURL != tc.wantURL {
				t.Errorf("url: got %q, want %q", flagURL, tc.wantURL)
			}
			if flagKey != tc.wantKey {
				t.Errorf("key: got %q, want %q", flagKey, tc.wantKey)
			}
		})
	}
}

func TestConfigFileResolveMissingProfile(t *testing.T) {
	cfg := configFile{
		URL:           "http://flat:1",
		APIKey:        "flat-key",
		ActiveProfile: "prod",
		Profiles:      map[string]profileConfig{"default": {URL: "http://d:2"}},
	}
	url, key := cfg.resolve()
	if url != "http://flat:1" || key != "flat-key" {
		t.Errorf("got %q %q, want flat values", url, key)
	}
}

func TestWriteConfigKeepsOtherProfiles(t *testing.T) {
	home := writeHomeConfig(t, profilesYAML)

	path, err := writeConfig("prod", "http://prod:443", "prod-key")
	if err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	if want := filepath.Join(home, ".auditledger", "config.yaml"); path != want {
		t.Errorf("path: got %q, want %q", path, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode: got %o, want 600", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.ActiveProfile != "prod" {
		t.Errorf("active profile: got %q", cfg.ActiveProfile)
	}
	if len(cfg.Profiles) != 3 {
		t.Errorf("profiles: got %d, want 3", len(cfg.Profiles))
	}
	if cfg.Profiles["staging"].APIKey != "staging-key" {
		t.Error("existing profile was lost")
	}
}
