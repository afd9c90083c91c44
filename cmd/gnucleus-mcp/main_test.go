package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	configFile, transportFlag, listenFlag, logLevelFlag = "", "", "", ""
	envFile = filepath.Join(t.TempDir(), "absent.env")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append(args, "--env-file", envFile))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestCallWithoutCredentialsPrintsConfigurationFailure(t *testing.T) {
	t.Setenv("GNUCLEUS_HOST", "")
	t.Setenv("GNUCLEUS_API_KEY", "")

	out := execute(t, "call", "a", "spur", "gear")

	want := `gNucleus failed to generate CAD for 'a spur gear' and the reponse is {"message":"Configuration error: Missing API credentials"} `
	if strings.TrimRight(out, "\n") != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", out, want)
	}
}

func TestStatusMasksAPIKey(t *testing.T) {
	t.Setenv("GNUCLEUS_HOST", "cad.example.com")
	t.Setenv("GNUCLEUS_API_KEY", "sk-0123456789abcdef")
	t.Setenv("GNUCLEUS_ORG_ID", "")

	out := execute(t, "status")

	for _, want := range []string{
		"Host: cad.example.com",
		"API Key: sk-0...cdef",
		"Org ID: not set",
		"Endpoint: https://cad.example.com:5000/api/text_to_cad",
		"Transport: stdio",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789ab") {
		t.Fatalf("status output leaks the API key:\n%s", out)
	}
}

func TestStatusReportsTransportFlag(t *testing.T) {
	out := execute(t, "status", "--transport", "http", "--listen", "127.0.0.1:9999")

	if !strings.Contains(out, "Transport: http") {
		t.Fatalf("expected http transport:\n%s", out)
	}
	if !strings.Contains(out, "Listen: 127.0.0.1:9999/mcp") {
		t.Fatalf("expected listen address:\n%s", out)
	}
}

func TestVersionDefaults(t *testing.T) {
	out := execute(t, "version")
	if !strings.Contains(out, "version=dev") {
		t.Fatalf("unexpected version output: %s", out)
	}
}
