package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Wallet(t *testing.T) {
	var submitted map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/tx/submit":
			json.NewDecoder(r.Body).Decode(&submitted)
			if submitted["amount"].(float64) <= 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"transaction amount must be greater than zero"}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"tx-1"}`))

		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
		}
	}))
	defer srv.Close()

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append(args, "--account-path", t.TempDir(), "--url", srv.URL))
		err := rootCmd.Execute()
		return strings.TrimSpace(out.String()), err
	}

	t.Log("Given the need to use the wallet against a node.")
	{
		dir := t.TempDir()

		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs([]string{"generate", "--account", "alice", "--account-path", dir})
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		address := strings.TrimSpace(out.String())
		if !strings.HasPrefix(address, "TU") || len(address) != 42 {
			t.Fatalf("\t%s\tShould print a wallet address : %q", failed, address)
		}
		t.Logf("\t%s\tShould be able to generate a key.", success)

		out.Reset()
		rootCmd.SetArgs([]string{"send", "--account", "alice", "--account-path", dir, "--url", srv.URL, "--to", "bob", "--amount", "5"})
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("\t%s\tShould be able to send a transaction: %v", failed, err)
		}
		if submitted["from"] != address || submitted["to"] != "bob" {
			t.Fatalf("\t%s\tShould submit from the wallet address : %v", failed, submitted)
		}
		t.Logf("\t%s\tShould submit from the wallet address.", success)

		rootCmd.SetArgs([]string{"send", "--account", "alice", "--account-path", dir, "--url", srv.URL, "--to", "bob", "--amount", "0"})
		if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "greater than zero") {
			t.Fatalf("\t%s\tShould get the node error back : %v", failed, err)
		}
		t.Logf("\t%s\tShould get the node error back.", success)

		if _, err := run("account", "--account", "missing"); err == nil {
			t.Fatalf("\t%s\tShould fail for a missing key file.", failed)
		}
		t.Logf("\t%s\tShould fail for a missing key file.", success)
	}
}
