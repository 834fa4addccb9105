package nimble

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetRepositoryParsesManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repo.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"repoName": "test-repo",
			"checkSum": "irrelevant",
			"requiredMods": [{"modName": "@ace", "checkSum": "787662722D70C36DF28CD1D5EE8D8E86", "enabled": true, "version": "3"}],
			"optionalMods": [],
			"clientParameters": "",
			"version": 2,
			"servers": [{"name": "primary", "url": "https://example.invalid"}]
		}`))
	}))
	defer srv.Close()

	repo, err := GetRepository(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("get repository: %v", err)
	}
	if len(repo.RequiredMods) != 1 || repo.RequiredMods[0].ModName != "@ace" {
		t.Fatalf("got %+v", repo.RequiredMods)
	}
	if repo.RequiredMods[0].Checksum.String() != "787662722D70C36DF28CD1D5EE8D8E86" {
		t.Fatalf("got checksum %s", repo.RequiredMods[0].Checksum)
	}
	if repo.Version != 2 {
		t.Fatalf("got version %d", repo.Version)
	}
}

func TestGetRemoteSRFSendsUserAgentAndAuth(t *testing.T) {
	var gotAuthUser, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		if u, _, ok := r.BasicAuth(); ok {
			gotAuthUser = u
		}
		w.Write([]byte(`{"Name":"@ace","Checksum":"787662722D70C36DF28CD1D5EE8D8E86","Files":[]}`))
	}))
	defer srv.Close()

	body, err := GetRemoteSRF(context.Background(), srv.Client(), srv.URL, "@ace", &BasicAuth{Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("get remote srf: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty body")
	}
	if gotAgent != userAgent {
		t.Fatalf("got user agent %q", gotAgent)
	}
	if gotAuthUser != "u" {
		t.Fatalf("basic auth not sent: %q", gotAuthUser)
	}
}

func TestGetRepositoryNonOKStatusIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := GetRepository(context.Background(), srv.Client(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	var nerr *Error
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *nimble.Error, got %T: %v", err, err)
	}
	if nerr.Kind != KindHTTP {
		t.Fatalf("got kind %v, want KindHTTP", nerr.Kind)
	}
}
