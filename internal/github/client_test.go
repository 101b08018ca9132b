package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/agamify/agamify/internal/apperror"
)

// newTestClient spins up an httptest server with the given routes and
// points a Client at it. go-github requires the base URL to end in "/".
func newTestClient(t *testing.T, routes map[string]string) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	for path, body := range routes {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(logger, WithBaseURL(srv.URL+"/")), srv
}

func TestListOwnedRepositories_FiltersToOwner(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"/user": `{"login":"alice","id":1}`,
		"/user/repos": `[
			{"id":42,"name":"demo","full_name":"alice/demo","default_branch":"main",
			 "owner":{"login":"alice","avatar_url":"https://a.example/alice"}},
			{"id":7,"name":"shared","full_name":"bob/shared",
			 "owner":{"login":"bob"}}
		]`,
	})

	repos, err := client.ListOwnedRepositories(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ListOwnedRepositories() error = %v", err)
	}

	// The collaboration repo owned by bob must be filtered out.
	if len(repos) != 1 {
		t.Fatalf("got %d repos, want 1 (owners only)", len(repos))
	}
	if repos[0].ID != 42 || repos[0].FullName != "alice/demo" {
		t.Errorf("repo = %+v, want alice/demo (42)", repos[0])
	}
	if repos[0].DefaultBranch != "main" {
		t.Errorf("DefaultBranch = %q, want %q", repos[0].DefaultBranch, "main")
	}
}

func TestGetRepositoryDetails(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"/repos/alice/demo": `{"id":42,"name":"demo","full_name":"alice/demo",
			"description":"a demo","private":true,
			"owner":{"login":"alice"}}`,
	})

	repo, err := client.GetRepositoryDetails(context.Background(), "tok", "alice/demo")
	if err != nil {
		t.Fatalf("GetRepositoryDetails() error = %v", err)
	}
	if repo.Owner.Login != "alice" {
		t.Errorf("Owner.Login = %q, want %q", repo.Owner.Login, "alice")
	}
	if !repo.Private {
		t.Error("Private = false, want true")
	}
}

func TestGetRepositoryDetails_InvalidFullName(t *testing.T) {
	client, _ := newTestClient(t, nil)

	for _, bad := range []string{"", "no-slash", "/name", "owner/"} {
		_, err := client.GetRepositoryDetails(context.Background(), "tok", bad)
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("GetRepositoryDetails(%q) error = %v, want ErrValidation", bad, err)
		}
	}
}

func TestListBranches(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"/repos/alice/demo/branches": `[
			{"name":"main","protected":true,"commit":{"sha":"abc123"}},
			{"name":"develop","commit":{"sha":"def456"}}
		]`,
	})

	branches, err := client.ListBranches(context.Background(), "tok", "alice/demo")
	if err != nil {
		t.Fatalf("ListBranches() error = %v", err)
	}
	if len(branches) != 2 {
		t.Fatalf("got %d branches, want 2", len(branches))
	}
	if branches[0].Name != "main" || branches[0].CommitSHA != "abc123" || !branches[0].Protected {
		t.Errorf("branch = %+v, want main/abc123/protected", branches[0])
	}
}

func TestListLanguages(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"/repos/alice/demo/languages": `{"Go":12345,"TypeScript":678}`,
	})

	langs, err := client.ListLanguages(context.Background(), "tok", "alice/demo")
	if err != nil {
		t.Fatalf("ListLanguages() error = %v", err)
	}
	if langs["Go"] != 12345 || langs["TypeScript"] != 678 {
		t.Errorf("languages = %v, want Go:12345 TypeScript:678", langs)
	}
}

func TestUpstreamErrorsAreWrapped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client := New(logger, WithBaseURL(srv.URL+"/"))

	_, err := client.ListOwnedRepositories(context.Background(), "tok")
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}

	// The client-safe message must not echo the upstream response body.
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatal("error is not an AppError")
	}
	if appErr.Message != "Failed to fetch repositories from GitHub" {
		t.Errorf("Message = %q, want the generic client-safe message", appErr.Message)
	}
}
