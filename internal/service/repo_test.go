package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store/sqlite"
)

// =========================================================================
// FAKE GITHUB CLIENT
// =========================================================================
//
// The GitHub API is the one dependency we always fake: tests must not make
// network calls, and upstream failures must be triggerable on demand. The
// stores run against a real in-memory sqlite database so the pipeline's
// persistence semantics (uniqueness, cascades, eager includes) are the real
// thing, not a mock's approximation.

type fakeGitHub struct {
	details      *model.GitHubRepo
	detailsErr   error
	branches     []model.GitHubBranch
	branchesErr  error
	languages    map[string]int
	languagesErr error
}

func (f *fakeGitHub) ListOwnedRepositories(_ context.Context, _ string) ([]model.GitHubRepo, error) {
	if f.details == nil {
		return []model.GitHubRepo{}, nil
	}
	return []model.GitHubRepo{*f.details}, nil
}

func (f *fakeGitHub) GetRepositoryDetails(_ context.Context, _, _ string) (*model.GitHubRepo, error) {
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.details, nil
}

func (f *fakeGitHub) ListBranches(_ context.Context, _, _ string) ([]model.GitHubBranch, error) {
	if f.branchesErr != nil {
		return nil, f.branchesErr
	}
	return f.branches, nil
}

func (f *fakeGitHub) ListLanguages(_ context.Context, _, _ string) (map[string]int, error) {
	if f.languagesErr != nil {
		return nil, f.languagesErr
	}
	return f.languages, nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newImportFixture wires a RepoService against in-memory sqlite and the
// fake GitHub client, with a signed-in user "alice" already synced.
func newImportFixture(t *testing.T, gh *fakeGitHub) (*RepoService, *sqlite.DB, auth.Session) {
	t.Helper()
	db := newTestDB(t)
	logger := testLogger()

	users := NewUserService(db, logger)
	user, err := users.SyncGitHubUser(context.Background(), &auth.Profile{
		ID:    1001,
		Login: "alice",
		Name:  "Alice",
		Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("failed to sync fixture user: %v", err)
	}

	catalog := NewCatalogService(db, logger)
	svc := NewRepoService(db, db, db, db, gh, catalog, logger)

	sess := auth.Session{UserID: user.ID, Email: user.Email, GitHubToken: "delegated-token"}
	return svc, db, sess
}

func demoRepo() *model.GitHubRepo {
	return &model.GitHubRepo{
		ID:            42,
		Name:          "demo",
		FullName:      "alice/demo",
		Description:   "a demo repository",
		HTMLURL:       "https://github.com/alice/demo",
		CloneURL:      "https://github.com/alice/demo.git",
		DefaultBranch: "main",
		Owner:         model.GitHubOwner{Login: "alice"},
	}
}

// =========================================================================
// IMPORT PIPELINE TESTS
// =========================================================================

func TestImportFromGitHub_Success(t *testing.T) {
	gh := &fakeGitHub{
		details: demoRepo(),
		branches: []model.GitHubBranch{
			{Name: "main", CommitSHA: "abc123", Protected: true},
			{Name: "develop", CommitSHA: "def456"},
		},
		languages: map[string]int{"TypeScript": 9000, "Go": 4000},
	}
	svc, _, sess := newImportFixture(t, gh)

	result, err := svc.ImportFromGitHub(context.Background(), sess, *demoRepo())
	if err != nil {
		t.Fatalf("ImportFromGitHub() error = %v", err)
	}

	repo := result.Repository
	if repo.Name != "demo" {
		t.Errorf("Name = %q, want %q", repo.Name, "demo")
	}
	if repo.GitHubID == nil || *repo.GitHubID != 42 {
		t.Errorf("GitHubID = %v, want 42", repo.GitHubID)
	}
	if len(repo.Branches) != 2 {
		t.Fatalf("Branches = %d, want 2", len(repo.Branches))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", result.Warnings)
	}

	// Languages attach to the default branch, sorted by byte count.
	var main *model.Branch
	for i := range repo.Branches {
		if repo.Branches[i].Name == "main" {
			main = &repo.Branches[i]
		}
	}
	if main == nil {
		t.Fatal("default branch missing from import")
	}
	if len(main.Languages) != 2 {
		t.Fatalf("default branch languages = %d, want 2", len(main.Languages))
	}
}

func TestImportFromGitHub_DuplicateReturnsConflictWithExisting(t *testing.T) {
	gh := &fakeGitHub{details: demoRepo()}
	svc, _, sess := newImportFixture(t, gh)
	ctx := context.Background()

	first, err := svc.ImportFromGitHub(ctx, sess, *demoRepo())
	if err != nil {
		t.Fatalf("first import: %v", err)
	}

	second, err := svc.ImportFromGitHub(ctx, sess, *demoRepo())
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second import error = %v, want ErrConflict", err)
	}
	// The existing record rides along so the client can show it.
	if second == nil || second.Repository == nil {
		t.Fatal("conflict result carries no existing repository")
	}
	if second.Repository.ID != first.Repository.ID {
		t.Errorf("existing ID = %q, want %q", second.Repository.ID, first.Repository.ID)
	}
}

func TestImportFromGitHub_ForbiddenCreatesNothing(t *testing.T) {
	details := demoRepo()
	details.Owner.Login = "mallory" // GitHub says someone else owns it
	gh := &fakeGitHub{details: details}
	svc, db, sess := newImportFixture(t, gh)
	ctx := context.Background()

	_, err := svc.ImportFromGitHub(ctx, sess, *demoRepo())
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}

	if _, err := db.GetRepositoryByGitHubID(ctx, 42); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("repository lookup after forbidden import: error = %v, want ErrNotFound", err)
	}
}

func TestImportFromGitHub_UnverifiableOwnershipIsForbidden(t *testing.T) {
	// GitHub failing to answer the details fetch means ownership cannot be
	// verified; the import is refused, it does not surface a server error.
	gh := &fakeGitHub{
		detailsErr: apperror.Upstream("Failed to fetch repository details from GitHub", errors.New("boom")),
	}
	svc, db, sess := newImportFixture(t, gh)
	ctx := context.Background()

	_, err := svc.ImportFromGitHub(ctx, sess, *demoRepo())
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatal("error is not an AppError")
	}
	if appErr.Message != "Unable to verify repository ownership" {
		t.Errorf("Message = %q, want the ownership-verification message", appErr.Message)
	}

	if _, err := db.GetRepositoryByGitHubID(ctx, 42); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("repository lookup after refused import: error = %v, want ErrNotFound", err)
	}
}

func TestImportFromGitHub_CapsBranchesAndLanguages(t *testing.T) {
	branches := make([]model.GitHubBranch, 0, 15)
	branches = append(branches, model.GitHubBranch{Name: "main", CommitSHA: "sha-main"})
	for i := 1; i < 15; i++ {
		branches = append(branches, model.GitHubBranch{Name: fmt.Sprintf("feature-%02d", i)})
	}
	languages := map[string]int{
		"TypeScript": 8000, "Go": 7000, "Python": 6000, "Rust": 5000,
		"Ruby": 4000, "PHP": 3000, "Java": 2000, "Swift": 1000,
	}
	gh := &fakeGitHub{details: demoRepo(), branches: branches, languages: languages}
	svc, _, sess := newImportFixture(t, gh)

	result, err := svc.ImportFromGitHub(context.Background(), sess, *demoRepo())
	if err != nil {
		t.Fatalf("ImportFromGitHub() error = %v", err)
	}

	if got := len(result.Repository.Branches); got != MaxImportBranches {
		t.Errorf("imported %d branches, want cap %d", got, MaxImportBranches)
	}

	var main *model.Branch
	for i := range result.Repository.Branches {
		if result.Repository.Branches[i].Name == "main" {
			main = &result.Repository.Branches[i]
		}
	}
	if main == nil {
		t.Fatal("default branch missing from import")
	}
	if got := len(main.Languages); got != MaxImportLanguages {
		t.Errorf("imported %d languages, want cap %d", got, MaxImportLanguages)
	}
	// Byte-count order: TypeScript is the biggest, so it must have made
	// the cut; Swift (smallest) must not.
	names := map[string]bool{}
	for _, l := range main.Languages {
		names[l.Name] = true
	}
	if !names["TypeScript"] || names["Swift"] {
		t.Errorf("languages = %v, want top-%d by bytes", names, MaxImportLanguages)
	}
}

func TestImportFromGitHub_LanguageFailureStillSucceeds(t *testing.T) {
	gh := &fakeGitHub{
		details:      demoRepo(),
		branches:     []model.GitHubBranch{{Name: "main"}},
		languagesErr: apperror.Upstream("Failed to fetch languages from GitHub", errors.New("boom")),
	}
	svc, _, sess := newImportFixture(t, gh)

	result, err := svc.ImportFromGitHub(context.Background(), sess, *demoRepo())
	if err != nil {
		t.Fatalf("ImportFromGitHub() error = %v, want success despite language failure", err)
	}
	if len(result.Repository.Branches) != 1 {
		t.Errorf("Branches = %d, want 1", len(result.Repository.Branches))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly the language warning", result.Warnings)
	}
}

func TestImportFromGitHub_BranchFailureStillSucceeds(t *testing.T) {
	gh := &fakeGitHub{
		details:     demoRepo(),
		branchesErr: apperror.Upstream("Failed to fetch branches from GitHub", errors.New("boom")),
	}
	svc, _, sess := newImportFixture(t, gh)

	result, err := svc.ImportFromGitHub(context.Background(), sess, *demoRepo())
	if err != nil {
		t.Fatalf("ImportFromGitHub() error = %v, want success despite branch failure", err)
	}
	if len(result.Repository.Branches) != 0 {
		t.Errorf("Branches = %d, want 0", len(result.Repository.Branches))
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Warnings = %v, want exactly the branch warning", result.Warnings)
	}
}

func TestImportFromGitHub_RequiresToken(t *testing.T) {
	svc, _, sess := newImportFixture(t, &fakeGitHub{details: demoRepo()})
	sess.GitHubToken = ""

	_, err := svc.ImportFromGitHub(context.Background(), sess, *demoRepo())
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestImportFromGitHub_ValidatesPayload(t *testing.T) {
	svc, _, sess := newImportFixture(t, &fakeGitHub{details: demoRepo()})

	_, err := svc.ImportFromGitHub(context.Background(), sess, model.GitHubRepo{Name: "no-id"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// ACCESS PREDICATE / CRUD TESTS
// =========================================================================

func TestGetForUser_ForbiddenForStranger(t *testing.T) {
	gh := &fakeGitHub{details: demoRepo()}
	svc, db, sess := newImportFixture(t, gh)
	ctx := context.Background()

	imported, err := svc.ImportFromGitHub(ctx, sess, *demoRepo())
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	users := NewUserService(db, testLogger())
	if _, err := users.SyncGitHubUser(ctx, &auth.Profile{ID: 2002, Login: "bob", Email: "bob@example.com"}); err != nil {
		t.Fatalf("sync bob: %v", err)
	}

	_, err = svc.GetForUser(ctx, "bob@example.com", imported.Repository.ID)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("stranger read error = %v, want ErrForbidden", err)
	}

	// The owner still reads it fine.
	if _, err := svc.GetForUser(ctx, "alice@example.com", imported.Repository.ID); err != nil {
		t.Errorf("owner read error = %v, want nil", err)
	}
}

func TestDeleteForUser_OwnerOnlyAndCascades(t *testing.T) {
	gh := &fakeGitHub{
		details:  demoRepo(),
		branches: []model.GitHubBranch{{Name: "main"}},
	}
	svc, db, sess := newImportFixture(t, gh)
	ctx := context.Background()

	imported, err := svc.ImportFromGitHub(ctx, sess, *demoRepo())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	branchID := imported.Repository.Branches[0].ID

	if err := svc.DeleteForUser(ctx, "alice@example.com", imported.Repository.ID); err != nil {
		t.Fatalf("DeleteForUser() error = %v", err)
	}

	if _, err := db.GetRepositoryByID(ctx, imported.Repository.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("repository after delete: error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetBranchByID(ctx, branchID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("branch after delete: error = %v, want ErrNotFound", err)
	}
}

func TestCreateDirect_ReturnsEagerRelations(t *testing.T) {
	svc, db, _ := newImportFixture(t, &fakeGitHub{})
	ctx := context.Background()

	owner, err := db.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("fixture user: %v", err)
	}

	repo, err := svc.CreateDirect(ctx, "hand-made", "no GitHub origin", owner.ID)
	if err != nil {
		t.Fatalf("CreateDirect() error = %v", err)
	}

	// Eager-include contract: relations are present even when empty.
	if repo.Owner == nil || repo.Owner.ID != owner.ID {
		t.Errorf("Owner = %+v, want attached owner", repo.Owner)
	}
	if repo.Branches == nil || repo.Members == nil {
		t.Error("relations are nil, want empty slices")
	}
}

func TestCreateDirect_UnknownOwner(t *testing.T) {
	svc, _, _ := newImportFixture(t, &fakeGitHub{})

	_, err := svc.CreateDirect(context.Background(), "orphan", "", "no-such-user")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
