package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
)

func createTestRepo(t *testing.T, db *DB, ownerID, name string, githubID int64) *model.Repository {
	t.Helper()
	repo := &model.Repository{Name: name, OwnerID: ownerID}
	if githubID != 0 {
		repo.GitHubID = &githubID
	}
	if err := db.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	return repo
}

// =========================================================================
// REPOSITORY TESTS
// =========================================================================

func TestCreateRepository_DuplicateGitHubID(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, 1, "alice")
	createTestRepo(t, db, owner.ID, "app", 500)

	dup := &model.Repository{Name: "app-again", OwnerID: owner.ID}
	ghID := int64(500)
	dup.GitHubID = &ghID

	err := db.CreateRepository(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateRepository() duplicate github_id error = %v, want ErrConflict", err)
	}
}

func TestCreateRepository_NilGitHubIDNotUnique(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, 1, "alice")

	// Directly created repositories carry no GitHub ID; several may coexist.
	createTestRepo(t, db, owner.ID, "first", 0)
	createTestRepo(t, db, owner.ID, "second", 0)

	repos, err := db.ListRepositoriesForUser(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("ListRepositoriesForUser() error = %v", err)
	}
	if len(repos) != 2 {
		t.Errorf("ListRepositoriesForUser() = %d repos, want 2", len(repos))
	}
}

func TestGetRepositoryByID_AttachesRelations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	member := createTestUser(t, db, 2, "bob")
	repo := createTestRepo(t, db, owner.ID, "app", 100)

	branch := &model.Branch{Name: "main", RepositoryID: repo.ID, LastCommit: "abc123"}
	if err := db.CreateBranch(ctx, branch); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	lang := &model.Language{Name: "Go", Category: model.CategoryBackend, BranchID: &branch.ID}
	if err := db.CreateLanguage(ctx, lang); err != nil {
		t.Fatalf("CreateLanguage: %v", err)
	}
	grant := &model.RepoUser{UserID: member.ID, RepositoryID: repo.ID, Role: model.RoleContributor}
	if err := db.GrantMembership(ctx, grant); err != nil {
		t.Fatalf("GrantMembership: %v", err)
	}

	found, err := db.GetRepositoryByID(ctx, repo.ID)
	if err != nil {
		t.Fatalf("GetRepositoryByID() error = %v", err)
	}

	if found.Owner == nil || found.Owner.ID != owner.ID {
		t.Errorf("Owner not attached, got %+v", found.Owner)
	}
	if len(found.Branches) != 1 {
		t.Fatalf("Branches = %d, want 1", len(found.Branches))
	}
	if len(found.Branches[0].Languages) != 1 || found.Branches[0].Languages[0].Name != "Go" {
		t.Errorf("branch languages = %+v, want [Go]", found.Branches[0].Languages)
	}
	if len(found.Members) != 1 || found.Members[0].User == nil || found.Members[0].User.ID != member.ID {
		t.Errorf("Members = %+v, want bob's membership with user attached", found.Members)
	}
}

func TestGetRepositoryByGitHubID(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, 1, "alice")
	repo := createTestRepo(t, db, owner.ID, "app", 777)

	found, err := db.GetRepositoryByGitHubID(context.Background(), 777)
	if err != nil {
		t.Fatalf("GetRepositoryByGitHubID() error = %v", err)
	}
	if found.ID != repo.ID {
		t.Errorf("ID = %q, want %q", found.ID, repo.ID)
	}

	_, err = db.GetRepositoryByGitHubID(context.Background(), 999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown github_id error = %v, want ErrNotFound", err)
	}
}

func TestListRepositoriesForUser_IncludesMemberships(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, 1, "alice")
	bob := createTestUser(t, db, 2, "bob")

	owned := createTestRepo(t, db, alice.ID, "alice-app", 0)
	shared := createTestRepo(t, db, bob.ID, "bob-app", 0)
	grant := &model.RepoUser{UserID: alice.ID, RepositoryID: shared.ID}
	if err := db.GrantMembership(ctx, grant); err != nil {
		t.Fatalf("GrantMembership: %v", err)
	}

	repos, err := db.ListRepositoriesForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListRepositoriesForUser() error = %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("got %d repos, want 2 (owned + member)", len(repos))
	}

	ids := map[string]bool{repos[0].ID: true, repos[1].ID: true}
	if !ids[owned.ID] || !ids[shared.ID] {
		t.Errorf("repos = %v, want both %q and %q", ids, owned.ID, shared.ID)
	}
}

func TestDeleteRepository_CascadesToBranchesAndLanguages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	repo := createTestRepo(t, db, owner.ID, "app", 0)

	branch := &model.Branch{Name: "main", RepositoryID: repo.ID}
	if err := db.CreateBranch(ctx, branch); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	lang := &model.Language{Name: "Go", BranchID: &branch.ID}
	if err := db.CreateLanguage(ctx, lang); err != nil {
		t.Fatalf("CreateLanguage: %v", err)
	}

	if err := db.DeleteRepository(ctx, repo.ID); err != nil {
		t.Fatalf("DeleteRepository() error = %v", err)
	}

	if _, err := db.GetBranchByID(ctx, branch.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("branch after cascade: error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetLanguageByID(ctx, lang.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("language after cascade: error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// BRANCH TESTS
// =========================================================================

func TestCreateBranch_DuplicateNameInRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	repo := createTestRepo(t, db, owner.ID, "app", 0)
	other := createTestRepo(t, db, owner.ID, "other", 0)

	if err := db.CreateBranch(ctx, &model.Branch{Name: "main", RepositoryID: repo.ID}); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	err := db.CreateBranch(ctx, &model.Branch{Name: "main", RepositoryID: repo.ID})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate branch error = %v, want ErrConflict", err)
	}

	// The same name in a different repository is fine.
	if err := db.CreateBranch(ctx, &model.Branch{Name: "main", RepositoryID: other.ID}); err != nil {
		t.Errorf("same name in other repo: error = %v, want nil", err)
	}
}

func TestAppendMigrationTarget(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	repo := createTestRepo(t, db, owner.ID, "app", 0)

	branch := &model.Branch{Name: "main", RepositoryID: repo.ID}
	if err := db.CreateBranch(ctx, branch); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	if err := db.AppendMigrationTarget(ctx, branch.ID, "React"); err != nil {
		t.Fatalf("AppendMigrationTarget() error = %v", err)
	}
	if err := db.AppendMigrationTarget(ctx, branch.ID, "Vue"); err != nil {
		t.Fatalf("AppendMigrationTarget() error = %v", err)
	}

	found, err := db.GetBranchByID(ctx, branch.ID)
	if err != nil {
		t.Fatalf("GetBranchByID: %v", err)
	}
	if len(found.MigratesTo) != 2 || found.MigratesTo[0] != "React" || found.MigratesTo[1] != "Vue" {
		t.Errorf("MigratesTo = %v, want [React Vue]", found.MigratesTo)
	}
}

func TestGetBranchByNameAndRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	repo := createTestRepo(t, db, owner.ID, "app", 0)

	branch := &model.Branch{Name: "develop", RepositoryID: repo.ID}
	if err := db.CreateBranch(ctx, branch); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	found, err := db.GetBranchByNameAndRepository(ctx, "develop", repo.ID)
	if err != nil {
		t.Fatalf("GetBranchByNameAndRepository() error = %v", err)
	}
	if found.ID != branch.ID {
		t.Errorf("ID = %q, want %q", found.ID, branch.ID)
	}
	if found.MigratesTo == nil {
		t.Error("MigratesTo is nil, want empty slice")
	}
}

// =========================================================================
// LANGUAGE / CATALOG TESTS
// =========================================================================

func TestUpsertCatalogEntry_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertCatalogEntry(ctx, "React", "18.2.0", model.CategoryFrontend); err != nil {
		t.Fatalf("first UpsertCatalogEntry() error = %v", err)
	}
	// Re-seeding with a different version must not clobber the stored entry.
	if err := db.UpsertCatalogEntry(ctx, "React", "19.0.0", model.CategoryFrontend); err != nil {
		t.Fatalf("second UpsertCatalogEntry() error = %v", err)
	}

	entry, err := db.GetCatalogEntryByName(ctx, "React")
	if err != nil {
		t.Fatalf("GetCatalogEntryByName: %v", err)
	}
	if entry.Version == nil || *entry.Version != "18.2.0" {
		t.Errorf("Version = %v, want original 18.2.0", entry.Version)
	}
}

func TestListCatalogByCategory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertCatalogEntry(ctx, "Vue", "3.0.0", model.CategoryFrontend); err != nil {
		t.Fatalf("UpsertCatalogEntry: %v", err)
	}
	if err := db.UpsertCatalogEntry(ctx, "React", "18.2.0", model.CategoryFrontend); err != nil {
		t.Fatalf("UpsertCatalogEntry: %v", err)
	}
	if err := db.UpsertCatalogEntry(ctx, "Express", "4.0.0", model.CategoryBackend); err != nil {
		t.Fatalf("UpsertCatalogEntry: %v", err)
	}

	frontend, err := db.ListCatalogByCategory(ctx, model.CategoryFrontend)
	if err != nil {
		t.Fatalf("ListCatalogByCategory() error = %v", err)
	}
	if len(frontend) != 2 {
		t.Fatalf("got %d frontend entries, want 2", len(frontend))
	}
	// Ordered by name.
	if frontend[0].Name != "React" || frontend[1].Name != "Vue" {
		t.Errorf("order = [%s %s], want [React Vue]", frontend[0].Name, frontend[1].Name)
	}
}

func TestCatalogNameUnique_BranchLanguagesAreNot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	repo := createTestRepo(t, db, owner.ID, "app", 0)

	b1 := &model.Branch{Name: "main", RepositoryID: repo.ID}
	b2 := &model.Branch{Name: "develop", RepositoryID: repo.ID}
	for _, b := range []*model.Branch{b1, b2} {
		if err := db.CreateBranch(ctx, b); err != nil {
			t.Fatalf("CreateBranch: %v", err)
		}
	}

	// The same language name may appear on many branches...
	if err := db.CreateLanguage(ctx, &model.Language{Name: "Go", BranchID: &b1.ID}); err != nil {
		t.Fatalf("CreateLanguage on main: %v", err)
	}
	if err := db.CreateLanguage(ctx, &model.Language{Name: "Go", BranchID: &b2.ID}); err != nil {
		t.Fatalf("CreateLanguage on develop: %v", err)
	}

	// ...but catalog entries (no branch) are unique by name.
	if err := db.CreateLanguage(ctx, &model.Language{Name: "React"}); err != nil {
		t.Fatalf("catalog CreateLanguage: %v", err)
	}
	err := db.CreateLanguage(ctx, &model.Language{Name: "React"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate catalog name error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// MEMBERSHIP TESTS
// =========================================================================

func TestGrantMembership_Duplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	member := createTestUser(t, db, 2, "bob")
	repo := createTestRepo(t, db, owner.ID, "app", 0)

	if err := db.GrantMembership(ctx, &model.RepoUser{UserID: member.ID, RepositoryID: repo.ID}); err != nil {
		t.Fatalf("GrantMembership() error = %v", err)
	}

	err := db.GrantMembership(ctx, &model.RepoUser{UserID: member.ID, RepositoryID: repo.ID})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate grant error = %v, want ErrConflict", err)
	}
}

func TestRevokeMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, 1, "alice")
	member := createTestUser(t, db, 2, "bob")
	repo := createTestRepo(t, db, owner.ID, "app", 0)

	if err := db.GrantMembership(ctx, &model.RepoUser{UserID: member.ID, RepositoryID: repo.ID}); err != nil {
		t.Fatalf("GrantMembership: %v", err)
	}
	if err := db.RevokeMembership(ctx, member.ID, repo.ID); err != nil {
		t.Fatalf("RevokeMembership() error = %v", err)
	}

	members, err := db.ListMembersForRepository(ctx, repo.ID)
	if err != nil {
		t.Fatalf("ListMembersForRepository: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("members after revoke = %d, want 0", len(members))
	}

	err = db.RevokeMembership(ctx, member.ID, repo.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second revoke error = %v, want ErrNotFound", err)
	}
}
