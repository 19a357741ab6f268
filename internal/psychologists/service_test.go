package psychologists

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"github.com/yudi-prasetyo/psychchat-backend/internal/identity"
	"github.com/yudi-prasetyo/psychchat-backend/internal/users"
	"gorm.io/gorm"
)

type sequentialProvider struct {
	issued  int
	deleted int
}

func (p *sequentialProvider) CreateAccount(_ context.Context, email, _ string) (identity.Session, error) {
	p.issued++
	return identity.Session{Account: identity.Account{UID: fmt.Sprintf("psych-%d", p.issued), Email: email}}, nil
}

func (p *sequentialProvider) SignIn(context.Context, string, string) (identity.Session, error) {
	return identity.Session{}, identity.ErrInvalidCredentials
}

func (p *sequentialProvider) SendEmailVerification(context.Context, identity.Session) error {
	return nil
}

func (p *sequentialProvider) SendPasswordReset(context.Context, string) error {
	return nil
}

func (p *sequentialProvider) DeleteAccount(context.Context, identity.Session) error {
	p.deleted++
	return nil
}

func newDirectoryForTest(testContext *testing.T) (*Service, *users.Service, *gorm.DB) {
	testContext.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(testContext.TempDir(), "directory.db")), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.RoleAssignment{}, &Profile{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Identity: &sequentialProvider{}})
	if err != nil {
		testContext.Fatalf("failed to create user service: %v", err)
	}
	directory, err := NewService(ServiceConfig{Database: db, Registrar: userService})
	if err != nil {
		testContext.Fatalf("failed to create directory: %v", err)
	}
	return directory, userService, db
}

func stringPointer(value string) *string {
	return &value
}

func TestRegisterCreatesEmptyProfileAndRole(testContext *testing.T) {
	directory, userService, _ := newDirectoryForTest(testContext)
	ctx := context.Background()

	registered, err := directory.Register(ctx, "p1@example.com", "password123")
	if err != nil {
		testContext.Fatalf("register failed: %v", err)
	}
	if registered.Role != auth.RolePsychologist {
		testContext.Fatalf("expected psychologist role, got %s", registered.Role)
	}

	profile, err := directory.Get(ctx, registered.UserID)
	if err != nil {
		testContext.Fatalf("get failed: %v", err)
	}
	if profile.Email != "p1@example.com" {
		testContext.Fatalf("unexpected email %s", profile.Email)
	}
	if profile.FirstName != nil || profile.LastName != nil || profile.Address != nil {
		testContext.Fatalf("expected empty optional fields, got %#v", profile)
	}

	role, err := userService.ResolveRole(ctx, registered.UserID)
	if err != nil {
		testContext.Fatalf("resolve failed: %v", err)
	}
	if role != auth.RolePsychologist {
		testContext.Fatalf("expected psychologist role assignment, got %s", role)
	}
}

func TestGetReportsMissingProfile(testContext *testing.T) {
	directory, _, _ := newDirectoryForTest(testContext)

	if _, err := directory.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		testContext.Fatalf("expected not found, got %v", err)
	}
	if _, err := directory.Get(context.Background(), " "); !errors.Is(err, ErrInvalidUserID) {
		testContext.Fatalf("expected invalid user id, got %v", err)
	}
}

func TestListReturnsEmptySliceAndRegistrationOrder(testContext *testing.T) {
	directory, _, _ := newDirectoryForTest(testContext)
	ctx := context.Background()

	profiles, err := directory.List(ctx)
	if err != nil {
		testContext.Fatalf("list failed: %v", err)
	}
	if profiles == nil || len(profiles) != 0 {
		testContext.Fatalf("expected empty non-nil slice, got %#v", profiles)
	}

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if _, err := directory.Register(ctx, email, "password123"); err != nil {
			testContext.Fatalf("register failed: %v", err)
		}
	}
	profiles, err = directory.List(ctx)
	if err != nil {
		testContext.Fatalf("list failed: %v", err)
	}
	if len(profiles) != 2 || profiles[0].Email != "a@example.com" || profiles[1].Email != "b@example.com" {
		testContext.Fatalf("unexpected listing %#v", profiles)
	}
}

func TestUpdateReplacesOnlyMutableFieldsAndIsIdempotent(testContext *testing.T) {
	directory, _, db := newDirectoryForTest(testContext)
	ctx := context.Background()

	registered, err := directory.Register(ctx, "p1@example.com", "password123")
	if err != nil {
		testContext.Fatalf("register failed: %v", err)
	}

	update := ProfileUpdate{
		FirstName: stringPointer("  Ada "),
		LastName:  stringPointer("<b>O'Neil</b>"),
		Address:   stringPointer("12 Main St<script>alert(1)</script>"),
	}
	first, err := directory.Update(ctx, registered.UserID, update)
	if err != nil {
		testContext.Fatalf("update failed: %v", err)
	}
	if first.FirstName == nil || *first.FirstName != "Ada" {
		testContext.Fatalf("unexpected first name %v", first.FirstName)
	}
	if first.LastName == nil || *first.LastName != "O'Neil" {
		testContext.Fatalf("unexpected last name %v", first.LastName)
	}
	if first.Address == nil || *first.Address != "12 Main St" {
		testContext.Fatalf("unexpected address %v", first.Address)
	}
	if first.Email != "p1@example.com" || first.UserID != registered.UserID {
		testContext.Fatalf("identity fields changed: %#v", first)
	}

	second, err := directory.Update(ctx, registered.UserID, update)
	if err != nil {
		testContext.Fatalf("second update failed: %v", err)
	}
	if *second.FirstName != *first.FirstName || *second.LastName != *first.LastName || *second.Address != *first.Address {
		testContext.Fatalf("expected identical state after repeated update")
	}

	encoded, err := directory.Update(ctx, registered.UserID, ProfileUpdate{
		FirstName: stringPointer("&lt;script&gt;alert(1)&lt;/script&gt;Ada"),
		LastName:  stringPointer("&lt;img src=x onerror=alert(1)&gt;O&#39;Neil"),
		Address:   stringPointer("&amp;lt;b&amp;gt;12 Main St&amp;lt;/b&amp;gt;"),
	})
	if err != nil {
		testContext.Fatalf("encoded update failed: %v", err)
	}
	if *encoded.FirstName != "Ada" || *encoded.LastName != "O'Neil" || *encoded.Address != "12 Main St" {
		testContext.Fatalf("expected encoded markup to be stripped, got %q %q %q",
			*encoded.FirstName, *encoded.LastName, *encoded.Address)
	}

	var count int64
	if err := db.Model(&Profile{}).Where("user_id = ?", registered.UserID).Count(&count).Error; err != nil {
		testContext.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected a single profile row, got %d", count)
	}
}

func TestUpdateClearsOmittedFields(testContext *testing.T) {
	directory, _, _ := newDirectoryForTest(testContext)
	ctx := context.Background()

	registered, err := directory.Register(ctx, "p2@example.com", "password123")
	if err != nil {
		testContext.Fatalf("register failed: %v", err)
	}
	if _, err := directory.Update(ctx, registered.UserID, ProfileUpdate{
		FirstName: stringPointer("Grace"),
		Address:   stringPointer("Somewhere"),
	}); err != nil {
		testContext.Fatalf("update failed: %v", err)
	}

	updated, err := directory.Update(ctx, registered.UserID, ProfileUpdate{FirstName: stringPointer("Grace"), Address: stringPointer("   ")})
	if err != nil {
		testContext.Fatalf("update failed: %v", err)
	}
	if updated.Address != nil || updated.LastName != nil {
		testContext.Fatalf("expected blank and omitted fields to be cleared, got %#v", updated)
	}
}

func TestUpdateMissingProfile(testContext *testing.T) {
	directory, _, _ := newDirectoryForTest(testContext)

	_, err := directory.Update(context.Background(), "ghost", ProfileUpdate{FirstName: stringPointer("x")})
	if !errors.Is(err, ErrNotFound) {
		testContext.Fatalf("expected not found, got %v", err)
	}
}
