package service

import (
	"context"
	"testing"

	"backend/internal/model"
)

func TestCreateUserAndLogin(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	created, err := fx.users.CreateUser(ctx, CreateUserRequest{
		Username: "frank",
		Email:    "frank@example.com",
		Password: "hunter22",
		Role:     model.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Role != model.RoleCustomer {
		t.Errorf("expected customer role, got %s", created.Role)
	}

	tokens, err := fx.users.Login(ctx, LoginUserRequest{Email: "frank@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.Token == "" || tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	if _, err := fx.users.Login(ctx, LoginUserRequest{Email: "frank@example.com", Password: "wrong"}); err == nil {
		t.Error("expected login failure with wrong password")
	}
}

func TestCreateUserRejectsDuplicatesAndBadRoles(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.users.CreateUser(ctx, CreateUserRequest{
		Username: "alice2", Email: "alice@example.com", Password: "secret123", Role: model.RoleCustomer,
	}); err == nil {
		t.Error("expected duplicate email rejection")
	}
	if _, err := fx.users.CreateUser(ctx, CreateUserRequest{
		Username: "alice", Email: "fresh@example.com", Password: "secret123", Role: model.RoleCustomer,
	}); err == nil {
		t.Error("expected duplicate username rejection")
	}
	if _, err := fx.users.CreateUser(ctx, CreateUserRequest{
		Username: "grace", Email: "grace@example.com", Password: "secret123", Role: "superuser",
	}); err == nil {
		t.Error("expected invalid role rejection")
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	tokens, err := fx.users.Login(ctx, LoginUserRequest{Email: "alice@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := fx.users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Error("expected refresh token to rotate")
	}

	// The old refresh token is spent
	if _, err := fx.users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken}); err == nil {
		t.Error("expected spent token rejection")
	}

	// Logout revokes the current one
	if err := fx.users.Logout(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := fx.users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: rotated.RefreshToken}); err == nil {
		t.Error("expected revoked token rejection")
	}
}

func TestListUsersByRole(t *testing.T) {
	fx := newFixture(t)

	staff, total, err := fx.users.ListUsers(context.Background(), model.RoleStaff, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || staff[0].Username != "bob" {
		t.Fatalf("expected only bob, got total=%d", total)
	}
}
