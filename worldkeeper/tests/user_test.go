package tests

import (
	"errors"
	"net/http"
	"testing"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()

	login, err := c.signup("gandalf", "gandalf@mail.com", "youshallnotpass")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.login(login); err != nil {
		t.Fatal(err)
	}

	info, err := c.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Username != "gandalf" || info.Email != "gandalf@mail.com" || info.Admin {
		t.Fatalf("unexpected user info %+v", info)
	}

	bad := env.newClient()
	err = bad.login(loginInfo{Email: "gandalf@mail.com", Password: "wrong_password"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	if _, err := env.newClient().userInfo(); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error for unauthenticated request, got %v", err)
	}
}

func TestDuplicateSignup(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	if _, err := c.signup("bilbo", "bilbo@mail.com", "password123"); err != nil {
		t.Fatal(err)
	}

	if _, err := env.newClient().signup("bilbo2", "bilbo@mail.com", "password123"); statusOf(err) != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	if _, err := env.newClient().signup("bilbo", "bilbo2@mail.com", "password123"); statusOf(err) != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
}

func TestPromoteAndDemoteAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("samwise")
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.newUser("peregrin")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.promoteAdmin(other.userId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for non-admin promotion, got %v", err)
	}

	if err := admin.promoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}

	users, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	promoted := false
	for _, u := range users {
		if u.Id.String() == user.userId {
			promoted = u.Admin
		}
	}
	if !promoted {
		t.Fatal("user was not promoted to admin")
	}

	if err := admin.demoteAdmin(other.userId); statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected unprocessable entity demoting a non-admin, got %v", err)
	}

	if err := admin.demoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}

	// The last admin cannot demote themselves.
	if err := admin.demoteAdmin(admin.userId); statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected unprocessable entity demoting the last admin, got %v", err)
	}
}

func TestDeleteUserReassignsOwnership(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("meriadoc")
	if err != nil {
		t.Fatal(err)
	}

	world, err := user.createWorld("buckland", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.deleteUser(admin.userId); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected forbidden for non-admin delete, got %v", err)
	}

	if err := admin.deleteUser(user.userId); err != nil {
		t.Fatal(err)
	}

	reassigned, err := admin.getWorld(world.WorldId.String())
	if err != nil {
		t.Fatal(err)
	}
	if reassigned.ArchitectId.String() != admin.userId {
		t.Fatalf("expected world ownership to pass to admin, got architect %v", reassigned.ArchitectId)
	}

	stale := env.newClient()
	if err := stale.login(loginInfo{Email: "meriadoc@mail.com", Password: "meriadoc_password"}); err == nil {
		t.Fatal("expected login to fail for deleted user")
	}
}
