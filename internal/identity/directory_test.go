package identity

import (
	"context"
	"errors"
	"testing"

	"paywallet/internal/failure"
	"paywallet/internal/identity/domain"
)

type fakeUsers struct {
	users []domain.Principal
	calls int
	err   error
}

func (f *fakeUsers) AllUsers(ctx context.Context) ([]domain.Principal, error) {
	f.calls++
	return f.users, f.err
}

type memFavorites map[string][]string

func (m memFavorites) Favorites(ctx context.Context, ownerID string) ([]string, error) {
	return m[ownerID], nil
}

func (m memFavorites) SaveFavorites(ctx context.Context, ownerID string, emails []string) error {
	m[ownerID] = emails
	return nil
}

func testUsers() *fakeUsers {
	return &fakeUsers{users: []domain.Principal{
		{UserID: "u1", Email: "me@example.com", FullName: "Me"},
		{UserID: "u2", Email: "Bob@example.com", FirstName: "Bob", LastName: "Builder"},
		{UserID: "u3", Email: "alice@example.com", FullName: "Alice"},
	}}
}

func TestDirectory_ExcludesOwnerAndCaches(t *testing.T) {
	users := testUsers()
	d := NewDirectory(users, nil, "u1")

	cs, err := d.Contacts(context.Background())
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("len = %d, want 2", len(cs))
	}
	if cs[0].Name != "Alice" || cs[1].Name != "Bob Builder" {
		t.Errorf("order = %s, %s", cs[0].Name, cs[1].Name)
	}
	if _, err := d.Contacts(context.Background()); err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if users.calls != 1 {
		t.Errorf("AllUsers calls = %d, want 1", users.calls)
	}
}

func TestDirectory_LookupReloadsOnMiss(t *testing.T) {
	users := testUsers()
	d := NewDirectory(users, nil, "u1")

	c, ok, err := d.Lookup(context.Background(), "BOB@example.com")
	if err != nil || !ok || c.UserID != "u2" {
		t.Fatalf("Lookup = %+v, %v, %v", c, ok, err)
	}
	users.users = append(users.users, domain.Principal{UserID: "u4", Email: "new@example.com", FullName: "New"})
	c, ok, _ = d.Lookup(context.Background(), "new@example.com")
	if !ok || c.UserID != "u4" {
		t.Errorf("newly registered user not found: %+v", c)
	}
	if _, ok, _ := d.Lookup(context.Background(), "me@example.com"); ok {
		t.Error("the owner must not be a contact")
	}
}

func TestDirectory_ResolveRecipient(t *testing.T) {
	d := NewDirectory(testUsers(), nil, "u1")
	cp, ok, err := d.ResolveRecipient(context.Background(), "alice@example.com")
	if err != nil || !ok || cp.UserID != "u3" || cp.Name != "Alice" {
		t.Errorf("ResolveRecipient = %+v, %v, %v", cp, ok, err)
	}
	if _, ok, _ := d.ResolveRecipient(context.Background(), "ghost@example.com"); ok {
		t.Error("unknown email resolved")
	}
}

func TestDirectory_Favorites(t *testing.T) {
	favs := memFavorites{}
	d := NewDirectory(testUsers(), favs, "u1")

	on, err := d.ToggleFavorite(context.Background(), "bob@example.com")
	if err != nil || !on {
		t.Fatalf("ToggleFavorite = %v, %v", on, err)
	}
	cs, _ := d.Contacts(context.Background())
	if cs[0].Email != "bob@example.com" || !cs[0].Favorite {
		t.Errorf("favourite should sort first: %+v", cs)
	}
	if len(favs["u1"]) != 1 || favs["u1"][0] != "bob@example.com" {
		t.Errorf("persisted favourites = %v", favs["u1"])
	}

	reloaded := NewDirectory(testUsers(), favs, "u1")
	cs, _ = reloaded.Contacts(context.Background())
	if !cs[0].Favorite {
		t.Error("favourites must survive a reload")
	}

	if _, err := d.ToggleFavorite(context.Background(), "ghost@example.com"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("unknown contact: %v", err)
	}
}

func TestDirectory_LoadError(t *testing.T) {
	users := &fakeUsers{err: failure.New(failure.ErrRemoteRejected, "down")}
	if _, err := NewDirectory(users, nil, "u1").Contacts(context.Background()); err == nil {
		t.Error("Contacts should fail when the user list cannot be loaded")
	}
}
