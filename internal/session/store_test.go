package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"paywallet/internal/db/dbtest"
	identitydomain "paywallet/internal/identity/domain"
	"paywallet/internal/session/repository"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("backend-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewMemoryRepository())
	p := identitydomain.Principal{UserID: "u1", Email: "me@example.com", FullName: "Me"}

	if _, ok, err := s.Load(ctx); ok || err != nil {
		t.Fatalf("Load on empty store = %v, %v", ok, err)
	}
	if _, err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sess, ok, err := s.Load(ctx)
	if err != nil || !ok || sess.Principal.UserID != "u1" || sess.Principal.Email != "me@example.com" {
		t.Fatalf("Load = %+v, %v, %v", sess, ok, err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Error("session should be gone after Clear")
	}
}

func TestStore_ExpiredTokenIsDropped(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(repo, WithClock(func() time.Time { return now }))

	sess, err := s.Save(ctx, identitydomain.Principal{UserID: "u1", AccessToken: signed(t, now.Add(time.Hour))})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", sess.ExpiresAt)
	}
	if _, ok, _ := s.Load(ctx); !ok {
		t.Fatal("valid token should load")
	}

	now = now.Add(2 * time.Hour)
	if _, ok, err := s.Load(ctx); ok || err != nil {
		t.Fatalf("expired token: ok=%v err=%v", ok, err)
	}
	if raw, _ := repo.Get(ctx, Key); raw != nil {
		t.Error("expired session should be deleted")
	}
}

func TestStore_OpaqueTokenNeverExpires(t *testing.T) {
	s := NewStore(repository.NewMemoryRepository())
	sess, _ := s.Save(context.Background(), identitydomain.Principal{UserID: "u1", AccessToken: "opaque"})
	if !sess.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", sess.ExpiresAt)
	}
}

func TestStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLRepository(dbtest.New(t))
	s := NewStore(repo, WithSecret("correct horse"))

	if _, err := s.Save(ctx, identitydomain.Principal{UserID: "u1", Email: "me@example.com"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := repo.Get(ctx, Key)
	if len(raw) == 0 || string(raw[:len(encryptedPrefix)]) != string(encryptedPrefix) {
		t.Fatalf("stored value is not encrypted: %q", raw)
	}

	again := NewStore(repo, WithSecret("correct horse"))
	if sess, ok, err := again.Load(ctx); err != nil || !ok || sess.Principal.Email != "me@example.com" {
		t.Fatalf("Load with same secret = %+v, %v, %v", sess, ok, err)
	}

	wrong := NewStore(repo, WithSecret("wrong"))
	if _, ok, err := wrong.Load(ctx); ok || err != nil {
		t.Fatalf("Load with wrong secret: ok=%v err=%v", ok, err)
	}
	if raw, _ := repo.Get(ctx, Key); raw != nil {
		t.Error("undecryptable session should be dropped")
	}
}

func TestStore_PlainSessionWithSecretIsDropped(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	_, _ = NewStore(repo).Save(ctx, identitydomain.Principal{UserID: "u1"})
	if _, ok, _ := NewStore(repo, WithSecret("s")).Load(ctx); ok {
		t.Error("plaintext session must not load when a secret is configured")
	}
}

func TestStore_Favorites(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewMemoryRepository(), WithSecret("s"))

	if favs, err := s.Favorites(ctx, "u1"); err != nil || favs != nil {
		t.Fatalf("Favorites on empty = %v, %v", favs, err)
	}
	if err := s.SaveFavorites(ctx, "u1", []string{"bob@example.com"}); err != nil {
		t.Fatalf("SaveFavorites: %v", err)
	}
	favs, err := s.Favorites(ctx, "u1")
	if err != nil || len(favs) != 1 || favs[0] != "bob@example.com" {
		t.Fatalf("Favorites = %v, %v", favs, err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if favs, _ := s.Favorites(ctx, "u1"); len(favs) != 1 {
		t.Error("Clear must keep favourites")
	}
}

func TestSealOpen(t *testing.T) {
	key := deriveKey([]byte("secret"), []byte("0123456789abcdef"))
	sealed, err := seal(key, []byte("hello"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := open(key, sealed)
	if err != nil || string(got) != "hello" {
		t.Fatalf("open = %q, %v", got, err)
	}
	if _, err := open(key, sealed[:4]); err == nil {
		t.Error("short ciphertext should fail")
	}
}
