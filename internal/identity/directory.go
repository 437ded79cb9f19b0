package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"paywallet/internal/failure"
	"paywallet/internal/identity/domain"
	intentdomain "paywallet/internal/intent/domain"
)

// UserLister lists every registered user.
type UserLister interface {
	AllUsers(ctx context.Context) ([]domain.Principal, error)
}

// FavoriteStore persists the favourite contact emails of an owner.
type FavoriteStore interface {
	Favorites(ctx context.Context, ownerID string) ([]string, error)
	SaveFavorites(ctx context.Context, ownerID string, emails []string) error
}

// Directory is the contact list of one principal: every registered user except the principal.
// It is loaded once per session and refreshed on demand.
type Directory struct {
	users   UserLister
	favs    FavoriteStore
	ownerID string

	mu       sync.Mutex
	loaded   bool
	contacts []domain.Contact
}

// NewDirectory returns the directory for ownerID. favs may be nil.
func NewDirectory(users UserLister, favs FavoriteStore, ownerID string) *Directory {
	return &Directory{users: users, favs: favs, ownerID: ownerID}
}

// Contacts returns the cached contacts, favourites first, then by name.
func (d *Directory) Contacts(ctx context.Context) ([]domain.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		if err := d.loadLocked(ctx); err != nil {
			return nil, err
		}
	}
	return append([]domain.Contact(nil), d.contacts...), nil
}

// Refresh reloads the contacts from the identity service.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked(ctx)
}

// Lookup finds a contact by email. A miss in the cache triggers one reload.
func (d *Directory) Lookup(ctx context.Context, email string) (domain.Contact, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		if c, ok := d.findLocked(email); ok {
			return c, true, nil
		}
	}
	if err := d.loadLocked(ctx); err != nil {
		return domain.Contact{}, false, err
	}
	c, ok := d.findLocked(email)
	return c, ok, nil
}

// ResolveRecipient adapts Lookup to the intent builder.
func (d *Directory) ResolveRecipient(ctx context.Context, email string) (intentdomain.Counterparty, bool, error) {
	c, ok, err := d.Lookup(ctx, email)
	if err != nil || !ok {
		return intentdomain.Counterparty{}, ok, err
	}
	return intentdomain.Counterparty{UserID: c.UserID, Email: c.Email, Name: c.Name}, true, nil
}

// ToggleFavorite flips the favourite flag of the contact with email and returns the new value.
func (d *Directory) ToggleFavorite(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		if err := d.loadLocked(ctx); err != nil {
			return false, err
		}
	}
	idx := -1
	for i := range d.contacts {
		if d.contacts[i].Email == email {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, failure.New(failure.ErrNotFound, "No contact with email %s", email)
	}
	d.contacts[idx].Favorite = !d.contacts[idx].Favorite
	now := d.contacts[idx].Favorite

	if d.favs != nil {
		var emails []string
		for _, c := range d.contacts {
			if c.Favorite {
				emails = append(emails, c.Email)
			}
		}
		if err := d.favs.SaveFavorites(ctx, d.ownerID, emails); err != nil {
			d.contacts[idx].Favorite = !now
			return false, err
		}
	}
	sortContacts(d.contacts)
	return now, nil
}

func (d *Directory) findLocked(email string) (domain.Contact, bool) {
	for _, c := range d.contacts {
		if c.Email == email {
			return c, true
		}
	}
	return domain.Contact{}, false
}

func (d *Directory) loadLocked(ctx context.Context) error {
	users, err := d.users.AllUsers(ctx)
	if err != nil {
		return err
	}
	fav := map[string]bool{}
	if d.favs != nil {
		emails, err := d.favs.Favorites(ctx, d.ownerID)
		if err != nil {
			return err
		}
		for _, e := range emails {
			fav[e] = true
		}
	}
	contacts := make([]domain.Contact, 0, len(users))
	for _, u := range users {
		if u.UserID == d.ownerID || u.UserID == "" {
			continue
		}
		email := strings.ToLower(u.Email)
		contacts = append(contacts, domain.Contact{
			UserID:   u.UserID,
			Email:    email,
			Name:     u.Name(),
			Mobile:   u.Mobile,
			Favorite: fav[email],
		})
	}
	sortContacts(contacts)
	d.contacts = contacts
	d.loaded = true
	return nil
}

func sortContacts(cs []domain.Contact) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Favorite != cs[j].Favorite {
			return cs[i].Favorite
		}
		return strings.ToLower(cs[i].Name) < strings.ToLower(cs[j].Name)
	})
}
