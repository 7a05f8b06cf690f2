package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/storage"
)

// In-memory stand-ins for the Mongo stores, with the same error contract.

type fakeUsers struct {
	mu   sync.Mutex
	byID map[bson.ObjectID]*data.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[bson.ObjectID]*data.User{}} }

func (f *fakeUsers) CreateUser(_ context.Context, u *data.User) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = normalize.Email(u.Email)
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, data.ErrUserExists
		}
	}
	u.ID = bson.NewObjectID()
	u.CreatedAt = time.Now().UTC()
	cp := *u
	f.byID[u.ID] = &cp
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == normalize.Email(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, data.ErrUserNotFound
}

func (f *fakeUsers) UserExists(ctx context.Context, email string) (bool, error) {
	_, err := f.GetUserByEmail(ctx, email)
	if errors.Is(err, data.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeUsers) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ListUsers(_ context.Context, limit int64) ([]*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.User
	for _, u := range f.byID {
		cp := *u
		cp.Password = ""
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id bson.ObjectID, c data.ProfileChanges) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.Name, c.Name)
	set(&u.Bio, c.Bio)
	set(&u.Location, c.Location)
	set(&u.City, c.City)
	set(&u.Country, c.Country)
	set(&u.Phone, c.Phone)
	set(&u.Availability, c.Availability)
	set(&u.ProfilePic, c.ProfilePic)
	if c.Age != nil {
		u.Age = *c.Age
	}
	if c.SkillsOffered != nil {
		u.SkillsOffered = c.SkillsOffered
	}
	if c.SkillsWanted != nil {
		u.SkillsWanted = c.SkillsWanted
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) Names(_ context.Context, ids ...bson.ObjectID) (map[bson.ObjectID]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[bson.ObjectID]string{}
	for _, id := range ids {
		if u, ok := f.byID[id]; ok {
			out[id] = u.Name
		}
	}
	return out, nil
}

type fakeMessages struct {
	mu   sync.Mutex
	msgs []*data.Message
}

func (f *fakeMessages) SaveMessage(_ context.Context, sender, receiver bson.ObjectID, text, clientID string) (*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if clientID != "" {
		for _, m := range f.msgs {
			if m.Sender == sender && m.ClientID == clientID {
				cp := *m
				return &cp, nil
			}
		}
	}
	m := &data.Message{
		ID:        bson.NewObjectID(),
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		ClientID:  clientID,
		CreatedAt: time.Now().UTC(),
	}
	f.msgs = append(f.msgs, m)
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) GetMessage(_ context.Context, id bson.ObjectID) (*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, data.ErrMessageNotFound
}

func (f *fakeMessages) GetMessageHistory(_ context.Context, user, peer bson.ObjectID, limit int64) ([]*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.Message
	for _, m := range f.msgs {
		if (m.Sender == user && m.Receiver == peer) || (m.Sender == peer && m.Receiver == user) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessages) ListForUser(_ context.Context, user bson.ObjectID, limit int64) ([]*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.Message
	for _, m := range f.msgs {
		if m.Sender == user || m.Receiver == user {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, id, reader bson.ObjectID) (*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID != id {
			continue
		}
		if m.Receiver != reader {
			return nil, data.ErrForbidden
		}
		m.Read = true
		cp := *m
		return &cp, nil
	}
	return nil, data.ErrMessageNotFound
}

type fakeNotifications struct {
	mu    sync.Mutex
	notes []*data.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *data.Notification) (*data.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = bson.NewObjectID()
	n.CreatedAt = time.Now().UTC()
	cp := *n
	f.notes = append(f.notes, &cp)
	return n, nil
}

func (f *fakeNotifications) ListForUser(_ context.Context, user bson.ObjectID, limit int64) ([]*data.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*data.Notification{}
	for i := len(f.notes) - 1; i >= 0; i-- {
		if f.notes[i].Receiver == user {
			cp := *f.notes[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeNotifications) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

type fakeExchanges struct {
	mu   sync.Mutex
	byID map[bson.ObjectID]*data.Exchange
}

func newFakeExchanges() *fakeExchanges {
	return &fakeExchanges{byID: map[bson.ObjectID]*data.Exchange{}}
}

func (f *fakeExchanges) Create(_ context.Context, requester, provider bson.ObjectID, skill string) (*data.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ex := &data.Exchange{
		ID:        bson.NewObjectID(),
		Requester: requester,
		Provider:  provider,
		Skill:     skill,
		Status:    data.ExchangePending,
		CreatedAt: time.Now().UTC(),
	}
	f.byID[ex.ID] = ex
	cp := *ex
	return &cp, nil
}

func (f *fakeExchanges) ListForUser(_ context.Context, user bson.ObjectID, limit int64) ([]*data.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*data.Exchange{}
	for _, ex := range f.byID {
		if ex.Requester == user || ex.Provider == user {
			cp := *ex
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeExchanges) Decide(_ context.Context, id, provider bson.ObjectID, status string) (*data.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ex, ok := f.byID[id]
	switch {
	case !ok:
		return nil, data.ErrExchangeNotFound
	case ex.Provider != provider:
		return nil, data.ErrForbidden
	case ex.Status != data.ExchangePending:
		return nil, data.ErrExchangeNotPending
	}
	ex.Status = status
	cp := *ex
	return &cp, nil
}

type fakeFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeFiles() *fakeFiles { return &fakeFiles{objects: map[string][]byte{}} }

func (f *fakeFiles) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = b
	f.mu.Unlock()
	return nil
}

func (f *fakeFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	delete(f.objects, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeFiles) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
