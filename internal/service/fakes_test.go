package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"expense_ingest/internal/extraction"
	"expense_ingest/internal/model"
	"expense_ingest/internal/repository"
)

var errStore = errors.New("store offline")

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	err      error
	// afterFind runs once FindByID has read the row, outside the lock.
	afterFind func()
}

func newFakeProfiles(profiles ...model.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: map[string]*model.Profile{}}
	for i := range profiles {
		p := profiles[i]
		f.profiles[p.ID] = &p
	}
	return f
}

func (f *fakeProfiles) get(id string) model.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.profiles[id]
}

func (f *fakeProfiles) FindByID(_ context.Context, id string) (*model.Profile, error) {
	p, err := f.findByID(id)
	if f.afterFind != nil {
		hook := f.afterFind
		f.afterFind = nil
		hook()
	}
	return p, err
}

func (f *fakeProfiles) findByID(id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) FindVerifiedByPhone(_ context.Context, phone string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.profiles {
		if p.ChannelVerified() && p.PhoneNumber != nil && *p.PhoneNumber == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeProfiles) update(id string, fn func(p *model.Profile)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return repository.ErrProfileNotFound
	}
	fn(p)
	return nil
}

func (f *fakeProfiles) SetPendingCode(_ context.Context, id, phone, code string, expiresAt time.Time) error {
	return f.update(id, func(p *model.Profile) {
		p.PhoneNumber = &phone
		p.VerificationCode = &code
		p.VerificationCodeExpiresAt = &expiresAt
		p.PhoneVerified = false
	})
}

// MarkVerified mirrors the conditional UPDATE: it only matches while code is
// the live pending code.
func (f *fakeProfiles) MarkVerified(_ context.Context, id, code string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	p, ok := f.profiles[id]
	if !ok || p.VerificationCode == nil || *p.VerificationCode != code ||
		p.VerificationCodeExpiresAt == nil || p.VerificationCodeExpiresAt.Before(now) {
		return repository.ErrCodeMismatch
	}
	p.PhoneVerified = true
	p.VerificationCode = nil
	p.VerificationCodeExpiresAt = nil
	p.WhatsAppConnected = true
	return nil
}

func (f *fakeProfiles) Disconnect(_ context.Context, id string) error {
	return f.update(id, func(p *model.Profile) {
		p.PhoneNumber = nil
		p.PhoneVerified = false
		p.VerificationCode = nil
		p.VerificationCodeExpiresAt = nil
		p.WhatsAppConnected = false
	})
}

type sentMessage struct {
	To   string
	Body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeCategories struct {
	categories []model.Category
	err        error
}

func (f *fakeCategories) ListForUser(_ context.Context, userID string) ([]model.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Category
	for _, c := range f.categories {
		if c.UserID == nil || *c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeExpenses enforces message ID uniqueness the way the database does.
type fakeExpenses struct {
	mu        sync.Mutex
	byMessage map[string]model.Expense
	existsErr error
	createErr error
}

func newFakeExpenses() *fakeExpenses {
	return &fakeExpenses{byMessage: map[string]model.Expense{}}
}

func (f *fakeExpenses) ExistsByMessageID(_ context.Context, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byMessage[messageID]
	return ok, nil
}

func (f *fakeExpenses) CreateFromChannel(_ context.Context, e *model.Expense) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.byMessage[*e.WhatsAppMessageID]; ok {
		return false, nil
	}
	f.byMessage[*e.WhatsAppMessageID] = *e
	return true, nil
}

func (f *fakeExpenses) all() []model.Expense {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Expense, 0, len(f.byMessage))
	for _, e := range f.byMessage {
		out = append(out, e)
	}
	return out
}

type fakeExtractor struct {
	mu        sync.Mutex
	candidate *extraction.Candidate
	err       error
	calls     int
	lastText  string
}

func (f *fakeExtractor) Extract(_ context.Context, text string, _ []model.Category) (*extraction.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.candidate
	return &cp, nil
}

func strPtr(s string) *string { return &s }
