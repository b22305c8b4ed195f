package prefs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rentwatch/internal/domain"
)

type stubPrefs struct {
	existing map[int64]domain.RecipientPreference
	updated  *domain.RecipientPreference
}

func defaultPref(recipientID int64) domain.RecipientPreference {
	return domain.RecipientPreference{
		RecipientID:       recipientID,
		ExpirationEnabled: true,
		OverdueEnabled:    true,
		DueSoonEnabled:    true,
		IncreaseEnabled:   true,
		Frequency:         domain.FrequencyImmediate,
		LookaheadDays:     7,
	}
}

func (s *stubPrefs) ResolveOrDefault(_ context.Context, recipientID int64) (domain.RecipientPreference, bool, error) {
	if pref, ok := s.existing[recipientID]; ok {
		return pref, false, nil
	}
	pref := defaultPref(recipientID)
	if s.existing == nil {
		s.existing = make(map[int64]domain.RecipientPreference)
	}
	s.existing[recipientID] = pref
	return pref, true, nil
}

func (s *stubPrefs) Update(_ context.Context, pref domain.RecipientPreference) (domain.RecipientPreference, error) {
	s.updated = &pref
	s.existing[pref.RecipientID] = pref
	return pref, nil
}

type stubStore struct {
	known map[int64]bool
}

func (s *stubStore) FindExpiringLeases(context.Context, time.Time, int) ([]domain.Lease, error) {
	return nil, nil
}
func (s *stubStore) FindOverdueInvoices(context.Context, time.Time) ([]domain.Invoice, error) {
	return nil, nil
}
func (s *stubStore) FindInvoicesDueSoon(context.Context, time.Time, int) ([]domain.Invoice, error) {
	return nil, nil
}
func (s *stubStore) FindLeasesWithIncrease(context.Context, time.Time) ([]domain.Lease, error) {
	return nil, nil
}
func (s *stubStore) GetRecipient(_ context.Context, id int64) (domain.Recipient, error) {
	if !s.known[id] {
		return domain.Recipient{}, errors.New("получатель не найден")
	}
	return domain.Recipient{ID: id}, nil
}
func (s *stubStore) GetLease(context.Context, int64) (domain.Lease, error) {
	return domain.Lease{}, errors.New("не найден")
}
func (s *stubStore) GetInvoice(context.Context, int64) (domain.Invoice, error) {
	return domain.Invoice{}, errors.New("не найден")
}

func TestResolveCreatesDefaults(t *testing.T) {
	repo := &stubPrefs{}
	svc := NewService(repo, &stubStore{known: map[int64]bool{10: true}}, zerolog.Nop())

	pref, err := svc.Resolve(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !pref.ExpirationEnabled || !pref.OverdueEnabled || !pref.DueSoonEnabled || !pref.IncreaseEnabled {
		t.Fatalf("по умолчанию все категории включены: %+v", pref)
	}
	if pref.Frequency != domain.FrequencyImmediate || pref.LookaheadDays != 7 {
		t.Fatalf("неожиданные значения по умолчанию: %+v", pref)
	}
}

func TestResolveUnknownRecipient(t *testing.T) {
	svc := NewService(&stubPrefs{}, &stubStore{}, zerolog.Nop())
	if _, err := svc.Resolve(context.Background(), 99); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного получателя")
	}
}

func TestUpdateRejectsInvalidFrequency(t *testing.T) {
	svc := NewService(&stubPrefs{}, &stubStore{known: map[int64]bool{10: true}}, zerolog.Nop())
	pref := defaultPref(10)
	pref.Frequency = "hourly"
	if _, err := svc.Update(context.Background(), pref); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("ожидали ErrInvalidFrequency, получили %v", err)
	}
}

func TestUpdateNormalizesTimezone(t *testing.T) {
	repo := &stubPrefs{}
	svc := NewService(repo, &stubStore{known: map[int64]bool{10: true}}, zerolog.Nop())
	pref := defaultPref(10)
	pref.Timezone = "europe/amsterdam"

	updated, err := svc.Update(context.Background(), pref)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if updated.Timezone != "Europe/Amsterdam" {
		t.Fatalf("ожидали нормализованный пояс, получили %q", updated.Timezone)
	}
}

func TestUpdateRejectsBadTimezone(t *testing.T) {
	svc := NewService(&stubPrefs{}, &stubStore{known: map[int64]bool{10: true}}, zerolog.Nop())
	pref := defaultPref(10)
	pref.Timezone = "Mars/Olympus"
	if _, err := svc.Update(context.Background(), pref); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ожидали ErrInvalidTimezone, получили %v", err)
	}
}

func TestUpdateClampsLookahead(t *testing.T) {
	repo := &stubPrefs{}
	svc := NewService(repo, &stubStore{known: map[int64]bool{10: true}}, zerolog.Nop())
	pref := defaultPref(10)
	pref.LookaheadDays = 0

	updated, err := svc.Update(context.Background(), pref)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if updated.LookaheadDays != 1 {
		t.Fatalf("горизонт не может быть меньше одного дня: %+v", updated)
	}
}
