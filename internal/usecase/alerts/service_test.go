package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rentwatch/internal/domain"
)

type stubStore struct {
	leases     []domain.Lease
	invoices   []domain.Invoice
	recipients map[int64]domain.Recipient
}

func (s *stubStore) FindExpiringLeases(context.Context, time.Time, int) ([]domain.Lease, error) {
	return s.leases, nil
}
func (s *stubStore) FindOverdueInvoices(context.Context, time.Time) ([]domain.Invoice, error) {
	return s.invoices, nil
}
func (s *stubStore) FindInvoicesDueSoon(context.Context, time.Time, int) ([]domain.Invoice, error) {
	return s.invoices, nil
}
func (s *stubStore) FindLeasesWithIncrease(context.Context, time.Time) ([]domain.Lease, error) {
	return s.leases, nil
}
func (s *stubStore) GetRecipient(_ context.Context, id int64) (domain.Recipient, error) {
	r, ok := s.recipients[id]
	if !ok {
		return domain.Recipient{}, errors.New("получатель не найден")
	}
	return r, nil
}
func (s *stubStore) GetLease(_ context.Context, id int64) (domain.Lease, error) {
	for _, l := range s.leases {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Lease{}, errors.New("договор не найден")
}
func (s *stubStore) GetInvoice(_ context.Context, id int64) (domain.Invoice, error) {
	for _, inv := range s.invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return domain.Invoice{}, errors.New("счёт не найден")
}

type stubPrefs struct {
	pref domain.RecipientPreference
}

func (s *stubPrefs) ResolveOrDefault(_ context.Context, recipientID int64) (domain.RecipientPreference, bool, error) {
	p := s.pref
	p.RecipientID = recipientID
	return p, false, nil
}
func (s *stubPrefs) Update(_ context.Context, pref domain.RecipientPreference) (domain.RecipientPreference, error) {
	return pref, nil
}

type emitted struct {
	kind   domain.Kind
	entity domain.EntityRef
	title  string
}

type stubSink struct {
	outcome domain.EmitOutcome
	emitted []emitted
}

func (s *stubSink) Emit(_ context.Context, _ domain.Recipient, _ domain.RecipientPreference, kind domain.Kind, entity domain.EntityRef, title, _ string) (domain.EmitOutcome, error) {
	s.emitted = append(s.emitted, emitted{kind: kind, entity: entity, title: title})
	return s.outcome, nil
}

func allEnabled() domain.RecipientPreference {
	return domain.RecipientPreference{
		ExpirationEnabled: true,
		OverdueEnabled:    true,
		DueSoonEnabled:    true,
		IncreaseEnabled:   true,
		Frequency:         domain.FrequencyImmediate,
		LookaheadDays:     7,
	}
}

func newTestService(store *stubStore, prefs *stubPrefs, sink *stubSink, ref time.Time) *Service {
	svc := NewService(store, prefs, sink, Thresholds{ExpirationDays: 30, DueSoonDays: 7, IncreaseDays: 7}, zerolog.Nop())
	svc.now = func() time.Time { return ref }
	return svc
}

func TestScanExpiringLeasesClassifies(t *testing.T) {
	ref := date(2026, time.March, 1)
	store := &stubStore{
		leases: []domain.Lease{
			{ID: 1, RecipientID: 10, UnitLabel: "A-1", EndDate: date(2026, time.February, 20), Status: domain.LeaseActive},
			{ID: 2, RecipientID: 10, UnitLabel: "A-2", EndDate: date(2026, time.March, 5), Status: domain.LeaseActive},
			{ID: 3, RecipientID: 10, UnitLabel: "A-3", EndDate: date(2026, time.March, 20), Status: domain.LeaseActive},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10, Name: "Арендатор", Email: "t@example.com"}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	svc := newTestService(store, &stubPrefs{pref: allEnabled()}, sink, ref)

	result, err := svc.ScanExpiringLeases(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Created != 3 {
		t.Fatalf("ожидали 3 созданных, получили %+v", result)
	}
	wantKinds := []domain.Kind{domain.KindExpirationExpired, domain.KindExpirationUrgent, domain.KindExpirationAdvance}
	for i, want := range wantKinds {
		if sink.emitted[i].kind != want {
			t.Fatalf("договор %d: ожидали вид %s, получили %s", i+1, want, sink.emitted[i].kind)
		}
	}
}

func TestScanOverdueInvoicesTiers(t *testing.T) {
	ref := date(2026, time.March, 31)
	store := &stubStore{
		invoices: []domain.Invoice{
			{ID: 1, RecipientID: 10, Number: "INV-1", Balance: 100, DueDate: date(2026, time.March, 28)},
			{ID: 2, RecipientID: 10, Number: "INV-2", Balance: 100, DueDate: date(2026, time.March, 20)},
			{ID: 3, RecipientID: 10, Number: "INV-3", Balance: 100, DueDate: date(2026, time.February, 1)},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	svc := newTestService(store, &stubPrefs{pref: allEnabled()}, sink, ref)

	result, err := svc.ScanOverdueInvoices(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Created != 3 {
		t.Fatalf("ожидали 3 созданных, получили %+v", result)
	}
	wantKinds := []domain.Kind{domain.KindOverdueStandard, domain.KindOverdueUrgent, domain.KindOverdueCritical}
	for i, want := range wantKinds {
		if sink.emitted[i].kind != want {
			t.Fatalf("счёт %d: ожидали вид %s, получили %s", i+1, want, sink.emitted[i].kind)
		}
	}
}

func TestScanDueSoonHonorsPersonalLookahead(t *testing.T) {
	ref := date(2026, time.March, 1)
	store := &stubStore{
		invoices: []domain.Invoice{
			{ID: 1, RecipientID: 10, Number: "INV-1", Balance: 100, DueDate: date(2026, time.March, 7)},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	pref := allEnabled()
	pref.LookaheadDays = 3
	svc := newTestService(store, &stubPrefs{pref: pref}, sink, ref)

	result, err := svc.ScanInvoicesDueSoon(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Skipped != 1 || result.Created != 0 {
		t.Fatalf("ожидали пропуск из-за персонального горизонта, получили %+v", result)
	}
	if len(sink.emitted) != 0 {
		t.Fatalf("не ожидали эмиссии")
	}
}

func TestScanSkipsOptedOutCategory(t *testing.T) {
	ref := date(2026, time.March, 1)
	store := &stubStore{
		leases: []domain.Lease{
			{ID: 1, RecipientID: 10, UnitLabel: "A-1", EndDate: date(2026, time.March, 5), Status: domain.LeaseActive},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	pref := allEnabled()
	pref.ExpirationEnabled = false
	svc := newTestService(store, &stubPrefs{pref: pref}, sink, ref)

	result, err := svc.ScanExpiringLeases(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Skipped != 1 || result.Created != 0 {
		t.Fatalf("ожидали пропуск отписанной категории, получили %+v", result)
	}
}

func TestScanCountsMissingRecipientAsError(t *testing.T) {
	ref := date(2026, time.March, 1)
	store := &stubStore{
		leases: []domain.Lease{
			{ID: 1, RecipientID: 99, UnitLabel: "A-1", EndDate: date(2026, time.March, 5), Status: domain.LeaseActive},
		},
		recipients: map[int64]domain.Recipient{},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	svc := newTestService(store, &stubPrefs{pref: allEnabled()}, sink, ref)

	result, err := svc.ScanExpiringLeases(context.Background())
	if err != nil {
		t.Fatalf("проход не должен падать из-за одной сущности: %v", err)
	}
	if result.Errors != 1 || result.Created != 0 {
		t.Fatalf("ожидали 1 ошибку, получили %+v", result)
	}
}

func TestScanRentIncreases(t *testing.T) {
	ref := date(2026, time.March, 1)
	anchorPast := date(2025, time.December, 20)
	anchorSoon := date(2026, time.February, 3)
	store := &stubStore{
		leases: []domain.Lease{
			// Следующая индексация 20.01.2026 уже позади.
			{ID: 1, RecipientID: 10, UnitLabel: "A-1", Status: domain.LeaseActive, IncreaseFrequency: domain.IncreaseMonthly, IncreaseAnchor: &anchorPast},
			// Следующая индексация 03.03.2026 попадает в горизонт.
			{ID: 2, RecipientID: 10, UnitLabel: "A-2", Status: domain.LeaseActive, IncreaseFrequency: domain.IncreaseMonthly, IncreaseAnchor: &anchorSoon},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	svc := newTestService(store, &stubPrefs{pref: allEnabled()}, sink, ref)

	result, err := svc.ScanRentIncreases(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("ожидали 2 созданных, получили %+v", result)
	}
	if sink.emitted[0].kind != domain.KindIncreaseOverdue {
		t.Fatalf("ожидали пропущенную индексацию, получили %s", sink.emitted[0].kind)
	}
	if sink.emitted[1].kind != domain.KindIncreaseUpcoming {
		t.Fatalf("ожидали предстоящую индексацию, получили %s", sink.emitted[1].kind)
	}
}

func TestCheckInvoicePicksOverdueOverDueSoon(t *testing.T) {
	ref := date(2026, time.March, 10)
	store := &stubStore{
		invoices: []domain.Invoice{
			{ID: 1, RecipientID: 10, Number: "INV-1", Balance: 50, DueDate: date(2026, time.March, 5)},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	svc := newTestService(store, &stubPrefs{pref: allEnabled()}, sink, ref)

	if _, err := svc.CheckInvoice(context.Background(), 1); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sink.emitted) != 1 || sink.emitted[0].kind != domain.KindOverdueStandard {
		t.Fatalf("ожидали одно уведомление о просрочке, получили %+v", sink.emitted)
	}
}

func TestCheckInvoiceSettledBalance(t *testing.T) {
	ref := date(2026, time.March, 10)
	store := &stubStore{
		invoices: []domain.Invoice{
			{ID: 1, RecipientID: 10, Number: "INV-1", Balance: 0, DueDate: date(2026, time.March, 5)},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	svc := newTestService(store, &stubPrefs{pref: allEnabled()}, sink, ref)

	if _, err := svc.CheckInvoice(context.Background(), 1); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sink.emitted) != 0 {
		t.Fatalf("оплаченный счёт не должен порождать уведомления")
	}
}

func TestCheckLeaseEmitsExpirationAndIncrease(t *testing.T) {
	ref := date(2026, time.March, 1)
	anchor := date(2026, time.February, 3)
	store := &stubStore{
		leases: []domain.Lease{
			{ID: 1, RecipientID: 10, UnitLabel: "A-1", EndDate: date(2026, time.March, 8), Status: domain.LeaseActive, IncreaseFrequency: domain.IncreaseMonthly, IncreaseAnchor: &anchor},
		},
		recipients: map[int64]domain.Recipient{10: {ID: 10}},
	}
	sink := &stubSink{outcome: domain.EmitOutcome{Created: true}}
	svc := newTestService(store, &stubPrefs{pref: allEnabled()}, sink, ref)

	if _, err := svc.CheckLease(context.Background(), 1); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sink.emitted) != 2 {
		t.Fatalf("ожидали 2 уведомления, получили %d", len(sink.emitted))
	}
	if sink.emitted[0].kind != domain.KindExpirationUrgent || sink.emitted[1].kind != domain.KindIncreaseUpcoming {
		t.Fatalf("неожиданные виды: %+v", sink.emitted)
	}
}
