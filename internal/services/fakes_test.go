package services

import (
	"context"
	"sync"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/payments"
	"github.com/maplecart/api/internal/repositories"
)

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}

type savedPromotion struct {
	userID          string
	session         domain.PromoSession
	expectedVersion int64
}

type fakeCartRepository struct {
	mu      sync.Mutex
	record  repositories.CartRecord
	getErr  error
	saveErr error
	saved   []savedPromotion
	// onValidate lets tests mutate the cart between read and save.
	onValidate func(*repositories.CartRecord)
}

func (f *fakeCartRepository) GetCart(_ context.Context, userID string) (repositories.CartRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return repositories.CartRecord{}, f.getErr
	}
	return f.record, nil
}

func (f *fakeCartRepository) SavePromotion(_ context.Context, userID string, session domain.PromoSession, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.record.Snapshot.Version != expectedVersion {
		return &repositoryErrorStub{conflict: true}
	}
	f.saved = append(f.saved, savedPromotion{userID: userID, session: session, expectedVersion: expectedVersion})
	f.record.Promotion = session
	return nil
}

func (f *fakeCartRepository) bumpVersion() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record.Snapshot.Version++
}

type fakeLedger struct {
	mu          sync.Mutex
	promos      map[string]domain.PromoCode
	findErrs    []error
	findCalls   int
	redeemErr   error
	redeemCalls int
	redeemed    []repositories.PromotionRedemption
	beforeFind  func()
}

func (f *fakeLedger) FindByCode(_ context.Context, code string) (domain.PromoCode, error) {
	f.mu.Lock()
	hook := f.beforeFind
	f.findCalls++
	var err error
	if len(f.findErrs) > 0 {
		err = f.findErrs[0]
		f.findErrs = f.findErrs[1:]
	}
	promo, ok := f.promos[code]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return domain.PromoCode{}, err
	}
	if !ok {
		return domain.PromoCode{}, &repositoryErrorStub{notFound: true}
	}
	return promo, nil
}

func (f *fakeLedger) Redeem(_ context.Context, redemption repositories.PromotionRedemption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeemCalls++
	if f.redeemErr != nil {
		return f.redeemErr
	}
	f.redeemed = append(f.redeemed, redemption)
	return nil
}

type fakeOrderRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	inserted  []domain.Order
	updated   []domain.Order
	insertErr error
	updateErr error
	findErr   error
}

func newFakeOrderRepository() *fakeOrderRepository {
	return &fakeOrderRepository{orders: map[string]domain.Order{}}
}

func (f *fakeOrderRepository) Insert(_ context.Context, order domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, order)
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepository) Update(_ context.Context, order domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.orders[order.ID]; !ok {
		return &repositoryErrorStub{notFound: true}
	}
	f.updated = append(f.updated, order)
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return domain.Order{}, f.findErr
	}
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, &repositoryErrorStub{notFound: true}
	}
	return order, nil
}

type fakePaymentGateway struct {
	requests []payments.PaymentIntentRequest
	intent   payments.PaymentIntent
	err      error
}

func (f *fakePaymentGateway) CreatePaymentIntent(_ context.Context, req payments.PaymentIntentRequest) (payments.PaymentIntent, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return payments.PaymentIntent{}, f.err
	}
	intent := f.intent
	intent.Amount = req.Amount
	return intent, nil
}

type recordingPublisher struct {
	events []OrderEvent
	err    error
}

func (r *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	r.events = append(r.events, event)
	return r.err
}

type loggedEvent struct {
	name   string
	fields map[string]any
}

type recordingLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (r *recordingLogger) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, loggedEvent{name: event, fields: fields})
}

func (r *recordingLogger) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.name == name {
			return true
		}
	}
	return false
}
