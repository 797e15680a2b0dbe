package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func testCartRecord(unitPrice int64, quantity int) repositories.CartRecord {
	return repositories.CartRecord{
		Snapshot: domain.CartSnapshot{
			CartID:   "cart_1",
			UserID:   "user_1",
			Currency: "CAD",
			Version:  4,
			Lines:    []domain.CartLine{{ID: "l1", ProductID: "prod_1", UnitPrice: unitPrice, Quantity: quantity}},
		},
		Destination: domain.Destination{Province: "ON", Country: "CA"},
	}
}

func newTestCartService(t *testing.T, repo *fakeCartRepository, ledger *fakeLedger, logger *recordingLogger) CartService {
	t.Helper()
	deps := CartServiceDeps{
		Repository: repo,
		Composer:   NewOrderTotalComposer(DefaultPricingSettings()),
		Clock:      func() time.Time { return promoTestNow },
	}
	if ledger != nil {
		deps.Promotions = newTestPromoEngine(t, ledger)
	}
	if logger != nil {
		deps.Logger = logger.log
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestCartServicePreviewUsesStoredDestination(t *testing.T) {
	repo := &fakeCartRepository{record: testCartRecord(15000, 2)}
	svc := newTestCartService(t, repo, nil, nil)

	preview, err := svc.Preview(context.Background(), CartPreviewCommand{UserID: "user_1"})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.Total.GrandTotal != 30510 {
		t.Fatalf("expected grand total 30510, got %d", preview.Total.GrandTotal)
	}
	if preview.CartVersion != 4 || preview.Destination.Province != "ON" {
		t.Fatalf("unexpected preview metadata %+v", preview)
	}
}

func TestCartServicePreviewDestinationOverride(t *testing.T) {
	repo := &fakeCartRepository{record: testCartRecord(15000, 2)}
	svc := newTestCartService(t, repo, nil, nil)

	preview, err := svc.Preview(context.Background(), CartPreviewCommand{
		UserID:      "user_1",
		Destination: &domain.Destination{Province: "tx", Country: "us"},
	})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !preview.Destination.IsInternational {
		t.Fatalf("non-Canadian destinations must be international")
	}
	if preview.Total.Shipping.MethodLabel != "International Tracked Shipping" {
		t.Fatalf("unexpected shipping %+v", preview.Total.Shipping)
	}
}

func TestCartServicePreviewMapsNotFound(t *testing.T) {
	repo := &fakeCartRepository{getErr: &repositoryErrorStub{notFound: true}}
	svc := newTestCartService(t, repo, nil, nil)

	_, err := svc.Preview(context.Background(), CartPreviewCommand{UserID: "user_1"})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestCartServiceApplyPromotionSuccess(t *testing.T) {
	repo := &fakeCartRepository{record: testCartRecord(15000, 2)}
	ledger := &fakeLedger{promos: map[string]domain.PromoCode{"SAVE20": livePromo("SAVE20")}}
	svc := newTestCartService(t, repo, ledger, nil)

	result, err := svc.ApplyPromotion(context.Background(), ApplyPromotionCommand{UserID: "user_1", Code: "save20"})
	if err != nil {
		t.Fatalf("ApplyPromotion: %v", err)
	}
	if !result.Validation.Valid {
		t.Fatalf("expected valid promo, got %+v", result.Validation)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected session to be saved once, got %d", len(repo.saved))
	}
	saved := repo.saved[0]
	if saved.expectedVersion != 4 || saved.session.State != domain.PromoStateApplied || saved.session.ValidatedSubtotal != 30000 {
		t.Fatalf("unexpected saved session %+v", saved)
	}
	total := result.Preview.Total
	if total.DiscountSource != domain.DiscountSourcePromo || total.Volume.Applied {
		t.Fatalf("promo must replace the volume discount, got %+v", total)
	}
	if total.DiscountAmount != 2000 {
		t.Fatalf("expected 2000 discount, got %d", total.DiscountAmount)
	}
}

func TestCartServiceApplyPromotionInvalidIsInline(t *testing.T) {
	repo := &fakeCartRepository{record: testCartRecord(15000, 2)}
	ledger := &fakeLedger{promos: map[string]domain.PromoCode{}}
	svc := newTestCartService(t, repo, ledger, nil)

	result, err := svc.ApplyPromotion(context.Background(), ApplyPromotionCommand{UserID: "user_1", Code: "NOPE"})
	if err != nil {
		t.Fatalf("validation failures are not errors: %v", err)
	}
	if result.Validation.ErrorKind != domain.PromoErrorInvalidCode {
		t.Fatalf("expected invalid_code, got %s", result.Validation.ErrorKind)
	}
	if result.Preview.Promotion.CurrentState() != domain.PromoStateUnvalidated {
		t.Fatalf("failed validation must leave the session unvalidated")
	}
	if result.Preview.Total.DiscountSource != domain.DiscountSourceVolume {
		t.Fatalf("expected volume discount fallback, got %s", result.Preview.Total.DiscountSource)
	}
}

func TestCartServiceApplyPromotionDiscardsStaleResult(t *testing.T) {
	repo := &fakeCartRepository{record: testCartRecord(15000, 2)}
	ledger := &fakeLedger{promos: map[string]domain.PromoCode{"SAVE20": livePromo("SAVE20")}}
	ledger.beforeFind = repo.bumpVersion
	logger := &recordingLogger{}
	svc := newTestCartService(t, repo, ledger, logger)

	_, err := svc.ApplyPromotion(context.Background(), ApplyPromotionCommand{UserID: "user_1", Code: "SAVE20"})
	if !errors.Is(err, ErrCartStale) {
		t.Fatalf("expected ErrCartStale, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("stale validation must not be saved")
	}
	if !logger.has("cart.promotion.discarded_stale") {
		t.Fatalf("expected stale discard to be logged")
	}
}

func TestCartServiceApplyPromotionRejectsBlankCode(t *testing.T) {
	repo := &fakeCartRepository{record: testCartRecord(15000, 2)}
	svc := newTestCartService(t, repo, &fakeLedger{}, nil)

	_, err := svc.ApplyPromotion(context.Background(), ApplyPromotionCommand{UserID: "user_1", Code: "<b></b>  "})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartServiceApplyPromotionDisabled(t *testing.T) {
	repo := &fakeCartRepository{record: testCartRecord(15000, 2)}
	svc := newTestCartService(t, repo, nil, nil)

	_, err := svc.ApplyPromotion(context.Background(), ApplyPromotionCommand{UserID: "user_1", Code: "SAVE20"})
	if !errors.Is(err, ErrCartPromotionsDisabled) {
		t.Fatalf("expected ErrCartPromotionsDisabled, got %v", err)
	}
}

func TestCartServicePreviewRevalidatesWhenSubtotalChanged(t *testing.T) {
	record := testCartRecord(15000, 2)
	record.Promotion = domain.PromoSession{
		Code:              "SAVE20",
		State:             domain.PromoStateApplied,
		DiscountAmount:    2000,
		ValidatedSubtotal: 45000,
		CartVersion:       3,
	}
	repo := &fakeCartRepository{record: record}
	percent := livePromo("SAVE20")
	percent.MinSubtotal = 40000
	ledger := &fakeLedger{promos: map[string]domain.PromoCode{"SAVE20": percent}}
	svc := newTestCartService(t, repo, ledger, nil)

	preview, err := svc.Preview(context.Background(), CartPreviewCommand{UserID: "user_1"})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if ledger.findCalls != 1 {
		t.Fatalf("expected revalidation, got %d lookups", ledger.findCalls)
	}
	if preview.Promotion.ErrorKind != domain.PromoErrorBelowMinimum || preview.Promotion.IsApplied() {
		t.Fatalf("expected promo to drop below minimum, got %+v", preview.Promotion)
	}
	if preview.Total.DiscountSource != domain.DiscountSourceVolume {
		t.Fatalf("expected volume fallback, got %s", preview.Total.DiscountSource)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected refreshed session to be saved")
	}
}

func TestCartServicePreviewSkipsRevalidationWhenSubtotalMatches(t *testing.T) {
	record := testCartRecord(15000, 2)
	record.Promotion = domain.PromoSession{Code: "SAVE20", State: domain.PromoStateApplied, DiscountAmount: 2000, ValidatedSubtotal: 30000}
	repo := &fakeCartRepository{record: record}
	ledger := &fakeLedger{}
	svc := newTestCartService(t, repo, ledger, nil)

	preview, err := svc.Preview(context.Background(), CartPreviewCommand{UserID: "user_1"})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if ledger.findCalls != 0 {
		t.Fatalf("expected no ledger lookup")
	}
	if preview.Total.GrandTotal != 31640 {
		t.Fatalf("expected 31640, got %d", preview.Total.GrandTotal)
	}
}

func TestCartServiceRemovePromotion(t *testing.T) {
	record := testCartRecord(15000, 2)
	record.Promotion = domain.PromoSession{Code: "SAVE20", State: domain.PromoStateApplied, DiscountAmount: 2000, ValidatedSubtotal: 30000}
	repo := &fakeCartRepository{record: record}
	svc := newTestCartService(t, repo, nil, nil)

	preview, err := svc.RemovePromotion(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("RemovePromotion: %v", err)
	}
	if preview.Total.DiscountSource != domain.DiscountSourceVolume || preview.Total.GrandTotal != 30510 {
		t.Fatalf("expected volume pricing after removal, got %+v", preview.Total)
	}
	if len(repo.saved) != 1 || repo.saved[0].session.Code != "" {
		t.Fatalf("expected cleared session to be saved, got %+v", repo.saved)
	}
}
