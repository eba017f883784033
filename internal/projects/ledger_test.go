package projects

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sergioaranda/forgeline-backend/internal/billing"
	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
	"github.com/sergioaranda/forgeline-backend/pkg/enums"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	projects := `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'quote_requested',
  total_amount_cents INTEGER NOT NULL DEFAULT 0,
  paid_amount_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	payments := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  project_id TEXT,
  stripe_payment_intent_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL DEFAULT 'pending',
  kind TEXT NOT NULL DEFAULT 'one_time',
  description TEXT,
  receipt_url TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(projects).Error)
	require.NoError(t, db.Exec(payments).Error)
	t.Cleanup(func() {
		db.Exec("DELETE FROM payments")
		db.Exec("DELETE FROM projects")
	})
	return db
}

func newLedger(t *testing.T, db *gorm.DB) *Ledger {
	t.Helper()
	ledger, err := NewLedger(LedgerParams{
		ProjectRepo: NewRepository(db),
		BillingRepo: billing.NewRepository(db),
	})
	require.NoError(t, err)
	return ledger
}

func newProject(t *testing.T, db *gorm.DB, status enums.ProjectStatus, totalCents int64) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		Name:             "Site redesign",
		Status:           status,
		TotalAmountCents: totalCents,
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

func addPayment(t *testing.T, db *gorm.DB, projectID uuid.UUID, intentID string, amount int64, status enums.PaymentStatus) {
	t.Helper()
	payment := &models.Payment{
		ID:                    uuid.New(),
		UserID:                uuid.New(),
		ProjectID:             &projectID,
		StripePaymentIntentID: intentID,
		AmountCents:           amount,
		Currency:              "usd",
		Status:                status,
		Kind:                  enums.PaymentKindOneTime,
	}
	require.NoError(t, db.Create(payment).Error)
}

func TestLedgerRecalculate_SumsSucceededPayments(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	project := newProject(t, db, enums.ProjectStatusInProgress, 1000_00)
	addPayment(t, db, project.ID, "pi_a", 300_00, enums.PaymentStatusSucceeded)
	addPayment(t, db, project.ID, "pi_b", 200_00, enums.PaymentStatusSucceeded)
	addPayment(t, db, project.ID, "pi_c", 400_00, enums.PaymentStatusFailed)

	updated, err := ledger.Recalculate(ctx, db, project.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, int64(500_00), updated.PaidAmountCents)
	assert.Equal(t, enums.ProjectStatusInProgress, updated.Status)
}

func TestLedgerRecalculate_IsIdempotent(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	project := newProject(t, db, enums.ProjectStatusInProgress, 1000_00)
	addPayment(t, db, project.ID, "pi_once", 250_00, enums.PaymentStatusSucceeded)

	for i := 0; i < 3; i++ {
		updated, err := ledger.Recalculate(ctx, db, project.ID)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, int64(250_00), updated.PaidAmountCents, "re-running must not inflate the total")
	}
}

func TestLedgerRecalculate_ActivatesApprovedProjectWhenFullyPaid(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	project := newProject(t, db, enums.ProjectStatusQuoteApproved, 800_00)
	addPayment(t, db, project.ID, "pi_deposit", 400_00, enums.PaymentStatusSucceeded)
	addPayment(t, db, project.ID, "pi_balance", 400_00, enums.PaymentStatusSucceeded)

	updated, err := ledger.Recalculate(ctx, db, project.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, int64(800_00), updated.PaidAmountCents)
	assert.Equal(t, enums.ProjectStatusInProgress, updated.Status, "covering the quote should start the project")
}

func TestLedgerRecalculate_PartialDepositDoesNotActivate(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	project := newProject(t, db, enums.ProjectStatusQuoteApproved, 800_00)
	addPayment(t, db, project.ID, "pi_partial", 400_00, enums.PaymentStatusSucceeded)

	updated, err := ledger.Recalculate(ctx, db, project.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, int64(400_00), updated.PaidAmountCents)
	assert.Equal(t, enums.ProjectStatusQuoteApproved, updated.Status, "a deposit must not start the project")
}

func TestLedgerRecalculate_OverpaymentActivates(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	project := newProject(t, db, enums.ProjectStatusQuoteApproved, 500_00)
	addPayment(t, db, project.ID, "pi_over", 600_00, enums.PaymentStatusSucceeded)

	updated, err := ledger.Recalculate(ctx, db, project.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, enums.ProjectStatusInProgress, updated.Status)
}

func TestLedgerRecalculate_LeavesOtherStatusesAlone(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	for _, status := range []enums.ProjectStatus{
		enums.ProjectStatusQuoteRequested,
		enums.ProjectStatusQuoteSent,
		enums.ProjectStatusCompleted,
		enums.ProjectStatusCanceled,
	} {
		project := newProject(t, db, status, 500_00)
		addPayment(t, db, project.ID, "pi_"+project.ID.String(), 500_00, enums.PaymentStatusSucceeded)

		updated, err := ledger.Recalculate(ctx, db, project.ID)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, status, updated.Status, "status %s should not transition even when fully paid", status)
		assert.Equal(t, int64(500_00), updated.PaidAmountCents)
	}
}

func TestLedgerRecalculate_ZeroTotalDoesNotActivate(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	project := newProject(t, db, enums.ProjectStatusQuoteApproved, 800_00)
	addPayment(t, db, project.ID, "pi_failed", 400_00, enums.PaymentStatusFailed)

	updated, err := ledger.Recalculate(ctx, db, project.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, enums.ProjectStatusQuoteApproved, updated.Status)
	assert.Zero(t, updated.PaidAmountCents)
}

func TestLedgerRecalculate_MissingProjectIsTolerated(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := newLedger(t, db)

	updated, err := ledger.Recalculate(context.Background(), db, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestNewLedger_RequiresDependencies(t *testing.T) {
	_, err := NewLedger(LedgerParams{})
	require.Error(t, err)

	db := setupLedgerTestDB(t)
	_, err = NewLedger(LedgerParams{ProjectRepo: NewRepository(db)})
	require.Error(t, err)
}
