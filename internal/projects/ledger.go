package projects

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sergioaranda/forgeline-backend/internal/billing"
	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
	"github.com/sergioaranda/forgeline-backend/pkg/enums"
	pkgerrors "github.com/sergioaranda/forgeline-backend/pkg/errors"
	"github.com/sergioaranda/forgeline-backend/pkg/logger"
)

// Ledger keeps each project's paid total in sync with its succeeded payments.
type Ledger struct {
	projectRepo Repository
	billingRepo billing.Repository
	logg        *logger.Logger
}

// LedgerParams wires the ledger dependencies.
type LedgerParams struct {
	ProjectRepo Repository
	BillingRepo billing.Repository
	Logger      *logger.Logger
}

// NewLedger returns a ledger bound to the provided repositories.
func NewLedger(params LedgerParams) (*Ledger, error) {
	if params.ProjectRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "project repo required")
	}
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	return &Ledger{
		projectRepo: params.ProjectRepo,
		billingRepo: params.BillingRepo,
		logg:        params.Logger,
	}, nil
}

// Recalculate recomputes the project's paid total from scratch inside the
// caller's transaction. Re-summing instead of incrementing keeps duplicate
// webhook deliveries from inflating the total. A project in quote_approved
// moves to in_progress only once the paid total covers the quoted amount;
// partial deposits leave the status alone and later payments never move it
// again.
//
// A missing project is tolerated: the payment stays recorded and the gap is
// logged for manual review.
func (l *Ledger) Recalculate(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*models.Project, error) {
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}

	projectRepo := l.projectRepo.WithTx(tx)
	billingRepo := l.billingRepo.WithTx(tx)

	project, err := projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	if project == nil {
		if l.logg != nil {
			warnCtx := l.logg.WithFields(ctx, map[string]any{"project_id": projectID.String()})
			l.logg.Warn(warnCtx, "payment references unknown project, skipping ledger update")
		}
		return nil, nil
	}

	total, err := billingRepo.SumSucceededPaymentsByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum project payments")
	}

	project.PaidAmountCents = total
	if project.Status == enums.ProjectStatusQuoteApproved &&
		project.TotalAmountCents > 0 &&
		total >= project.TotalAmountCents {
		project.Status = enums.ProjectStatusInProgress
	}

	if err := projectRepo.Update(ctx, project); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project ledger")
	}
	return project, nil
}
