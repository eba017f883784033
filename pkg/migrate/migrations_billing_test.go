package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPaymentsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payments.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"CONSTRAINT ux_payments_stripe_payment_intent_id UNIQUE (stripe_payment_intent_id)",
		"FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE",
		"FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE SET NULL",
		"CHECK (amount_cents >= 0)",
		"DROP TABLE IF EXISTS payments",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInvoicesMigrationAllowsNullExternalID(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_invoices.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no invoices migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	if strings.Contains(content, "stripe_invoice_id TEXT NOT NULL") {
		t.Error("stripe_invoice_id must stay nullable for internally issued invoices")
	}
	if !strings.Contains(content, "CONSTRAINT ux_invoices_stripe_invoice_id UNIQUE (stripe_invoice_id)") {
		t.Error("missing unique constraint on stripe_invoice_id")
	}
}
