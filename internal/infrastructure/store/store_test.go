package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotedesk/backend/internal/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared-cache memory DSN keyed by test name so the pool's connections
	// all see the same database and tests stay isolated from each other.
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func seedOrg(t *testing.T, db *gorm.DB) *domain.Organization {
	t.Helper()
	org := &domain.Organization{Name: "Acme Supply", DefaultTaxRate: decimal.NewFromFloat(0.08)}
	if err := NewOrganizationStore(db).Create(context.Background(), org); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	return org
}

func TestCustomerFindOrCreate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	org := seedOrg(t, db)
	customers := NewCustomerStore(db)

	t.Run("creates then finds the same row", func(t *testing.T) {
		first, err := customers.FindOrCreate(ctx, org.ID, "Jones Plumbing", "rfq@jones.test")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if first.ID == 0 {
			t.Fatal("customer not persisted")
		}

		// Same name, different casing and spacing
		second, err := customers.FindOrCreate(ctx, org.ID, "  JONES   plumbing ", "")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("second.ID = %d, want %d (same customer)", second.ID, first.ID)
		}

		var count int64
		db.Model(&domain.Customer{}).Count(&count)
		if count != 1 {
			t.Errorf("customer rows = %d, want 1", count)
		}
	})

	t.Run("same name in another organization is a new customer", func(t *testing.T) {
		other := &domain.Organization{Name: "Other Supply"}
		if err := NewOrganizationStore(db).Create(ctx, other); err != nil {
			t.Fatalf("seed org: %v", err)
		}
		c, err := customers.FindOrCreate(ctx, other.ID, "Jones Plumbing", "")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if c.OrganizationID != other.ID {
			t.Errorf("organizationId = %d, want %d", c.OrganizationID, other.ID)
		}
	})

	t.Run("name empty after normalization rejected", func(t *testing.T) {
		_, err := customers.FindOrCreate(ctx, org.ID, "!!!", "")
		if !domain.IsValidation(err) {
			t.Errorf("error = %v, want ValidationError", err)
		}
	})

	// Two near-simultaneous submits for the same name must both come back
	// with the winner's ID, with exactly one row persisted. The unique index
	// is the arbiter; the loser's insert resolves by fetching the winner.
	t.Run("concurrent creates persist exactly one row", func(t *testing.T) {
		const callers = 8
		ids := make([]uint, callers)
		errs := make([]error, callers)

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, err := customers.FindOrCreate(ctx, org.ID, "Acme Corp", "")
				if err != nil {
					errs[i] = err
					return
				}
				ids[i] = c.ID
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			if errs[i] != nil {
				t.Fatalf("caller %d: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Errorf("caller %d got ID %d, want %d (same customer for all)", i, ids[i], ids[0])
			}
		}

		var count int64
		db.Model(&domain.Customer{}).
			Where("organization_id = ? AND name_norm = ?", org.ID, "acme corp").
			Count(&count)
		if count != 1 {
			t.Errorf("customer rows = %d, want 1", count)
		}
	})
}

func TestQuoteCreateWithIdempotency(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	org := seedOrg(t, db)
	customers := NewCustomerStore(db)
	quotes := NewQuoteStore(db)

	customer, err := customers.FindOrCreate(ctx, org.ID, "Jones Plumbing", "")
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	newQuote := func(source string) *domain.Quote {
		q := &domain.Quote{
			Number:         "Q-" + source,
			OrganizationID: org.ID,
			CustomerID:     customer.ID,
			Status:         domain.QuoteStatusDraft,
			TaxRate:        decimal.NewFromFloat(0.08),
			Items: []domain.QuoteItem{
				{Description: "line A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10), TotalPrice: decimal.NewFromInt(10)},
			},
		}
		if source != "" {
			s := source
			q.SourceEmailID = &s
		}
		return q
	}

	t.Run("first insert wins, second resolves to the winner", func(t *testing.T) {
		first, created, err := quotes.CreateWithIdempotency(ctx, newQuote("msg-1"))
		if err != nil {
			t.Fatalf("first: %v", err)
		}
		if !created {
			t.Fatal("first created = false, want true")
		}

		second, created, err := quotes.CreateWithIdempotency(ctx, newQuote("msg-1"))
		if err != nil {
			t.Fatalf("second: %v", err)
		}
		if created {
			t.Error("second created = true, want false")
		}
		if second.ID != first.ID {
			t.Errorf("second.ID = %d, want %d", second.ID, first.ID)
		}

		var count int64
		db.Model(&domain.Quote{}).Count(&count)
		if count != 1 {
			t.Errorf("quote rows = %d, want 1", count)
		}
	})

	t.Run("the loser's items are rolled back", func(t *testing.T) {
		var count int64
		db.Model(&domain.QuoteItem{}).Count(&count)
		if count != 1 {
			t.Errorf("quote item rows = %d, want 1", count)
		}
	})

	t.Run("quotes without a source email never collide", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			q := newQuote("")
			q.Number = q.Number + string(rune('a'+i))
			_, created, err := quotes.CreateWithIdempotency(ctx, q)
			if err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
			if !created {
				t.Errorf("insert %d created = false, want true", i)
			}
		}
	})

	t.Run("find by source email", func(t *testing.T) {
		q, err := quotes.FindBySourceEmail(ctx, org.ID, "msg-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(q.Items) != 1 {
			t.Errorf("items = %d, want 1 (preloaded)", len(q.Items))
		}
		if _, err := quotes.FindBySourceEmail(ctx, org.ID, "msg-unknown"); !errors.Is(err, domain.ErrQuoteNotFound) {
			t.Errorf("error = %v, want ErrQuoteNotFound", err)
		}
	})
}

func TestQuoteReplaceItems(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	org := seedOrg(t, db)
	quotes := NewQuoteStore(db)
	customer, _ := NewCustomerStore(db).FindOrCreate(ctx, org.ID, "Jones Plumbing", "")

	quote, _, err := quotes.CreateWithIdempotency(ctx, &domain.Quote{
		Number:         "Q-REPL",
		OrganizationID: org.ID,
		CustomerID:     customer.ID,
		Status:         domain.QuoteStatusDraft,
		Items: []domain.QuoteItem{
			{Description: "old A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5), Position: 0},
			{Description: "old B", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(7), Position: 1},
		},
	})
	if err != nil {
		t.Fatalf("seed quote: %v", err)
	}

	quote.Items = []domain.QuoteItem{
		{Description: "new B", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(3), Position: 0},
	}
	quote.Subtotal = decimal.NewFromInt(6)
	quote.TaxAmount = decimal.Zero
	quote.Total = decimal.NewFromInt(6)
	if err := quotes.ReplaceItems(ctx, quote); err != nil {
		t.Fatalf("replace: %v", err)
	}

	fresh, err := quotes.GetByID(ctx, org.ID, quote.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(fresh.Items) != 1 || fresh.Items[0].Description != "new B" {
		t.Errorf("items = %+v, want single 'new B'", fresh.Items)
	}
	if !fresh.Subtotal.Equal(decimal.NewFromInt(6)) {
		t.Errorf("subtotal = %s, want 6", fresh.Subtotal)
	}

	var count int64
	db.Model(&domain.QuoteItem{}).Where("quote_id = ?", quote.ID).Count(&count)
	if count != 1 {
		t.Errorf("item rows = %d, want 1 (old rows deleted)", count)
	}
}

func TestCatalogUpserts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	org := seedOrg(t, db)
	catalog := NewCatalogStore(db)

	t.Run("import then re-import updates in place", func(t *testing.T) {
		created, updated, err := catalog.UpsertProducts(ctx, org.ID, []domain.CatalogProduct{
			{SKU: "PVC-640", Name: "6 in Schedule 40 PVC Pipe", UnitPrice: decimal.NewFromFloat(12.50)},
			{SKU: "BV-2", Name: "2 in Brass Ball Valve", UnitPrice: decimal.NewFromFloat(45)},
		})
		if err != nil {
			t.Fatalf("first import: %v", err)
		}
		if created != 2 || updated != 0 {
			t.Errorf("created/updated = %d/%d, want 2/0", created, updated)
		}

		created, updated, err = catalog.UpsertProducts(ctx, org.ID, []domain.CatalogProduct{
			{SKU: "PVC-640", Name: "6 in Schedule 40 PVC Pipe", UnitPrice: decimal.NewFromFloat(13.25)},
			{SKU: "GV-1", Name: "1 in Gate Valve", UnitPrice: decimal.NewFromFloat(22)},
		})
		if err != nil {
			t.Fatalf("second import: %v", err)
		}
		if created != 1 || updated != 1 {
			t.Errorf("created/updated = %d/%d, want 1/1", created, updated)
		}

		products, err := catalog.ListProducts(ctx, org.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(products) != 3 {
			t.Fatalf("products = %d, want 3", len(products))
		}
		if !products[0].UnitPrice.Equal(decimal.NewFromFloat(13.25)) {
			t.Errorf("re-imported price = %s, want 13.25", products[0].UnitPrice)
		}
	})

	t.Run("competitor ref re-upload repoints the product", func(t *testing.T) {
		products, _ := catalog.ListProducts(ctx, org.ID)

		n, err := catalog.UpsertCompetitorRefs(ctx, org.ID, []domain.CompetitorRef{
			{CompetitorSKU: "ACME-100", ProductID: products[0].ID},
		})
		if err != nil || n != 1 {
			t.Fatalf("upload: n=%d err=%v", n, err)
		}

		_, err = catalog.UpsertCompetitorRefs(ctx, org.ID, []domain.CompetitorRef{
			{CompetitorSKU: "ACME-100", ProductID: products[1].ID},
		})
		if err != nil {
			t.Fatalf("re-upload: %v", err)
		}

		refs, err := catalog.ListCompetitorRefs(ctx, org.ID)
		if err != nil {
			t.Fatalf("list refs: %v", err)
		}
		if len(refs) != 1 {
			t.Fatalf("refs = %d, want 1", len(refs))
		}
		if refs[0].ProductID != products[1].ID {
			t.Errorf("ref productId = %d, want repointed %d", refs[0].ProductID, products[1].ID)
		}
	})

	t.Run("products by ids is org scoped", func(t *testing.T) {
		other := &domain.Organization{Name: "Scope Check"}
		if err := NewOrganizationStore(db).Create(ctx, other); err != nil {
			t.Fatalf("seed org: %v", err)
		}
		products, _ := catalog.ListProducts(ctx, org.ID)

		byID, err := catalog.GetProductsByIDs(ctx, other.ID, []uint{products[0].ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(byID) != 0 {
			t.Errorf("cross-org read returned %d products, want 0", len(byID))
		}
	})

	t.Run("get product not found", func(t *testing.T) {
		_, err := catalog.GetProduct(ctx, org.ID, 9999)
		if !errors.Is(err, domain.ErrProductNotFound) {
			t.Errorf("error = %v, want ErrProductNotFound", err)
		}
	})
}

func TestOrganizationStore(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	orgs := NewOrganizationStore(db)

	org := &domain.Organization{Name: "Acme Supply", ConfidenceThreshold: 0.7}
	if err := orgs.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := orgs.GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ConfidenceThreshold != 0.7 {
		t.Errorf("confidenceThreshold = %v, want 0.7", got.ConfidenceThreshold)
	}

	if _, err := orgs.GetByID(ctx, 9999); !errors.Is(err, domain.ErrOrganizationNotFound) {
		t.Errorf("error = %v, want ErrOrganizationNotFound", err)
	}
}
