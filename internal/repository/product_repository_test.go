package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	connStr := "postgres://" + dbUser + ":" + dbPwd + "@" + dbHost + ":" + dbPort.Port() + "/" + dbName + "?sslmode=disable"
	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	// Tables used by the stock and promo tests. No FK to categories so
	// fixtures can use arbitrary category IDs.
	_, err = testDB.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			price DECIMAL(10, 2) NOT NULL,
			category_id UUID NOT NULL,
			image_url VARCHAR(500),
			track_inventory BOOLEAN NOT NULL DEFAULT FALSE,
			stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
			low_stock_threshold INTEGER NOT NULL DEFAULT 5,
			allow_backorder BOOLEAN NOT NULL DEFAULT FALSE,
			in_stock BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS promo_codes (
			id UUID PRIMARY KEY,
			code VARCHAR(50) UNIQUE NOT NULL,
			description TEXT,
			discount_type VARCHAR(20) NOT NULL,
			discount_value DECIMAL(10, 2) NOT NULL,
			min_order_amount DECIMAL(10, 2),
			max_discount_amount DECIMAL(10, 2),
			usage_limit INTEGER,
			user_usage_limit INTEGER,
			usage_count INTEGER NOT NULL DEFAULT 0,
			valid_from TIMESTAMP,
			valid_until TIMESTAMP,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS stock_adjustments (
			id UUID PRIMARY KEY,
			product_id UUID NOT NULL,
			adjustment_type VARCHAR(20) NOT NULL,
			quantity INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			actor VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
}

func insertTrackedProduct(t *testing.T, stock int, allowBackorder bool) *domain.Product {
	t.Helper()

	now := time.Now()
	product := &domain.Product{
		ID:                uuid.New(),
		Name:              "Baklawa aux amandes",
		Description:       "Pâtisserie au miel",
		Price:             24.99,
		CategoryID:        uuid.New(),
		TrackInventory:    true,
		StockQuantity:     stock,
		LowStockThreshold: 5,
		AllowBackorder:    allowBackorder,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := NewProductRepository(testDB).Create(context.Background(), product); err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}
	return product
}

func TestReserveStock_DecrementsAtomically(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()
	product := insertTrackedProduct(t, 10, false)

	change, err := repo.ReserveStock(ctx, product.ID, 4)
	if err != nil {
		t.Fatalf("ReserveStock failed: %v", err)
	}
	if !change.Tracked || change.OldStock != 10 || change.NewStock != 6 {
		t.Errorf("Expected tracked 10 -> 6, got %+v", change)
	}

	reloaded, err := repo.FindByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if reloaded.StockQuantity != 6 {
		t.Errorf("Expected persisted stock 6, got %d", reloaded.StockQuantity)
	}
	if !reloaded.InStock {
		t.Error("Expected product still in stock")
	}
}

func TestReserveStock_InsufficientLeavesRowUntouched(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()
	product := insertTrackedProduct(t, 2, false)

	_, err := repo.ReserveStock(ctx, product.ID, 5)
	var insufficientErr *InsufficientStockError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if insufficientErr.Available != 2 || insufficientErr.Requested != 5 {
		t.Errorf("Expected requested 5 available 2, got %+v", insufficientErr)
	}

	reloaded, _ := repo.FindByID(ctx, product.ID)
	if reloaded.StockQuantity != 2 {
		t.Errorf("Expected stock unchanged at 2, got %d", reloaded.StockQuantity)
	}
}

func TestReserveStock_BackorderClampsAndKeepsInStock(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()
	product := insertTrackedProduct(t, 1, true)

	change, err := repo.ReserveStock(ctx, product.ID, 3)
	if err != nil {
		t.Fatalf("ReserveStock failed: %v", err)
	}
	if change.OldStock != 1 || change.NewStock != 0 {
		t.Errorf("Expected 1 -> 0, got %+v", change)
	}

	reloaded, _ := repo.FindByID(ctx, product.ID)
	if reloaded.StockQuantity != 0 {
		t.Errorf("Expected stock 0, got %d", reloaded.StockQuantity)
	}
	// Backorderable products stay sellable at zero stock.
	if !reloaded.InStock {
		t.Error("Expected backorderable product to remain in stock")
	}
}

func TestReserveStock_UntrackedIsNoOp(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()

	now := time.Now()
	product := &domain.Product{
		ID:         uuid.New(),
		Name:       "Thé à la menthe",
		Price:      4.50,
		CategoryID: uuid.New(),
		InStock:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Create(ctx, product); err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}

	change, err := repo.ReserveStock(ctx, product.ID, 100)
	if err != nil {
		t.Fatalf("ReserveStock failed: %v", err)
	}
	if change.Tracked {
		t.Errorf("Expected untracked no-op, got %+v", change)
	}
}

func TestReserveStock_UnknownProduct(t *testing.T) {
	repo := NewProductRepository(testDB)

	_, err := repo.ReserveStock(context.Background(), uuid.New(), 1)
	if !errors.Is(err, ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestReserveStock_ConcurrentReservationsNeverOversell(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()
	product := insertTrackedProduct(t, 5, false)

	const workers = 2
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.ReserveStock(ctx, product.ID, 3)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficientErr *InsufficientStockError
		if !errors.As(err, &insufficientErr) {
			t.Errorf("Expected InsufficientStockError for the loser, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("Expected exactly one reservation to win, got %d", succeeded)
	}

	reloaded, _ := repo.FindByID(ctx, product.ID)
	if reloaded.StockQuantity != 2 {
		t.Errorf("Expected final stock 2, got %d", reloaded.StockQuantity)
	}
}

func TestAdjustStock_DecreaseFloorsAtZero(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()
	product := insertTrackedProduct(t, 3, false)

	change, err := repo.AdjustStock(ctx, product.ID, domain.AdjustmentTypeDecrease, 10)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if change.OldStock != 3 || change.NewStock != 0 {
		t.Errorf("Expected 3 -> 0, got %+v", change)
	}

	reloaded, _ := repo.FindByID(ctx, product.ID)
	if reloaded.InStock {
		t.Error("Expected product out of stock after flooring at zero")
	}
}

func TestAdjustStock_SetAndIncrease(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()
	product := insertTrackedProduct(t, 0, false)

	change, err := repo.AdjustStock(ctx, product.ID, domain.AdjustmentTypeSet, 40)
	if err != nil {
		t.Fatalf("AdjustStock set failed: %v", err)
	}
	if change.NewStock != 40 {
		t.Errorf("Expected stock 40, got %d", change.NewStock)
	}

	change, err = repo.AdjustStock(ctx, product.ID, domain.AdjustmentTypeIncrease, 5)
	if err != nil {
		t.Fatalf("AdjustStock increase failed: %v", err)
	}
	if change.OldStock != 40 || change.NewStock != 45 {
		t.Errorf("Expected 40 -> 45, got %+v", change)
	}

	reloaded, _ := repo.FindByID(ctx, product.ID)
	if !reloaded.InStock {
		t.Error("Expected product back in stock")
	}
}

// Feature: inventory, Property: releasing a reservation restores the row
func TestProperty_ReserveThenReleaseRestoresStock(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("stock after reserve+release equals the starting stock", prop.ForAll(
		func(stock int, quantity int) bool {
			if quantity > stock {
				// A failed reservation changes nothing; covered elsewhere.
				return true
			}
			product := insertTrackedProduct(t, stock, false)

			if _, err := repo.ReserveStock(ctx, product.ID, quantity); err != nil {
				t.Logf("FAIL: reserve error: %v", err)
				return false
			}
			if _, err := repo.ReleaseStock(ctx, product.ID, quantity); err != nil {
				t.Logf("FAIL: release error: %v", err)
				return false
			}

			reloaded, err := repo.FindByID(ctx, product.ID)
			if err != nil {
				t.Logf("FAIL: reload error: %v", err)
				return false
			}
			return reloaded.StockQuantity == stock
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}

func TestIncrementUsage_GuardStopsAtTheLimit(t *testing.T) {
	repo := NewPromoCodeRepository(testDB)
	ctx := context.Background()

	now := time.Now()
	limit := 3
	promo := &domain.PromoCode{
		ID:            uuid.New(),
		Code:          "LIMITE3",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 5,
		UsageLimit:    &limit,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Create(ctx, promo); err != nil {
		t.Fatalf("failed to insert promo: %v", err)
	}

	const attempts = 6
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.IncrementUsage(ctx, "LIMITE3")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrPromoUsageExhausted) {
			t.Errorf("Expected ErrPromoUsageExhausted, got %v", err)
		}
	}
	if succeeded != limit {
		t.Errorf("Expected exactly %d increments to win, got %d", limit, succeeded)
	}

	reloaded, err := repo.FindByCode(ctx, "limite3")
	if err != nil {
		t.Fatalf("FindByCode failed: %v", err)
	}
	if reloaded.UsageCount != limit {
		t.Errorf("Expected usage count %d, got %d", limit, reloaded.UsageCount)
	}
}

func TestIncrementUsage_UnlimitedCodeAlwaysIncrements(t *testing.T) {
	repo := NewPromoCodeRepository(testDB)
	ctx := context.Background()

	now := time.Now()
	promo := &domain.PromoCode{
		ID:            uuid.New(),
		Code:          "SANSLIMITE",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Create(ctx, promo); err != nil {
		t.Fatalf("failed to insert promo: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := repo.IncrementUsage(ctx, "SANSLIMITE"); err != nil {
			t.Fatalf("IncrementUsage %d failed: %v", i, err)
		}
	}

	reloaded, _ := repo.FindByCode(ctx, "SANSLIMITE")
	if reloaded.UsageCount != 5 {
		t.Errorf("Expected usage count 5, got %d", reloaded.UsageCount)
	}
}

func TestIncrementUsage_UnknownCode(t *testing.T) {
	repo := NewPromoCodeRepository(testDB)

	err := repo.IncrementUsage(context.Background(), "INTROUVABLE")
	if !errors.Is(err, ErrPromoNotFound) {
		t.Errorf("Expected ErrPromoNotFound, got %v", err)
	}
}

func TestStockAdjustments_AppendAndListNewestFirst(t *testing.T) {
	repo := NewStockAdjustmentRepository(testDB)
	ctx := context.Background()
	productID := uuid.New()

	base := time.Now().Add(-time.Hour)
	for i, quantity := range []int{25, -2, 10} {
		err := repo.Append(ctx, &domain.StockAdjustment{
			ID:        uuid.New(),
			ProductID: productID,
			Type:      domain.AdjustmentTypeIncrease,
			Quantity:  quantity,
			Reason:    "test",
			Actor:     "admin",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	records, err := repo.ListByProduct(ctx, productID, 2)
	if err != nil {
		t.Fatalf("ListByProduct failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Quantity != 10 || records[1].Quantity != -2 {
		t.Errorf("Expected newest-first [10, -2], got [%d, %d]", records[0].Quantity, records[1].Quantity)
	}
}
