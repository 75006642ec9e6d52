package inventory

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products map[uuid.UUID]Product
	archived map[uuid.UUID]ArchivedUnit
	clock    int64

	failInsertArchivedAfter int
	insertArchivedCalls     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:                map[uuid.UUID]Product{},
		archived:                map[uuid.UUID]ArchivedUnit{},
		failInsertArchivedAfter: -1,
	}
}

func (m *memoryRepo) tick() time.Time {
	m.clock++
	return time.Unix(m.clock, 0).UTC()
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetProduct(_ context.Context, ownerID int64, id uuid.UUID) (Product, error) {
	p, ok := m.products[id]
	if !ok || p.OwnerID != ownerID {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *memoryRepo) ListProducts(_ context.Context, ownerID int64, filter ListFilter) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		if p.OwnerID != ownerID {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.LowStock && !p.LowStock() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	return m.InsertProduct(ctx, p)
}

func (m *memoryRepo) UpdateProduct(_ context.Context, p Product) error {
	existing, ok := m.products[p.ID]
	if !ok || existing.OwnerID != p.OwnerID {
		return ErrProductNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = m.tick()
	m.products[p.ID] = p
	return nil
}

func (m *memoryRepo) ListArchived(_ context.Context, ownerID int64) ([]ArchivedUnit, error) {
	var out []ArchivedUnit
	for _, a := range m.archived {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	return out, nil
}

func (m *memoryRepo) CountProducts(_ context.Context, ownerID int64) (int64, error) {
	var count int64
	for _, p := range m.products {
		if p.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) SumQuantity(_ context.Context, ownerID int64) (int64, error) {
	var sum int64
	for _, p := range m.products {
		if p.OwnerID == ownerID {
			sum += p.Quantity
		}
	}
	return sum, nil
}

func (m *memoryRepo) CountLowStock(_ context.Context, ownerID int64) (int64, error) {
	var count int64
	for _, p := range m.products {
		if p.OwnerID == ownerID && p.LowStock() {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) RecentProducts(_ context.Context, ownerID int64, limit int) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) CategoryRollup(_ context.Context, ownerID int64) ([]CategoryProductTotal, error) {
	var rows []CategoryProductTotal
	for _, p := range m.products {
		if p.OwnerID != ownerID {
			continue
		}
		rows = append(rows, CategoryProductTotal{
			Category: p.Category,
			Name:     p.Name,
			Unit:     p.Unit,
			Quantity: p.Quantity,
			Value:    float64(p.Quantity) * p.Price,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

func (m *memoryRepo) GetProductForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (Product, error) {
	return m.GetProduct(ctx, ownerID, id)
}

func (m *memoryRepo) FindByNameForUpdate(_ context.Context, ownerID int64, normalizedName string) (Product, error) {
	var matches []Product
	for _, p := range m.products {
		if p.OwnerID == ownerID && p.NormalizedName == normalizedName {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return Product{}, ErrProductNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})
	return matches[0], nil
}

func (m *memoryRepo) InsertProduct(_ context.Context, p Product) (Product, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := m.tick()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) UpdateProductStock(_ context.Context, id uuid.UUID, quantity int64, status Status) error {
	p, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Quantity = quantity
	p.Status = status
	p.UpdatedAt = m.tick()
	m.products[id] = p
	return nil
}

func (m *memoryRepo) DeleteProduct(_ context.Context, ownerID int64, id uuid.UUID) (bool, error) {
	p, ok := m.products[id]
	if !ok || p.OwnerID != ownerID {
		return false, nil
	}
	delete(m.products, id)
	return true, nil
}

func (m *memoryRepo) InsertArchived(_ context.Context, a ArchivedUnit) (ArchivedUnit, error) {
	m.insertArchivedCalls++
	if m.failInsertArchivedAfter >= 0 && m.insertArchivedCalls > m.failInsertArchivedAfter {
		return ArchivedUnit{}, errors.New("archive store unavailable")
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.DeletedAt = m.tick()
	m.archived[a.ID] = a
	return a, nil
}

func (m *memoryRepo) GetArchivedForUpdate(_ context.Context, ownerID int64, id uuid.UUID) (ArchivedUnit, error) {
	a, ok := m.archived[id]
	if !ok || a.OwnerID != ownerID {
		return ArchivedUnit{}, ErrArchiveNotFound
	}
	return a, nil
}

func (m *memoryRepo) DeleteArchived(_ context.Context, ownerID int64, id uuid.UUID) (bool, error) {
	a, ok := m.archived[id]
	if !ok || a.OwnerID != ownerID {
		return false, nil
	}
	delete(m.archived, id)
	return true, nil
}

type stubParser struct {
	intents []RemovalIntent
}

func (p stubParser) ParseRemovals(context.Context, string) []RemovalIntent {
	return p.intents
}

type recordingNotifier struct {
	alerts []Product
}

func (n *recordingNotifier) LowStock(_ context.Context, p Product) error {
	n.alerts = append(n.alerts, p)
	return nil
}

const testOwner int64 = 1

func newTestService(repo *memoryRepo, parser IntentParser) *Service {
	return NewService(repo, parser, nil, nil)
}

func mustCreate(t *testing.T, svc *Service, owner int64, in CreateInput) Product {
	t.Helper()
	p, err := svc.Create(context.Background(), owner, in)
	require.NoError(t, err)
	return p
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "  Mango  "})
	require.Equal(t, "Mango", p.Name)
	require.Equal(t, "mango", p.NormalizedName)
	require.Equal(t, "pcs", p.Unit)
	require.EqualValues(t, 5, p.MinStockLevel)
	require.EqualValues(t, 0, p.Quantity)
	require.Equal(t, StatusOutOfStock, p.Status)

	stocked := mustCreate(t, svc, testOwner, CreateInput{Name: "Rice", Unit: "kg", Quantity: 10})
	require.Equal(t, "kg", stocked.Unit)
	require.Equal(t, StatusActive, stocked.Status)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, testOwner, CreateInput{Name: "   "})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(ctx, testOwner, CreateInput{Name: "Mango", Quantity: -1})
	require.ErrorIs(t, err, ErrNegativeQuantity)

	_, err = svc.Create(ctx, testOwner, CreateInput{Name: "Mango", Price: -0.5})
	require.ErrorIs(t, err, ErrNegativePrice)
}

func TestOwnerScoping(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 3})

	_, err := svc.Get(ctx, 2, p.ID)
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.Delete(ctx, 2, p.ID)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.Len(t, repo.archived, 0)
}

func TestAdjustQuantityClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 5})

	adjusted, err := svc.AdjustQuantity(ctx, testOwner, p.ID, -9)
	require.NoError(t, err)
	require.EqualValues(t, 0, adjusted.Quantity)
	require.Equal(t, StatusOutOfStock, adjusted.Status)
	require.Len(t, repo.archived, 0, "adjust must not archive")

	adjusted, err = svc.AdjustQuantity(ctx, testOwner, p.ID, 3)
	require.NoError(t, err)
	require.EqualValues(t, 3, adjusted.Quantity)
	require.Equal(t, StatusActive, adjusted.Status)
}

func TestAdjustQuantityNotifiesLowStock(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, nil, notifier)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 10, MinStockLevel: 5})

	_, err := svc.AdjustQuantity(ctx, testOwner, p.ID, -3)
	require.NoError(t, err)
	require.Empty(t, notifier.alerts)

	_, err = svc.AdjustQuantity(ctx, testOwner, p.ID, -4)
	require.NoError(t, err)
	require.Len(t, notifier.alerts, 1)
	require.EqualValues(t, 3, notifier.alerts[0].Quantity)
}

func TestDeleteArchivesWholeQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Unit: "kg", Price: 2.5, Quantity: 7})

	archived, err := svc.Delete(ctx, testOwner, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 7, archived.Quantity)
	require.Equal(t, p.ID, archived.ProductID)
	require.Equal(t, "Mango", archived.Name)

	_, err = svc.Get(ctx, testOwner, p.ID)
	require.ErrorIs(t, err, ErrProductNotFound)

	// losing a race against another delete leaves no extra archive entry
	_, err = svc.Delete(ctx, testOwner, p.ID)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.Len(t, repo.archived, 1)
}

func TestDeleteRestoreRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Basmati Rice", Unit: "kg", Price: 4, Quantity: 12, MinStockLevel: 3, Category: "Grains"})

	archived, err := svc.Delete(ctx, testOwner, p.ID)
	require.NoError(t, err)

	restored, err := svc.Restore(ctx, testOwner, archived.ID)
	require.NoError(t, err)
	require.Equal(t, "Basmati Rice", restored.Name)
	require.Equal(t, "Grains", restored.Category)
	require.Equal(t, "kg", restored.Unit)
	require.EqualValues(t, 12, restored.Quantity)
	require.EqualValues(t, 3, restored.MinStockLevel)
	require.Equal(t, StatusActive, restored.Status)

	// the archived entry is consumed
	_, err = svc.Restore(ctx, testOwner, archived.ID)
	require.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestRestoreMergesIntoLiveProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	live := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 3})
	other := mustCreate(t, svc, testOwner, CreateInput{Name: "mango", Quantity: 2})

	archived, err := svc.Delete(ctx, testOwner, other.ID)
	require.NoError(t, err)

	restored, err := svc.Restore(ctx, testOwner, archived.ID)
	require.NoError(t, err)
	require.Equal(t, live.ID, restored.ID, "merge resolves case-insensitively to the earliest-created row")
	require.EqualValues(t, 5, restored.Quantity)

	units, err := svc.ListArchived(ctx, testOwner)
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestRestoreIgnoresStaleProductID(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 4})
	archived, err := svc.Delete(ctx, testOwner, p.ID)
	require.NoError(t, err)

	// a fresh product reuses the name while the archive entry still points at
	// the deleted row's id
	replacement := mustCreate(t, svc, testOwner, CreateInput{Name: "MANGO", Quantity: 1})

	restored, err := svc.Restore(ctx, testOwner, archived.ID)
	require.NoError(t, err)
	require.Equal(t, replacement.ID, restored.ID)
	require.EqualValues(t, 5, restored.Quantity)
}

func TestMultiDeleteSkipsMissingIDs(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	a := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 3})
	b := mustCreate(t, svc, testOwner, CreateInput{Name: "Rice", Quantity: 8})

	result, err := svc.MultiDelete(ctx, testOwner, []uuid.UUID{a.ID, uuid.New(), b.ID})
	require.NoError(t, err)
	require.Equal(t, 2, result.ArchivedCount)
	require.Equal(t, 2, result.DeletedCount)
	require.Len(t, repo.archived, 2)
	require.Len(t, repo.products, 0)
}

func TestMultiDeleteStopsOnStoreError(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	a := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 3})
	b := mustCreate(t, svc, testOwner, CreateInput{Name: "Rice", Quantity: 8})
	repo.failInsertArchivedAfter = 1

	result, err := svc.MultiDelete(ctx, testOwner, []uuid.UUID{a.ID, b.ID})
	require.Error(t, err)
	require.Equal(t, 1, result.ArchivedCount)
	require.Equal(t, 1, result.DeletedCount)
}

func TestVoiceDeleteItemizedReport(t *testing.T) {
	repo := newMemoryRepo()
	parser := stubParser{intents: []RemovalIntent{
		{Name: "mango", Quantity: 2},
		{Name: "rice", Quantity: 10},
		{Name: "butter", Quantity: 1},
	}}
	svc := newTestService(repo, parser)
	ctx := context.Background()

	mango := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 5})
	mustCreate(t, svc, testOwner, CreateInput{Name: "Rice", Quantity: 3})

	result, err := svc.VoiceDelete(ctx, testOwner, "remove 2 mango and 10 rice and a butter")
	require.NoError(t, err)
	require.Equal(t, []string{"removed 2 Mango (remaining: 3)"}, result.Updated)
	require.Equal(t, []string{
		"insufficient stock for Rice, available: 3",
		"butter not found",
	}, result.Errors)

	// only the removed slice is archived, the failed intents touch nothing
	require.Len(t, repo.archived, 1)
	got, err := svc.Get(ctx, testOwner, mango.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Quantity)
}

func TestVoiceDeleteDrainsToZeroKeepsRow(t *testing.T) {
	repo := newMemoryRepo()
	parser := stubParser{intents: []RemovalIntent{{Name: "Mango", Quantity: 2}}}
	svc := newTestService(repo, parser)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 2})

	result, err := svc.VoiceDelete(ctx, testOwner, "remove 2 mango")
	require.NoError(t, err)
	require.Equal(t, []string{"Mango is now out of stock"}, result.Updated)
	require.Empty(t, result.Errors)

	got, err := svc.Get(ctx, testOwner, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.Quantity)
	require.Equal(t, StatusOutOfStock, got.Status)
}

func TestVoiceDeleteDefaultsQuantityToOne(t *testing.T) {
	repo := newMemoryRepo()
	parser := stubParser{intents: []RemovalIntent{{Name: "mango"}}}
	svc := newTestService(repo, parser)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 5})

	result, err := svc.VoiceDelete(ctx, testOwner, "remove a mango")
	require.NoError(t, err)
	require.Equal(t, []string{"removed 1 Mango (remaining: 4)"}, result.Updated)

	got, err := svc.Get(ctx, testOwner, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, got.Quantity)
}

func TestVoiceDeleteNoIntents(t *testing.T) {
	svc := newTestService(newMemoryRepo(), stubParser{})

	result, err := svc.VoiceDelete(context.Background(), testOwner, "play some music")
	require.NoError(t, err)
	require.Equal(t, "no valid items found", result.Message)
	require.Empty(t, result.Updated)
	require.Empty(t, result.Errors)
}

func TestPermanentDeleteIsIrreversible(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 3})
	archived, err := svc.Delete(ctx, testOwner, p.ID)
	require.NoError(t, err)

	require.NoError(t, svc.PermanentDelete(ctx, testOwner, archived.ID))
	require.ErrorIs(t, svc.PermanentDelete(ctx, testOwner, archived.ID), ErrArchiveNotFound)

	_, err = svc.Restore(ctx, testOwner, archived.ID)
	require.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestUpdateRecomputesStatusAndName(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p := mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 5})

	zero := int64(0)
	name := "Alphonso Mango"
	updated, err := svc.Update(ctx, testOwner, p.ID, UpdateInput{Name: &name, Quantity: &zero})
	require.NoError(t, err)
	require.Equal(t, "Alphonso Mango", updated.Name)
	require.Equal(t, "alphonso mango", updated.NormalizedName)
	require.Equal(t, StatusOutOfStock, updated.Status)

	empty := "  "
	_, err = svc.Update(ctx, testOwner, p.ID, UpdateInput{Name: &empty})
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestStats(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Quantity: 10})
	mustCreate(t, svc, testOwner, CreateInput{Name: "Rice", Quantity: 2, MinStockLevel: 5})
	mustCreate(t, svc, 2, CreateInput{Name: "Other Owner", Quantity: 100})

	stats, err := svc.Stats(ctx, testOwner)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.TotalProducts)
	require.EqualValues(t, 12, stats.TotalQuantity)
	require.EqualValues(t, 1, stats.LowStockCount)
	require.Len(t, stats.Recent, 2)
}

func TestSummaryGroupsByCategory(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	mustCreate(t, svc, testOwner, CreateInput{Name: "Mango", Category: "Fruit", Quantity: 10, Price: 2})
	mustCreate(t, svc, testOwner, CreateInput{Name: "Apple", Category: "Fruit", Quantity: 5, Price: 1})
	mustCreate(t, svc, testOwner, CreateInput{Name: "Loose Item", Quantity: 3, Price: 4})

	summary, err := svc.Summary(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, summary.Categories, 2)
	require.EqualValues(t, 18, summary.GrandQuantity)
	require.EqualValues(t, 37, summary.GrandValue)

	byName := map[string]CategoryTotals{}
	for _, c := range summary.Categories {
		byName[c.Category] = c
	}
	fruit := byName["Fruit"]
	require.EqualValues(t, 15, fruit.Stock)
	require.EqualValues(t, 25, fruit.Value)
	require.Len(t, fruit.Products, 2)

	loose := byName["Uncategorized"]
	require.EqualValues(t, 3, loose.Stock)
	require.EqualValues(t, 12, loose.Value)
}
