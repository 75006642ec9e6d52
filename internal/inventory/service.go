package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stocksense/stocksense/internal/shared"
)

// RemovalIntent is one structured {name, quantity} extracted from free text.
type RemovalIntent struct {
	Name     string
	Quantity int64
}

// IntentParser turns a spoken command into ordered removal intents. A command
// with no recognizable product mention yields an empty slice, never an error.
type IntentParser interface {
	ParseRemovals(ctx context.Context, command string) []RemovalIntent
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort alerts the owner when a product falls below its reorder level.
type NotifierPort interface {
	LowStock(ctx context.Context, product Product) error
}

// Service coordinates all stock mutations over the live and archive stores.
type Service struct {
	repo     RepositoryPort
	parser   IntentParser
	audit    AuditPort
	notifier NotifierPort
}

// NewService builds Service. parser, audit and notifier may be nil.
func NewService(repo RepositoryPort, parser IntentParser, audit AuditPort, notifier NotifierPort) *Service {
	return &Service{repo: repo, parser: parser, audit: audit, notifier: notifier}
}

const (
	defaultUnit          = "pcs"
	defaultMinStockLevel = 5
)

// Create adds a new product. Duplicate names under one owner are permitted.
func (s *Service) Create(ctx context.Context, ownerID int64, input CreateInput) (Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, ErrNameRequired
	}
	if input.Quantity < 0 {
		return Product{}, ErrNegativeQuantity
	}
	if input.Price < 0 {
		return Product{}, ErrNegativePrice
	}
	unit := input.Unit
	if unit == "" {
		unit = defaultUnit
	}
	minStock := input.MinStockLevel
	if minStock == 0 {
		minStock = defaultMinStockLevel
	}

	product := Product{
		OwnerID:        ownerID,
		Name:           name,
		NormalizedName: NormalizeName(name),
		SKU:            input.SKU,
		Category:       input.Category,
		Unit:           unit,
		Price:          input.Price,
		Quantity:       input.Quantity,
		MinStockLevel:  minStock,
		Status:         StatusFor(input.Quantity),
	}
	return s.repo.CreateProduct(ctx, product)
}

// Get fetches one product within the owner scope.
func (s *Service) Get(ctx context.Context, ownerID int64, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, ownerID, id)
}

// List returns filtered products, most recently updated first.
func (s *Service) List(ctx context.Context, ownerID int64, filter ListFilter) ([]Product, error) {
	return s.repo.ListProducts(ctx, ownerID, filter)
}

// Update edits product fields. Name changes recompute the normalized name;
// any quantity change recomputes the status.
func (s *Service) Update(ctx context.Context, ownerID int64, id uuid.UUID, input UpdateInput) (Product, error) {
	product, err := s.repo.GetProduct(ctx, ownerID, id)
	if err != nil {
		return Product{}, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Product{}, ErrNameRequired
		}
		product.Name = name
		product.NormalizedName = NormalizeName(name)
	}
	if input.SKU != nil {
		product.SKU = *input.SKU
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Unit != nil && *input.Unit != "" {
		product.Unit = *input.Unit
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return Product{}, ErrNegativePrice
		}
		product.Price = *input.Price
	}
	if input.Quantity != nil {
		if *input.Quantity < 0 {
			return Product{}, ErrNegativeQuantity
		}
		product.Quantity = *input.Quantity
	}
	if input.MinStockLevel != nil {
		product.MinStockLevel = *input.MinStockLevel
	}
	product.Status = StatusFor(product.Quantity)

	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// AdjustQuantity applies a signed delta, clamping at zero instead of
// rejecting an underflow. Adjust is a correction tool: no archive entry is
// written, archival is reserved for the delete paths.
func (s *Service) AdjustQuantity(ctx context.Context, ownerID int64, id uuid.UUID, delta int64) (Product, error) {
	var adjusted Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		quantity := product.Quantity + delta
		if quantity < 0 {
			quantity = 0
		}
		if err := tx.UpdateProductStock(ctx, product.ID, quantity, StatusFor(quantity)); err != nil {
			return err
		}
		product.Quantity = quantity
		product.Status = StatusFor(quantity)
		adjusted = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, ownerID, "inventory:adjust", adjusted.ID.String(), map[string]any{"delta": delta, "quantity": adjusted.Quantity})
	s.notifyLowStock(ctx, adjusted)
	return adjusted, nil
}

// Delete archives the entire remaining quantity into one ArchivedUnit and
// removes the product row, as one transaction. When two deletes race, the
// row lock plus conditional delete make the loser observe not-found instead
// of double-archiving.
func (s *Service) Delete(ctx context.Context, ownerID int64, id uuid.UUID) (ArchivedUnit, error) {
	var archived ArchivedUnit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		archived, err = tx.InsertArchived(ctx, snapshotOf(product, product.Quantity))
		if err != nil {
			return err
		}
		removed, err := tx.DeleteProduct(ctx, ownerID, product.ID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrProductNotFound
		}
		return nil
	})
	if err != nil {
		return ArchivedUnit{}, err
	}
	s.recordAudit(ctx, ownerID, "inventory:delete", id.String(), map[string]any{"archived_id": archived.ID.String(), "quantity": archived.Quantity})
	return archived, nil
}

// MultiDelete archives and removes every id that matches; unknown ids are
// silently skipped. Each id commits in its own transaction so the two counts
// advance together; a store failure mid-batch is returned alongside the
// counts committed so far.
func (s *Service) MultiDelete(ctx context.Context, ownerID int64, ids []uuid.UUID) (MultiDeleteResult, error) {
	var result MultiDeleteResult
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			product, err := tx.GetProductForUpdate(ctx, ownerID, id)
			if err != nil {
				return err
			}
			if _, err := tx.InsertArchived(ctx, snapshotOf(product, product.Quantity)); err != nil {
				return err
			}
			removed, err := tx.DeleteProduct(ctx, ownerID, product.ID)
			if err != nil {
				return err
			}
			if !removed {
				return ErrProductNotFound
			}
			return nil
		})
		switch {
		case err == nil:
			result.ArchivedCount++
			result.DeletedCount++
		case errors.Is(err, ErrProductNotFound):
			// no match for this id, skip
		default:
			return result, err
		}
	}
	s.recordAudit(ctx, ownerID, "inventory:multi_delete", fmt.Sprintf("batch:%d", len(ids)), map[string]any{"archived": result.ArchivedCount, "deleted": result.DeletedCount})
	return result, nil
}

// VoiceDelete interprets a spoken command into removal intents and applies
// them strictly in order, one transaction per intent. The call never fails
// wholesale because one item failed; every outcome is itemized in the report.
func (s *Service) VoiceDelete(ctx context.Context, ownerID int64, command string) (VoiceDeleteResult, error) {
	result := VoiceDeleteResult{Updated: []string{}, Errors: []string{}}
	if s.parser == nil {
		result.Message = "no valid items found"
		return result, nil
	}

	intents := s.parser.ParseRemovals(ctx, command)
	if len(intents) == 0 {
		result.Message = "no valid items found"
		return result, nil
	}

	for _, intent := range intents {
		quantity := intent.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		var product Product
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			product, err = tx.FindByNameForUpdate(ctx, ownerID, NormalizeName(intent.Name))
			if err != nil {
				return err
			}
			if product.Quantity < quantity {
				return ErrInsufficientStock
			}
			if _, err := tx.InsertArchived(ctx, snapshotOf(product, quantity)); err != nil {
				return err
			}
			remaining := product.Quantity - quantity
			if err := tx.UpdateProductStock(ctx, product.ID, remaining, StatusFor(remaining)); err != nil {
				return err
			}
			product.Quantity = remaining
			product.Status = StatusFor(remaining)
			return nil
		})
		switch {
		case err == nil:
			if product.Quantity == 0 {
				result.Updated = append(result.Updated, fmt.Sprintf("%s is now out of stock", product.Name))
			} else {
				result.Updated = append(result.Updated, fmt.Sprintf("removed %d %s (remaining: %d)", quantity, product.Name, product.Quantity))
			}
			s.notifyLowStock(ctx, product)
		case errors.Is(err, ErrProductNotFound):
			result.Errors = append(result.Errors, fmt.Sprintf("%s not found", intent.Name))
		case errors.Is(err, ErrInsufficientStock):
			result.Errors = append(result.Errors, fmt.Sprintf("insufficient stock for %s, available: %d", product.Name, product.Quantity))
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: could not update stock", intent.Name))
		}
	}

	s.recordAudit(ctx, ownerID, "inventory:voice_delete", fmt.Sprintf("intents:%d", len(intents)), map[string]any{"updated": len(result.Updated), "errors": len(result.Errors)})
	return result, nil
}

// Restore consumes an ArchivedUnit: merge its quantity into the live product
// with the same (owner, name), or recreate the product from the archived
// attributes when none exists. The archived entry is deleted either way, so
// a restore is never repeatable against the same entry.
func (s *Service) Restore(ctx context.Context, ownerID int64, archivedID uuid.UUID) (Product, error) {
	var restored Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		archived, err := tx.GetArchivedForUpdate(ctx, ownerID, archivedID)
		if err != nil {
			return err
		}

		live, err := tx.FindByNameForUpdate(ctx, ownerID, NormalizeName(archived.Name))
		switch {
		case err == nil:
			quantity := live.Quantity + archived.Quantity
			if err := tx.UpdateProductStock(ctx, live.ID, quantity, StatusFor(quantity)); err != nil {
				return err
			}
			live.Quantity = quantity
			live.Status = StatusFor(quantity)
			restored = live
		case errors.Is(err, ErrProductNotFound):
			product := Product{
				OwnerID:        ownerID,
				Name:           archived.Name,
				NormalizedName: NormalizeName(archived.Name),
				SKU:            archived.SKU,
				Category:       archived.Category,
				Unit:           archived.Unit,
				Price:          archived.Price,
				Quantity:       archived.Quantity,
				MinStockLevel:  archived.MinStockLevel,
				Status:         StatusFor(archived.Quantity),
			}
			restored, err = tx.InsertProduct(ctx, product)
			if err != nil {
				return err
			}
		default:
			return err
		}

		removed, err := tx.DeleteArchived(ctx, ownerID, archived.ID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrArchiveNotFound
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, ownerID, "inventory:restore", archivedID.String(), map[string]any{"product_id": restored.ID.String(), "quantity": restored.Quantity})
	return restored, nil
}

// PermanentDelete removes an ArchivedUnit irreversibly. No product side effect.
func (s *Service) PermanentDelete(ctx context.Context, ownerID int64, archivedID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetArchivedForUpdate(ctx, ownerID, archivedID); err != nil {
			return err
		}
		removed, err := tx.DeleteArchived(ctx, ownerID, archivedID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrArchiveNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, ownerID, "inventory:permanent_delete", archivedID.String(), nil)
	return nil
}

// ListArchived returns the owner's archive, most recent removal first.
func (s *Service) ListArchived(ctx context.Context, ownerID int64) ([]ArchivedUnit, error) {
	return s.repo.ListArchived(ctx, ownerID)
}

// Stats aggregates the owner dashboard numbers concurrently.
func (s *Service) Stats(ctx context.Context, ownerID int64) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.repo.CountProducts(gctx, ownerID)
		stats.TotalProducts = total
		return err
	})
	g.Go(func() error {
		sum, err := s.repo.SumQuantity(gctx, ownerID)
		stats.TotalQuantity = sum
		return err
	})
	g.Go(func() error {
		low, err := s.repo.CountLowStock(gctx, ownerID)
		stats.LowStockCount = low
		return err
	})
	g.Go(func() error {
		recent, err := s.repo.RecentProducts(gctx, ownerID, 5)
		stats.Recent = recent
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Summary groups quantity and value per category with grand totals.
func (s *Service) Summary(ctx context.Context, ownerID int64) (CategorySummary, error) {
	rows, err := s.repo.CategoryRollup(ctx, ownerID)
	if err != nil {
		return CategorySummary{}, err
	}
	summary := CategorySummary{Categories: []CategoryTotals{}}
	index := map[string]int{}
	for _, row := range rows {
		category := row.Category
		if category == "" {
			category = "Uncategorized"
		}
		i, ok := index[category]
		if !ok {
			i = len(summary.Categories)
			index[category] = i
			summary.Categories = append(summary.Categories, CategoryTotals{Category: category})
		}
		summary.Categories[i].Products = append(summary.Categories[i].Products, row)
		summary.Categories[i].Stock += row.Quantity
		summary.Categories[i].Value += row.Value
		summary.GrandQuantity += row.Quantity
		summary.GrandValue += row.Value
	}
	return summary, nil
}

// snapshotOf builds the archive record for one removal event carrying the
// given slice of quantity.
func snapshotOf(p Product, slice int64) ArchivedUnit {
	return ArchivedUnit{
		ProductID:     p.ID,
		OwnerID:       p.OwnerID,
		Name:          p.Name,
		SKU:           p.SKU,
		Category:      p.Category,
		Unit:          p.Unit,
		Price:         p.Price,
		Quantity:      slice,
		MinStockLevel: p.MinStockLevel,
	}
}

func (s *Service) recordAudit(ctx context.Context, ownerID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  ownerID,
		Action:   action,
		Entity:   "product",
		EntityID: entityID,
		Meta:     meta,
	})
}

func (s *Service) notifyLowStock(ctx context.Context, product Product) {
	if s.notifier == nil || !product.LowStock() {
		return
	}
	_ = s.notifier.LowStock(ctx, product)
}
