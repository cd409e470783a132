package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// SyncConfigRequest replaces a connection's sync policy. Omitted directions
// keep their current value.
type SyncConfigRequest struct {
	SyncEnabled          *bool                `json:"syncEnabled,omitempty"`
	StockDirection       models.SyncDirection `json:"stockDirection,omitempty"`
	PriceDirection       models.SyncDirection `json:"priceDirection,omitempty"`
	ProductDataDirection models.SyncDirection `json:"productDataDirection,omitempty"`
	CreateProducts       *bool                `json:"createProducts,omitempty"`
	LogConflicts         *bool                `json:"logConflicts,omitempty"`
	DefaultWarehouseID   *uuid.UUID           `json:"defaultWarehouseId,omitempty"`
	WarehouseMappings    map[string]string    `json:"warehouseMappings,omitempty"`
}

// SyncConfigService reads and writes per-connection sync policy
type SyncConfigService struct {
	connections *repository.ConnectionRepository
	syncRepo    *repository.SyncRepository
	inventory   *repository.InventoryRepository
}

// NewSyncConfigService creates a sync config service
func NewSyncConfigService(connections *repository.ConnectionRepository, syncRepo *repository.SyncRepository, inventory *repository.InventoryRepository) *SyncConfigService {
	return &SyncConfigService{connections: connections, syncRepo: syncRepo, inventory: inventory}
}

// Get returns the connection's policy, or the defaults when none is stored
func (s *SyncConfigService) Get(ctx context.Context, tenantID string, connectionID uuid.UUID) (*models.SyncConfig, error) {
	conn, err := s.connections.GetForTenant(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.syncRepo.GetConfig(ctx, conn.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.DefaultSyncConfig(conn.TenantID, conn.ID), nil
	}
	return cfg, err
}

// Put validates and stores the connection's policy
func (s *SyncConfigService) Put(ctx context.Context, tenantID string, connectionID uuid.UUID, req *SyncConfigRequest) (*models.SyncConfig, error) {
	const op = "put_sync_config"

	cfg, err := s.Get(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	for _, d := range []models.SyncDirection{req.StockDirection, req.PriceDirection, req.ProductDataDirection} {
		if d != "" && !d.IsValid() {
			return nil, apperrors.New(apperrors.KindValidation, op, "invalid sync direction %q", d)
		}
	}

	if req.SyncEnabled != nil {
		cfg.SyncEnabled = *req.SyncEnabled
	}
	if req.StockDirection != "" {
		cfg.StockDirection = req.StockDirection
	}
	if req.PriceDirection != "" {
		cfg.PriceDirection = req.PriceDirection
	}
	if req.ProductDataDirection != "" {
		cfg.ProductDataDirection = req.ProductDataDirection
	}
	if req.CreateProducts != nil {
		cfg.CreateProducts = *req.CreateProducts
	}
	if req.LogConflicts != nil {
		cfg.LogConflicts = *req.LogConflicts
	}

	if req.DefaultWarehouseID != nil {
		if err := s.checkWarehouse(ctx, cfg.TenantID, *req.DefaultWarehouseID); err != nil {
			return nil, err
		}
		cfg.DefaultWarehouseID = req.DefaultWarehouseID
	}
	if req.WarehouseMappings != nil {
		mappings := models.JSONB{}
		for location, raw := range req.WarehouseMappings {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, apperrors.New(apperrors.KindValidation, op, "invalid warehouse id %q for location %q", raw, location)
			}
			if err := s.checkWarehouse(ctx, cfg.TenantID, id); err != nil {
				return nil, err
			}
			mappings[location] = id.String()
		}
		cfg.WarehouseMappings = mappings
	}

	if err := s.syncRepo.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return s.syncRepo.GetConfig(ctx, cfg.ConnectionID)
}

func (s *SyncConfigService) checkWarehouse(ctx context.Context, tenantID string, id uuid.UUID) error {
	_, err := s.inventory.GetWarehouse(ctx, tenantID, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.New(apperrors.KindValidation, "put_sync_config", "warehouse %s not found or inactive", id)
	}
	return err
}
