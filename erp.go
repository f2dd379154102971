/*
Copyright 2024 Tupa Sync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tupasync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tupahq/tupasync/cache"
	"github.com/tupahq/tupasync/database"
	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

const (
	// walkInPartnerName is the fallback partner for sales that carry no
	// customer data. POS counters sell to anonymous buyers constantly.
	walkInPartnerName = "Consumidor Final"

	erpCacheTTL   = 24 * time.Hour
	erpSyncBatch  = 100
	salesOrderUom = 1
)

// SyncError describes a single sale that could not be propagated.
type SyncError struct {
	SaleID  string `json:"sale_id"`
	Message string `json:"message"`
}

// SyncSummary is the outcome of a propagation batch. Success is true only
// when every sale in the batch landed.
type SyncSummary struct {
	Success     bool        `json:"success"`
	SyncedCount int         `json:"synced_count"`
	FailedCount int         `json:"failed_count"`
	Synced      []string    `json:"synced_sale_ids,omitempty"`
	Errors      []SyncError `json:"errors,omitempty"`
}

// ErpSyncService propagates canonical sales into the accounting system as
// sale orders. Customers are deduplicated by email first, exact name second,
// and sale orders are idempotent on the POS transaction reference.
type ErpSyncService struct {
	datasource database.IDataSource
	erp        ErpClient
	cache      cache.Cache
}

func NewErpSyncService(db database.IDataSource, erp ErpClient) *ErpSyncService {
	newCache, err := cache.NewCache()
	if err != nil {
		logrus.WithError(err).Warn("erp sync running without cache")
		newCache = nil
	}
	return &ErpSyncService{
		datasource: db,
		erp:        erp,
		cache:      newCache,
	}
}

// SyncSalesToERP pushes every unsynced sale for a client. A sale that fails
// never blocks the rest of the batch; failures are reported per sale in the
// returned summary.
func (s *ErpSyncService) SyncSalesToERP(ctx context.Context, clientID string) (*SyncSummary, error) {
	sales, err := s.datasource.GetUnsyncedSales(ctx, clientID, erpSyncBatch)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{Success: true}
	for i := range sales {
		sale := &sales[i]
		erpID, err := s.syncSale(ctx, sale)
		if err != nil {
			summary.Success = false
			summary.FailedCount++
			summary.Errors = append(summary.Errors, SyncError{SaleID: sale.SaleID, Message: err.Error()})
			logrus.WithFields(logrus.Fields{
				"client_id": clientID,
				"sale_id":   sale.SaleID,
			}).WithError(err).Error("failed to sync sale to erp")
			continue
		}
		if err := s.datasource.MarkSaleSynced(ctx, sale.SaleID, erpID); err != nil {
			return nil, err
		}
		summary.SyncedCount++
		summary.Synced = append(summary.Synced, sale.SaleID)
	}
	return summary, nil
}

// syncSale pushes one sale. Stored rows are re-validated here so a sale that
// no longer meets the canonical invariants is rejected before any ERP write.
func (s *ErpSyncService) syncSale(ctx context.Context, sale *model.Sale) (int64, error) {
	if err := sale.Validate(); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrValidation, "sale failed validation before erp submission", err.Error())
	}
	partnerID, err := s.EnsureCustomerExists(ctx, sale.Customer)
	if err != nil {
		return 0, err
	}
	return s.CreateSaleOrder(ctx, sale, partnerID)
}

// EnsureCustomerExists resolves a sale's customer to an ERP partner ID,
// creating the partner when no match exists. Resolution order: cache, email
// match, exact-name match, create. Anonymous sales resolve to a shared
// walk-in partner.
func (s *ErpSyncService) EnsureCustomerExists(ctx context.Context, customer *model.Customer) (int64, error) {
	name := walkInPartnerName
	email := ""
	if customer != nil && customer.Name != "" {
		name = customer.Name
		email = customer.Email
	}

	cacheKey := fmt.Sprintf("erp:customer:%s", customerCacheKey(name, email))
	if id, ok := s.cachedID(ctx, cacheKey); ok {
		return id, nil
	}

	var partnerID int64
	if email != "" {
		id, err := s.searchPartner(ctx, [][]interface{}{{"email", "=", email}})
		if err != nil {
			return 0, err
		}
		partnerID = id
	}
	if partnerID == 0 {
		id, err := s.searchPartner(ctx, [][]interface{}{{"name", "=", name}})
		if err != nil {
			return 0, err
		}
		partnerID = id
	}
	if partnerID == 0 {
		id, err := s.createPartner(ctx, name, customer)
		if err != nil {
			return 0, err
		}
		partnerID = id
	}

	s.cacheID(ctx, cacheKey, partnerID)
	return partnerID, nil
}

func (s *ErpSyncService) searchPartner(ctx context.Context, domain [][]interface{}) (int64, error) {
	result, err := s.erp.ExecuteKw(ctx, "res.partner", "search",
		[]interface{}{domain},
		map[string]interface{}{"limit": 1})
	if err != nil {
		return 0, err
	}

	var ids []int64
	if err := json.Unmarshal(result, &ids); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrErpWrite, "unexpected partner search result", err.Error())
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

func (s *ErpSyncService) createPartner(ctx context.Context, name string, customer *model.Customer) (int64, error) {
	values := map[string]interface{}{"name": name}
	if customer != nil {
		if customer.Email != "" {
			values["email"] = customer.Email
		}
		if customer.Phone != "" {
			values["phone"] = customer.Phone
		}
		if customer.Document != "" {
			values["vat"] = customer.Document
		}
	}

	result, err := s.erp.ExecuteKw(ctx, "res.partner", "create", []interface{}{values}, nil)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := json.Unmarshal(result, &id); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrErpWrite, "unexpected partner create result", err.Error())
	}
	logrus.WithFields(logrus.Fields{"partner_id": id, "name": name}).Info("created erp partner")
	return id, nil
}

// CreateSaleOrder writes a sale order for the sale, idempotent on the POS
// transaction reference: if an order already carries it, that order's ID is
// returned and nothing is written.
func (s *ErpSyncService) CreateSaleOrder(ctx context.Context, sale *model.Sale, partnerID int64) (int64, error) {
	existing, err := s.erp.ExecuteKw(ctx, "sale.order", "search",
		[]interface{}{[][]interface{}{{"client_order_ref", "=", sale.POSTransactionID}}},
		map[string]interface{}{"limit": 1})
	if err != nil {
		return 0, err
	}
	var existingIDs []int64
	if err := json.Unmarshal(existing, &existingIDs); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrErpWrite, "unexpected sale order search result", err.Error())
	}
	if len(existingIDs) > 0 {
		logrus.WithFields(logrus.Fields{
			"sale_id":  sale.SaleID,
			"erp_id":   existingIDs[0],
			"pos_txn":  sale.POSTransactionID,
		}).Info("sale order already exists, skipping create")
		return existingIDs[0], nil
	}

	orderLines := make([]interface{}, 0, len(sale.Items))
	for _, item := range sale.Items {
		productID, err := s.ensureProduct(ctx, item.Name)
		if err != nil {
			return 0, err
		}
		orderLines = append(orderLines, []interface{}{0, 0, map[string]interface{}{
			"product_id":      productID,
			"name":            item.Name,
			"product_uom":     salesOrderUom,
			"product_uom_qty": item.Quantity,
			"price_unit":      item.UnitPrice.InexactFloat64(),
		}})
	}

	values := map[string]interface{}{
		"partner_id":       partnerID,
		"client_order_ref": sale.POSTransactionID,
		"date_order":       sale.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		"order_line":       orderLines,
	}

	result, err := s.erp.ExecuteKw(ctx, "sale.order", "create", []interface{}{values}, nil)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := json.Unmarshal(result, &id); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrErpWrite, "unexpected sale order create result", err.Error())
	}
	logrus.WithFields(logrus.Fields{"sale_id": sale.SaleID, "erp_id": id}).Info("created erp sale order")
	return id, nil
}

// ensureProduct resolves a product by exact name, creating it on first sight.
// POS menus change faster than anyone maintains the ERP catalog.
func (s *ErpSyncService) ensureProduct(ctx context.Context, name string) (int64, error) {
	cacheKey := fmt.Sprintf("erp:product:%s", name)
	if id, ok := s.cachedID(ctx, cacheKey); ok {
		return id, nil
	}

	result, err := s.erp.ExecuteKw(ctx, "product.product", "search",
		[]interface{}{[][]interface{}{{"name", "=", name}}},
		map[string]interface{}{"limit": 1})
	if err != nil {
		return 0, err
	}
	var ids []int64
	if err := json.Unmarshal(result, &ids); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrErpWrite, "unexpected product search result", err.Error())
	}
	if len(ids) > 0 {
		s.cacheID(ctx, cacheKey, ids[0])
		return ids[0], nil
	}

	created, err := s.erp.ExecuteKw(ctx, "product.product", "create",
		[]interface{}{map[string]interface{}{"name": name, "type": "consu"}}, nil)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(created, &id); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrErpWrite, "unexpected product create result", err.Error())
	}
	s.cacheID(ctx, cacheKey, id)
	return id, nil
}

func (s *ErpSyncService) cachedID(ctx context.Context, key string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	var id int64
	if err := s.cache.Get(ctx, key, &id); err != nil {
		return 0, false
	}
	if id == 0 {
		return 0, false
	}
	return id, true
}

func (s *ErpSyncService) cacheID(ctx context.Context, key string, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, id, erpCacheTTL); err != nil {
		logrus.WithError(err).Warn("failed to cache erp id")
	}
}

func customerCacheKey(name, email string) string {
	if email != "" {
		return email
	}
	return name
}
