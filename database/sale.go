package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

// RecordSale upserts a canonical sale keyed by (client_id, pos_transaction_id)
// so re-running a sync for the same window never duplicates rows.
func (d Datasource) RecordSale(ctx context.Context, sale *model.Sale) (*model.Sale, error) {
	if err := sale.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "Sale failed validation before storage", err)
	}

	if sale.SaleID == "" {
		sale.SaleID = model.GenerateUUIDWithSuffix("sale")
	}
	sale.CreatedAt = time.Now()

	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal sale items", err)
	}
	customerJSON, err := json.Marshal(sale.Customer)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal customer", err)
	}
	metaDataJSON, err := json.Marshal(sale.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO pos_sales (sale_id, client_id, sale_timestamp, amount, items, customer, payment_method, pos_transaction_id, meta_data, processed, erp_synced, erp_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (client_id, pos_transaction_id)
		DO UPDATE SET amount = EXCLUDED.amount, items = EXCLUDED.items, customer = EXCLUDED.customer, payment_method = EXCLUDED.payment_method, meta_data = EXCLUDED.meta_data
		RETURNING sale_id, erp_synced, erp_id
	`, sale.SaleID, sale.ClientID, sale.Timestamp, sale.Amount, itemsJSON, customerJSON, sale.PaymentMethod, sale.POSTransactionID, metaDataJSON, sale.Processed, sale.ErpSynced, sale.ErpID, sale.CreatedAt)

	if err := row.Scan(&sale.SaleID, &sale.ErpSynced, &sale.ErpID); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record sale", err)
	}

	return sale, nil
}

func (d Datasource) GetSale(ctx context.Context, saleID string) (*model.Sale, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT sale_id, client_id, sale_timestamp, amount, items, customer, payment_method, pos_transaction_id, meta_data, processed, erp_synced, erp_id, created_at
		FROM pos_sales
		WHERE sale_id = $1
	`, saleID)
	return scanSale(row)
}

func (d Datasource) GetSaleByPOSTransactionID(ctx context.Context, clientID, posTxnID string) (*model.Sale, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT sale_id, client_id, sale_timestamp, amount, items, customer, payment_method, pos_transaction_id, meta_data, processed, erp_synced, erp_id, created_at
		FROM pos_sales
		WHERE client_id = $1 AND pos_transaction_id = $2
	`, clientID, posTxnID)
	return scanSale(row)
}

func (d Datasource) GetClientSales(ctx context.Context, clientID string, limit, offset int) ([]model.Sale, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT sale_id, client_id, sale_timestamp, amount, items, customer, payment_method, pos_transaction_id, meta_data, processed, erp_synced, erp_id, created_at
		FROM pos_sales
		WHERE client_id = $1
		ORDER BY sale_timestamp DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve sales", err)
	}
	defer rows.Close()
	return collectSales(rows)
}

func (d Datasource) GetUnsyncedSales(ctx context.Context, clientID string, limit int) ([]model.Sale, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT sale_id, client_id, sale_timestamp, amount, items, customer, payment_method, pos_transaction_id, meta_data, processed, erp_synced, erp_id, created_at
		FROM pos_sales
		WHERE client_id = $1 AND erp_synced = FALSE
		ORDER BY sale_timestamp ASC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unsynced sales", err)
	}
	defer rows.Close()
	return collectSales(rows)
}

// MarkSaleSynced flags a sale as propagated and stores the ERP record id, the
// join key between the canonical sale and the downstream sale order.
func (d Datasource) MarkSaleSynced(ctx context.Context, saleID string, erpID int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE pos_sales
		SET erp_synced = TRUE, processed = TRUE, erp_id = $2
		WHERE sale_id = $1
	`, saleID, erpID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark sale synced", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrBadRequest, "Sale not found", nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSale(row rowScanner) (*model.Sale, error) {
	sale := model.Sale{}
	var itemsJSON, customerJSON, metaDataJSON []byte

	err := row.Scan(&sale.SaleID, &sale.ClientID, &sale.Timestamp, &sale.Amount, &itemsJSON, &customerJSON, &sale.PaymentMethod, &sale.POSTransactionID, &metaDataJSON, &sale.Processed, &sale.ErpSynced, &sale.ErpID, &sale.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Sale not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve sale", err)
	}

	if err := json.Unmarshal(itemsJSON, &sale.Items); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal sale items", err)
	}
	if len(customerJSON) > 0 && string(customerJSON) != "null" {
		if err := json.Unmarshal(customerJSON, &sale.Customer); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal customer", err)
		}
	}
	if len(metaDataJSON) > 0 && string(metaDataJSON) != "null" {
		if err := json.Unmarshal(metaDataJSON, &sale.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return &sale, nil
}

func collectSales(rows *sql.Rows) ([]model.Sale, error) {
	sales := []model.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over sales", err)
	}
	return sales, nil
}
