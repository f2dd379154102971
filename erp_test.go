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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tupahq/tupasync/database/mocks"
	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

// fakeErpClient is an in-memory stand-in for the accounting system. It
// answers search and create calls from its maps and records every call so
// tests can assert what was (and was not) written.
type fakeErpClient struct {
	partnersByEmail map[string]int64
	partnersByName  map[string]int64
	productsByName  map[string]int64
	ordersByRef     map[string]int64
	failOrderRefs   map[string]bool
	nextID          int64
	calls           []string
}

func newFakeErpClient() *fakeErpClient {
	return &fakeErpClient{
		partnersByEmail: make(map[string]int64),
		partnersByName:  make(map[string]int64),
		productsByName:  make(map[string]int64),
		ordersByRef:     make(map[string]int64),
		failOrderRefs:   make(map[string]bool),
		nextID:          100,
	}
}

func (f *fakeErpClient) Authenticate(ctx context.Context) error {
	f.calls = append(f.calls, "common.authenticate")
	return nil
}

func (f *fakeErpClient) ExecuteKw(ctx context.Context, erpModel, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error) {
	f.calls = append(f.calls, erpModel+"."+method)

	switch erpModel + "." + method {
	case "res.partner.search":
		field, value := domainTerm(args)
		var id int64
		if field == "email" {
			id = f.partnersByEmail[value]
		} else {
			id = f.partnersByName[value]
		}
		return searchResult(id), nil
	case "res.partner.create":
		values := args[0].(map[string]interface{})
		f.nextID++
		f.partnersByName[values["name"].(string)] = f.nextID
		if email, ok := values["email"].(string); ok {
			f.partnersByEmail[email] = f.nextID
		}
		return json.Marshal(f.nextID)
	case "product.product.search":
		_, name := domainTerm(args)
		return searchResult(f.productsByName[name]), nil
	case "product.product.create":
		values := args[0].(map[string]interface{})
		f.nextID++
		f.productsByName[values["name"].(string)] = f.nextID
		return json.Marshal(f.nextID)
	case "sale.order.search":
		_, ref := domainTerm(args)
		return searchResult(f.ordersByRef[ref]), nil
	case "sale.order.create":
		values := args[0].(map[string]interface{})
		ref := values["client_order_ref"].(string)
		if f.failOrderRefs[ref] {
			return nil, apierror.NewAPIError(apierror.ErrErpWrite, "erp rejected the order", nil)
		}
		f.nextID++
		f.ordersByRef[ref] = f.nextID
		return json.Marshal(f.nextID)
	}
	return nil, fmt.Errorf("unexpected erp call %s.%s", erpModel, method)
}

func (f *fakeErpClient) countCalls(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func domainTerm(args []interface{}) (field, value string) {
	domain := args[0].([][]interface{})
	return domain[0][0].(string), domain[0][2].(string)
}

func searchResult(id int64) json.RawMessage {
	if id == 0 {
		raw, _ := json.Marshal([]int64{})
		return raw
	}
	raw, _ := json.Marshal([]int64{id})
	return raw
}

func newTestErpService(fake *fakeErpClient, ds *mocks.MockDataSource) *ErpSyncService {
	return &ErpSyncService{datasource: ds, erp: fake}
}

func testSale(saleID, txnRef string, customer *model.Customer) model.Sale {
	return model.Sale{
		SaleID:           saleID,
		ClientID:         "client_abc",
		Timestamp:        time.Date(2024, 5, 14, 12, 31, 5, 0, time.UTC),
		Amount:           decimal.NewFromFloat(5400.50),
		PaymentMethod:    model.PaymentCreditCard,
		POSTransactionID: txnRef,
		Customer:         customer,
		Items: []model.SaleItem{
			{Name: "Milanesa Napolitana", Quantity: 1, UnitPrice: decimal.NewFromFloat(4200)},
		},
	}
}

func TestEnsureCustomerExistsMatchesByEmail(t *testing.T) {
	fake := newFakeErpClient()
	fake.partnersByEmail["maria.lopez@example.com"] = 42
	svc := newTestErpService(fake, new(mocks.MockDataSource))

	id, err := svc.EnsureCustomerExists(context.Background(), &model.Customer{
		Name:  "Maria Lopez",
		Email: "maria.lopez@example.com",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Zero(t, fake.countCalls("res.partner.create"))
}

func TestEnsureCustomerExistsCreatesOnce(t *testing.T) {
	fake := newFakeErpClient()
	svc := newTestErpService(fake, new(mocks.MockDataSource))
	customer := &model.Customer{Name: "Juan Perez", Email: "juan@example.com"}

	first, err := svc.EnsureCustomerExists(context.Background(), customer)
	assert.NoError(t, err)
	assert.NotZero(t, first)

	// The second resolution finds the partner the first one created.
	second, err := svc.EnsureCustomerExists(context.Background(), customer)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.countCalls("res.partner.create"))
}

func TestEnsureCustomerExistsWalkIn(t *testing.T) {
	fake := newFakeErpClient()
	svc := newTestErpService(fake, new(mocks.MockDataSource))

	id, err := svc.EnsureCustomerExists(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, id, fake.partnersByName[walkInPartnerName])

	again, err := svc.EnsureCustomerExists(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, fake.countCalls("res.partner.create"))
}

func TestCreateSaleOrderIdempotent(t *testing.T) {
	fake := newFakeErpClient()
	fake.ordersByRef["fudo-90311"] = 777
	svc := newTestErpService(fake, new(mocks.MockDataSource))

	sale := testSale("sale_1", "fudo-90311", nil)
	id, err := svc.CreateSaleOrder(context.Background(), &sale, 42)
	assert.NoError(t, err)
	assert.Equal(t, int64(777), id)
	assert.Zero(t, fake.countCalls("sale.order.create"))
}

func TestCreateSaleOrderWritesOrderLines(t *testing.T) {
	fake := newFakeErpClient()
	svc := newTestErpService(fake, new(mocks.MockDataSource))

	sale := testSale("sale_1", "fudo-90311", nil)
	id, err := svc.CreateSaleOrder(context.Background(), &sale, 42)
	assert.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, id, fake.ordersByRef["fudo-90311"])
	assert.NotZero(t, fake.productsByName["Milanesa Napolitana"])
}

func TestSyncSalesToERPPartialFailure(t *testing.T) {
	fake := newFakeErpClient()
	fake.failOrderRefs["fudo-90312"] = true

	mockDS := new(mocks.MockDataSource)
	sales := []model.Sale{
		testSale("sale_1", "fudo-90311", &model.Customer{Name: "Maria Lopez", Email: "maria.lopez@example.com"}),
		testSale("sale_2", "fudo-90312", nil),
	}
	mockDS.On("GetUnsyncedSales", mock.Anything, "client_abc", erpSyncBatch).Return(sales, nil)
	mockDS.On("MarkSaleSynced", mock.Anything, "sale_1", mock.AnythingOfType("int64")).Return(nil)

	svc := newTestErpService(fake, mockDS)
	summary, err := svc.SyncSalesToERP(context.Background(), "client_abc")
	assert.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, 1, summary.SyncedCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Len(t, summary.Errors, 1)
	assert.Equal(t, "sale_2", summary.Errors[0].SaleID)

	mockDS.AssertNumberOfCalls(t, "MarkSaleSynced", 1)
}

func TestSyncSalesToERPRejectsInvalidStoredSale(t *testing.T) {
	fake := newFakeErpClient()

	invalid := testSale("sale_2", "fudo-90312", nil)
	invalid.Items = nil

	mockDS := new(mocks.MockDataSource)
	sales := []model.Sale{
		testSale("sale_1", "fudo-90311", &model.Customer{Name: "Maria Lopez", Email: "maria.lopez@example.com"}),
		invalid,
	}
	mockDS.On("GetUnsyncedSales", mock.Anything, "client_abc", erpSyncBatch).Return(sales, nil)
	mockDS.On("MarkSaleSynced", mock.Anything, "sale_1", mock.AnythingOfType("int64")).Return(nil)

	svc := newTestErpService(fake, mockDS)
	summary, err := svc.SyncSalesToERP(context.Background(), "client_abc")
	assert.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, 1, summary.SyncedCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, []string{"sale_1"}, summary.Synced)
	assert.Len(t, summary.Errors, 1)
	assert.Equal(t, "sale_2", summary.Errors[0].SaleID)
	assert.Contains(t, summary.Errors[0].Message, "validation")

	// The invalid sale never reaches the erp: one order search, one create.
	assert.Equal(t, 1, fake.countCalls("sale.order.search"))
	assert.Equal(t, 1, fake.countCalls("sale.order.create"))
	mockDS.AssertNumberOfCalls(t, "MarkSaleSynced", 1)
}

func TestSyncSalesToERPEmptyBacklog(t *testing.T) {
	fake := newFakeErpClient()
	mockDS := new(mocks.MockDataSource)
	mockDS.On("GetUnsyncedSales", mock.Anything, "client_abc", erpSyncBatch).Return([]model.Sale{}, nil)

	svc := newTestErpService(fake, mockDS)
	summary, err := svc.SyncSalesToERP(context.Background(), "client_abc")
	assert.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Zero(t, summary.SyncedCount)
	assert.Empty(t, fake.calls)
}
