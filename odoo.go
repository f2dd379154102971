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
	"net/http"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/internal/request"
)

// ErpClient is the surface the sync service needs from the accounting system.
type ErpClient interface {
	Authenticate(ctx context.Context) error
	ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error)
}

// OdooClient speaks Odoo's JSON-RPC external API: "common.authenticate" for
// the session uid, "object.execute_kw" for everything else. The uid is cached
// per client instance and refreshed when the server reports an expired
// session.
type OdooClient struct {
	url      string
	database string
	username string
	apiKey   string
	timeout  time.Duration

	mu  sync.Mutex
	uid int64
}

func NewOdooClient(conf *config.Configuration) *OdooClient {
	return &OdooClient{
		url:      conf.Erp.Url,
		database: conf.Erp.Database,
		username: conf.Erp.Username,
		apiKey:   conf.Erp.ApiKey,
		timeout:  time.Duration(conf.Erp.TimeoutSec) * time.Second,
	}
}

type jsonRPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  jsonRPCParams `json:"params"`
	ID      int64         `json:"id"`
}

type jsonRPCParams struct {
	Service string        `json:"service"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type jsonRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *jsonRPCError) Error() string {
	if e.Data.Message != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Data.Message)
	}
	return e.Message
}

// sessionExpired reports whether the server rejected our cached uid.
func (e *jsonRPCError) sessionExpired() bool {
	return e.Data.Name == "odoo.http.SessionExpiredException" ||
		e.Data.Name == "odoo.exceptions.AccessDenied"
}

// Authenticate resolves and caches the session uid. Transient transport
// failures are retried with exponential backoff before giving up.
func (c *OdooClient) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *OdooClient) authenticateLocked(ctx context.Context) error {
	operation := func() error {
		result, rpcErr, err := c.call(ctx, "common", "authenticate", []interface{}{
			c.database, c.username, c.apiKey, map[string]interface{}{},
		})
		if err != nil {
			return err
		}
		if rpcErr != nil {
			// The server answered; retrying the same credentials will not help.
			return backoff.Permanent(rpcErr)
		}

		var uid int64
		if err := json.Unmarshal(result, &uid); err != nil || uid == 0 {
			// Odoo returns false for bad credentials.
			return backoff.Permanent(fmt.Errorf("authentication rejected for user %s", c.username))
		}
		c.uid = uid
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return apierror.NewAPIError(apierror.ErrErpAuth, "erp authentication failed", err.Error())
	}
	return nil
}

// ExecuteKw invokes a model method through object.execute_kw, authenticating
// first if no session is held and re-authenticating once on session expiry.
func (c *OdooClient) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid == 0 {
		if err := c.authenticateLocked(ctx); err != nil {
			return nil, err
		}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	result, rpcErr, err := c.executeLocked(ctx, model, method, args, kwargs)
	if rpcErr != nil && rpcErr.sessionExpired() {
		c.uid = 0
		if err := c.authenticateLocked(ctx); err != nil {
			return nil, err
		}
		result, rpcErr, err = c.executeLocked(ctx, model, method, args, kwargs)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrErpWrite, fmt.Sprintf("erp call %s.%s failed", model, method), err.Error())
	}
	if rpcErr != nil {
		return nil, apierror.NewAPIError(apierror.ErrErpWrite, fmt.Sprintf("erp call %s.%s rejected", model, method), rpcErr.Error())
	}
	return result, nil
}

func (c *OdooClient) executeLocked(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, *jsonRPCError, error) {
	callArgs := []interface{}{c.database, c.uid, c.apiKey, model, method, args, kwargs}
	return c.call(ctx, "object", "execute_kw", callArgs)
}

func (c *OdooClient) call(ctx context.Context, service, method string, args []interface{}) (json.RawMessage, *jsonRPCError, error) {
	payload := jsonRPCRequest{
		Jsonrpc: "2.0",
		Method:  "call",
		Params: jsonRPCParams{
			Service: service,
			Method:  method,
			Args:    args,
		},
		ID: time.Now().UnixNano(),
	}

	body, err := request.ToJsonReq(&payload)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/jsonrpc", c.url), body)
	if err != nil {
		return nil, nil, err
	}

	var response jsonRPCResponse
	if _, err := request.CallWithTimeout(req, &response, c.timeout); err != nil {
		return nil, nil, err
	}
	if response.Error != nil {
		return nil, response.Error, nil
	}
	return response.Result, nil, nil
}
