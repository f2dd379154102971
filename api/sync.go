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
package api

import (
	"net/http"

	model2 "github.com/tupahq/tupasync/api/model"
	"github.com/tupahq/tupasync/internal/apierror"

	"github.com/gin-gonic/gin"
)

// SyncClient triggers a sync for a client. Simulation clients get the full
// result inline; production clients get 202 with the queued task ID.
func (a Api) SyncClient(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	resp, err := a.tupa.SyncClientPOS(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if resp.Simulation {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (a Api) GetStatus(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	resp, err := a.tupa.Status(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetLogs(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	limit := queryInt(c, "limit", 100)
	resp, err := a.tupa.Logger().GetLogs(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetTasks(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	limit := queryInt(c, "limit", 50)
	resp, err := a.tupa.ClientTasks(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetTask(c *gin.Context) {
	id, passed := c.Params.Get("task_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id is required. pass id in the route /:task_id"})
		return
	}

	resp, err := a.tupa.GetSyncTask(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetSales(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	resp, err := a.tupa.ClientSales(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ResetCircuit manually closes a client's circuit breaker.
func (a Api) ResetCircuit(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	var body model2.ResetCircuit
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.ValidateResetCircuit(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	// Resolve the client first so a reset against an unknown ID is a 404.
	if _, err := a.tupa.GetClient(c.Request.Context(), id); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := a.tupa.Logger().ResetCircuitBreaker(c.Request.Context(), id, body.Reason); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	state, err := a.tupa.Logger().CircuitState(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (a Api) GetRetryJobs(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	resp, err := a.tupa.Retry().ListClientJobs(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) CancelRetryJobs(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	if err := a.tupa.Retry().CancelAllJobsForClient(c.Request.Context(), id); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "retry jobs cancelled"})
}
