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
	"strconv"

	model2 "github.com/tupahq/tupasync/api/model"
	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/pos"

	"github.com/gin-gonic/gin"
)

func (a Api) CreateClient(c *gin.Context) {
	var newClient model2.CreateClient
	if err := c.ShouldBindJSON(&newClient); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	err := newClient.ValidateCreateClient()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.tupa.CreateClient(c.Request.Context(), newClient.ToClientConfig())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetClient(c *gin.Context) {
	id, passed := c.Params.Get("client_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required. pass id in the route /:client_id"})
		return
	}

	resp, err := a.tupa.GetClient(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAllClients(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	resp, err := a.tupa.ListClients(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetVendors(c *gin.Context) {
	vendors := make([]gin.H, 0)
	for _, key := range pos.Vendors() {
		reg, err := pos.GetRegistration(key)
		if err != nil {
			continue
		}
		vendors = append(vendors, gin.H{
			"vendor":   key,
			"version":  reg.Version,
			"features": reg.Features,
		})
	}
	c.JSON(http.StatusOK, vendors)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
