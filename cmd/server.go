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

package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tupahq/tupasync/api"
	"github.com/tupahq/tupasync/config"
)

func initializeRouter(b *tupaInstance) *gin.Engine {
	return api.NewAPI(b.tupa).Router()
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

/*
serverCommands returns the Cobra command responsible for starting the API server.
It sets up the routes before launching the server.
*/
func serverCommands(b *tupaInstance) *cobra.Command {
	// Define the `start` command for starting the server
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start tupa sync server",
		Run: func(cmd *cobra.Command, args []string) {
			// Initialize router
			router := initializeRouter(b)

			// Load configuration
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			// Start server
			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
