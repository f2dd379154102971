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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tupahq/tupasync"
	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/database"
	"github.com/tupahq/tupasync/internal/notification"
)

// Tupa represents the CLI application, encapsulating the root Cobra command.
type Tupa struct {
	cmd *cobra.Command // Root command for the CLI application
}

// tupaInstance holds the engine instance and its configuration.
// This is used to store the runtime instance and configuration globally within the application.
type tupaInstance struct {
	tupa *tupasync.Tupa        // Engine object initialized from configuration
	cnf  *config.Configuration // Configuration object holding runtime settings
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec) // Log the recovered panic
		os.Exit(1)        // Exit the program with an error status
	}
}

// preRun sets up the configuration and initializes the engine before running any command.
func preRun(app *tupaInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		// Initialize configuration from the specified configuration file.
		err := config.InitConfig("tupasync.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		// Fetch the configuration settings.
		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		// Initialize the engine using the fetched configuration.
		newTupa, err := setupTupa(cnf)
		if err != nil {
			notification.NotifyError("", err) // Notify via the internal notification system
			log.Fatal(err)                    // Log the fatal error
		}

		// Assign the new engine instance and configuration to the app struct.
		app.tupa = newTupa
		app.cnf = cnf

		return nil
	}
}

// setupTupa creates and initializes a new engine instance based on the provided configuration.
// It connects to the data source (such as a database) using the configuration settings.
func setupTupa(cfg *config.Configuration) (*tupasync.Tupa, error) {
	// Initialize a new data source from the configuration.
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	// Create a new engine instance using the initialized data source.
	newTupa, err := tupasync.NewTupa(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tupa sync: %v", err)
	}
	return newTupa, nil
}

// NewCLI creates the command-line interface (CLI) for the application.
// It sets up the root command and subcommands like serverCommands and workerCommands.
func NewCLI() *Tupa {
	var configFile string  // Configuration file path (defaults to ./tupasync.json)
	b := &tupaInstance{}   // Instance to be passed into commands

	// Define the root command with usage and description.
	var rootCmd = &cobra.Command{
		Use:   "tupasync",
		Short: "POS to ERP synchronization engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	// Add a persistent flag to the root command for specifying the config file.
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./tupasync.json", "Configuration file for tupa sync")

	// Set the persistent pre-run hook to initialize the app and config before executing any command.
	rootCmd.PersistentPreRunE = preRun(b)

	// Add various subcommands to the root command.
	rootCmd.AddCommand(serverCommands(b)) // Command for starting the server
	rootCmd.AddCommand(workerCommands(b)) // Command for worker processes
	rootCmd.AddCommand(configCommands())  // Command for printing computed configuration

	return &Tupa{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Tupa) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print any errors that occur
		os.Exit(1)                   // Exit the program with an error status
	}
}

// main is the main function and the entry point for the application.
func main() {
	defer recoverPanic() // Ensure that any panic is handled gracefully

	cli := NewCLI()  // Create the CLI application
	cli.executeCLI() // Execute the CLI commands
}
