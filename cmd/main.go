/*
Copyright 2025 DuoTale Authors.

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

	"github.com/duotale/duotale"
	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/notification"
	"github.com/duotale/duotale/store"
)

// DuoTale represents the CLI application, encapsulating the root Cobra command.
type DuoTale struct {
	cmd *cobra.Command
}

// duotaleInstance holds the runtime instance and configuration shared by all
// subcommands.
type duotaleInstance struct {
	duotale *duotale.Duotale
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the DuoTale instance before
// running any command.
func preRun(app *duotaleInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("duotale.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newDuotale, err := setupDuotale(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.duotale = newDuotale
		app.cnf = cnf

		return nil
	}
}

// setupDuotale creates and initializes a new DuoTale instance on top of the
// configured datastore.
func setupDuotale(cfg *config.Configuration) (*duotale.Duotale, error) {
	ds, err := store.NewDataStore(cfg)
	if err != nil {
		return &duotale.Duotale{}, fmt.Errorf("error getting datastore: %v", err)
	}

	newDuotale, err := duotale.NewDuotale(ds)
	if err != nil {
		return &duotale.Duotale{}, fmt.Errorf("error creating duotale: %v", err)
	}
	return newDuotale, nil
}

// NewCLI creates the command-line interface (CLI) for the DuoTale application.
func NewCLI() *DuoTale {
	var configFile string
	b := &duotaleInstance{}

	var rootCmd = &cobra.Command{
		Use:   "duotale",
		Short: "Bilingual audio lesson generator",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./duotale.json", "Configuration file for duotale")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(backupCommands(b))
	rootCmd.AddCommand(configCommands())

	return &DuoTale{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w DuoTale) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
