// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// qopd is qop's daemon entry point: it reads a YAML config (optional),
// constructs a Daemon, and runs its accept loop until it's stopped over
// the wire or a termination signal arrives.
package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/s-fleck/qop/config"
	"github.com/s-fleck/qop/daemon"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "qopd",
	Short: "qopd is the background daemon that drains qop's task queue",
	Run:   run,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func enableLogging() {
	logLevel := new(slog.LevelVar)
	if config.Service.Debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
	slog.Debug("debug logging enabled")
}

func run(cmd *cobra.Command, args []string) {
	var yamlBytes []byte
	if configFile != "" {
		file, err := os.Open(configFile)
		if err != nil {
			log.Fatalf("couldn't open %s: %s", configFile, err)
		}
		defer file.Close()
		yamlBytes, err = io.ReadAll(file)
		if err != nil {
			log.Fatalf("couldn't read configuration data: %s", err)
		}
	}
	if err := config.Init(yamlBytes); err != nil {
		log.Fatalf("couldn't initialize the configuration: %s", err)
	}

	enableLogging()

	d, err := daemon.New(daemon.Config{
		Port:           config.Service.Port,
		QueuePath:      config.Service.QueuePath,
		Persist:        config.Service.Persist,
		MaxConnections: config.Service.MaxConnections,
		TransferMax:    config.Service.TransferMax,
		ConvertMax:     config.Service.ConvertMax,
		StagingDir:     config.Service.StagingDir,
		JournalPath:    config.Service.JournalPath,
	})
	if err != nil {
		log.Fatalf("couldn't create the daemon: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)

	listenErr := make(chan error, 1)
	go func() { listenErr <- d.Listen(ctx) }()

	select {
	case <-sigChan:
		slog.Info("received termination signal, shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		d.Close(shutdownCtx)
	case err := <-listenErr:
		if err != nil {
			log.Fatalf("daemon exited: %s", err)
		}
	}
}
