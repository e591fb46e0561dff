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

// Package config reads and validates qop's daemon/CLI configuration.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// serviceConfig holds the daemon's own tunables.
type serviceConfig struct {
	// Port is the daemon's TCP listen port.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`
	// MaxConnections bounds simultaneous client connections.
	MaxConnections int `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	// QueuePath is where the persistent task queue's SQLite store lives.
	QueuePath string `json:"queue_path" yaml:"queue_path"`
	// Persist, if false, deletes the queue store file on clean daemon
	// shutdown.
	Persist bool `json:"persist" yaml:"persist"`
	// TransferMax is the transfer-class worker pool's target size.
	TransferMax int `json:"transfer_max,omitempty" yaml:"transfer_max,omitempty"`
	// ConvertMax is the convert-class worker pool's target size. Zero
	// means "use workers.DefaultConvertMax()".
	ConvertMax int `json:"convert_max,omitempty" yaml:"convert_max,omitempty"`
	// StagingDir holds Convert tasks' temporary transcode output before
	// they're moved to their final destination.
	StagingDir string `json:"staging_dir" yaml:"staging_dir"`
	// JournalPath is where completed-task audit records are written. An
	// empty value disables journaling.
	JournalPath string `json:"journal_path" yaml:"journal_path"`
	// PollInterval (milliseconds) is defaulted and validated here but not
	// passed to the daemon; workers poll the queue at a fixed 200ms
	// interval.
	PollInterval int `json:"poll_interval" yaml:"poll_interval"`
	// ReadBufferSize is stored here but not passed to the daemon; the wire
	// protocol bounds a message body by protocol.MaxBodyLen.
	ReadBufferSize int `json:"read_buffer_size,omitempty" yaml:"read_buffer_size,omitempty"`
	// Debug enables debug-level logging.
	Debug bool `json:"debug" yaml:"debug"`
}

// Service holds the active configuration, populated by Init.
var Service serviceConfig

// configFile is the top-level YAML shape Init unmarshals.
type configFile struct {
	Service serviceConfig `yaml:"service"`
}

// defaults mirrors original_source/qop/cli.py's argparse defaults.
func defaults() serviceConfig {
	return serviceConfig{
		Port:           9393,
		MaxConnections: 64,
		QueuePath:      "qop.db",
		Persist:        true,
		TransferMax:    1,
		PollInterval:   200,
		ReadBufferSize: 8 << 20,
	}
}

// readConfig locates and parses configuration bytes, expanding any
// ${ENV_VAR} references before unmarshaling, and filling in defaults for
// anything the YAML doesn't set.
func readConfig(bytes []byte) error {
	bytes = []byte(os.ExpandEnv(string(bytes)))

	conf := configFile{Service: defaults()}
	if len(bytes) > 0 {
		if err := yaml.Unmarshal(bytes, &conf); err != nil {
			log.Printf("config: couldn't parse configuration data: %s\n", err)
			return err
		}
	}

	Service = conf.Service
	return nil
}

func validateServiceParameters(params serviceConfig) error {
	if params.Port < 0 || params.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d (must be 0-65535)", params.Port)
	}
	if params.MaxConnections <= 0 {
		return fmt.Errorf("config: invalid max_connections: %d (must be positive)", params.MaxConnections)
	}
	if params.QueuePath == "" {
		return fmt.Errorf("config: queue_path must not be empty")
	}
	if params.TransferMax <= 0 {
		return fmt.Errorf("config: invalid transfer_max: %d (must be positive)", params.TransferMax)
	}
	if params.ConvertMax < 0 {
		return fmt.Errorf("config: invalid convert_max: %d (must be non-negative)", params.ConvertMax)
	}
	if params.PollInterval <= 0 {
		return fmt.Errorf("config: non-positive poll interval specified: %d ms", params.PollInterval)
	}
	return nil
}

// Init parses yamlData (which may be empty, in which case every field
// takes its default) into Service, expanding environment variables and
// validating the result.
func Init(yamlData []byte) error {
	if err := readConfig(yamlData); err != nil {
		return err
	}
	return validateServiceParameters(Service)
}
