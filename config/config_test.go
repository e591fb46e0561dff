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

package config

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

const validService string = `
service:
  port: 9393
  max_connections: 32
  queue_path: /tmp/qop-test.db
  transfer_max: 2
  convert_max: 1
  poll_interval: 100
`

func TestInitAcceptsBlankInput(t *testing.T) {
	err := Init(nil)
	assert.Nil(t, err, "blank config should fall back to defaults")
	assert.Equal(t, 9393, Service.Port)
	assert.True(t, Service.Persist)
}

func TestInitRejectsBadPort(t *testing.T) {
	yaml := "service:\n  port: -1\n  queue_path: /tmp/q.db\n"
	err := Init([]byte(yaml))
	assert.NotNil(t, err)

	yaml = "service:\n  port: 1000000\n  queue_path: /tmp/q.db\n"
	err = Init([]byte(yaml))
	assert.NotNil(t, err)
}

func TestInitRejectsBadMaxConnections(t *testing.T) {
	yaml := "service:\n  max_connections: 0\n  queue_path: /tmp/q.db\n"
	err := Init([]byte(yaml))
	assert.NotNil(t, err)
}

func TestInitRejectsEmptyQueuePath(t *testing.T) {
	yaml := "service:\n  queue_path: \"\"\n"
	err := Init([]byte(yaml))
	assert.NotNil(t, err)
}

func TestInitRejectsBadTransferMax(t *testing.T) {
	yaml := "service:\n  queue_path: /tmp/q.db\n  transfer_max: 0\n"
	err := Init([]byte(yaml))
	assert.NotNil(t, err)
}

func TestInitAcceptsValidInput(t *testing.T) {
	err := Init([]byte(validService))
	assert.Nil(t, err, fmt.Sprintf("valid YAML input produced an error: %v", err))
}

func TestInitProperlySetsGlobals(t *testing.T) {
	err := Init([]byte(validService))
	assert.Nil(t, err)

	assert.Equal(t, 9393, Service.Port)
	assert.Equal(t, 32, Service.MaxConnections)
	assert.Equal(t, "/tmp/qop-test.db", Service.QueuePath)
	assert.Equal(t, 2, Service.TransferMax)
	assert.Equal(t, 1, Service.ConvertMax)
}

func TestInitExpandsEnvVars(t *testing.T) {
	os.Setenv("QOP_TEST_QUEUE_PATH", "/tmp/from-env.db")
	defer os.Unsetenv("QOP_TEST_QUEUE_PATH")

	yaml := "service:\n  queue_path: ${QOP_TEST_QUEUE_PATH}\n"
	err := Init([]byte(yaml))
	assert.Nil(t, err)
	assert.Equal(t, "/tmp/from-env.db", Service.QueuePath)
}
