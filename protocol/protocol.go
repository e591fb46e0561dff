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

// Package protocol implements qop's length-framed JSON wire format: a
// 2-byte big-endian header length, a JSON header, then a JSON body.
// It is shared by the daemon and the client.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// PreheaderLen is the size in bytes of the length prefix that precedes
// the header JSON.
const PreheaderLen = 2

// MaxHeaderLen is the largest header writeFramed will emit: the largest
// length the 16-bit LEN prefix can carry.
const MaxHeaderLen = 1<<16 - 1

// MaxBodyLen bounds how large a body this implementation accepts.
// Requests claiming a larger content-length are rejected with
// ErrBodyTooLarge.
const MaxBodyLen = 8 << 20 // 8 MiB

// Command identifies a request the client sends to the daemon.
type Command int

const (
	CommandDaemonStart        Command = 101
	CommandDaemonStop         Command = 102
	CommandDaemonIsActive     Command = 103
	CommandDaemonFacts        Command = 104
	CommandQueueStart         Command = 201
	CommandQueueStop          Command = 202
	CommandQueueIsActive      Command = 203
	CommandQueuePut           Command = 204
	CommandQueueFlushPending  Command = 205
	CommandQueueFlushAll      Command = 206
	CommandQueueProgress      Command = 207
	CommandQueueActiveProc    Command = 208
	CommandQueueMaxProcesses  Command = 210
	CommandQueueShow          Command = 209
)

// Status mirrors the queue's record status, as carried in a StatusMessage.
type Status int

const (
	StatusFail    Status = -1
	StatusPending Status = 0
	StatusOK      Status = 1
	StatusSkip    Status = 2
	StatusActive  Status = 3
)

// PayloadClass tells a client how to interpret a StatusMessage's Payload
// field.
type PayloadClass int

const (
	PayloadValue          PayloadClass = 1
	PayloadTask           PayloadClass = 2
	PayloadQueueProgress  PayloadClass = 3
	PayloadTaskList       PayloadClass = 4
	PayloadDaemonFacts    PayloadClass = 5
)

// header is the framed message's second section: metadata describing the
// body that follows.
type header struct {
	ContentLength int    `json:"content-length"`
	ContentType   string `json:"content-type"`
	MessageClass  string `json:"message-class,omitempty"`
}

// CommandMessage is a request sent from a client to the daemon.
type CommandMessage struct {
	Command      Command      `json:"command"`
	Payload      any          `json:"payload,omitempty"`
	PayloadClass PayloadClass `json:"payload_class,omitempty"`
}

// StatusMessage is a response sent from the daemon to a client.
type StatusMessage struct {
	Status       Status       `json:"status"`
	Msg          string       `json:"msg,omitempty"`
	Payload      any          `json:"payload,omitempty"`
	PayloadClass PayloadClass `json:"payload_class,omitempty"`
}

// WriteCommand frames and writes a CommandMessage to w.
func WriteCommand(w io.Writer, msg CommandMessage) error {
	return writeFramed(w, msg, "CommandMessage")
}

// WriteStatus frames and writes a StatusMessage to w.
func WriteStatus(w io.Writer, msg StatusMessage) error {
	return writeFramed(w, msg, "StatusMessage")
}

func writeFramed(w io.Writer, body any, class string) error {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("protocol: encoding body: %w", err)
	}

	h := header{
		ContentLength: len(bodyJSON),
		ContentType:   "text/json",
		MessageClass:  class,
	}
	headerJSON, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("protocol: encoding header: %w", err)
	}
	if len(headerJSON) > MaxHeaderLen {
		return fmt.Errorf("protocol: header too large (%d bytes)", len(headerJSON))
	}

	var lenBuf [PreheaderLen]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(headerJSON)))

	frame := make([]byte, 0, len(lenBuf)+len(headerJSON)+len(bodyJSON))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, headerJSON...)
	frame = append(frame, bodyJSON...)

	_, err = w.Write(frame)
	return err
}

// ErrBodyTooLarge is returned by ReadCommand/ReadStatus when a message's
// declared content-length exceeds MaxBodyLen.
var ErrBodyTooLarge = fmt.Errorf("protocol: body exceeds maximum of %d bytes", MaxBodyLen)

// ReadCommand reads one framed CommandMessage from r, performing a full
// framed read driven by the LEN prefix rather than a single bounded recv.
func ReadCommand(r io.Reader) (CommandMessage, error) {
	body, err := readFramedBody(r)
	if err != nil {
		return CommandMessage{}, err
	}
	var msg CommandMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return CommandMessage{}, fmt.Errorf("protocol: decoding command body: %w", err)
	}
	return msg, nil
}

// ReadStatus reads one framed StatusMessage from r.
func ReadStatus(r io.Reader) (StatusMessage, error) {
	body, err := readFramedBody(r)
	if err != nil {
		return StatusMessage{}, err
	}
	var msg StatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return StatusMessage{}, fmt.Errorf("protocol: decoding status body: %w", err)
	}
	return msg, nil
}

func readFramedBody(r io.Reader) ([]byte, error) {
	var lenBuf [PreheaderLen]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("protocol: reading length prefix: %w", err)
	}
	headerLen := binary.BigEndian.Uint16(lenBuf[:])

	headerBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, fmt.Errorf("protocol: reading header: %w", err)
	}

	var h header
	if err := json.Unmarshal(headerBuf, &h); err != nil {
		return nil, fmt.Errorf("protocol: decoding header: %w", err)
	}
	if h.ContentLength < 0 || h.ContentLength > MaxBodyLen {
		return nil, ErrBodyTooLarge
	}

	bodyBuf := make([]byte, h.ContentLength)
	if _, err := io.ReadFull(r, bodyBuf); err != nil {
		return nil, fmt.Errorf("protocol: reading body: %w", err)
	}
	return bodyBuf, nil
}
