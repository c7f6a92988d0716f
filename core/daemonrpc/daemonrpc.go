// Package daemonrpc implements core/netstore.NetworkBackend over a
// line-delimited JSON-RPC 2.0 protocol spoken to a local daemon over a
// Unix domain socket, grounded on objbridge's client.
package daemonrpc

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/craft-ec/craftsql/core/netstore"
	"github.com/craft-ec/craftsql/core/pagestore"
)

var _ netstore.NetworkBackend = (*Backend)(nil)

// DefaultSocketPath is the daemon's default Unix domain socket.
const DefaultSocketPath = "/tmp/craftobj.sock"

// DefaultTimeout bounds both connect and per-call read/write deadlines.
const DefaultTimeout = 30 * time.Second

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      uint64          `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Backend implements core/netstore.NetworkBackend by delegating to a
// daemon process over a Unix socket. Root operations are no-ops: root
// management is local-only, scoped to whichever machine is calling.
type Backend struct {
	socketPath string
	timeout    time.Duration
	nextID     atomic.Uint64
}

// New creates a Backend talking to the daemon at socketPath, with
// DefaultTimeout read/write deadlines.
func New(socketPath string) *Backend {
	return &Backend{socketPath: socketPath, timeout: DefaultTimeout}
}

// NewDefault creates a Backend talking to the daemon at DefaultSocketPath.
func NewDefault() *Backend {
	return New(DefaultSocketPath)
}

// WithTimeout returns a copy of b with a different call timeout.
func (b *Backend) WithTimeout(timeout time.Duration) *Backend {
	return &Backend{socketPath: b.socketPath, timeout: timeout}
}

// RootScope reports how root pointers are scoped for this backend.
// Daemon-backed roots are always local to the calling machine.
func (b *Backend) RootScope() string {
	return "local"
}

// call opens a fresh connection, sends one request, and reads one
// line-delimited response. A fresh connection per call keeps the
// protocol simple and avoids multiplexing request ids across calls
// made from different goroutines.
func (b *Backend) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, pagestore.ErrStorageWrap("encode rpc params", err)
		}
		raw = encoded
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
		ID:      b.nextID.Add(1),
	}

	d := net.Dialer{Timeout: b.timeout}
	conn, err := d.DialContext(ctx, "unix", b.socketPath)
	if err != nil {
		return nil, pagestore.ErrStorageWrap("dial daemon", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(b.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, pagestore.ErrStorageWrap("set rpc deadline", err)
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, pagestore.ErrStorageWrap("encode rpc request", err)
	}
	if _, err := conn.Write(append(encoded, '\n')); err != nil {
		return nil, pagestore.ErrStorageWrap("write rpc request", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, pagestore.ErrStorageWrap("read rpc response", err)
		}
		return nil, pagestore.ErrStorage("daemon closed connection without a response")
	}

	var resp rpcResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, pagestore.ErrStorageWrap("decode rpc response", err)
	}
	if resp.Error != nil {
		return nil, pagestore.ErrStorage(fmt.Sprintf("daemon error %d: %s", resp.Error.Code, resp.Error.Message))
	}
	return resp.Result, nil
}

// PublishPage writes data to a temp file and asks the daemon to publish
// it, returning the local CID of the bytes (not whatever string the
// daemon hands back, beyond confirming it responded).
func (b *Backend) PublishPage(ctx context.Context, data []byte) (pagestore.CID, error) {
	tmp, err := os.CreateTemp("", "craftsql-publish-*")
	if err != nil {
		return pagestore.CID{}, pagestore.ErrStorageWrap("create publish temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pagestore.CID{}, pagestore.ErrStorageWrap("write publish temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return pagestore.CID{}, pagestore.ErrStorageWrap("close publish temp file", err)
	}

	if _, err := b.call(ctx, "publish", map[string]string{"path": tmpPath}); err != nil {
		return pagestore.CID{}, err
	}

	return pagestore.CIDOf(data), nil
}

// FetchPage asks the daemon to fetch cid to a temp path, reads the
// result, and verifies SHA-256(data) == cid before returning it.
func (b *Backend) FetchPage(ctx context.Context, cid pagestore.CID) ([]byte, error) {
	tmp, err := os.CreateTemp("", "craftsql-fetch-*")
	if err != nil {
		return nil, pagestore.ErrStorageWrap("create fetch temp file", err)
	}
	outputPath := tmp.Name()
	tmp.Close()
	os.Remove(outputPath)
	defer os.Remove(outputPath)

	result, err := b.call(ctx, "fetch", map[string]string{
		"cid":    cid.String(),
		"output": outputPath,
	})
	if err != nil {
		return nil, err
	}

	path := outputPath
	var decoded struct {
		Path string `json:"path"`
	}
	if len(result) > 0 && json.Unmarshal(result, &decoded) == nil && decoded.Path != "" {
		path = decoded.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pagestore.ErrStorageWrap("read fetched page", err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != cid.String() {
		return nil, pagestore.ErrStorage("CID mismatch: fetched bytes do not hash to the requested CID")
	}

	return data, nil
}

// GetRoot is a no-op: root management is local-only.
func (b *Backend) GetRoot(_ context.Context) (pagestore.CID, bool, error) {
	return pagestore.CID{}, false, nil
}

// SetRoot is a no-op: root management is local-only.
func (b *Backend) SetRoot(_ context.Context, _ pagestore.CID) error {
	return nil
}

// GetNamedRoot is a no-op: root management is local-only.
func (b *Backend) GetNamedRoot(_ context.Context, _ string) (pagestore.CID, bool, error) {
	return pagestore.CID{}, false, nil
}

// SetNamedRoot is a no-op: root management is local-only.
func (b *Backend) SetNamedRoot(_ context.Context, _ string, _ pagestore.CID) error {
	return nil
}

// RemoveNamedRoot is a no-op: root management is local-only.
func (b *Backend) RemoveNamedRoot(_ context.Context, _ string) (bool, error) {
	return false, nil
}

// ListNamedRoots is a no-op: root management is local-only.
func (b *Backend) ListNamedRoots(_ context.Context) ([]pagestore.NamedRoot, error) {
	return nil, nil
}
