package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// IPFSBackend persists document records through an IPFS node's Files (MFS)
// API, which gives the mutable ID-keyed namespace the cache contract needs
// on top of content addressing.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	rootDir     string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS document backend connected to the node API
// at host:port.
func NewIPFSBackend(host, port, rootDir string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	if rootDir == "" {
		rootDir = "/certificates"
	}

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		rootDir:     rootDir,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, rootDir),
	}, nil
}

// Store writes the record envelope into MFS, replacing any prior file.
func (b *IPFSBackend) Store(ctx context.Context, record interfaces.DocumentRecord) error {
	if !b.shell.IsUp() {
		return fmt.Errorf("%w: IPFS node %s:%s not reachable", interfaces.ErrConnectionUnavailable, b.host, b.port)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode document record: %w", err)
	}

	filePath := b.getIPFSPath(record.TokenID)
	err = b.shell.FilesWrite(ctx, filePath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to store document in IPFS: %w", err)
	}

	b.log.Debug("Stored document in IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(data)))
	return nil
}

// Fetch retrieves the record for id from MFS.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.TokenID) (interfaces.DocumentRecord, error) {
	if !b.shell.IsUp() {
		return interfaces.DocumentRecord{}, fmt.Errorf("%w: IPFS node %s:%s not reachable",
			interfaces.ErrConnectionUnavailable, b.host, b.port)
	}

	reader, err := b.shell.FilesRead(ctx, b.getIPFSPath(id))
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not found") {
			return interfaces.DocumentRecord{}, interfaces.ErrRecordNotFound
		}
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to fetch document from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to read IPFS file: %w", err)
	}

	var record interfaces.DocumentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to decode document record: %w", err)
	}
	return record, nil
}

// Delete removes the record file for id from MFS.
func (b *IPFSBackend) Delete(ctx context.Context, id interfaces.TokenID) error {
	err := b.shell.FilesRm(ctx, b.getIPFSPath(id), true)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not found") {
			return interfaces.ErrRecordNotFound
		}
		return fmt.Errorf("failed to delete document from IPFS: %w", err)
	}
	return nil
}

// List returns the certificate IDs with a stored document.
func (b *IPFSBackend) List(ctx context.Context) ([]interfaces.TokenID, error) {
	entries, err := b.shell.FilesLs(ctx, b.rootDir)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list documents in IPFS: %w", err)
	}

	var ids []interfaces.TokenID
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name, ".json")
		id, err := interfaces.NewTokenIDFromString(name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Available checks if the IPFS node is reachable.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) getIPFSPath(id interfaces.TokenID) string {
	return path.Join(b.rootDir, id.String()+".json")
}
