package docstore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// Factory creates document backends from URI strings.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a factory instance.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// BackendFor creates a document backend from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - Process-lifetime in-memory storage (the default)
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS node Files API storage
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) BackendFor(locationURI string) (interfaces.DocumentBackend, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid document store URI: %v", interfaces.ErrValidation, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory", "":
		return NewMemoryBackend(), nil
	case "file":
		return f.createFileBackend(u)
	case "s3":
		return f.createS3Backend(u)
	case "ipfs":
		return f.createIPFSBackend(u)
	default:
		return nil, fmt.Errorf("%w: unsupported document store scheme: %s", interfaces.ErrValidation, u.Scheme)
	}
}

func (f *Factory) createFileBackend(u *url.URL) (interfaces.DocumentBackend, error) {
	baseDir := u.Path
	if u.Host != "" {
		baseDir = u.Host + u.Path
	}
	if baseDir == "" {
		return nil, fmt.Errorf("%w: file document store requires a path", interfaces.ErrValidation)
	}
	return NewFileBackend(baseDir, f.log)
}

// createS3Backend parses s3://[accessKey:secretKey@]bucket/prefix?region=...&endpoint=...
func (f *Factory) createS3Backend(u *url.URL) (interfaces.DocumentBackend, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 document store requires a bucket", interfaces.ErrValidation)
	}

	prefix := strings.TrimPrefix(u.Path, "/")
	params := u.Query()

	region := params.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(bucket, prefix, region, params.Get("endpoint"), accessKey, secretKey, f.log)
}

// createIPFSBackend parses ipfs://host:port[/rootDir]
func (f *Factory) createIPFSBackend(u *url.URL) (interfaces.DocumentBackend, error) {
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5001"
	}
	return NewIPFSBackend(host, port, u.Path, f.log)
}
