package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// URNPrefix prefixes the identifiers of stored data files.
const URNPrefix = "urn:dataio-fs:"

// ParseURN returns the file id of a data file URN.
func ParseURN(urn string) (string, error) {
	if !strings.HasPrefix(urn, URNPrefix) {
		return "", fmt.Errorf("invalid file-store URN: %s", urn)
	}
	id := strings.TrimPrefix(urn, URNPrefix)
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid file-store URN: %s", urn)
	}
	return id, nil
}

// DataFiles resolves data file URNs to objects in an ObjectStorage.
type DataFiles struct {
	store  ObjectStorage
	prefix string
}

// NewDataFiles stores data files under prefix in store.
func NewDataFiles(store ObjectStorage, prefix string) *DataFiles {
	return &DataFiles{store: store, prefix: prefix}
}

func (d *DataFiles) key(urn string) (string, error) {
	id, err := ParseURN(urn)
	if err != nil {
		return "", err
	}
	return d.prefix + id, nil
}

// Open fetches a data file. The returned size is -1 when the store cannot report it.
func (d *DataFiles) Open(ctx context.Context, urn string) (io.ReadCloser, int64, error) {
	key, err := d.key(urn)
	if err != nil {
		return nil, 0, err
	}
	size, err := d.store.Size(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	body, err := d.store.Download(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return body, size, nil
}

// Delete removes a data file.
func (d *DataFiles) Delete(ctx context.Context, urn string) error {
	key, err := d.key(urn)
	if err != nil {
		return err
	}
	return d.store.Delete(ctx, key)
}

// Put stores a new data file and returns its URN.
func (d *DataFiles) Put(ctx context.Context, r io.Reader, size int64) (string, error) {
	id := uuid.NewString()
	if err := d.store.Upload(ctx, d.prefix+id, r, size, "application/octet-stream"); err != nil {
		return "", err
	}
	return URNPrefix + id, nil
}
