package storage

import "renderworker/internal/ports"

// Provider is the object store behind file identities and the result archive.
type Provider = ports.StorageProvider
