package filestore

import "time"

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	Bucket string
	Key    string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType  string
	ETag         string
	LastModified time.Time
}

// PutOptions tunes an upload.
type PutOptions struct {
	// ContentType defaults to "application/octet-stream" when empty.
	ContentType string

	// PartSize is the multipart chunk size for uploads of unknown size.
	// 0 uses the provider default.
	PartSize uint64

	// Metadata is stored alongside the object as user metadata.
	Metadata map[string]string
}
