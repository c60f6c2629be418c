package content

import "context"

// File is one entry of an uploaded asset bundle.
type File struct {
	RelativePath string
	Data         []byte
}

// PutResult describes a completed store write.
type PutResult struct {
	Files  int
	Bytes  int64
	Digest string
}

// Store persists asset content under an opaque ref. Writes are durable and
// never compensated; a registration that fails downstream leaves its content
// behind.
type Store interface {
	Put(ctx context.Context, ref string, files []File) (*PutResult, error)
	Digest(ctx context.Context, ref string) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
}
