// Package objectstore abstracts the S3-compatible (MinIO or AWS S3)
// bucket used for media uploads (spec §6 "Object Store").
package objectstore

import "context"

// Store is the object-store contract the media worker and flex-image
// replies depend on.
type Store interface {
	Put(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, path string) ([]byte, error)

	// PublicURL returns the URL under which this system exposes the
	// object — a proxy endpoint served by this system, or a presigned
	// URL, at the implementation's discretion (spec §6).
	PublicURL(bucket, path string) string
}

// MediaPath builds the "{bot_id_or_global}/{img|video|audio}/{uuid}.{ext}"
// layout required by spec §6.
func MediaPath(scope, kind, uuid, ext string) string {
	if scope == "" {
		scope = "global"
	}
	return scope + "/" + kind + "/" + uuid + "." + ext
}
