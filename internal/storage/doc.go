// Package storage names and persists fetched images.
//
// Keys are content-addressed by URL: the hex SHA-224 of the URL, truncated to
// a fixed length, plus an extension. The same URL list therefore always maps
// to the same objects, which is what makes a run resumable. Storage is
// provided by gocloud.dev/blob, so output can go to a local directory, S3,
// GCS or memory.
//
// # Layout
//
//	{bucket}/{prefix}{sha224(url)[:16]}.jpg
package storage
