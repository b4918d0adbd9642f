//go:build integration

package downloader

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/s3blob"

	picshttp "github.com/ligustah/picslurp/internal/http"
	"github.com/ligustah/picslurp/internal/storage"
	"github.com/ligustah/picslurp/internal/testutils"
)

func TestIntegrationMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	minio := testutils.StartMinioContainer(t, ctx, "picslurp-downloader")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	bkt, err := minio.OpenBucket(ctx)
	require.NoError(t, err)
	defer bkt.Close()

	tests := []struct {
		name      string
		images    int
		size      int
		workers   int
		failFirst int
	}{
		{"single image", 1, 1024, 4, 0},
		{"many small images", 100, 4 * 1024, 16, 0},
		{"flaky origin", 30, 32 * 1024, 8, 2},
		{"large images", 5, 2 * 1024 * 1024, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := make([]testutils.TestImage, tt.images)
			for i := range images {
				name := fmt.Sprintf("%s/%03d.jpg", t.Name(), i)
				images[i] = testutils.TestImage{Name: name, Data: testutils.GenerateImage(name, tt.size)}
			}
			server := testutils.StartImageServer(t, images, testutils.ImageServerOptions{FailFirst: tt.failFirst})

			urls := make([]string, len(images))
			for i, img := range images {
				urls[i] = server.URLFor(img.Name)
			}

			store := storage.New(bkt, storage.Options{Prefix: t.Name() + "/", FilenameLength: 16, Extension: ".jpg"})
			client := picshttp.NewClient(picshttp.DefaultOptions())

			d := New(client, store, store, Options{Workers: tt.workers, MaxRetries: 5, Logger: quietLogger()})
			require.NoError(t, d.Seed(urls))

			summary, err := d.Run(ctx)
			require.NoError(t, err)

			assert.Equal(t, tt.images, summary.Succeeded)
			assert.Equal(t, tt.images*tt.failFirst, summary.Retries)
			assert.Zero(t, summary.GaveUp)

			for i, img := range images {
				testutils.AssertStored(t, ctx, bkt, store.KeyFor(urls[i]), img.Data)
			}
		})
	}
}
