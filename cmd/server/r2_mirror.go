package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"voxelnav.ai/internal/persistence/r2s3"
)

// buildMirror returns nil unless VN_R2_MIRROR is set. Snapshots are then
// uploaded under their path relative to the data dir.
func buildMirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("VN_R2_MIRROR", false) {
		return nil, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("VN_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("VN_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("VN_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("VN_R2_SECRET_ACCESS_KEY"))
	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("VN_R2_MIRROR=true but VN_R2_ENDPOINT/VN_R2_BUCKET/VN_R2_ACCESS_KEY_ID/VN_R2_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := r2s3.New(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	client.WithRegion(os.Getenv("VN_R2_REGION"))

	return r2s3.NewMirror(client, dataDir, os.Getenv("VN_R2_PREFIX"), r2s3.MirrorOptions{
		Workers: envInt("VN_R2_UPLOAD_WORKERS", 2),
	}, logger), nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
