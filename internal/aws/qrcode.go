package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"moff.io/wallet-shell/pkg/log"
)

type objectStore interface {
	PutFileToS3(ctx context.Context, key, contentType string, file io.Reader) error
	GetS3PresignedAccessURL(ctx context.Context, key string, expire time.Duration) (string, error)
	DeleteFileFromS3(ctx context.Context, key string) error
}

// QRUploader hosts pairing QR codes so a remote operator can scan them. A pairing code is single
// use, so the previous object is removed once a new one is uploaded.
type QRUploader struct {
	store  objectStore
	prefix string
	expire time.Duration

	mu      sync.Mutex
	lastKey string
}

func NewQRUploader(store objectStore, expire time.Duration) *QRUploader {
	return &QRUploader{store: store, prefix: "wallet-shell/pairing", expire: expire}
}

// Upload stores png and returns a presigned url valid for the approval window.
func (u *QRUploader) Upload(ctx context.Context, png []byte) (string, error) {
	key := fmt.Sprintf("%v/%v.png", u.prefix, uuid.NewString())
	if err := u.store.PutFileToS3(ctx, key, "image/png", bytes.NewReader(png)); err != nil {
		return "", err
	}
	u.mu.Lock()
	previous := u.lastKey
	u.lastKey = key
	u.mu.Unlock()
	if previous != "" {
		if err := u.store.DeleteFileFromS3(ctx, previous); err != nil {
			log.Warnf("delete previous pairing qr code %v:%v", previous, err)
		}
	}
	return u.store.GetS3PresignedAccessURL(ctx, key, u.expire)
}
