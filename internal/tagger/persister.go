package tagger

import (
	"bytes"
	"context"
	"fmt"

	"glassmon/internal/storage"
	"glassmon/internal/store"
)

const taggedContentType = "image/jpeg"

func TaggedKey(defectID string, tag int64) string {
	return fmt.Sprintf("tagged/%s-tag%d.jpg", defectID, tag)
}

type persister struct {
	store   store.DefectStore
	objects storage.ObjectStore
}

// upload stores the annotated image and returns the URL to record for it.
func (p persister) upload(ctx context.Context, a Assignment, img []byte) (string, error) {
	key := TaggedKey(a.Defect.ID, a.Tag)
	if err := p.objects.Put(ctx, key, bytes.NewReader(img), int64(len(img)), taggedContentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := p.objects.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve url %s: %w", key, err)
	}
	return url, nil
}

// commit writes the tag number and the optional tagged image URL in one
// update.
func (p persister) commit(ctx context.Context, a Assignment, taggedURL *string) error {
	if err := p.store.UpdateTag(ctx, a.Defect.ID, a.Tag, taggedURL); err != nil {
		return fmt.Errorf("update defect %s: %w", a.Defect.ID, err)
	}
	return nil
}
