// Package imagejob renders printable QR images for newly issued credentials.
package imagejob

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"attendance/internal/catalog"
	"attendance/internal/cloudinary"
	"attendance/internal/qrimage"
	"attendance/internal/queue"
)

// Uploader stores a rendered image and returns its public URL.
type Uploader interface {
	UploadPNG(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error)
}

// ImageStore records where a credential image lives.
type ImageStore interface {
	SetCredentialImage(ctx context.Context, id, url string) error
}

// Processor handles credential.issued messages.
type Processor struct {
	uploader Uploader
	store    ImageStore
	logger   *zap.Logger
}

// NewProcessor returns a processor. A nil uploader renders the image only,
// which still validates the code.
func NewProcessor(uploader Uploader, store ImageStore, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{uploader: uploader, store: store, logger: logger}
}

// Handle processes one message. Messages of other types are ignored.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != catalog.MessageCredentialIssued {
		return nil
	}
	var evt catalog.CredentialIssued
	if err := msg.Decode(&evt); err != nil {
		return err
	}

	png, err := qrimage.PNG(evt.Code, qrimage.DefaultSize)
	if err != nil {
		return fmt.Errorf("render %s: %w", evt.Code, err)
	}
	if p.uploader == nil {
		p.logger.Debug("image upload disabled", zap.String("code", evt.Code))
		return nil
	}

	res, err := p.uploader.UploadPNG(ctx, png, "qr_"+evt.Code)
	if err != nil {
		return fmt.Errorf("upload %s: %w", evt.Code, err)
	}
	if err := p.store.SetCredentialImage(ctx, evt.ID, res.SecureURL); err != nil {
		return fmt.Errorf("store image url for %s: %w", evt.ID, err)
	}
	p.logger.Info("credential image stored", zap.String("code", evt.Code), zap.String("url", res.SecureURL))
	return nil
}

// Run consumes q until ctx is done. Failed messages are logged and skipped.
func (p *Processor) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if err := p.Handle(ctx, msg); err != nil {
			p.logger.Error("job failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return nil
}
