package notify

import (
	"context"

	"shopmail/internal/types"
)

// AttachmentFetcher builds the attachment list for an outgoing notification.
// Generation failures are logged and skipped; an email never fails because a
// PDF could not be produced.
type AttachmentFetcher struct {
	generator       types.AttachmentGenerator
	fulfillmentDocs types.FulfillmentDocsProvider
	invoicesEnabled bool
	logger          types.Logger
}

type AttachmentFetcherConfig struct {
	Generator       types.AttachmentGenerator
	FulfillmentDocs types.FulfillmentDocsProvider
	InvoicesEnabled bool
	Logger          types.Logger
}

func NewAttachmentFetcher(cfg AttachmentFetcherConfig) *AttachmentFetcher {
	return &AttachmentFetcher{
		generator:       cfg.Generator,
		fulfillmentDocs: cfg.FulfillmentDocs,
		invoicesEnabled: cfg.InvoicesEnabled,
		logger:          cfg.Logger,
	}
}

// Fetch returns the attachments for an event. data is the already-built
// template payload; return-flow events read the return_request block out of
// it.
func (f *AttachmentFetcher) Fetch(ctx context.Context, event types.EventType, data map[string]any) []types.Attachment {
	attachments := []types.Attachment{}

	switch event {
	case types.EventUserPasswordReset:
		if f.generator == nil || !f.generator.SupportsPasswordReset() {
			return attachments
		}
		base64, err := f.generator.CreatePasswordReset(ctx)
		if err != nil {
			f.logger.Error("password reset PDF generation failed, continuing without attachment",
				"event", string(event), "error", err.Error())
			return attachments
		}
		return append(attachments, types.Attachment{
			Name:   "password-reset.pdf",
			Base64: base64,
			Type:   "application/pdf",
		})

	case types.EventSwapCreated, types.EventOrderReturnRequested:
		attachments = append(attachments, f.returnLabels(ctx, data)...)
		attachments = append(attachments, f.returnInvoice(ctx, data)...)
		return attachments

	case types.EventOrderPlaced:
		if !f.invoicesEnabled {
			return attachments
		}
		if f.generator == nil || !f.generator.SupportsInvoice() {
			f.logger.Info("invoice generation unsupported, skipping attachment")
			return attachments
		}
		base64, err := f.generator.CreateInvoice(ctx, data)
		if err != nil {
			f.logger.Error("invoice PDF generation failed, continuing with notification",
				"error", err.Error())
			return attachments
		}
		return append(attachments, types.Attachment{
			Name:   "invoice.pdf",
			Base64: base64,
			Type:   "application/pdf",
		})
	}

	return attachments
}

// returnLabels retrieves carrier return labels for the shipping method on a
// return request.
func (f *AttachmentFetcher) returnLabels(ctx context.Context, data map[string]any) []types.Attachment {
	if f.fulfillmentDocs == nil {
		return nil
	}
	request, ok := data["return_request"].(map[string]any)
	if !ok {
		return nil
	}
	method, ok := request["shipping_method"].(map[string]any)
	if !ok {
		return nil
	}
	option, _ := method["shipping_option"].(map[string]any)
	providerID, _ := option["provider_id"].(string)
	if providerID == "" {
		return nil
	}
	shippingData, _ := request["shipping_data"].(map[string]any)

	labels, err := f.fulfillmentDocs.RetrieveDocuments(ctx, providerID, types.Metadata(shippingData), "label")
	if err != nil {
		f.logger.Error("return label retrieval failed, continuing without attachment",
			"provider_id", providerID, "error", err.Error())
		return nil
	}
	out := make([]types.Attachment, 0, len(labels))
	for _, l := range labels {
		out = append(out, types.Attachment{Name: "return-label.pdf", Base64: l.Base64, Type: l.Type})
	}
	return out
}

func (f *AttachmentFetcher) returnInvoice(ctx context.Context, data map[string]any) []types.Attachment {
	if f.generator == nil || !f.generator.SupportsReturnInvoice() {
		return nil
	}
	order, _ := data["order"].(map[string]any)
	request, _ := data["return_request"].(map[string]any)
	var items []map[string]any
	if request != nil {
		if rawItems, ok := request["items"].([]any); ok {
			for _, ri := range rawItems {
				if m, ok := ri.(map[string]any); ok {
					items = append(items, m)
				}
			}
		}
	}

	base64, err := f.generator.CreateReturnInvoice(ctx, order, items)
	if err != nil {
		f.logger.Error("return invoice PDF generation failed, continuing without attachment",
			"error", err.Error())
		return nil
	}
	return []types.Attachment{{Name: "invoice.pdf", Base64: base64, Type: "application/pdf"}}
}
