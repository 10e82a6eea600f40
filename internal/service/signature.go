package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/docs"
	"example.com/safegear/services/ppe/internal/filestore"
	"example.com/safegear/services/ppe/internal/metrics"
	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
	"example.com/safegear/services/ppe/internal/signer"
)

// InitiateResult reports the signature envelopes opened for a set of
// deliveries, one per recipient
type InitiateResult struct {
	Envelopes []EnvelopeInfo `json:"envelopes"`
}

// EnvelopeInfo is the handle of one submitted signature request
type EnvelopeInfo struct {
	WorkerID    uuid.UUID   `json:"worker_id"`
	EnvelopeID  string      `json:"envelope_id"`
	DocumentKey string      `json:"document_key"`
	PortalURL   string      `json:"portal_url"`
	DeliveryIDs []uuid.UUID `json:"delivery_ids"`
}

// SignatureService drives the e-signature leg of the lifecycle
type SignatureService interface {
	Initiate(ctx context.Context, deliveryIDs []uuid.UUID) (*InitiateResult, error)
	CompleteByDocumentKey(ctx context.Context, documentKey string, signedAt *time.Time, signedURL string) ([]*model.Delivery, error)
	RejectByDocumentKey(ctx context.Context, documentKey, reason string) ([]*model.Delivery, error)
	RejectDelivery(ctx context.Context, deliveryID uuid.UUID, reason string) ([]*model.Delivery, error)
	Retry(ctx context.Context, deliveryID uuid.UUID) (*model.Delivery, error)
	ForceCompleteByDocumentKey(ctx context.Context, documentKey string) ([]*model.Delivery, error)
	ForceCompleteDelivery(ctx context.Context, deliveryID uuid.UUID) ([]*model.Delivery, error)
}

// signatureService implements SignatureService
type signatureService struct {
	db       *gorm.DB
	signer   signer.Client
	renderer docs.Renderer
	files    filestore.Store
	log      *logrus.Logger
}

// NewSignatureService creates a new signature service
func NewSignatureService(
	db *gorm.DB,
	signerClient signer.Client,
	renderer docs.Renderer,
	files filestore.Store,
	log *logrus.Logger,
) SignatureService {
	return &signatureService{
		db:       db,
		signer:   signerClient,
		renderer: renderer,
		files:    files,
		log:      log,
	}
}

// Initiate opens signature envelopes for delivered records, grouped per
// recipient so one worker signs one receipt covering all their deliveries.
// Rendering and submission happen before the transaction; the status flip
// and stamping are atomic per group.
func (s *signatureService) Initiate(ctx context.Context, deliveryIDs []uuid.UUID) (*InitiateResult, error) {
	if len(deliveryIDs) == 0 {
		return nil, validationErrorf("no deliveries given")
	}

	deliveries, err := repository.NewDeliveryRepository(s.db).FindByIDs(ctx, deliveryIDs)
	if err != nil {
		return nil, err
	}
	if len(deliveries) != len(deliveryIDs) {
		return nil, repository.ErrNotFound
	}

	groups := make(map[uuid.UUID][]*model.Delivery)
	for _, d := range deliveries {
		if d.Status != model.DeliveredStatus {
			return nil, validationErrorf("delivery %s is %s, only delivered records can go out for signature", d.ID, d.Status)
		}
		if d.Worker == nil {
			return nil, fmt.Errorf("delivery %s has no worker loaded", d.ID)
		}
		groups[d.WorkerID] = append(groups[d.WorkerID], d)
	}

	result := &InitiateResult{}
	for workerID, group := range groups {
		envelope, err := s.initiateGroup(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("failed to initiate signature for worker %s: %w", workerID, err)
		}
		result.Envelopes = append(result.Envelopes, *envelope)
	}
	return result, nil
}

func (s *signatureService) initiateGroup(ctx context.Context, group []*model.Delivery) (*EnvelopeInfo, error) {
	worker := group[0].Worker
	ids := make([]uuid.UUID, len(group))
	for i, d := range group {
		ids[i] = d.ID
	}

	document, err := s.renderer.RenderDeliveryReceipt(ctx, ids)
	if err != nil {
		return nil, err
	}

	draftID, err := s.files.Save(ctx, "receipt-"+worker.ID.String()+".pdf", document)
	if err != nil {
		return nil, err
	}

	submitted, err := s.signer.Submit(ctx, document, signer.Recipient{
		Name:  worker.Name,
		Email: worker.Email,
	})
	if err != nil {
		// The orphaned draft is removed so a retry starts clean
		if delErr := s.files.Delete(ctx, draftID); delErr != nil {
			s.log.WithError(delErr).Warn("Failed to remove draft after submit failure")
		}
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		for _, d := range group {
			fresh, err := r.deliveries.GetByID(ctx, d.ID)
			if err != nil {
				return err
			}
			if err := fresh.Transition(model.WaitingSignatureStatus); err != nil {
				return err
			}
			fresh.SignatureEnvelopeID = &submitted.EnvelopeID
			fresh.SignatureDocumentKey = &submitted.DocumentKey
			fresh.SignatureSignerID = &submitted.SignerID
			fresh.DraftDocumentFileID = &draftID
			if err := r.deliveries.Save(ctx, fresh); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpWaiting)
	return &EnvelopeInfo{
		WorkerID:    worker.ID,
		EnvelopeID:  submitted.EnvelopeID,
		DocumentKey: submitted.DocumentKey,
		PortalURL:   s.signer.PortalURL(submitted.EnvelopeID, submitted.SignerID),
		DeliveryIDs: ids,
	}, nil
}

// CompleteByDocumentKey reconciles a signed-document notification. The
// operation is idempotent on the document key: a repeated or late
// notification for a group no longer waiting is a logged no-op, except
// that a missing signed artifact is attached when it can still be
// fetched. The whole group completes atomically or not at all.
func (s *signatureService) CompleteByDocumentKey(ctx context.Context, documentKey string, signedAt *time.Time, signedURL string) ([]*model.Delivery, error) {
	repo := repository.NewDeliveryRepository(s.db)
	waiting, err := repo.FindBySignatureKey(ctx, documentKey, model.WaitingSignatureStatus)
	if err != nil {
		return nil, err
	}

	if len(waiting) == 0 {
		return s.reconcileDuplicate(ctx, repo, documentKey, signedURL)
	}

	// The artifact download happens outside the transaction; signer
	// latency must not hold row locks
	signedFileID, err := s.fetchSignedArtifact(ctx, waiting[0], documentKey, signedURL)
	if err != nil {
		s.log.WithError(err).WithField("document_key", documentKey).Warn("Signed artifact unavailable, completing without it")
	}

	// The signing moment comes from the notification; webhook receipt
	// time is only a fallback
	when := time.Now()
	if signedAt != nil {
		when = *signedAt
	}

	var completed []*model.Delivery
	err = s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		var txErr error
		completed, txErr = completeWaitingGroup(ctx, r.deliveries, documentKey, when, signedFileID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if len(completed) == 0 {
		// A concurrent notification won the race; this one's artifact
		// copy would be orphaned
		metrics.GetCollector().IncrementCounter(metrics.CounterWebhookDuplicates)
		s.discardArtifact(ctx, signedFileID)
		return repo.FindBySignatureKey(ctx, documentKey, model.CompletedStatus)
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpCompleted)
	s.deleteDrafts(ctx, completed)
	return completed, nil
}

// completeWaitingGroup re-reads the waiting group inside the transaction
// and flips all of it to completed, stamping the signing time verbatim.
// An empty re-read means a concurrent notification got there first.
func completeWaitingGroup(ctx context.Context, deliveries repository.DeliveryRepository, documentKey string, signedAt time.Time, signedFileID string) ([]*model.Delivery, error) {
	group, err := deliveries.FindBySignatureKey(ctx, documentKey, model.WaitingSignatureStatus)
	if err != nil {
		return nil, err
	}
	if len(group) == 0 {
		return nil, nil
	}

	for _, d := range group {
		if err := d.Transition(model.CompletedStatus); err != nil {
			return nil, err
		}
		when := signedAt
		d.SignedAt = &when
		if signedFileID != "" {
			id := signedFileID
			d.SignedDocumentFileID = &id
		}
		if err := deliveries.Save(ctx, d); err != nil {
			return nil, err
		}
	}
	return group, nil
}

// reconcileDuplicate handles a notification with no waiting group. An
// already completed group gets a missing artifact attached; a rejected
// group and an unknown key are logged no-ops. Providers retry callbacks
// aggressively, so none of these are errors.
func (s *signatureService) reconcileDuplicate(ctx context.Context, repo repository.DeliveryRepository, documentKey, signedURL string) ([]*model.Delivery, error) {
	done, err := repo.FindBySignatureKey(ctx, documentKey, model.CompletedStatus)
	if err != nil {
		return nil, err
	}
	if len(done) == 0 {
		rejected, err := repo.FindBySignatureKey(ctx, documentKey, model.SignatureRejectedStatus)
		if err != nil {
			return nil, err
		}
		if len(rejected) > 0 {
			metrics.GetCollector().IncrementCounter(metrics.CounterWebhookDuplicates)
			s.log.WithField("document_key", documentKey).Warn("Completion notification for a rejected group ignored")
			return rejected, nil
		}
		s.log.WithField("document_key", documentKey).Warn("Completion notification for an unknown document key ignored")
		return []*model.Delivery{}, nil
	}

	metrics.GetCollector().IncrementCounter(metrics.CounterWebhookDuplicates)

	if done[0].SignedDocumentFileID == nil {
		signedFileID, err := s.fetchSignedArtifact(ctx, done[0], documentKey, signedURL)
		if err != nil {
			s.log.WithError(err).WithField("document_key", documentKey).Warn("Signed artifact still unavailable")
			return done, nil
		}
		if signedFileID != "" {
			err = s.db.Transaction(func(tx *gorm.DB) error {
				r := reposFor(tx)
				for _, d := range done {
					id := signedFileID
					d.SignedDocumentFileID = &id
					if err := r.deliveries.Save(ctx, d); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return done, nil
}

// fetchSignedArtifact downloads and stores the signed document, returning
// the stored file ID or empty when nothing is available yet. A URL
// supplied by the callback is used as-is; the provider is only queried
// when the callback omitted it.
func (s *signatureService) fetchSignedArtifact(ctx context.Context, d *model.Delivery, documentKey, signedURL string) (string, error) {
	url := signedURL
	if url == "" {
		if d.SignatureEnvelopeID == nil {
			return "", nil
		}
		var err error
		url, err = s.signer.FetchSignedURL(ctx, *d.SignatureEnvelopeID, documentKey)
		if err != nil {
			return "", err
		}
		if url == "" {
			return "", nil
		}
	}
	data, err := s.signer.Download(ctx, url)
	if err != nil {
		return "", err
	}
	return s.files.Save(ctx, "signed-"+documentKey+".pdf", data)
}

// discardArtifact removes a stored signed copy that lost a completion race
func (s *signatureService) discardArtifact(ctx context.Context, signedFileID string) {
	if signedFileID == "" {
		return
	}
	if err := s.files.Delete(ctx, signedFileID); err != nil {
		s.log.WithError(err).WithField("file_id", signedFileID).Warn("Failed to remove redundant signed artifact")
	}
}

// deleteDrafts removes draft documents after the signed artifact lands
func (s *signatureService) deleteDrafts(ctx context.Context, group []*model.Delivery) {
	seen := make(map[string]bool)
	for _, d := range group {
		if d.DraftDocumentFileID == nil || seen[*d.DraftDocumentFileID] {
			continue
		}
		seen[*d.DraftDocumentFileID] = true
		if err := s.files.Delete(ctx, *d.DraftDocumentFileID); err != nil {
			s.log.WithError(err).WithField("file_id", *d.DraftDocumentFileID).Warn("Failed to delete draft document")
		}
	}
}

// RejectByDocumentKey records a signer rejection for the whole group,
// keeping the reason verbatim
func (s *signatureService) RejectByDocumentKey(ctx context.Context, documentKey, reason string) ([]*model.Delivery, error) {
	var rejected []*model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		group, err := r.deliveries.FindBySignatureKey(ctx, documentKey, model.WaitingSignatureStatus)
		if err != nil {
			return err
		}
		if len(group) == 0 {
			return repository.ErrNotFound
		}

		for _, d := range group {
			if err := d.Transition(model.SignatureRejectedStatus); err != nil {
				return err
			}
			if reason != "" {
				why := reason
				d.RejectionReason = &why
			}
			if err := r.deliveries.Save(ctx, d); err != nil {
				return err
			}
		}
		rejected = group
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpRejected)
	return rejected, nil
}

// RejectDelivery records a signer rejection addressed by delivery ID. The
// rejection still applies to the whole signature group the delivery
// belongs to; group members never diverge.
func (s *signatureService) RejectDelivery(ctx context.Context, deliveryID uuid.UUID, reason string) ([]*model.Delivery, error) {
	delivery, err := repository.NewDeliveryRepository(s.db).GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.SignatureDocumentKey == nil {
		return nil, validationErrorf("delivery %s has no signature in flight", delivery.ID)
	}
	return s.RejectByDocumentKey(ctx, *delivery.SignatureDocumentKey, reason)
}

// Retry puts a rejected delivery back in front of the signer and pings
// them through the provider
func (s *signatureService) Retry(ctx context.Context, deliveryID uuid.UUID) (*model.Delivery, error) {
	var delivery *model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		var txErr error
		delivery, txErr = r.deliveries.GetByID(ctx, deliveryID)
		if txErr != nil {
			return txErr
		}
		if txErr = delivery.Transition(model.WaitingSignatureStatus); txErr != nil {
			return txErr
		}
		delivery.RejectionReason = nil
		return r.deliveries.Save(ctx, delivery)
	})
	if err != nil {
		return nil, err
	}

	if delivery.SignatureEnvelopeID != nil {
		if err := s.signer.Notify(ctx, *delivery.SignatureEnvelopeID); err != nil {
			s.log.WithError(err).WithField("delivery_id", delivery.ID).Warn("Failed to notify signer on retry")
		}
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpWaiting)
	return delivery, nil
}

// ForceCompleteByDocumentKey closes out a whole signature group without a
// signed artifact, for cases resolved outside the provider (paper
// signature, provider gone). Like the webhook path, it applies to every
// delivery sharing the document key or to none.
func (s *signatureService) ForceCompleteByDocumentKey(ctx context.Context, documentKey string) ([]*model.Delivery, error) {
	now := time.Now()
	var completed []*model.Delivery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		group, err := r.deliveries.FindBySignatureKey(ctx, documentKey,
			model.WaitingSignatureStatus, model.SignatureRejectedStatus)
		if err != nil {
			return err
		}
		if len(group) == 0 {
			return repository.ErrNotFound
		}

		for _, d := range group {
			if d.Status == model.SignatureRejectedStatus {
				// Rejected records pass through waiting on their way out
				if err := d.Transition(model.WaitingSignatureStatus); err != nil {
					return err
				}
			}
			if err := d.Transition(model.CompletedStatus); err != nil {
				return err
			}
			d.SignedAt = &now
			if err := r.deliveries.Save(ctx, d); err != nil {
				return err
			}
		}
		completed = group
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GetCollector().RecordDeliveryOperation(metrics.DeliveryOpCompleted)
	return completed, nil
}

// ForceCompleteDelivery resolves the delivery's document key and force
// completes its whole group
func (s *signatureService) ForceCompleteDelivery(ctx context.Context, deliveryID uuid.UUID) ([]*model.Delivery, error) {
	delivery, err := repository.NewDeliveryRepository(s.db).GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.SignatureDocumentKey == nil {
		return nil, validationErrorf("delivery %s has no signature in flight", delivery.ID)
	}
	return s.ForceCompleteByDocumentKey(ctx, *delivery.SignatureDocumentKey)
}
