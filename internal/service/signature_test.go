package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/signer"
)

func newTestSignatureService() *signatureService {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &signatureService{log: log}
}

type mockSignerClient struct {
	mock.Mock
}

func (m *mockSignerClient) Submit(ctx context.Context, document []byte, recipient signer.Recipient) (*signer.SubmitResult, error) {
	args := m.Called(ctx, document, recipient)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*signer.SubmitResult), args.Error(1)
}

func (m *mockSignerClient) FetchSignedURL(ctx context.Context, envelopeID, documentKey string) (string, error) {
	args := m.Called(ctx, envelopeID, documentKey)
	return args.String(0), args.Error(1)
}

func (m *mockSignerClient) Download(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockSignerClient) Notify(ctx context.Context, envelopeID string) error {
	return m.Called(ctx, envelopeID).Error(0)
}

func (m *mockSignerClient) PortalURL(envelopeID, signerID string) string {
	return m.Called(envelopeID, signerID).String(0)
}

type mockFileStore struct {
	mock.Mock
}

func (m *mockFileStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *mockFileStore) Open(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockFileStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestReconcileDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := newTestSignatureService()
	repo := new(mockDeliveryRepo)

	signedFile := "abc_signed.pdf"
	done := &model.Delivery{
		Status:               model.CompletedStatus,
		SignedDocumentFileID: &signedFile,
	}

	repo.On("FindBySignatureKey", ctx, "doc-1", []model.DeliveryStatus{model.CompletedStatus}).
		Return([]*model.Delivery{done}, nil)

	// A repeated notification for an already completed group returns the
	// group unchanged, without touching the provider
	got, err := s.reconcileDuplicate(ctx, repo, "doc-1", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.CompletedStatus, got[0].Status)
	assert.Equal(t, &signedFile, got[0].SignedDocumentFileID)
}

func TestReconcileRejectedGroupIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := newTestSignatureService()
	repo := new(mockDeliveryRepo)

	rejected := &model.Delivery{Status: model.SignatureRejectedStatus}
	repo.On("FindBySignatureKey", ctx, "doc-2", []model.DeliveryStatus{model.CompletedStatus}).
		Return([]*model.Delivery{}, nil)
	repo.On("FindBySignatureKey", ctx, "doc-2", []model.DeliveryStatus{model.SignatureRejectedStatus}).
		Return([]*model.Delivery{rejected}, nil)

	// A completion arriving after the signer rejected must not resurrect
	// the group or fail the callback
	got, err := s.reconcileDuplicate(ctx, repo, "doc-2", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.SignatureRejectedStatus, got[0].Status)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestReconcileUnknownDocumentKey(t *testing.T) {
	ctx := context.Background()
	s := newTestSignatureService()
	repo := new(mockDeliveryRepo)

	repo.On("FindBySignatureKey", ctx, "missing", []model.DeliveryStatus{model.CompletedStatus}).
		Return([]*model.Delivery{}, nil)
	repo.On("FindBySignatureKey", ctx, "missing", []model.DeliveryStatus{model.SignatureRejectedStatus}).
		Return([]*model.Delivery{}, nil)

	// Unknown keys answer as an empty no-op so provider retries stop
	got, err := s.reconcileDuplicate(ctx, repo, "missing", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompleteGroupStampsCallbackSigningTime(t *testing.T) {
	ctx := context.Background()
	repo := new(mockDeliveryRepo)

	a := &model.Delivery{Status: model.WaitingSignatureStatus}
	b := &model.Delivery{Status: model.WaitingSignatureStatus}
	repo.On("FindBySignatureKey", ctx, "doc-7", []model.DeliveryStatus{model.WaitingSignatureStatus}).
		Return([]*model.Delivery{a, b}, nil)
	repo.On("Save", ctx, mock.Anything).Return(nil)

	// The callback's signing moment lands verbatim, not the receipt time
	signedAt := time.Date(2026, time.February, 3, 9, 30, 0, 0, time.UTC)
	got, err := completeWaitingGroup(ctx, repo, "doc-7", signedAt, "blob-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, model.CompletedStatus, d.Status)
		require.NotNil(t, d.SignedAt)
		assert.Equal(t, signedAt, *d.SignedAt)
		require.NotNil(t, d.SignedDocumentFileID)
		assert.Equal(t, "blob-1", *d.SignedDocumentFileID)
	}
}

func TestCompleteGroupRacedByConcurrentCallback(t *testing.T) {
	ctx := context.Background()
	repo := new(mockDeliveryRepo)

	repo.On("FindBySignatureKey", ctx, "doc-8", []model.DeliveryStatus{model.WaitingSignatureStatus}).
		Return([]*model.Delivery{}, nil)

	got, err := completeWaitingGroup(ctx, repo, "doc-8", time.Now(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestFetchSignedArtifactPrefersCallbackURL(t *testing.T) {
	ctx := context.Background()
	s := newTestSignatureService()
	sc := new(mockSignerClient)
	fs := new(mockFileStore)
	s.signer = sc
	s.files = fs

	sc.On("Download", ctx, "https://sign.example/d/abc.pdf").Return([]byte("pdf"), nil)
	fs.On("Save", ctx, "signed-doc-9.pdf", []byte("pdf")).Return("stored-1", nil)

	id, err := s.fetchSignedArtifact(ctx, &model.Delivery{}, "doc-9", "https://sign.example/d/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "stored-1", id)
	sc.AssertNotCalled(t, "FetchSignedURL", mock.Anything, mock.Anything, mock.Anything)
}

func TestDiscardArtifactOnLostRace(t *testing.T) {
	ctx := context.Background()
	s := newTestSignatureService()
	fs := new(mockFileStore)
	s.files = fs

	fs.On("Delete", ctx, "stored-2").Return(nil)
	s.discardArtifact(ctx, "stored-2")
	fs.AssertExpectations(t)

	// Nothing stored, nothing to remove
	s.discardArtifact(ctx, "")
	fs.AssertNumberOfCalls(t, "Delete", 1)
}

func TestSignatureRejectionKeepsReasonVerbatim(t *testing.T) {
	d := &model.Delivery{Status: model.WaitingSignatureStatus}
	require.NoError(t, d.Transition(model.SignatureRejectedStatus))

	reason := "  signer refused: wrong CPF on the receipt  "
	d.RejectionReason = &reason
	assert.Equal(t, reason, *d.RejectionReason)

	// A rejected delivery can be resubmitted
	require.NoError(t, d.Transition(model.WaitingSignatureStatus))
	assert.Equal(t, model.WaitingSignatureStatus, d.Status)
}
