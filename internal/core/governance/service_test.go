package governance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/ports"
)

// --- Mocks ---

type MockProposalRepository struct {
	mock.Mock
}

func (m *MockProposalRepository) Create(ctx context.Context, p *domain.Proposal) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}
func (m *MockProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Proposal), args.Error(1)
}
func (m *MockProposalRepository) List(ctx context.Context, limit, offset int32) ([]*domain.Proposal, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Proposal), args.Error(1)
}
func (m *MockProposalRepository) CastVote(ctx context.Context, v *domain.Vote) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}
func (m *MockProposalRepository) GetVote(ctx context.Context, proposalID uuid.UUID, voterID string) (*domain.Vote, error) {
	args := m.Called(ctx, proposalID, voterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vote), args.Error(1)
}
func (m *MockProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProposalStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}
func (m *MockProposalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockProposalRepository) Archive(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockBalances struct {
	mock.Mock
}

func (m *MockBalances) BalanceOf(ctx context.Context, holderID string) (int64, error) {
	args := m.Called(ctx, holderID)
	return args.Get(0).(int64), args.Error(1)
}

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, topic string, data interface{}) error {
	args := m.Called(ctx, topic, data)
	return args.Error(0)
}
func (m *MockBus) Subscribe(topic string, handler ports.EventHandler) {
	m.Called(topic, handler)
}

// --- Helpers ---

func newTestService(repo *MockProposalRepository, balances *MockBalances, bus *MockBus, now time.Time) *Service {
	nopLogger := zerolog.Nop()
	svc := NewService(repo, balances, bus, &nopLogger)
	svc.now = func() time.Time { return now }
	return svc
}

func activeProposal(now time.Time) *domain.Proposal {
	return &domain.Proposal{
		ID:        uuid.New(),
		Title:     "Treasury allocation Q3",
		Status:    domain.ProposalActive,
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
		Quorum:    1000,
	}
}

func validInput(now time.Time) CreateProposalInput {
	return CreateProposalInput{
		Title:       "Treasury allocation Q3",
		Description: "Allocate 5% of treasury to liquidity",
		Category:    domain.CategoryTreasury,
		StartDate:   now.Format(time.RFC3339),
		EndDate:     now.Add(72 * time.Hour).Format(time.RFC3339),
		Quorum:      1000,
		CreatorID:   "investor-1",
	}
}

// --- CreateProposal ---

func TestCreateProposal_Success(t *testing.T) {
	repo := new(MockProposalRepository)
	bus := new(MockBus)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), bus, now)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Proposal")).Return(nil)
	bus.On("Publish", mock.Anything, ports.TopicProposalCreated, mock.Anything).Return(nil)

	p, err := svc.CreateProposal(context.Background(), validInput(now))
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPending, p.Status, "status defaults to pending")
	assert.Zero(t, p.VotesFor)
	assert.Zero(t, p.VotesAgainst)
	assert.Zero(t, p.VotesAbstain)
	repo.AssertExpectations(t)
}

func TestCreateProposal_Unauthenticated(t *testing.T) {
	repo := new(MockProposalRepository)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), new(MockBus), now)

	in := validInput(now)
	in.CreatorID = "  "
	_, err := svc.CreateProposal(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateProposal_ReportsAllInvalidFields(t *testing.T) {
	now := time.Now()
	svc := newTestService(new(MockProposalRepository), new(MockBalances), new(MockBus), now)

	_, err := svc.CreateProposal(context.Background(), CreateProposalInput{
		Title:       "   ",
		Description: "",
		Category:    "marketing",
		StartDate:   "not-a-date",
		EndDate:     "also-not-a-date",
		Quorum:      0,
		CreatorID:   "investor-1",
	})
	require.Error(t, err)

	verr, ok := err.(*domain.ValidationError)
	require.True(t, ok, "expected *domain.ValidationError, got %T", err)
	for _, field := range []string{"title", "description", "category", "startDate", "endDate", "quorum"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestCreateProposal_RejectsEndBeforeStart(t *testing.T) {
	now := time.Now()
	svc := newTestService(new(MockProposalRepository), new(MockBalances), new(MockBus), now)

	in := validInput(now)
	in.StartDate = now.Format(time.RFC3339)
	in.EndDate = now.Add(-time.Hour).Format(time.RFC3339)
	_, err := svc.CreateProposal(context.Background(), in)

	verr, ok := err.(*domain.ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "endDate")

	// Equal timestamps are invalid too.
	in.EndDate = in.StartDate
	_, err = svc.CreateProposal(context.Background(), in)
	verr, ok = err.(*domain.ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "endDate")
}

// --- CastVote ---

func TestCastVote_SnapshotsWeightFromBalance(t *testing.T) {
	repo := new(MockProposalRepository)
	balances := new(MockBalances)
	bus := new(MockBus)
	now := time.Now()
	svc := newTestService(repo, balances, bus, now)

	p := activeProposal(now)
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	balances.On("BalanceOf", mock.Anything, "voter-7").Return(int64(250), nil)
	repo.On("CastVote", mock.Anything, mock.MatchedBy(func(v *domain.Vote) bool {
		return v.ProposalID == p.ID && v.VoterID == "voter-7" && v.Weight == 250 && v.Type == domain.VoteFor
	})).Return(nil)
	bus.On("Publish", mock.Anything, ports.TopicVoteCast, mock.Anything).Return(nil)

	vote, err := svc.CastVote(context.Background(), p.ID, "voter-7", domain.VoteFor)
	require.NoError(t, err)
	assert.Equal(t, int64(250), vote.Weight)
	repo.AssertExpectations(t)
}

func TestCastVote_ProposalNotFound(t *testing.T) {
	repo := new(MockProposalRepository)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), new(MockBus), now)

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).Return(nil, nil)

	_, err := svc.CastVote(context.Background(), id, "voter-7", domain.VoteFor)
	assert.ErrorIs(t, err, domain.ErrProposalNotFound)
}

func TestCastVote_ClosedWindow(t *testing.T) {
	repo := new(MockProposalRepository)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), new(MockBus), now)

	p := activeProposal(now)
	p.EndDate = now.Add(-time.Minute)
	p.StartDate = now.Add(-time.Hour)
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)

	_, err := svc.CastVote(context.Background(), p.ID, "voter-7", domain.VoteFor)
	assert.ErrorIs(t, err, domain.ErrVotingClosed)
}

func TestCastVote_InactiveStatus(t *testing.T) {
	repo := new(MockProposalRepository)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), new(MockBus), now)

	p := activeProposal(now)
	p.Status = domain.ProposalPending
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)

	_, err := svc.CastVote(context.Background(), p.ID, "voter-7", domain.VoteFor)
	assert.ErrorIs(t, err, domain.ErrVotingClosed)
}

func TestCastVote_Duplicate(t *testing.T) {
	repo := new(MockProposalRepository)
	balances := new(MockBalances)
	now := time.Now()
	svc := newTestService(repo, balances, new(MockBus), now)

	p := activeProposal(now)
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	balances.On("BalanceOf", mock.Anything, "voter-7").Return(int64(100), nil)
	repo.On("CastVote", mock.Anything, mock.Anything).Return(domain.ErrDuplicateVote)

	_, err := svc.CastVote(context.Background(), p.ID, "voter-7", domain.VoteFor)
	assert.ErrorIs(t, err, domain.ErrDuplicateVote)
}

func TestCastVote_ZeroBalance(t *testing.T) {
	repo := new(MockProposalRepository)
	balances := new(MockBalances)
	now := time.Now()
	svc := newTestService(repo, balances, new(MockBus), now)

	p := activeProposal(now)
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	balances.On("BalanceOf", mock.Anything, "voter-7").Return(int64(0), nil)

	_, err := svc.CastVote(context.Background(), p.ID, "voter-7", domain.VoteAgainst)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	repo.AssertNotCalled(t, "CastVote", mock.Anything, mock.Anything)
}

func TestCastVote_UnknownType(t *testing.T) {
	now := time.Now()
	svc := newTestService(new(MockProposalRepository), new(MockBalances), new(MockBus), now)

	_, err := svc.CastVote(context.Background(), uuid.New(), "voter-7", "maybe")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// --- Finalize ---

func TestFinalize_QuorumMetMajorityFor(t *testing.T) {
	repo := new(MockProposalRepository)
	bus := new(MockBus)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), bus, now)

	p := activeProposal(now)
	p.EndDate = now.Add(-time.Minute)
	p.VotesFor, p.VotesAgainst, p.VotesAbstain = 600, 300, 200
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	repo.On("UpdateStatus", mock.Anything, p.ID, domain.ProposalPassed).Return(nil)
	bus.On("Publish", mock.Anything, ports.TopicProposalFinalized, mock.Anything).Return(nil)

	got, err := svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPassed, got.Status)
	repo.AssertExpectations(t)
}

func TestFinalize_QuorumNotMetRejects(t *testing.T) {
	repo := new(MockProposalRepository)
	bus := new(MockBus)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), bus, now)

	p := activeProposal(now)
	p.EndDate = now.Add(-time.Minute)
	p.VotesFor, p.VotesAgainst, p.VotesAbstain = 600, 300, 50
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)
	repo.On("UpdateStatus", mock.Anything, p.ID, domain.ProposalRejected).Return(nil)
	bus.On("Publish", mock.Anything, ports.TopicProposalFinalized, mock.Anything).Return(nil)

	got, err := svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalRejected, got.Status)
}

func TestFinalize_WindowStillOpen(t *testing.T) {
	repo := new(MockProposalRepository)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), new(MockBus), now)

	p := activeProposal(now)
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)

	_, err := svc.Finalize(context.Background(), p.ID)
	assert.ErrorIs(t, err, domain.ErrProposalOpen)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

// --- Delete / Archive ---

func TestDelete_PassesThroughImmutable(t *testing.T) {
	repo := new(MockProposalRepository)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), new(MockBus), now)

	id := uuid.New()
	repo.On("Delete", mock.Anything, id).Return(domain.ErrProposalImmutable)

	err := svc.Delete(context.Background(), id, "admin-1")
	assert.ErrorIs(t, err, domain.ErrProposalImmutable)
}

func TestArchive_RefusesOpenProposal(t *testing.T) {
	repo := new(MockProposalRepository)
	now := time.Now()
	svc := newTestService(repo, new(MockBalances), new(MockBus), now)

	p := activeProposal(now)
	repo.On("GetByID", mock.Anything, p.ID).Return(p, nil)

	err := svc.Archive(context.Background(), p.ID)
	assert.ErrorIs(t, err, domain.ErrProposalOpen)
	repo.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
}
