package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
)

func TestProposalRepository_Create_GetByID_Roundtrip(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)
	ctx := context.Background()

	changes := "Raise the validator set from 21 to 31"
	timeline := "Q4 2026"
	impact := "Higher decentralization, slower finality"

	p := &domain.Proposal{
		ID:                     uuid.New(),
		Title:                  "Validator set expansion",
		Description:            "Expand the active validator set",
		Category:               domain.CategoryTechnical,
		Status:                 domain.ProposalPending,
		StartDate:              time.Now().Add(time.Hour).UTC(),
		EndDate:                time.Now().Add(48 * time.Hour).UTC(),
		Quorum:                 1000,
		CreatorID:              "creator-roundtrip",
		ProposedChanges:        &changes,
		ImplementationTimeline: &timeline,
		ExpectedImpact:         &impact,
	}

	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Failed to create proposal: %v", err)
	}
	defer cleanupTestProposal(t, p.ID)

	found, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if found == nil {
		t.Fatal("GetByID: proposal not found, but should exist")
	}

	if found.Title != p.Title {
		t.Errorf("Title mismatch: got %s, want %s", found.Title, p.Title)
	}
	if found.Category != p.Category {
		t.Errorf("Category mismatch: got %s, want %s", found.Category, p.Category)
	}
	if found.Status != domain.ProposalPending {
		t.Errorf("Status mismatch: got %s, want pending", found.Status)
	}
	if found.Quorum != p.Quorum {
		t.Errorf("Quorum mismatch: got %d, want %d", found.Quorum, p.Quorum)
	}
	if found.VotesFor != 0 || found.VotesAgainst != 0 || found.VotesAbstain != 0 {
		t.Errorf("Tallies not zeroed on create: %d/%d/%d", found.VotesFor, found.VotesAgainst, found.VotesAbstain)
	}
	if found.ProposedChanges == nil || *found.ProposedChanges != changes {
		t.Errorf("ProposedChanges mismatch: got %v, want %s", found.ProposedChanges, changes)
	}
	if found.ImplementationTimeline == nil || *found.ImplementationTimeline != timeline {
		t.Errorf("ImplementationTimeline mismatch: got %v, want %s", found.ImplementationTimeline, timeline)
	}
}

func TestProposalRepository_GetByID_NotFound(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)

	found, err := repo.GetByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetByID for non-existent proposal returned an error: %v", err)
	}
	if found != nil {
		t.Fatal("GetByID found a proposal, but it should not exist")
	}
}

func TestProposalRepository_CastVote_SameVoterConcurrent(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)
	ctx := context.Background()

	p, cleanup := createTestProposal(t, repo, 1000)
	defer cleanup()

	voterID := "voter-" + uuid.NewString()
	const attempts = 8

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := &domain.Vote{
				ID:         uuid.New(),
				ProposalID: p.ID,
				VoterID:    voterID,
				Type:       domain.VoteFor,
				Weight:     100,
			}
			results <- repo.CastVote(ctx, v)
		}()
	}
	wg.Wait()
	close(results)

	successes, duplicates := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrDuplicateVote):
			duplicates++
		default:
			t.Fatalf("CastVote returned unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 successful cast, got %d", successes)
	}
	if duplicates != attempts-1 {
		t.Fatalf("expected %d duplicate rejections, got %d", attempts-1, duplicates)
	}

	found, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if found.VotesFor != 100 {
		t.Fatalf("tally counted duplicates: votes_for = %d, want 100", found.VotesFor)
	}
}

func TestProposalRepository_CastVote_ConcurrentTallySum(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)
	ctx := context.Background()

	p, cleanup := createTestProposal(t, repo, 1000)
	defer cleanup()

	const voters = 20
	var wantFor, wantAgainst, wantAbstain int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			weight := int64(10 + i)
			voteType := [...]domain.VoteType{domain.VoteFor, domain.VoteAgainst, domain.VoteAbstain}[i%3]
			v := &domain.Vote{
				ID:         uuid.New(),
				ProposalID: p.ID,
				VoterID:    "voter-" + uuid.NewString(),
				Type:       voteType,
				Weight:     weight,
			}
			if err := repo.CastVote(ctx, v); err != nil {
				t.Errorf("CastVote failed for voter %d: %v", i, err)
				return
			}
			mu.Lock()
			switch voteType {
			case domain.VoteFor:
				wantFor += weight
			case domain.VoteAgainst:
				wantAgainst += weight
			case domain.VoteAbstain:
				wantAbstain += weight
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	found, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if found.VotesFor != wantFor || found.VotesAgainst != wantAgainst || found.VotesAbstain != wantAbstain {
		t.Fatalf("tallies drifted: got %d/%d/%d, want %d/%d/%d",
			found.VotesFor, found.VotesAgainst, found.VotesAbstain,
			wantFor, wantAgainst, wantAbstain)
	}
}

func TestProposalRepository_CastVote_ClosedProposal(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)
	ctx := context.Background()

	p, cleanup := createTestProposal(t, repo, 1000)
	defer cleanup()

	if err := repo.UpdateStatus(ctx, p.ID, domain.ProposalPassed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	v := &domain.Vote{
		ID:         uuid.New(),
		ProposalID: p.ID,
		VoterID:    "voter-late",
		Type:       domain.VoteFor,
		Weight:     50,
	}
	err := repo.CastVote(ctx, v)
	if !errors.Is(err, domain.ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}

	// The rolled-back insert must not leave a ballot behind.
	ballot, err := repo.GetVote(ctx, p.ID, "voter-late")
	if err != nil {
		t.Fatalf("GetVote failed: %v", err)
	}
	if ballot != nil {
		t.Fatal("vote row survived a rejected cast")
	}
}

func TestProposalRepository_GetVote(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)
	ctx := context.Background()

	p, cleanup := createTestProposal(t, repo, 1000)
	defer cleanup()

	ref := "settle-001"
	v := &domain.Vote{
		ID:            uuid.New(),
		ProposalID:    p.ID,
		VoterID:       "voter-one",
		Type:          domain.VoteAbstain,
		Weight:        30,
		SettlementRef: &ref,
	}
	if err := repo.CastVote(ctx, v); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	ballot, err := repo.GetVote(ctx, p.ID, "voter-one")
	if err != nil {
		t.Fatalf("GetVote failed: %v", err)
	}
	if ballot == nil {
		t.Fatal("GetVote: ballot not found")
	}
	if ballot.Type != domain.VoteAbstain || ballot.Weight != 30 {
		t.Errorf("ballot mismatch: got %s/%d, want abstain/30", ballot.Type, ballot.Weight)
	}
	if ballot.SettlementRef == nil || *ballot.SettlementRef != ref {
		t.Errorf("SettlementRef mismatch: got %v, want %s", ballot.SettlementRef, ref)
	}

	none, err := repo.GetVote(ctx, p.ID, "voter-never")
	if err != nil {
		t.Fatalf("GetVote for absent voter failed: %v", err)
	}
	if none != nil {
		t.Fatal("GetVote returned a ballot for a voter who never voted")
	}
}

func TestProposalRepository_Delete_Guards(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)
	ctx := context.Background()

	// A proposal with a vote is immutable.
	p, cleanup := createTestProposal(t, repo, 1000)
	defer cleanup()
	v := &domain.Vote{
		ID:         uuid.New(),
		ProposalID: p.ID,
		VoterID:    "voter-lock",
		Type:       domain.VoteFor,
		Weight:     10,
	}
	if err := repo.CastVote(ctx, v); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, domain.ErrProposalImmutable) {
		t.Fatalf("expected ErrProposalImmutable, got %v", err)
	}

	// A voteless proposal deletes cleanly.
	empty, _ := createTestProposal(t, repo, 1000)
	if err := repo.Delete(ctx, empty.ID); err != nil {
		t.Fatalf("Delete of voteless proposal failed: %v", err)
	}
	found, err := repo.GetByID(ctx, empty.ID)
	if err != nil {
		t.Fatalf("GetByID after delete failed: %v", err)
	}
	if found != nil {
		t.Fatal("proposal still present after delete")
	}

	// Deleting something that never existed reports not found.
	if err := repo.Delete(ctx, uuid.New()); !errors.Is(err, domain.ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
}

func TestProposalRepository_Archive(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewProposalRepository(testDB, &nopLogger)
	ctx := context.Background()

	p, cleanup := createTestProposal(t, repo, 1000)
	defer cleanup()

	if err := repo.UpdateStatus(ctx, p.ID, domain.ProposalRejected); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	if err := repo.Archive(ctx, p.ID); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	// Archiving twice is a no-op, not an error.
	if err := repo.Archive(ctx, p.ID); err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	var count int
	if err := testDB.pool.QueryRow(ctx, "SELECT count(*) FROM proposal_archive WHERE id = $1", p.ID).Scan(&count); err != nil {
		t.Fatalf("archive count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 archive row, got %d", count)
	}
}

func TestBalanceRepository_BalanceOf(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewBalanceRepository(testDB, &nopLogger)
	ctx := context.Background()

	holder := "holder-" + uuid.NewString()
	cleanup := seedBalance(t, holder, 420)
	defer cleanup()

	balance, err := repo.BalanceOf(ctx, holder)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if balance != 420 {
		t.Errorf("balance mismatch: got %d, want 420", balance)
	}

	// Unknown holders simply have nothing staked.
	zero, err := repo.BalanceOf(ctx, "holder-unknown")
	if err != nil {
		t.Fatalf("BalanceOf for unknown holder failed: %v", err)
	}
	if zero != 0 {
		t.Errorf("expected zero balance for unknown holder, got %d", zero)
	}
}
