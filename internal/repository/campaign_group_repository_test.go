package repository

import (
	"context"
	"testing"
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCampaignWithGroups(t *testing.T, repo *CampaignRepository, groups int) *model.Campaign {
	t.Helper()
	targets := make([]model.GroupTarget, 0, groups)
	for i := 0; i < groups; i++ {
		targets = append(targets, model.GroupTarget{GroupJID: "grp@g.us", MemberCount: 5})
	}
	c, err := repo.Create(context.Background(), &model.Campaign{
		OrgID:   1,
		Name:    "seed",
		Message: "m",
		Status:  model.CampaignStatusSending,
	}, targets)
	require.NoError(t, err)
	return c
}

func TestCampaignGroupRepository_ListPending(t *testing.T) {
	db := setupTestDB(t).DB
	campaignRepo := NewCampaignRepository(db)
	repo := NewCampaignGroupRepository(db)
	ctx := context.Background()

	c := seedCampaignWithGroups(t, campaignRepo, 25)

	t.Run("limit bounds the batch", func(t *testing.T) {
		rows, err := repo.ListPending(ctx, c.ID, 10)
		require.NoError(t, err)
		assert.Len(t, rows, 10)
	})

	t.Run("settled rows drop out", func(t *testing.T) {
		all, err := repo.ListPending(ctx, c.ID, 0)
		require.NoError(t, err)
		require.Len(t, all, 25)

		ok, err := repo.MarkProcessing(ctx, all[0].ID, time.Now())
		require.NoError(t, err)
		require.True(t, ok)

		rows, err := repo.ListPending(ctx, c.ID, 0)
		require.NoError(t, err)
		assert.Len(t, rows, 24)
	})
}

func TestCampaignGroupRepository_StatusTransitions(t *testing.T) {
	db := setupTestDB(t).DB
	campaignRepo := NewCampaignRepository(db)
	repo := NewCampaignGroupRepository(db)
	ctx := context.Background()
	now := time.Now()

	c := seedCampaignWithGroups(t, campaignRepo, 3)
	rows, err := repo.ListPending(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	t.Run("processing claim is exclusive", func(t *testing.T) {
		ok, err := repo.MarkProcessing(ctx, rows[0].ID, now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.MarkProcessing(ctx, rows[0].ID, now)
		require.NoError(t, err)
		assert.False(t, ok, "second claim must lose")
	})

	t.Run("sent requires processing", func(t *testing.T) {
		ok, err := repo.MarkSent(ctx, rows[1].ID, "msg-1", now)
		require.NoError(t, err)
		assert.False(t, ok, "pending row cannot jump to sent")

		ok, err = repo.MarkProcessing(ctx, rows[1].ID, now)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.MarkSent(ctx, rows[1].ID, "msg-1", now)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, rows[1].ID)
		require.NoError(t, err)
		assert.Equal(t, model.GroupStatusSent, got.Status)
		require.NotNil(t, got.MessageID)
		assert.Equal(t, "msg-1", *got.MessageID)
		assert.NotNil(t, got.SentAt)
	})

	t.Run("sent row is immutable", func(t *testing.T) {
		ok, err := repo.MarkSent(ctx, rows[1].ID, "msg-other", now)
		require.NoError(t, err)
		assert.False(t, ok, "message_id is set exactly once")

		ok, err = repo.MarkFailed(ctx, rows[1].ID, "late failure")
		require.NoError(t, err)
		assert.False(t, ok, "sent rows do not fail via the dispatch path")
	})

	t.Run("failed from pending", func(t *testing.T) {
		ok, err := repo.MarkFailed(ctx, rows[2].ID, "session disconnected")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, rows[2].ID)
		require.NoError(t, err)
		assert.Equal(t, model.GroupStatusFailed, got.Status)
		assert.Equal(t, "session disconnected", got.ErrorMessage)
	})
}

func TestCampaignGroupRepository_FailAllPending(t *testing.T) {
	db := setupTestDB(t).DB
	campaignRepo := NewCampaignRepository(db)
	repo := NewCampaignGroupRepository(db)
	ctx := context.Background()

	c := seedCampaignWithGroups(t, campaignRepo, 4)
	rows, err := repo.ListPending(ctx, c.ID, 0)
	require.NoError(t, err)

	ok, err := repo.MarkProcessing(ctx, rows[0].ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	failed, err := repo.FailAllPending(ctx, c.ID, "session disconnected")
	require.NoError(t, err)
	assert.Equal(t, int64(3), failed, "the processing row is not touched")

	counts, err := repo.StatusCounts(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Failed)
	assert.Equal(t, 1, counts.Processing)
	assert.Equal(t, 0, counts.Pending)
}

func TestCampaignGroupRepository_ResetStaleProcessing(t *testing.T) {
	db := setupTestDB(t).DB
	campaignRepo := NewCampaignRepository(db)
	repo := NewCampaignGroupRepository(db)
	ctx := context.Background()

	c := seedCampaignWithGroups(t, campaignRepo, 3)
	rows, err := repo.ListPending(ctx, c.ID, 0)
	require.NoError(t, err)

	longAgo := time.Now().Add(-time.Hour)
	justNow := time.Now()

	// stale row, no message_id
	ok, err := repo.MarkProcessing(ctx, rows[0].ID, longAgo)
	require.NoError(t, err)
	require.True(t, ok)

	// stale but already accepted by the provider
	ok, err = repo.MarkProcessing(ctx, rows[1].ID, longAgo)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkSent(ctx, rows[1].ID, "msg-accepted", justNow)
	require.NoError(t, err)
	require.True(t, ok)

	// fresh in-flight row
	ok, err = repo.MarkProcessing(ctx, rows[2].ID, justNow)
	require.NoError(t, err)
	require.True(t, ok)

	reset, err := repo.ResetStaleProcessing(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	got, err := repo.GetByID(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.GroupStatusPending, got.Status)
	assert.Nil(t, got.ProcessingStartedAt)

	got, err = repo.GetByID(ctx, rows[2].ID)
	require.NoError(t, err)
	assert.Equal(t, model.GroupStatusProcessing, got.Status)
}

func TestCampaignGroupRepository_FindByMessageID(t *testing.T) {
	db := setupTestDB(t).DB
	campaignRepo := NewCampaignRepository(db)
	repo := NewCampaignGroupRepository(db)
	ctx := context.Background()
	now := time.Now()

	c := seedCampaignWithGroups(t, campaignRepo, 1)
	rows, err := repo.ListPending(ctx, c.ID, 0)
	require.NoError(t, err)

	ok, err := repo.MarkProcessing(ctx, rows[0].ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkSent(ctx, rows[0].ID, "wamid.123", now)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("found", func(t *testing.T) {
		got, err := repo.FindByMessageID(ctx, "wamid.123")
		require.NoError(t, err)
		assert.Equal(t, rows[0].ID, got.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByMessageID(ctx, "wamid.unknown")
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})
}

func TestCampaignGroupRepository_FindLatestProcessingByJID(t *testing.T) {
	db := setupTestDB(t).DB
	campaignRepo := NewCampaignRepository(db)
	repo := NewCampaignGroupRepository(db)
	ctx := context.Background()

	c := seedCampaignWithGroups(t, campaignRepo, 2)
	rows, err := repo.ListPending(ctx, c.ID, 0)
	require.NoError(t, err)

	earlier := time.Now().Add(-time.Minute)
	later := time.Now()

	ok, err := repo.MarkProcessing(ctx, rows[0].ID, earlier)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkProcessing(ctx, rows[1].ID, later)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.FindLatestProcessingByJID(ctx, "grp@g.us")
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, got.ID, "most recent claim wins")

	_, err = repo.FindLatestProcessingByJID(ctx, "other@g.us")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestCampaignGroupRepository_RecomputeReceiptCounts(t *testing.T) {
	db := setupTestDB(t).DB
	campaignRepo := NewCampaignRepository(db)
	repo := NewCampaignGroupRepository(db)
	receiptRepo := NewReceiptRepository(db)
	reactionRepo := NewReactionRepository(db)
	ctx := context.Background()

	c := seedCampaignWithGroups(t, campaignRepo, 1)
	rows, err := repo.ListPending(ctx, c.ID, 0)
	require.NoError(t, err)
	groupID := rows[0].ID

	require.NoError(t, receiptRepo.Upsert(ctx, groupID, "+111", model.ReceiptKindDelivered))
	require.NoError(t, receiptRepo.Upsert(ctx, groupID, "+222", model.ReceiptKindDelivered))
	require.NoError(t, receiptRepo.Upsert(ctx, groupID, "+111", model.ReceiptKindRead))
	require.NoError(t, reactionRepo.Upsert(ctx, groupID, "+111", "👍"))

	got, err := repo.RecomputeReceiptCounts(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DeliveredCount)
	assert.Equal(t, 1, got.ReadCount)
	assert.Equal(t, 1, got.ReactionCount)

	// replaying the same receipts changes nothing
	require.NoError(t, receiptRepo.Upsert(ctx, groupID, "+111", model.ReceiptKindDelivered))
	got, err = repo.RecomputeReceiptCounts(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DeliveredCount)
}
