package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/internal/repository"
	"github.com/coachdesk/campaign-gateway/pkg/logger"
	"github.com/coachdesk/campaign-gateway/pkg/prom"
)

// Outcome tells a webhook caller whether an event changed state. Unmatched
// correlation keys are acknowledged, not retried: the provider delivers
// webhooks for traffic this service never sent.
type Outcome string

const (
	OutcomeApplied Outcome = "ok"
	OutcomeNoMatch Outcome = "no_match"
)

type ReconcilerGroupRepository interface {
	FindByMessageID(ctx context.Context, messageID string) (*model.CampaignGroup, error)
	FindLatestProcessingByJID(ctx context.Context, groupJID string) (*model.CampaignGroup, error)
	MarkSent(ctx context.Context, id int64, messageID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error)
	MarkFailedByMessageID(ctx context.Context, messageID string, errMsg string) (bool, error)
	RecomputeReceiptCounts(ctx context.Context, groupID int64) (*model.CampaignGroup, error)
}

type ReconcilerCampaignRepository interface {
	RecomputeAggregates(ctx context.Context, id int64) (*model.Campaign, error)
}

type ReceiptRepository interface {
	Upsert(ctx context.Context, groupID int64, phone string, kind model.ReceiptKind) error
}

type ReactionRepository interface {
	Upsert(ctx context.Context, groupID int64, phone string, emoji string) error
	Delete(ctx context.Context, groupID int64, phone string) error
}

type DirectMessageRepository interface {
	FindByMessageID(ctx context.Context, messageID string) (*model.DirectMessage, error)
	UpsertReceipt(ctx context.Context, directMessageID int64, phone string, kind model.ReceiptKind) error
	MarkFailed(ctx context.Context, messageID string) (bool, error)
	RecomputeReceiptCounts(ctx context.Context, directMessageID int64) (*model.DirectMessage, error)
}

// ReconcilerService folds asynchronous gateway webhooks back into the store.
// Every handler is idempotent: replaying the same event is always safe.
type ReconcilerService struct {
	campaignRepo  ReconcilerCampaignRepository
	groupRepo     ReconcilerGroupRepository
	receiptRepo   ReceiptRepository
	reactionRepo  ReactionRepository
	directMsgRepo DirectMessageRepository
}

func NewReconcilerService(
	campaignRepo ReconcilerCampaignRepository,
	groupRepo ReconcilerGroupRepository,
	receiptRepo ReceiptRepository,
	reactionRepo ReactionRepository,
	directMsgRepo DirectMessageRepository,
) *ReconcilerService {
	return &ReconcilerService{
		campaignRepo:  campaignRepo,
		groupRepo:     groupRepo,
		receiptRepo:   receiptRepo,
		reactionRepo:  reactionRepo,
		directMsgRepo: directMsgRepo,
	}
}

// Apply routes a decoded event to its handler.
func (s *ReconcilerService) Apply(ctx context.Context, event model.Event) (Outcome, error) {
	var outcome Outcome
	var err error

	switch e := event.(type) {
	case model.SendResultEvent:
		outcome, err = s.HandleSendResult(ctx, e)
	case model.ReceiptEvent:
		outcome, err = s.HandleReceipt(ctx, e)
	case model.ReactionEvent:
		outcome, err = s.HandleReaction(ctx, e)
	case model.MessageErrorEvent:
		outcome, err = s.HandleMessageError(ctx, e)
	default:
		return OutcomeNoMatch, fmt.Errorf("unhandled event kind %q", event.Kind())
	}

	if err == nil {
		prom.IncWebhookEvent(string(event.Kind()), string(outcome))
	}
	return outcome, err
}

// HandleSendResult settles the in-flight row for a conversation target after
// the gateway reports its send outcome. This is the callback counterpart of
// the synchronous dispatch path; rows already settled there are untouched.
func (s *ReconcilerService) HandleSendResult(ctx context.Context, event model.SendResultEvent) (Outcome, error) {
	row, err := s.groupRepo.FindLatestProcessingByJID(ctx, event.GroupJID)
	if errors.Is(err, repository.ErrGroupNotFound) {
		logger.Info("Send result without in-flight row, ignoring", "group_jid", event.GroupJID, "event", string(event.Kind()))
		return OutcomeNoMatch, nil
	}
	if err != nil {
		return "", fmt.Errorf("find in-flight row: %w", err)
	}

	now := time.Now()
	if event.Timestamp != nil {
		now = *event.Timestamp
	}

	if event.Sent {
		if _, err := s.groupRepo.MarkSent(ctx, row.ID, event.MessageID, now); err != nil {
			return "", fmt.Errorf("mark sent: %w", err)
		}
	} else {
		reason := event.Error
		if reason == "" {
			reason = "send failed"
		}
		if _, err := s.groupRepo.MarkFailed(ctx, row.ID, reason); err != nil {
			return "", fmt.Errorf("mark failed: %w", err)
		}
	}

	if _, err := s.campaignRepo.RecomputeAggregates(ctx, row.CampaignID); err != nil {
		return "", fmt.Errorf("recompute aggregates: %w", err)
	}

	logger.Info("Send result reconciled",
		"campaign_id", row.CampaignID,
		"group_id", row.ID,
		"sent", event.Sent)
	return OutcomeApplied, nil
}

// HandleReceipt records one reader's delivered/read confirmation. Duplicate
// webhooks hit the unique receipt constraint and recount to the same totals.
func (s *ReconcilerService) HandleReceipt(ctx context.Context, event model.ReceiptEvent) (Outcome, error) {
	row, err := s.groupRepo.FindByMessageID(ctx, event.MessageID)
	if err == nil {
		if err := s.receiptRepo.Upsert(ctx, row.ID, event.Phone, event.Receipt); err != nil {
			return "", fmt.Errorf("upsert receipt: %w", err)
		}
		if _, err := s.groupRepo.RecomputeReceiptCounts(ctx, row.ID); err != nil {
			return "", fmt.Errorf("recompute receipt counts: %w", err)
		}
		return OutcomeApplied, nil
	}
	if !errors.Is(err, repository.ErrGroupNotFound) {
		return "", fmt.Errorf("find group by message_id: %w", err)
	}

	// Not a campaign message; it may be a one-off direct send.
	dm, err := s.directMsgRepo.FindByMessageID(ctx, event.MessageID)
	if errors.Is(err, repository.ErrDirectMessageNotFound) {
		logger.Info("Receipt for unknown message, ignoring", "message_id", event.MessageID, "kind", string(event.Receipt))
		return OutcomeNoMatch, nil
	}
	if err != nil {
		return "", fmt.Errorf("find direct message: %w", err)
	}

	if err := s.directMsgRepo.UpsertReceipt(ctx, dm.ID, event.Phone, event.Receipt); err != nil {
		return "", fmt.Errorf("upsert direct receipt: %w", err)
	}
	if _, err := s.directMsgRepo.RecomputeReceiptCounts(ctx, dm.ID); err != nil {
		return "", fmt.Errorf("recompute direct receipt counts: %w", err)
	}
	return OutcomeApplied, nil
}

// HandleReaction upserts or removes one person's reaction. A person has at
// most one reaction per message; a new emoji replaces the old one.
func (s *ReconcilerService) HandleReaction(ctx context.Context, event model.ReactionEvent) (Outcome, error) {
	row, err := s.groupRepo.FindByMessageID(ctx, event.MessageID)
	if errors.Is(err, repository.ErrGroupNotFound) {
		logger.Info("Reaction for unknown message, ignoring", "message_id", event.MessageID)
		return OutcomeNoMatch, nil
	}
	if err != nil {
		return "", fmt.Errorf("find group by message_id: %w", err)
	}

	if event.Add {
		err = s.reactionRepo.Upsert(ctx, row.ID, event.Phone, event.Emoji)
	} else {
		err = s.reactionRepo.Delete(ctx, row.ID, event.Phone)
	}
	if err != nil {
		return "", fmt.Errorf("apply reaction: %w", err)
	}

	if _, err := s.groupRepo.RecomputeReceiptCounts(ctx, row.ID); err != nil {
		return "", fmt.Errorf("recompute receipt counts: %w", err)
	}
	return OutcomeApplied, nil
}

// HandleMessageError demotes an already-accepted message to failed after the
// provider reports an asynchronous delivery error for its correlation key.
func (s *ReconcilerService) HandleMessageError(ctx context.Context, event model.MessageErrorEvent) (Outcome, error) {
	reason := event.ErrorMessage
	if event.ErrorCode != "" {
		reason = event.ErrorCode + ": " + reason
	}

	row, err := s.groupRepo.FindByMessageID(ctx, event.MessageID)
	if err == nil {
		if _, err := s.groupRepo.MarkFailedByMessageID(ctx, event.MessageID, reason); err != nil {
			return "", fmt.Errorf("mark failed: %w", err)
		}
		if _, err := s.campaignRepo.RecomputeAggregates(ctx, row.CampaignID); err != nil {
			return "", fmt.Errorf("recompute aggregates: %w", err)
		}
		logger.Warn("Message error reconciled", "campaign_id", row.CampaignID, "group_id", row.ID, "reason", reason)
		return OutcomeApplied, nil
	}
	if !errors.Is(err, repository.ErrGroupNotFound) {
		return "", fmt.Errorf("find group by message_id: %w", err)
	}

	marked, err := s.directMsgRepo.MarkFailed(ctx, event.MessageID)
	if err != nil {
		return "", fmt.Errorf("mark direct message failed: %w", err)
	}
	if !marked {
		logger.Info("Message error for unknown message, ignoring", "message_id", event.MessageID)
		return OutcomeNoMatch, nil
	}
	return OutcomeApplied, nil
}
