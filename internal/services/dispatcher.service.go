package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	gateway "github.com/coachdesk/campaign-gateway/internal/gateways"
	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/internal/repository"
	"github.com/coachdesk/campaign-gateway/pkg/logger"
	"github.com/coachdesk/campaign-gateway/pkg/prom"
)

const SessionDisconnectedReason = "session disconnected"

type CampaignRepository interface {
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error)
	MarkSending(ctx context.Context, id int64, now time.Time) (bool, error)
	RecomputeAggregates(ctx context.Context, id int64) (*model.Campaign, error)
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
}

type CampaignGroupRepository interface {
	ListPending(ctx context.Context, campaignID int64, limit int) ([]*model.CampaignGroup, error)
	MarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkSent(ctx context.Context, id int64, messageID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error)
	FailAllPending(ctx context.Context, campaignID int64, reason string) (int64, error)
	ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error)
}

type GatewayClient interface {
	SessionStatus(ctx context.Context) (bool, error)
	SendMessage(ctx context.Context, req *gateway.SendRequest) (*gateway.SendResponse, error)
}

// DispatchLock guards one polling cycle against overlapping invocations.
type DispatchLock interface {
	Acquire() (bool, error)
	Release() error
}

type DispatcherConfig struct {
	CampaignLimit   int           // campaigns advanced per cycle
	BatchSize       int           // pending rows sent per campaign per cycle
	StaleProcessing time.Duration // processing rows older than this are reset
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		CampaignLimit:   5,
		BatchSize:       10,
		StaleProcessing: 10 * time.Minute,
	}
}

// DispatchSummary is the outcome of one polling cycle.
type DispatchSummary struct {
	Processed int                           `json:"processed"`
	Results   map[int64]model.DispatchTally `json:"results"`
	Skipped   bool                          `json:"skipped,omitempty"`
}

// DispatcherService advances due campaigns one bounded batch at a time.
// It carries no state between invocations: due work is re-derived from
// store predicates every cycle.
type DispatcherService struct {
	campaignRepo CampaignRepository
	groupRepo    CampaignGroupRepository
	client       GatewayClient
	lock         DispatchLock
	config       DispatcherConfig
	sleep        func(time.Duration)
}

func NewDispatcherService(campaignRepo CampaignRepository, groupRepo CampaignGroupRepository, client GatewayClient, lock DispatchLock, config DispatcherConfig) *DispatcherService {
	if config.CampaignLimit <= 0 {
		config.CampaignLimit = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &DispatcherService{
		campaignRepo: campaignRepo,
		groupRepo:    groupRepo,
		client:       client,
		lock:         lock,
		config:       config,
		sleep:        time.Sleep,
	}
}

// ProcessDue runs one polling cycle: recover stale rows, pick due campaigns,
// send a bounded batch per campaign, finalize settled ones. A failure in one
// campaign never aborts the others.
func (s *DispatcherService) ProcessDue(ctx context.Context, now time.Time) (*DispatchSummary, error) {
	summary := &DispatchSummary{Results: make(map[int64]model.DispatchTally)}

	if s.lock != nil {
		acquired, err := s.lock.Acquire()
		if err != nil {
			return nil, fmt.Errorf("acquire dispatch lock: %w", err)
		}
		if !acquired {
			logger.Info("Dispatch cycle already running, skipping")
			summary.Skipped = true
			return summary, nil
		}
		defer func() {
			if err := s.lock.Release(); err != nil {
				logger.Warn("Failed to release dispatch lock", "error", err)
			}
		}()
	}

	start := time.Now()
	defer func() {
		prom.ObserveDispatchCycleDuration(time.Since(start).Seconds())
	}()

	if s.config.StaleProcessing > 0 {
		reset, err := s.groupRepo.ResetStaleProcessing(ctx, now.Add(-s.config.StaleProcessing))
		if err != nil {
			logger.Warn("Failed to reset stale processing rows", "error", err)
		} else if reset > 0 {
			logger.Warn("Recovered stale processing rows", "count", reset)
		}
	}

	campaigns, err := s.campaignRepo.SelectDue(ctx, now, s.config.CampaignLimit)
	if err != nil {
		return nil, fmt.Errorf("select due campaigns: %w", err)
	}

	for _, c := range campaigns {
		tally, err := s.runCampaign(ctx, c, now)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Campaign deleted between selection and processing.
				logger.Info("Campaign vanished mid-cycle, skipping", "campaign_id", c.ID)
				continue
			}
			logger.Error("Campaign cycle failed", "campaign_id", c.ID, "error", err)
			continue
		}
		summary.Processed++
		summary.Results[c.ID] = tally
	}

	logger.Info("Dispatch cycle finished",
		"due", len(campaigns),
		"processed", summary.Processed,
		"duration", time.Since(start).String())

	return summary, nil
}

func (s *DispatcherService) runCampaign(ctx context.Context, c *model.Campaign, now time.Time) (model.DispatchTally, error) {
	var tally model.DispatchTally

	if c.Status == model.CampaignStatusScheduled || c.Status == model.CampaignStatusDraft {
		started, err := s.campaignRepo.MarkSending(ctx, c.ID, now)
		if err != nil {
			return tally, fmt.Errorf("mark sending: %w", err)
		}
		if !started {
			// Another cycle claimed it, or the row is gone.
			current, err := s.campaignRepo.GetByID(ctx, c.ID)
			if err != nil {
				return tally, err
			}
			if current.Status != model.CampaignStatusSending {
				return tally, nil
			}
		}
		logger.Info("Campaign started sending", "campaign_id", c.ID, "name", c.Name)
	}

	connected, err := s.client.SessionStatus(ctx)
	if err != nil {
		logger.Warn("Session status check failed, treating as disconnected", "campaign_id", c.ID, "error", err)
		connected = false
	}

	if !connected {
		failed, err := s.groupRepo.FailAllPending(ctx, c.ID, SessionDisconnectedReason)
		if err != nil {
			return tally, fmt.Errorf("fail pending rows: %w", err)
		}
		tally.Failed = int(failed)
		prom.AddMessagesFailed(float64(failed))
		logger.Warn("Session disconnected, campaign short-circuited", "campaign_id", c.ID, "failed_rows", failed)
		return tally, s.finalize(ctx, c.ID)
	}

	rows, err := s.groupRepo.ListPending(ctx, c.ID, s.config.BatchSize)
	if err != nil {
		return tally, fmt.Errorf("list pending rows: %w", err)
	}

	for i, row := range rows {
		claimed, err := s.groupRepo.MarkProcessing(ctx, row.ID, now)
		if err != nil {
			return tally, fmt.Errorf("claim row %d: %w", row.ID, err)
		}
		if !claimed {
			continue
		}

		sent, sessionDown := s.sendOne(ctx, c, row)
		if sent {
			tally.Sent++
		} else {
			tally.Failed++
		}

		if sessionDown {
			// The rest of the batch is doomed, fail it instead of trying.
			failed, err := s.groupRepo.FailAllPending(ctx, c.ID, SessionDisconnectedReason)
			if err != nil {
				return tally, fmt.Errorf("fail pending rows: %w", err)
			}
			tally.Failed += int(failed)
			prom.AddMessagesFailed(float64(failed))
			break
		}

		// Per-campaign pacing: pause between sends, not after the last.
		if c.DelaySeconds > 0 && i < len(rows)-1 {
			s.sleep(time.Duration(c.DelaySeconds) * time.Second)
		}
	}

	return tally, s.finalize(ctx, c.ID)
}

// sendOne performs one gateway send and settles the row. The second return
// reports whether the upstream session dropped, which dooms the remainder of
// the batch.
func (s *DispatcherService) sendOne(ctx context.Context, c *model.Campaign, row *model.CampaignGroup) (bool, bool) {
	req := &gateway.SendRequest{
		GroupJID:  row.GroupJID,
		Message:   c.Message,
		MediaURL:  c.MediaURL,
		MediaType: string(c.MediaType),
	}

	resp, err := s.client.SendMessage(ctx, req)
	if err != nil {
		// Transport failures settle the row exactly like provider failures.
		if _, markErr := s.groupRepo.MarkFailed(ctx, row.ID, err.Error()); markErr != nil {
			logger.Error("Failed to mark row failed", "group_id", row.ID, "error", markErr)
		}
		prom.IncMessagesFailed()
		logger.Warn("Send failed", "campaign_id", c.ID, "group_jid", row.GroupJID, "error", err)
		return false, errors.Is(err, gateway.ErrSessionDisconnected)
	}

	if !resp.Accepted {
		reason := resp.ErrorMsg
		if resp.ErrorCode != "" {
			reason = resp.ErrorCode + ": " + reason
		}
		if _, markErr := s.groupRepo.MarkFailed(ctx, row.ID, reason); markErr != nil {
			logger.Error("Failed to mark row failed", "group_id", row.ID, "error", markErr)
		}
		prom.IncMessagesFailed()
		logger.Warn("Send rejected", "campaign_id", c.ID, "group_jid", row.GroupJID, "reason", reason)
		return false, false
	}

	if _, err := s.groupRepo.MarkSent(ctx, row.ID, resp.MessageID, time.Now()); err != nil {
		logger.Error("Failed to mark row sent", "group_id", row.ID, "error", err)
		return false, false
	}
	prom.IncMessagesSent()
	logger.Info("Message sent", "campaign_id", c.ID, "group_jid", row.GroupJID, "provider_message_id", resp.MessageID)
	return true, false
}

// finalize recounts aggregates from the group rows and settles the campaign
// once nothing remains pending or processing.
func (s *DispatcherService) finalize(ctx context.Context, campaignID int64) error {
	c, err := s.campaignRepo.RecomputeAggregates(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Settled() {
		logger.Info("Campaign settled",
			"campaign_id", c.ID,
			"status", string(c.Status),
			"sent_count", c.SentCount,
			"failed_count", c.FailedCount)
	}
	return nil
}
