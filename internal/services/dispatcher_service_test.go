package services

import (
	"context"
	"errors"
	"testing"
	"time"

	gateway "github.com/coachdesk/campaign-gateway/internal/gateways"
	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) SelectDue(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) MarkSending(ctx context.Context, id int64, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) RecomputeAggregates(ctx context.Context, id int64) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) ListPending(ctx context.Context, campaignID int64, limit int) ([]*model.CampaignGroup, error) {
	args := m.Called(ctx, campaignID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CampaignGroup), args.Error(1)
}

func (m *MockGroupRepository) MarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupRepository) MarkSent(ctx context.Context, id int64, messageID string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, messageID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupRepository) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	args := m.Called(ctx, id, errMsg)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupRepository) FailAllPending(ctx context.Context, campaignID int64, reason string) (int64, error) {
	args := m.Called(ctx, campaignID, reason)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockGroupRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) SessionStatus(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockGatewayClient) SendMessage(ctx context.Context, req *gateway.SendRequest) (*gateway.SendResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResponse), args.Error(1)
}

type MockDispatchLock struct {
	mock.Mock
}

func (m *MockDispatchLock) Acquire() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockDispatchLock) Release() error {
	args := m.Called()
	return args.Error(0)
}

func testCampaign(id int64, status model.CampaignStatus, delay int) *model.Campaign {
	return &model.Campaign{
		ID:           id,
		OrgID:        1,
		Name:         "camp",
		Message:      "hello",
		Status:       status,
		DelaySeconds: delay,
	}
}

func testGroups(campaignID int64, n int) []*model.CampaignGroup {
	rows := make([]*model.CampaignGroup, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, &model.CampaignGroup{
			ID:         campaignID*100 + int64(i),
			CampaignID: campaignID,
			GroupJID:   "grp@g.us",
			Status:     model.GroupStatusPending,
		})
	}
	return rows
}

func newTestDispatcher(campaignRepo *MockCampaignRepository, groupRepo *MockGroupRepository, client *MockGatewayClient, lock DispatchLock) *DispatcherService {
	s := NewDispatcherService(campaignRepo, groupRepo, client, lock, DispatcherConfig{
		CampaignLimit: 5,
		BatchSize:     10,
	})
	s.sleep = func(time.Duration) {}
	return s
}

func TestDispatcherService_ProcessDue_HappyPath(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	c := testCampaign(1, model.CampaignStatusScheduled, 0)
	rows := testGroups(1, 3)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{c}, nil)
	campaignRepo.On("MarkSending", ctx, int64(1), now).Return(true, nil)
	client.On("SessionStatus", ctx).Return(true, nil)
	groupRepo.On("ListPending", ctx, int64(1), 10).Return(rows, nil)

	for i, row := range rows {
		groupRepo.On("MarkProcessing", ctx, row.ID, now).Return(true, nil)
		client.On("SendMessage", ctx, mock.AnythingOfType("*gateway.SendRequest")).
			Return(&gateway.SendResponse{Accepted: true, MessageID: "wamid." + string(rune('a'+i))}, nil).Once()
		groupRepo.On("MarkSent", ctx, row.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(true, nil)
	}
	campaignRepo.On("RecomputeAggregates", ctx, int64(1)).
		Return(&model.Campaign{ID: 1, Status: model.CampaignStatusCompleted, SentCount: 3}, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, model.DispatchTally{Sent: 3, Failed: 0}, summary.Results[1])

	campaignRepo.AssertExpectations(t)
	groupRepo.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestDispatcherService_ProcessDue_BatchIsBounded(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	c := testCampaign(1, model.CampaignStatusSending, 0)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{c}, nil)
	client.On("SessionStatus", ctx).Return(true, nil)
	// the repository receives the batch limit; it never sees more than 10
	groupRepo.On("ListPending", ctx, int64(1), 10).Return(testGroups(1, 10), nil)
	groupRepo.On("MarkProcessing", ctx, mock.AnythingOfType("int64"), now).Return(true, nil)
	client.On("SendMessage", ctx, mock.Anything).Return(&gateway.SendResponse{Accepted: true, MessageID: "x"}, nil)
	groupRepo.On("MarkSent", ctx, mock.AnythingOfType("int64"), "x", mock.AnythingOfType("time.Time")).Return(true, nil)
	campaignRepo.On("RecomputeAggregates", ctx, int64(1)).
		Return(&model.Campaign{ID: 1, Status: model.CampaignStatusSending}, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Results[1].Sent)

	groupRepo.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "SendMessage", 10)
}

func TestDispatcherService_ProcessDue_DelayBetweenSends(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	c := testCampaign(1, model.CampaignStatusSending, 7)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{c}, nil)
	client.On("SessionStatus", ctx).Return(true, nil)
	groupRepo.On("ListPending", ctx, int64(1), 10).Return(testGroups(1, 3), nil)
	groupRepo.On("MarkProcessing", ctx, mock.AnythingOfType("int64"), now).Return(true, nil)
	client.On("SendMessage", ctx, mock.Anything).Return(&gateway.SendResponse{Accepted: true, MessageID: "x"}, nil)
	groupRepo.On("MarkSent", ctx, mock.AnythingOfType("int64"), "x", mock.AnythingOfType("time.Time")).Return(true, nil)
	campaignRepo.On("RecomputeAggregates", ctx, int64(1)).
		Return(&model.Campaign{ID: 1, Status: model.CampaignStatusSending}, nil)

	var pauses []time.Duration
	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	s.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	_, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)

	// between sends only: 3 sends, 2 pauses
	require.Len(t, pauses, 2)
	assert.Equal(t, 7*time.Second, pauses[0])
}

func TestDispatcherService_ProcessDue_SessionDisconnected(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	c := testCampaign(1, model.CampaignStatusSending, 0)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{c}, nil)
	client.On("SessionStatus", ctx).Return(false, nil)
	groupRepo.On("FailAllPending", ctx, int64(1), SessionDisconnectedReason).Return(int64(4), nil)
	campaignRepo.On("RecomputeAggregates", ctx, int64(1)).
		Return(&model.Campaign{ID: 1, Status: model.CampaignStatusFailed, FailedCount: 4}, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchTally{Sent: 0, Failed: 4}, summary.Results[1])

	// no send was even attempted
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	groupRepo.AssertExpectations(t)
}

func TestDispatcherService_ProcessDue_DisconnectMidBatch(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	c := testCampaign(1, model.CampaignStatusSending, 0)
	rows := testGroups(1, 3)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{c}, nil)
	client.On("SessionStatus", ctx).Return(true, nil)
	groupRepo.On("ListPending", ctx, int64(1), 10).Return(rows, nil)

	groupRepo.On("MarkProcessing", ctx, rows[0].ID, now).Return(true, nil)
	client.On("SendMessage", ctx, mock.Anything).
		Return(&gateway.SendResponse{Accepted: true, MessageID: "first"}, nil).Once()
	groupRepo.On("MarkSent", ctx, rows[0].ID, "first", mock.AnythingOfType("time.Time")).Return(true, nil)

	groupRepo.On("MarkProcessing", ctx, rows[1].ID, now).Return(true, nil)
	client.On("SendMessage", ctx, mock.Anything).
		Return(nil, gateway.ErrSessionDisconnected).Once()
	groupRepo.On("MarkFailed", ctx, rows[1].ID, mock.AnythingOfType("string")).Return(true, nil)
	groupRepo.On("FailAllPending", ctx, int64(1), SessionDisconnectedReason).Return(int64(1), nil)

	campaignRepo.On("RecomputeAggregates", ctx, int64(1)).
		Return(&model.Campaign{ID: 1, Status: model.CampaignStatusPartialFailure}, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)

	// 1 sent, 1 failed send, 1 short-circuited pending row
	assert.Equal(t, model.DispatchTally{Sent: 1, Failed: 2}, summary.Results[1])
	// the third row was never claimed
	groupRepo.AssertNotCalled(t, "MarkProcessing", ctx, rows[2].ID, now)
}

func TestDispatcherService_ProcessDue_ProviderRejection(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	c := testCampaign(1, model.CampaignStatusSending, 0)
	rows := testGroups(1, 1)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{c}, nil)
	client.On("SessionStatus", ctx).Return(true, nil)
	groupRepo.On("ListPending", ctx, int64(1), 10).Return(rows, nil)
	groupRepo.On("MarkProcessing", ctx, rows[0].ID, now).Return(true, nil)
	client.On("SendMessage", ctx, mock.Anything).
		Return(&gateway.SendResponse{Accepted: false, ErrorCode: "GROUP_NOT_FOUND", ErrorMsg: "gone"}, nil)
	groupRepo.On("MarkFailed", ctx, rows[0].ID, "GROUP_NOT_FOUND: gone").Return(true, nil)
	campaignRepo.On("RecomputeAggregates", ctx, int64(1)).
		Return(&model.Campaign{ID: 1, Status: model.CampaignStatusFailed}, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchTally{Sent: 0, Failed: 1}, summary.Results[1])

	groupRepo.AssertExpectations(t)
}

func TestDispatcherService_ProcessDue_CampaignVanished(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	c := testCampaign(1, model.CampaignStatusScheduled, 0)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{c}, nil)
	campaignRepo.On("MarkSending", ctx, int64(1), now).Return(false, nil)
	campaignRepo.On("GetByID", ctx, int64(1)).Return(nil, repository.ErrNotFound)

	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err, "a vanished campaign is not a cycle error")
	assert.Equal(t, 0, summary.Processed)
}

func TestDispatcherService_ProcessDue_CampaignErrorDoesNotAbortCycle(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	ctx := context.Background()
	now := time.Now()

	bad := testCampaign(1, model.CampaignStatusSending, 0)
	good := testCampaign(2, model.CampaignStatusSending, 0)

	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{bad, good}, nil)
	client.On("SessionStatus", ctx).Return(true, nil)

	groupRepo.On("ListPending", ctx, int64(1), 10).Return(nil, errors.New("db timeout"))

	groupRepo.On("ListPending", ctx, int64(2), 10).Return(testGroups(2, 1), nil)
	groupRepo.On("MarkProcessing", ctx, mock.AnythingOfType("int64"), now).Return(true, nil)
	client.On("SendMessage", ctx, mock.Anything).Return(&gateway.SendResponse{Accepted: true, MessageID: "ok"}, nil)
	groupRepo.On("MarkSent", ctx, mock.AnythingOfType("int64"), "ok", mock.AnythingOfType("time.Time")).Return(true, nil)
	campaignRepo.On("RecomputeAggregates", ctx, int64(2)).
		Return(&model.Campaign{ID: 2, Status: model.CampaignStatusCompleted}, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, nil)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, model.DispatchTally{Sent: 1}, summary.Results[2])
}

func TestDispatcherService_ProcessDue_LockHeld(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	lock := new(MockDispatchLock)
	ctx := context.Background()

	lock.On("Acquire").Return(false, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, lock)
	summary, err := s.ProcessDue(ctx, time.Now())
	require.NoError(t, err)
	assert.True(t, summary.Skipped)

	campaignRepo.AssertNotCalled(t, "SelectDue", mock.Anything, mock.Anything, mock.Anything)
	lock.AssertNotCalled(t, "Release")
}

func TestDispatcherService_ProcessDue_LockAcquiredAndReleased(t *testing.T) {
	campaignRepo := new(MockCampaignRepository)
	groupRepo := new(MockGroupRepository)
	client := new(MockGatewayClient)
	lock := new(MockDispatchLock)
	ctx := context.Background()
	now := time.Now()

	lock.On("Acquire").Return(true, nil)
	lock.On("Release").Return(nil)
	campaignRepo.On("SelectDue", ctx, now, 5).Return([]*model.Campaign{}, nil)

	s := newTestDispatcher(campaignRepo, groupRepo, client, lock)
	summary, err := s.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.False(t, summary.Skipped)

	lock.AssertExpectations(t)
}
