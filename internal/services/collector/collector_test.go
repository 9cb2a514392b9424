package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/SpotBox/internal/broker/messages"
	"github.com/BearBump/SpotBox/internal/integrations/feed"
	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type storeMock struct {
	mock.Mock
}

func (m *storeMock) InsertPositions(ctx context.Context, ps []models.Position) (models.InsertResult, error) {
	args := m.Called(ctx, ps)
	return args.Get(0).(models.InsertResult), args.Error(1)
}

func (m *storeMock) CleanupOldPositions(ctx context.Context, daysToKeep int) (int64, error) {
	args := m.Called(ctx, daysToKeep)
	return args.Get(0).(int64), args.Error(1)
}

func (m *storeMock) GetAssetIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *storeMock) CheckWritable(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type producerMock struct {
	mock.Mock
}

func (m *producerMock) PublishJSON(ctx context.Context, topic, key string, v any) error {
	return m.Called(ctx, topic, key, v).Error(0)
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
	calls   int
}

func (r *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	r.calls++
	return r.allowed, r.count, r.err
}

type stubFeed struct {
	mu        sync.Mutex
	positions []models.Position
	err       error
	block     chan struct{}
	entered   chan struct{}
	calls     int
	reachable bool
	ranges    []feed.DateRangeQuery
}

func (f *stubFeed) GetLatestPosition(ctx context.Context, password string) (*models.Position, error) {
	return nil, nil
}

func (f *stubFeed) GetMessages(ctx context.Context, q feed.MessagesQuery) ([]models.Position, error) {
	f.mu.Lock()
	f.calls++
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return f.positions, f.err
}

func (f *stubFeed) GetMessagesByDateRange(ctx context.Context, q feed.DateRangeQuery) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, q)
	return f.positions, f.err
}

func (f *stubFeed) TestConnection(ctx context.Context) bool { return f.reachable }

func (f *stubFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func samplePositions() []models.Position {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return []models.Position{
		{AssetID: "a", Timestamp: base, Latitude: 1, Longitude: 1},
		{AssetID: "b", Timestamp: base, Latitude: 2, Longitude: 2},
		{AssetID: "a", Timestamp: base.Add(time.Hour), Latitude: 3, Longitude: 3},
	}
}

type CollectorSuite struct {
	suite.Suite
	feed  *stubFeed
	store *storeMock
	prod  *producerMock
	c     *Collector
}

func (s *CollectorSuite) SetupTest() {
	s.feed = &stubFeed{reachable: true}
	s.store = &storeMock{}
	s.prod = &producerMock{}
	s.c = New(s.feed, s.store, s.prod, nil, "")
}

func (s *CollectorSuite) TestRunOnce_StoresAndPublishes() {
	s.feed.positions = samplePositions()
	s.store.On("InsertPositions", mock.Anything, s.feed.positions).
		Return(models.InsertResult{Inserted: 2, Duplicates: 1}, nil).Once()

	var published messages.PositionsCollected
	var key string
	s.prod.On("PublishJSON", mock.Anything, messages.TopicPositionsCollected, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			key = args.String(2)
			published = args.Get(3).(messages.PositionsCollected)
		}).
		Return(nil).Once()

	var hooked []string
	s.c.OnStored(func(ctx context.Context, assets []string) { hooked = assets })

	res := s.c.RunOnce(context.Background())
	s.False(res.Skipped)
	s.Empty(res.Errors)
	s.NotEmpty(res.ID)
	s.Equal(3, res.Fetched)
	s.Equal(2, res.Inserted)
	s.Equal(1, res.SkippedDuplicates)
	s.False(res.FinishedAt.Before(res.StartedAt))

	s.Equal(res.ID, key)
	s.Equal(res.ID, published.CycleID)
	s.Equal([]string{"a", "b"}, published.Assets)
	s.Equal([]string{"a", "b"}, hooked)

	st := s.c.Status()
	s.Equal(StateIdle, st.State)
	s.Equal(int64(1), st.TotalCycles)
	s.Zero(st.TotalErrors)
	s.NotNil(st.LastRunTime)
	s.Require().NotNil(st.LastResult)
	s.Equal(res.ID, st.LastResult.ID)

	s.store.AssertExpectations(s.T())
	s.prod.AssertExpectations(s.T())
}

func (s *CollectorSuite) TestRunOnce_NoNewPositionsSkipsPublish() {
	s.feed.positions = samplePositions()
	s.store.On("InsertPositions", mock.Anything, mock.Anything).
		Return(models.InsertResult{Duplicates: 3}, nil).Once()

	res := s.c.RunOnce(context.Background())
	s.Zero(res.Inserted)
	s.Equal(3, res.SkippedDuplicates)
	s.prod.AssertNotCalled(s.T(), "PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *CollectorSuite) TestRunOnce_EmptyFeedDoesNotTouchStore() {
	res := s.c.RunOnce(context.Background())
	s.Zero(res.Fetched)
	s.Empty(res.Errors)
	s.store.AssertNotCalled(s.T(), "InsertPositions", mock.Anything, mock.Anything)
}

func (s *CollectorSuite) TestRunOnce_ConnectivityErrorIsRecorded() {
	s.feed.err = &feed.ConnectivityError{Op: "get messages", Err: errors.New("dial tcp: connection refused")}

	res := s.c.RunOnce(context.Background())
	s.Require().Len(res.Errors, 1)
	s.Equal(KindConnectivity, res.Errors[0].Kind)
	s.True(res.Failed())

	st := s.c.Status()
	s.Equal(StateIdle, st.State)
	s.Equal(int64(1), st.TotalErrors)
	s.Equal(int64(1), st.ConsecutiveFailures)
	s.Contains(st.LastError, "connection refused")
	s.store.AssertNotCalled(s.T(), "InsertPositions", mock.Anything, mock.Anything)

	s.c.RunOnce(context.Background())
	s.Equal(int64(2), s.c.Status().ConsecutiveFailures)

	// a good cycle resets the streak but not the total
	s.feed.err = nil
	s.c.RunOnce(context.Background())
	st = s.c.Status()
	s.Zero(st.ConsecutiveFailures)
	s.Equal(int64(2), st.TotalErrors)
	s.Equal(int64(3), st.TotalCycles)
}

func (s *CollectorSuite) TestRunOnce_UpstreamErrorIsRecorded() {
	s.feed.err = &feed.UpstreamError{Op: "get messages", StatusCode: 500, Message: "oops"}
	res := s.c.RunOnce(context.Background())
	s.Require().Len(res.Errors, 1)
	s.Equal(KindUpstream, res.Errors[0].Kind)
}

func (s *CollectorSuite) TestRunOnce_StorageErrorIsRecorded() {
	s.feed.positions = samplePositions()
	s.store.On("InsertPositions", mock.Anything, mock.Anything).
		Return(models.InsertResult{}, storage.Wrap("insert positions", errors.New("disk full"))).Once()

	res := s.c.RunOnce(context.Background())
	s.Equal(3, res.Fetched)
	s.Zero(res.Inserted)
	s.Require().Len(res.Errors, 1)
	s.Equal(KindStorage, res.Errors[0].Kind)
	s.Equal(int64(1), s.c.Status().TotalErrors)
	s.prod.AssertNotCalled(s.T(), "PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *CollectorSuite) TestRunOnce_PublishFailureKeepsBatch() {
	s.feed.positions = samplePositions()
	s.store.On("InsertPositions", mock.Anything, mock.Anything).
		Return(models.InsertResult{Inserted: 3}, nil).Once()
	s.prod.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("kafka down")).Times(3)

	res := s.c.RunOnce(context.Background())
	s.Equal(3, res.Inserted)
	s.Require().Len(res.Errors, 1)
	s.Equal(KindPublish, res.Errors[0].Kind)
	s.False(res.Failed())

	st := s.c.Status()
	s.Zero(st.TotalErrors)
	s.Empty(st.LastError)
	s.prod.AssertExpectations(s.T())
}

func (s *CollectorSuite) TestRunOnce_RateLimited() {
	rl := &fakeRL{allowed: false, count: 7}
	s.c = New(s.feed, s.store, nil, rl, "").WithSettings(0, 6)

	res := s.c.RunOnce(context.Background())
	s.True(res.Skipped)
	s.Equal(SkipRateLimited, res.SkipReason)
	s.Zero(s.feed.Calls())
	s.Zero(s.c.Status().TotalCycles)
	s.Equal(1, rl.calls)
}

func (s *CollectorSuite) TestRunOnce_RateLimiterErrorFailsOpen() {
	rl := &fakeRL{err: errors.New("redis down")}
	s.c = New(s.feed, s.store, nil, rl, "").WithSettings(0, 6)

	res := s.c.RunOnce(context.Background())
	s.False(res.Skipped)
	s.Equal(1, s.feed.Calls())
}

func (s *CollectorSuite) TestRunOnce_SingleFlight() {
	s.feed.positions = samplePositions()
	s.feed.block = make(chan struct{})
	s.feed.entered = make(chan struct{}, 1)
	s.store.On("InsertPositions", mock.Anything, mock.Anything).
		Return(models.InsertResult{Inserted: 3}, nil).Once()
	s.prod.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first := make(chan CycleResult, 1)
	go func() { first <- s.c.RunOnce(context.Background()) }()
	<-s.feed.entered
	s.Equal(StateRunning, s.c.Status().State)

	second := s.c.RunOnce(context.Background())
	s.True(second.Skipped)
	s.Equal(SkipInProgress, second.SkipReason)

	close(s.feed.block)
	res := <-first
	s.False(res.Skipped)
	s.Equal(3, res.Inserted)
	s.Equal(1, s.feed.Calls())
	s.Equal(int64(1), s.c.Status().TotalCycles)
	s.store.AssertNumberOfCalls(s.T(), "InsertPositions", 1)
}

func (s *CollectorSuite) TestTestSetup() {
	s.store.On("CheckWritable", mock.Anything).Return(nil).Once()
	s.True(s.c.TestSetup(context.Background()))

	s.feed.reachable = false
	s.store.On("CheckWritable", mock.Anything).Return(nil).Once()
	s.False(s.c.TestSetup(context.Background()))

	s.feed.reachable = true
	s.store.On("CheckWritable", mock.Anything).Return(errors.New("read-only")).Once()
	s.False(s.c.TestSetup(context.Background()))
	s.store.AssertExpectations(s.T())
}

func (s *CollectorSuite) TestCleanup_RecordsOutcome() {
	s.store.On("CleanupOldPositions", mock.Anything, 7).Return(int64(4), nil).Once()
	out, err := s.c.Cleanup(context.Background(), 7)
	s.Require().NoError(err)
	s.Equal(int64(4), out.Deleted)

	st := s.c.Status()
	s.Require().NotNil(st.LastCleanup)
	s.Equal(7, st.LastCleanup.DaysToKeep)
	s.Equal(int64(4), st.LastCleanup.Deleted)

	s.store.On("CleanupOldPositions", mock.Anything, 1).Return(int64(0), errors.New("locked")).Once()
	_, err = s.c.Cleanup(context.Background(), 1)
	s.Require().Error(err)
	s.Equal("locked", s.c.Status().LastCleanup.Error)
}

func (s *CollectorSuite) TestCleanup_InvalidatesDeletedAssets() {
	var hooked []string
	calls := 0
	s.c.OnDeleted(func(ctx context.Context, assets []string) {
		calls++
		hooked = assets
	})

	s.store.On("GetAssetIDs", mock.Anything).Return([]string{"a", "gone"}, nil).Once()
	s.store.On("CleanupOldPositions", mock.Anything, 30).Return(int64(5), nil).Once()
	_, err := s.c.Cleanup(context.Background(), 30)
	s.Require().NoError(err)
	s.Equal(1, calls)
	s.Equal([]string{"a", "gone"}, hooked)

	s.store.On("GetAssetIDs", mock.Anything).Return([]string{"a"}, nil).Once()
	s.store.On("CleanupOldPositions", mock.Anything, 30).Return(int64(0), nil).Once()
	_, err = s.c.Cleanup(context.Background(), 30)
	s.Require().NoError(err)
	s.Equal(1, calls)

	s.store.On("GetAssetIDs", mock.Anything).Return(nil, errors.New("busy")).Once()
	s.store.On("CleanupOldPositions", mock.Anything, 30).Return(int64(2), nil).Once()
	_, err = s.c.Cleanup(context.Background(), 30)
	s.Require().NoError(err)
	s.Equal(2, calls)
	s.Empty(hooked)

	s.store.AssertExpectations(s.T())
}

func (s *CollectorSuite) TestBackfill_StoresRange() {
	s.feed.positions = samplePositions()
	s.store.On("InsertPositions", mock.Anything, s.feed.positions).
		Return(models.InsertResult{Inserted: 3}, nil).Once()
	s.prod.On("PublishJSON", mock.Anything, messages.TopicPositionsCollected, mock.Anything, mock.Anything).Return(nil).Once()
	var hooked []string
	s.c.OnStored(func(ctx context.Context, assets []string) { hooked = assets })

	to := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	from := to.Add(-48 * time.Hour)
	res, err := s.c.Backfill(context.Background(), from, to)
	s.Require().NoError(err)
	s.Equal(3, res.Fetched)
	s.Equal(3, res.Inserted)
	s.Empty(res.Errors)
	s.Equal([]string{"a", "b"}, hooked)
	s.Require().Len(s.feed.ranges, 1)
	s.True(from.Equal(s.feed.ranges[0].From))
	s.True(to.Equal(s.feed.ranges[0].To))
	s.Zero(s.feed.Calls())
	s.Zero(s.c.Status().TotalCycles)

	s.store.AssertExpectations(s.T())
	s.prod.AssertExpectations(s.T())
}

func (s *CollectorSuite) TestBackfill_RejectsBadRanges() {
	to := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	_, err := s.c.Backfill(context.Background(), to.Add(-8*24*time.Hour), to)
	s.Require().ErrorIs(err, feed.ErrRangeTooLarge)

	_, err = s.c.Backfill(context.Background(), to, to.Add(-time.Hour))
	s.Require().Error(err)

	s.Empty(s.feed.ranges)
	s.store.AssertNotCalled(s.T(), "InsertPositions", mock.Anything, mock.Anything)
}

func (s *CollectorSuite) TestBackfill_FetchErrorRecorded() {
	s.feed.err = &feed.ConnectivityError{Op: "GET message.json", Err: errors.New("refused")}
	to := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	res, err := s.c.Backfill(context.Background(), to.Add(-time.Hour), to)
	s.Require().NoError(err)
	s.True(res.Failed())
	s.Equal(KindConnectivity, res.Errors[0].Kind)
}

func TestCollectorSuite(t *testing.T) {
	suite.Run(t, new(CollectorSuite))
}

func TestCollector_StartRunsImmediatelyAndStops(t *testing.T) {
	f := &stubFeed{}
	c := New(f, &storeMock{}, nil, nil, "")

	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background(), 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return c.Status().TotalCycles >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "10ms", c.Status().Interval)
	require.NotNil(t, c.Status().StartedAt)

	c.Stop()
	require.NoError(t, <-errCh)
	require.Equal(t, StateStopped, c.Status().State)

	n := f.Calls()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, n, f.Calls())

	c.Stop()
}

func TestCollector_StartTwice(t *testing.T) {
	f := &stubFeed{}
	c := New(f, &storeMock{}, nil, nil, "")

	go func() { _ = c.Start(context.Background(), time.Hour) }()
	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, c.Start(context.Background(), time.Hour), ErrAlreadyRunning)
	c.Stop()
}

func TestCollector_StartStopsOnContextCancel(t *testing.T) {
	c := New(&stubFeed{}, &storeMock{}, nil, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.Start(ctx, 5*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, c.Status().TotalCycles, int64(1))
}

func TestCollector_TriggerRunsExtraCycle(t *testing.T) {
	f := &stubFeed{}
	c := New(f, &storeMock{}, nil, nil, "")

	go func() { _ = c.Start(context.Background(), time.Hour) }()
	defer c.Stop()
	require.Eventually(t, func() bool { return c.Status().TotalCycles == 1 }, time.Second, 5*time.Millisecond)

	c.Trigger()
	require.Eventually(t, func() bool { return c.Status().TotalCycles == 2 }, time.Second, 5*time.Millisecond)
	require.NotNil(t, c.Status().LastTriggerAt)
}

func TestCollector_StopWaitsForCycle(t *testing.T) {
	f := &stubFeed{
		positions: samplePositions(),
		block:     make(chan struct{}),
		entered:   make(chan struct{}, 1),
	}
	st := &storeMock{}
	st.On("InsertPositions", mock.Anything, mock.Anything).Return(models.InsertResult{Inserted: 3}, nil).Once()
	c := New(f, st, nil, nil, "")

	go func() { _ = c.Start(context.Background(), time.Hour) }()
	<-f.entered

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(f.block)
	<-stopped
	st.AssertExpectations(t)
	require.Equal(t, 3, c.Status().LastResult.Inserted)
}

func TestCollector_CleanupIsScheduled(t *testing.T) {
	c := New(&stubFeed{}, &storeMock{}, nil, nil, "").WithCleanup(30, 2)

	go func() { _ = c.Start(context.Background(), time.Hour) }()
	defer c.Stop()

	require.Eventually(t, func() bool { return c.Status().NextCleanupAt != nil }, time.Second, 5*time.Millisecond)
	st := c.Status()
	require.Equal(t, 30, st.CleanupDays)
	require.True(t, st.NextCleanupAt.After(time.Now()))
	require.True(t, st.NextCleanupAt.Before(time.Now().Add(25*time.Hour)))
}
