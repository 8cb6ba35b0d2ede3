package cron

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/model"
	"github.com/qs3c/exam_go_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_go_server/internal/repository"
	"github.com/qs3c/exam_go_server/internal/service"
	"github.com/qs3c/exam_go_server/internal/testutil"
)

func setupCron(t *testing.T) (*Service, *gorm.DB, string, <-chan *pubsub.ProgressMessage) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	// 收集 reaper 发布的进度消息
	events := make(chan *pubsub.ProgressMessage, 16)
	sub := client.Subscribe(context.Background(), pubsub.ChannelParseProgress)
	t.Cleanup(func() { sub.Close() })
	go func() {
		for msg := range sub.Channel() {
			var pm pubsub.ProgressMessage
			if json.Unmarshal([]byte(msg.Payload), &pm) == nil {
				events <- &pm
			}
		}
	}()
	// 等待订阅建立
	time.Sleep(50 * time.Millisecond)

	cfg := &config.Config{
		Subscription: config.SubscriptionConfig{
			Levels: map[string]config.SubscriptionLevel{"free": {DailyQuota: 5}},
		},
	}

	userRepo := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	quotaService := service.NewQuotaService(userRepo, cfg)
	publisher := pubsub.NewPublisher(client)

	dir := t.TempDir()
	svc := NewService(quotaService, examRepo, publisher, dir, 24, 30)
	return svc, db, dir, events
}

func TestService_RunNow(t *testing.T) {
	svc, db, _, _ := setupCron(t)

	u1 := testutil.TestUser(t, db, testutil.WithQuotaUsed(5))
	u2 := testutil.TestUser(t, db, testutil.WithQuotaUsed(2))

	require.NoError(t, svc.RunNow())

	for _, id := range []int64{u1.ID, u2.ID} {
		var user model.User
		require.NoError(t, db.First(&user, id).Error)
		assert.Equal(t, 0, user.QuotaUsedToday)
	}
}

func TestService_CleanupExpiredUploads(t *testing.T) {
	svc, db, dir, _ := setupCron(t)
	user := testutil.TestUser(t, db)

	// 过期的本地文件
	expiredPath := filepath.Join(dir, "expired.pdf")
	require.NoError(t, os.WriteFile(expiredPath, []byte("old"), 0644))
	expired := testutil.TestExam(t, db, user.ID, testutil.WithFilePath(expiredPath))
	require.NoError(t, db.Model(expired).Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	// 未过期的本地文件
	freshPath := filepath.Join(dir, "fresh.pdf")
	require.NoError(t, os.WriteFile(freshPath, []byte("new"), 0644))
	testutil.TestExam(t, db, user.ID, testutil.WithFilePath(freshPath))

	svc.cleanupExpiredUploads()

	_, err := os.Stat(expiredPath)
	assert.True(t, os.IsNotExist(err), "expired file should be removed")
	_, err = os.Stat(freshPath)
	assert.NoError(t, err, "fresh file should survive")
}

func TestService_ReapStaleJobs(t *testing.T) {
	svc, db, _, events := setupCron(t)
	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(3))

	stale := testutil.TestExam(t, db, user.ID, testutil.WithStatus(model.StatusProcessing))
	require.NoError(t, db.Model(stale).Update("started_at", time.Now().Add(-2*time.Hour)).Error)

	fresh := testutil.TestExam(t, db, user.ID, testutil.WithStatus(model.StatusProcessing))
	require.NoError(t, db.Model(fresh).Update("started_at", time.Now().Add(-time.Minute)).Error)

	svc.reapStaleJobs()

	var got model.Exam
	require.NoError(t, db.First(&got, stale.ID).Error)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, StaleJobMessage, got.ErrorMessage)

	var freshGot model.Exam
	require.NoError(t, db.First(&freshGot, fresh.ID).Error)
	assert.Equal(t, model.StatusProcessing, freshGot.Status)

	// 被终止的任务退还配额
	var u model.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, 2, u.QuotaUsedToday)

	// 事件流订阅者收到终态事件
	select {
	case msg := <-events:
		assert.Equal(t, pubsub.EventError, msg.Event)
		assert.Equal(t, stale.ID, msg.ExamID)
		assert.Equal(t, StaleJobMessage, msg.Error)
	case <-time.After(time.Second):
		t.Fatal("expected an error_event for the reaped exam")
	}
}

func TestService_StartStop(t *testing.T) {
	svc, _, _, _ := setupCron(t)

	svc.Start()
	svc.Stop()
}
