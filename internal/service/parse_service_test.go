package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/model"
	"github.com/qs3c/exam_go_server/internal/pkg/queue"
	"github.com/qs3c/exam_go_server/internal/repository"
	"github.com/qs3c/exam_go_server/internal/testutil"
)

func setupParseService(t *testing.T) (*ParseService, *queue.Queue, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testConfig()
	cfg.Upload = config.UploadConfig{
		MaxSize:           1024 * 1024,
		Dir:               t.TempDir(),
		ExpireHours:       24,
		AllowedExtensions: []string{".pdf", ".txt", ".png"},
	}

	userRepo := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	quotaService := NewQuotaService(userRepo, cfg)
	jobQueue := queue.NewQueue(client, "test_parse_jobs")

	svc := NewParseService(examRepo, questionRepo, quotaService, nil, jobQueue, cfg)
	return svc, jobQueue, db
}

func TestParseService_Submit_Validation(t *testing.T) {
	svc, _, db := setupParseService(t)
	user := testutil.TestUser(t, db)
	ctx := context.Background()

	t.Run("empty file", func(t *testing.T) {
		_, err := svc.Submit(ctx, user.ID, &SubmitRequest{
			Filename: "exam.txt",
			Content:  nil,
		})
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("file too large", func(t *testing.T) {
		_, err := svc.Submit(ctx, user.ID, &SubmitRequest{
			Filename: "exam.txt",
			Content:  make([]byte, 2*1024*1024),
		})
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := svc.Submit(ctx, user.ID, &SubmitRequest{
			Filename: "exam.exe",
			Content:  []byte("x"),
		})
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("invalid speed", func(t *testing.T) {
		_, err := svc.Submit(ctx, user.ID, &SubmitRequest{
			Filename: "exam.txt",
			Content:  []byte("x"),
			Speed:    "warp",
		})
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestParseService_Submit_QuotaExceeded(t *testing.T) {
	svc, jobQueue, db := setupParseService(t)
	user := testutil.TestUser(t, db, testutil.WithSubscription("free", 5), testutil.WithQuotaUsed(5))

	_, err := svc.Submit(context.Background(), user.ID, &SubmitRequest{
		Filename: "exam.txt",
		Content:  []byte("1+1=?"),
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// 被拒绝的提交不入队也不建任务
	length, err := jobQueue.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	var count int64
	db.Model(&model.Exam{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestParseService_Submit_Success(t *testing.T) {
	svc, jobQueue, db := setupParseService(t)
	user := testutil.TestUser(t, db)
	ctx := context.Background()

	resp, err := svc.Submit(ctx, user.ID, &SubmitRequest{
		Filename:  "exam.txt",
		Content:   []byte("1. 解方程 x^2 = 4"),
		Speed:     "fast",
		UseVision: false,
	})
	require.NoError(t, err)

	// 提交立即返回 pending，不等待解析执行
	assert.NotZero(t, resp.JobID)
	assert.Equal(t, model.StatusPending, resp.Status)

	// 任务已入队
	length, err := jobQueue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	msg, err := jobQueue.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, resp.JobID, msg.ExamID)
	assert.Equal(t, user.ID, msg.UserID)
	assert.Equal(t, "fast", msg.Speed)
	assert.NotEmpty(t, msg.FileHash)

	// 文件已落盘
	_, err = os.Stat(msg.FilePath)
	assert.NoError(t, err)

	// 配额已扣除
	var got model.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, 1, got.QuotaUsedToday)

	// 默认 speed 落库
	status, err := svc.GetStatus(user.ID, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status.Status)
	assert.Equal(t, 0, status.Progress)
	assert.Empty(t, status.ResultJSON)
}

func TestParseService_Submit_DefaultSpeed(t *testing.T) {
	svc, jobQueue, db := setupParseService(t)
	user := testutil.TestUser(t, db)

	_, err := svc.Submit(context.Background(), user.ID, &SubmitRequest{
		Filename: "exam.txt",
		Content:  []byte("content"),
	})
	require.NoError(t, err)

	msg, err := jobQueue.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "balanced", msg.Speed)
}

func TestParseService_GetStatus(t *testing.T) {
	svc, _, db := setupParseService(t)
	user := testutil.TestUser(t, db)
	stranger := testutil.TestUser(t, db)

	t.Run("unknown job", func(t *testing.T) {
		_, err := svc.GetStatus(user.ID, 99999)
		assert.ErrorIs(t, err, ErrExamNotFound)
	})

	t.Run("foreign job looks unknown", func(t *testing.T) {
		exam := testutil.TestExam(t, db, user.ID)
		_, err := svc.GetStatus(stranger.ID, exam.ID)
		assert.ErrorIs(t, err, ErrExamNotFound)
	})

	t.Run("completed job exposes result", func(t *testing.T) {
		exam := testutil.TestExam(t, db, user.ID, testutil.WithResult(`[{"question":"q"}]`))

		status, err := svc.GetStatus(user.ID, exam.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, status.Status)
		assert.Equal(t, `[{"question":"q"}]`, status.ResultJSON)
		assert.NotEmpty(t, status.CompletedAt)
	})

	t.Run("failed job exposes error but no result", func(t *testing.T) {
		exam := testutil.TestExam(t, db, user.ID, testutil.WithError("提取失败"))
		// 失败前可能已有部分结果残留，确认不对外暴露
		require.NoError(t, db.Model(exam).Update("result_json", "stale").Error)

		status, err := svc.GetStatus(user.ID, exam.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, status.Status)
		assert.Equal(t, "提取失败", status.ErrorMessage)
		assert.Empty(t, status.ResultJSON)
	})
}

func TestParseService_History(t *testing.T) {
	svc, _, db := setupParseService(t)
	user := testutil.TestUser(t, db)

	for i := 0; i < 4; i++ {
		testutil.TestExam(t, db, user.ID)
	}

	items, total, err := svc.History(user.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, items, 3)
}

func TestParseService_Delete(t *testing.T) {
	svc, _, db := setupParseService(t)
	user := testutil.TestUser(t, db)
	stranger := testutil.TestUser(t, db)

	t.Run("removes exam and its questions", func(t *testing.T) {
		exam := testutil.TestExam(t, db, user.ID)
		testutil.TestQuestion(t, db, user.ID, exam.ID, "to be deleted")

		require.NoError(t, svc.Delete(user.ID, exam.ID))

		_, err := svc.GetStatus(user.ID, exam.ID)
		assert.ErrorIs(t, err, ErrExamNotFound)

		var count int64
		db.Model(&model.Question{}).Where("exam_id = ?", exam.ID).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("cannot delete other user's job", func(t *testing.T) {
		exam := testutil.TestExam(t, db, user.ID)
		err := svc.Delete(stranger.ID, exam.ID)
		assert.ErrorIs(t, err, ErrExamNotFound)

		_, err = svc.GetStatus(user.ID, exam.ID)
		assert.NoError(t, err)
	})

	t.Run("unknown job", func(t *testing.T) {
		err := svc.Delete(user.ID, 99999)
		assert.ErrorIs(t, err, ErrExamNotFound)
	})
}
