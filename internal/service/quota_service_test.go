package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/exam_go_server/internal/repository"
	"github.com/qs3c/exam_go_server/internal/testutil"
)

func TestQuotaService_CheckUseRefund(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	userRepo := repository.NewUserRepository(db)
	svc := NewQuotaService(userRepo, testConfig())

	user := testutil.TestUser(t, db, testutil.WithSubscription("free", 2))

	hasQuota, err := svc.CheckQuota(user.ID)
	require.NoError(t, err)
	assert.True(t, hasQuota)

	// 用完配额
	require.NoError(t, svc.UseQuota(user.ID))
	require.NoError(t, svc.UseQuota(user.ID))

	hasQuota, err = svc.CheckQuota(user.ID)
	require.NoError(t, err)
	assert.False(t, hasQuota)

	// 任务失败退还后恢复可用
	require.NoError(t, svc.RefundQuota(user.ID))

	hasQuota, err = svc.CheckQuota(user.ID)
	require.NoError(t, err)
	assert.True(t, hasQuota)
}

func TestQuotaService_ResetAllQuotas(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	userRepo := repository.NewUserRepository(db)
	svc := NewQuotaService(userRepo, testConfig())

	u1 := testutil.TestUser(t, db, testutil.WithQuotaUsed(5))
	u2 := testutil.TestUser(t, db, testutil.WithQuotaUsed(3))

	require.NoError(t, svc.ResetAllQuotas())

	for _, id := range []int64{u1.ID, u2.ID} {
		user, err := userRepo.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, 0, user.QuotaUsedToday)
		require.NotNil(t, user.QuotaResetAt)
	}
}

func TestQuotaService_DailyQuotaFor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := NewQuotaService(repository.NewUserRepository(db), testConfig())

	assert.Equal(t, 5, svc.DailyQuotaFor("free"))
	assert.Equal(t, 200, svc.DailyQuotaFor("pro"))
	// 未知级别回退到默认值
	assert.Equal(t, 5, svc.DailyQuotaFor("enterprise"))
}
