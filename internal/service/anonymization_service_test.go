package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/testutil/testdb"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func TestGetOrCreateTokenIsStable(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewAnonymizationRepository(db)
	svc := NewAnonymizationService(repo, "secret")
	ctx := context.Background()

	first, err := svc.GetOrCreateToken(ctx, 7, 1)
	require.NoError(t, err)
	assert.Len(t, first, TokenLength)

	again, err := svc.GetOrCreateToken(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := svc.GetOrCreateToken(ctx, 7, 2)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "tokens must differ across evaluations")

	classmate, err := svc.GetOrCreateToken(ctx, 8, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, classmate, "tokens must differ across students")

	count, err := repo.CountForEvaluation(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestGetOrCreateTokenConcurrentFirstCall(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewAnonymizationRepository(db)
	svc := NewAnonymizationService(repo, "secret")
	ctx := context.Background()

	const workers = 8
	tokens := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = svc.GetOrCreateToken(ctx, 42, 9)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
	count, err := repo.CountForEvaluation(ctx, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestTokensDoNotRepeatWithSameSecret(t *testing.T) {
	// 同一 (学生, 测评) 在不同库中派生的令牌不同，令牌不可由 ID 推算
	a := NewAnonymizationService(repository.NewAnonymizationRepository(testdb.New(t)), "secret")
	b := NewAnonymizationService(repository.NewAnonymizationRepository(testdb.New(t)), "secret")
	ctx := context.Background()

	ta, err := a.GetOrCreateToken(ctx, 1, 1)
	require.NoError(t, err)
	tb, err := b.GetOrCreateToken(ctx, 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, ta, tb)
}

// hideFromSnapshotReads 非锁定读取看不到 anonymization_tokens 中的行，
// 模拟事务快照早于另一事务提交的情况
func hideFromSnapshotReads(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Query().Before("gorm:query").Register("test:stale_snapshot", func(tx *gorm.DB) {
		if tx.Statement.Table != "anonymization_tokens" {
			return
		}
		if _, locking := tx.Statement.Clauses["FOR"]; locking {
			return
		}
		tx.Statement.AddClause(clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "1 = 0"}}})
	})
	require.NoError(t, err)
}

func TestGetOrCreateTokenRereadsCommittedWinner(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewAnonymizationRepository(db)
	svc := NewAnonymizationService(repo, "secret")
	ctx := context.Background()

	winner := model.AnonymizationToken{StudentID: 5, EvaluationID: 3, Token: "winner-token"}
	require.NoError(t, db.Create(&winner).Error)
	hideFromSnapshotReads(t, db)

	existing, err := repo.Find(ctx, 5, 3)
	require.NoError(t, err)
	require.Nil(t, existing, "plain read must not see the committed row")

	token, err := svc.GetOrCreateToken(ctx, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, "winner-token", token)

	stored, err := repo.FindLocked(ctx, 5, 3)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, winner.ID, stored.ID)
}

func TestInsertIfAbsentReportsConflict(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewAnonymizationRepository(db)
	ctx := context.Background()

	inserted, err := repo.InsertIfAbsent(ctx, &model.AnonymizationToken{StudentID: 1, EvaluationID: 1, Token: "a"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, &model.AnonymizationToken{StudentID: 1, EvaluationID: 1, Token: "b"})
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := repo.FindLocked(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a", found.Token)
}
