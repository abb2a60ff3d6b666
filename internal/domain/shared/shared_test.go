package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("matching", "FindCandidatePool", ErrQueryFailed, "candidate pool query failed", cause)

	assert.True(t, errors.Is(err, ErrQueryFailed))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsQueryFailure(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "matching.FindCandidatePool: candidate pool query failed: connection reset", err.Error())
}

func TestDomainError_WrappedSentinelKeepsIdentity(t *testing.T) {
	err := fmt.Errorf("find candidates: %w", ErrStudentNotFound)

	assert.ErrorIs(t, err, ErrStudentNotFound)
	assert.True(t, IsNotFound(err))
	assert.NotErrorIs(t, err, ErrPreferencesNotFound)
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsAlreadyExists(ErrMatchExists))
	assert.True(t, IsValidation(ErrSelfMatch))
	assert.True(t, IsForbidden(ErrNotMatchParticipant))
	assert.True(t, IsStateConflict(ErrInvalidMatchTransition))
	assert.True(t, IsExternalService(ErrAIAnalysisFailed))
	assert.True(t, IsExternalService(ErrAIRateLimited))
	assert.False(t, IsExternalService(ErrStudentNotFound))
	assert.True(t, errors.Is(ErrCandidateIncomplete, ErrDataIncomplete))
}

func TestPairKey_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, "a:b", PairKey("a", "b"))
	assert.Equal(t, PairKey("stu-9", "stu-1"), PairKey("stu-1", "stu-9"))
}

func TestNewStudentID(t *testing.T) {
	id, err := NewStudentID("stu-1")
	assert.NoError(t, err)
	assert.Equal(t, "stu-1", id.String())

	_, err = NewStudentID(" stu-1")
	assert.ErrorIs(t, err, ErrInvalidStudentID)
	_, err = NewStudentID("")
	assert.True(t, IsValidation(err))
}

func TestTagSet(t *testing.T) {
	a := NewTagSet([]string{"Go", " Databases", "go", "", "APIs"})
	b := NewTagSet([]string{"apis", "GO", "Rust"})

	assert.Equal(t, 3, a.Len())
	assert.True(t, a.Contains("DATABASES"))
	assert.Equal(t, 2, a.IntersectionCount(b))
	assert.Equal(t, 2, b.IntersectionCount(a))
	assert.Equal(t, []string{"apis", "go"}, a.Intersection(b))
	assert.Zero(t, NewTagSet(nil).IntersectionCount(a))
}
