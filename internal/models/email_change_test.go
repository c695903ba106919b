package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

const emailChangeMaxAttempts = 5

type EmailChangeTestSuite struct {
	suite.Suite
	db     *storage.Connection
	config *conf.GlobalConfiguration

	user *User
}

func (ts *EmailChangeTestSuite) SetupTest() {
	require.NoError(ts.T(), TruncateAll(ts.db))
	ts.user = createTestUser(ts.T(), ts.db, "user-1", "old@f3nation.com")
}

func TestEmailChangeDB(t *testing.T) {
	conn, globalConfig := connectTestDB(t)

	ts := &EmailChangeTestSuite{
		db:     conn,
		config: globalConfig,
	}
	defer ts.db.Close()

	suite.Run(t, ts)
}

func (ts *EmailChangeTestSuite) initiate() (*EmailChangeRequest, *EmailChangeCodes) {
	request, codes, err := CreateEmailChangeRequest(ts.db, ts.user, "new@f3nation.com", 24*time.Hour)
	require.NoError(ts.T(), err)
	require.Len(ts.T(), codes.OldCode, 6)
	require.Len(ts.T(), codes.NewCode, 6)
	return request, codes
}

func (ts *EmailChangeTestSuite) verify(request *EmailChangeRequest, side EmailChangeSide, code string) *EmailChangeVerifyResult {
	result, err := VerifyEmailChangeSide(ts.db, request.ID, ts.user.ID, side, code, emailChangeMaxAttempts)
	require.NoError(ts.T(), err)
	return result
}

func (ts *EmailChangeTestSuite) TestHappyPathOldFirst() {
	request, codes := ts.initiate()

	result := ts.verify(request, EmailChangeSideOld, codes.OldCode)
	require.True(ts.T(), result.Success)
	require.True(ts.T(), result.OldEmailVerified)
	require.False(ts.T(), result.NewEmailVerified)
	require.False(ts.T(), result.Complete)

	result = ts.verify(request, EmailChangeSideNew, codes.NewCode)
	require.True(ts.T(), result.Success)
	require.True(ts.T(), result.Complete)

	user, err := FindUserByID(ts.db, ts.user.ID)
	require.NoError(ts.T(), err)
	require.Equal(ts.T(), "new@f3nation.com", user.Email)
	require.True(ts.T(), user.IsEmailVerified())
}

func (ts *EmailChangeTestSuite) TestHappyPathNewFirst() {
	request, codes := ts.initiate()

	result := ts.verify(request, EmailChangeSideNew, codes.NewCode)
	require.True(ts.T(), result.Success)
	require.False(ts.T(), result.Complete)

	result = ts.verify(request, EmailChangeSideOld, codes.OldCode)
	require.True(ts.T(), result.Complete)
}

func (ts *EmailChangeTestSuite) TestIdempotentReverify() {
	request, codes := ts.initiate()

	ts.verify(request, EmailChangeSideOld, codes.OldCode)

	// the same side again is a no-op success, wrong code or not
	result := ts.verify(request, EmailChangeSideOld, "000000")
	require.True(ts.T(), result.Success)
	require.True(ts.T(), result.OldEmailVerified)
	require.False(ts.T(), result.Complete)
}

func (ts *EmailChangeTestSuite) TestInvalidCodeAndLockout() {
	request, codes := ts.initiate()

	wrong := "000000"
	if wrong == codes.OldCode {
		wrong = "000001"
	}

	for i := 0; i < emailChangeMaxAttempts; i++ {
		result := ts.verify(request, EmailChangeSideOld, wrong)
		require.False(ts.T(), result.Success)
		require.Equal(ts.T(), EmailChangeErrorInvalidCode, result.ErrorCode)
	}

	result := ts.verify(request, EmailChangeSideOld, codes.OldCode)
	require.False(ts.T(), result.Success)
	require.Equal(ts.T(), EmailChangeErrorMaxAttempts, result.ErrorCode)

	// the lockout is per side; the other side still works
	result = ts.verify(request, EmailChangeSideNew, codes.NewCode)
	require.True(ts.T(), result.Success)
}

func (ts *EmailChangeTestSuite) TestExpired() {
	request, codes, err := CreateEmailChangeRequest(ts.db, ts.user, "new@f3nation.com", -time.Minute)
	require.NoError(ts.T(), err)

	result := ts.verify(request, EmailChangeSideOld, codes.OldCode)
	require.False(ts.T(), result.Success)
	require.Equal(ts.T(), EmailChangeErrorExpired, result.ErrorCode)
}

func (ts *EmailChangeTestSuite) TestUnknownRequest() {
	request, codes := ts.initiate()

	result, err := VerifyEmailChangeSide(ts.db, request.ID, "someone-else", EmailChangeSideOld, codes.OldCode, emailChangeMaxAttempts)
	require.NoError(ts.T(), err)
	require.False(ts.T(), result.Success)
	require.Equal(ts.T(), EmailChangeErrorNotFound, result.ErrorCode)
}

func (ts *EmailChangeTestSuite) TestEmailTakenAtCompletion() {
	request, codes := ts.initiate()

	// another account claims the address while the request is pending
	createTestUser(ts.T(), ts.db, "user-2", "new@f3nation.com")

	ts.verify(request, EmailChangeSideOld, codes.OldCode)

	result := ts.verify(request, EmailChangeSideNew, codes.NewCode)
	require.False(ts.T(), result.Success)
	require.Equal(ts.T(), EmailChangeErrorEmailInUse, result.ErrorCode)
	require.True(ts.T(), result.OldEmailVerified)
	require.True(ts.T(), result.NewEmailVerified)
	require.False(ts.T(), result.Complete)

	// the user's email is untouched
	user, err := FindUserByID(ts.db, ts.user.ID)
	require.NoError(ts.T(), err)
	require.Equal(ts.T(), "old@f3nation.com", user.Email)
}

func (ts *EmailChangeTestSuite) TestOnlyOneRequestInFlight() {
	first, _ := ts.initiate()
	second, _ := ts.initiate()

	pending, err := GetPendingEmailChange(ts.db, ts.user.ID)
	require.NoError(ts.T(), err)
	require.Equal(ts.T(), second.ID, pending.ID)
	require.NotEqual(ts.T(), first.ID, pending.ID)

	count, err := ts.db.Q().Count(&EmailChangeRequest{})
	require.NoError(ts.T(), err)
	require.Equal(ts.T(), 1, count)
}

func (ts *EmailChangeTestSuite) TestResendResetsOnlyUnverifiedSides() {
	request, codes := ts.initiate()

	ts.verify(request, EmailChangeSideOld, codes.OldCode)

	request, err := FindEmailChangeRequest(ts.db, request.ID, ts.user.ID)
	require.NoError(ts.T(), err)

	resent, err := ResendEmailChangeCodes(ts.db, request, true, true)
	require.NoError(ts.T(), err)
	require.Empty(ts.T(), resent.OldCode)
	require.NotEmpty(ts.T(), resent.NewCode)

	// the original new-side code is dead, the resent one works
	result := ts.verify(request, EmailChangeSideNew, codes.NewCode)
	if codes.NewCode != resent.NewCode {
		require.False(ts.T(), result.Success)
	}

	result = ts.verify(request, EmailChangeSideNew, resent.NewCode)
	require.True(ts.T(), result.Success)
	require.True(ts.T(), result.Complete)
}

func (ts *EmailChangeTestSuite) TestCancel() {
	request, _ := ts.initiate()

	require.NoError(ts.T(), CancelEmailChange(ts.db, request.ID, ts.user.ID))

	_, err := GetPendingEmailChange(ts.db, ts.user.ID)
	require.True(ts.T(), IsNotFoundError(err))

	// cancelling again reports not found
	err = CancelEmailChange(ts.db, request.ID, ts.user.ID)
	require.True(ts.T(), IsNotFoundError(err))
}

func (ts *EmailChangeTestSuite) TestRateLimitCounter() {
	ts.initiate()
	ts.initiate()

	count, err := CountRecentEmailChangeRequests(ts.db, ts.user.ID, time.Now().Add(-time.Hour))
	require.NoError(ts.T(), err)
	// superseded requests are deleted; only the live one remains countable
	require.GreaterOrEqual(ts.T(), count, 1)
}
