package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

type EmailChangeTestSuite struct {
	suite.Suite
	API    *API
	Config *conf.GlobalConfiguration
	Conn   *storage.Connection

	User  *models.User
	Token string
}

func TestEmailChange(t *testing.T) {
	api, config, conn := setupAPIForTest(t)
	ts := &EmailChangeTestSuite{API: api, Config: config, Conn: conn}
	suite.Run(t, ts)
}

func (ts *EmailChangeTestSuite) SetupTest() {
	require.NoError(ts.T(), models.TruncateAll(ts.Conn))
	ts.User = createAPITestUser(ts.T(), ts.Conn, "slider@example.com", true)
	ts.Token = sessionToken(ts.T(), ts.Config, ts.User)
}

func (ts *EmailChangeTestSuite) request(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.T(), json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, "http://localhost"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ts.Token)

	w := httptest.NewRecorder()
	ts.API.handler.ServeHTTP(w, req)
	return w
}

func (ts *EmailChangeTestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(ts.T(), json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// createRequest goes through the model so the test can see the plaintext
// codes that would otherwise only exist inside the outgoing mail.
func (ts *EmailChangeTestSuite) createRequest(newEmail string) (*models.EmailChangeRequest, *models.EmailChangeCodes) {
	request, codes, err := models.CreateEmailChangeRequest(ts.Conn, ts.User, newEmail, ts.Config.Verification.EmailChangeExp)
	require.NoError(ts.T(), err)
	return request, codes
}

func (ts *EmailChangeTestSuite) TestRequiresSession() {
	req := httptest.NewRequest(http.MethodGet, "http://localhost/profile/email", nil)
	w := httptest.NewRecorder()
	ts.API.handler.ServeHTTP(w, req)

	assert.Equal(ts.T(), http.StatusUnauthorized, w.Code)
}

func (ts *EmailChangeTestSuite) TestInitiate() {
	w := ts.request(http.MethodPost, "/profile/email/initiate", map[string]string{"newEmail": "slider@f3nation.com"})

	require.Equal(ts.T(), http.StatusOK, w.Code)
	body := ts.decode(w)
	assert.Equal(ts.T(), true, body["success"])
	assert.NotEmpty(ts.T(), body["requestId"])

	w = ts.request(http.MethodGet, "/profile/email", nil)
	require.Equal(ts.T(), http.StatusOK, w.Code)
	pending := ts.decode(w)["pendingChange"].(map[string]interface{})
	assert.Equal(ts.T(), body["requestId"], pending["requestId"])
	assert.Equal(ts.T(), "slider@f3nation.com", pending["newEmail"])
	assert.Equal(ts.T(), false, pending["oldEmailVerified"])
	assert.Equal(ts.T(), false, pending["newEmailVerified"])
}

func (ts *EmailChangeTestSuite) TestInitiatePreChecks() {
	cases := []struct {
		desc     string
		newEmail string
		status   int
		code     string
	}{
		{"malformed address", "not-an-email", http.StatusBadRequest, "INVALID_EMAIL"},
		{"unchanged address", "Slider@Example.com", http.StatusBadRequest, "SAME_EMAIL"},
		{"address on another account", "taken@example.com", http.StatusConflict, "EMAIL_IN_USE"},
	}

	createAPITestUser(ts.T(), ts.Conn, "taken@example.com", true)

	for _, c := range cases {
		ts.Run(c.desc, func() {
			w := ts.request(http.MethodPost, "/profile/email/initiate", map[string]string{"newEmail": c.newEmail})

			assert.Equal(ts.T(), c.status, w.Code)
			body := ts.decode(w)
			assert.Equal(ts.T(), false, body["success"])
			assert.Equal(ts.T(), c.code, body["error"])
		})
	}
}

func (ts *EmailChangeTestSuite) TestInitiateRateLimited() {
	// completed requests keep their rows, so they still count against the
	// hourly window
	now := time.Now()
	for i := 0; i < ts.Config.Verification.EmailChangeMaxPerHour; i++ {
		request := &models.EmailChangeRequest{
			ID:           uuid.Must(uuid.NewV4()),
			UserID:       ts.User.ID,
			CurrentEmail: ts.User.Email,
			NewEmail:     "previous@example.com",
			OldCodeHash:  "x",
			NewCodeHash:  "x",
			ExpiresAt:    now.Add(time.Hour),
			CompletedAt:  &now,
			CreatedAt:    now,
		}
		require.NoError(ts.T(), ts.Conn.Create(request))
	}

	w := ts.request(http.MethodPost, "/profile/email/initiate", map[string]string{"newEmail": "slider@f3nation.com"})

	assert.Equal(ts.T(), http.StatusTooManyRequests, w.Code)
	assert.Equal(ts.T(), "RATE_LIMITED", ts.decode(w)["error"])
}

func (ts *EmailChangeTestSuite) TestDualVerificationFlipsEmail() {
	request, codes := ts.createRequest("slider@f3nation.com")

	w := ts.request(http.MethodPost, "/profile/email/verify-old", map[string]string{
		"requestId": request.ID.String(),
		"code":      codes.OldCode,
	})
	require.Equal(ts.T(), http.StatusOK, w.Code)
	body := ts.decode(w)
	assert.Equal(ts.T(), true, body["success"])
	assert.Equal(ts.T(), true, body["oldEmailVerified"])
	assert.Equal(ts.T(), false, body["complete"])

	// one side alone must not move the account
	user, err := models.FindUserByID(ts.Conn, ts.User.ID)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "slider@example.com", user.Email)

	w = ts.request(http.MethodPost, "/profile/email/verify-new", map[string]string{
		"requestId": request.ID.String(),
		"code":      codes.NewCode,
	})
	require.Equal(ts.T(), http.StatusOK, w.Code)
	body = ts.decode(w)
	assert.Equal(ts.T(), true, body["complete"])

	user, err = models.FindUserByID(ts.Conn, ts.User.ID)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "slider@f3nation.com", user.Email)
}

func (ts *EmailChangeTestSuite) TestVerifyWrongCode() {
	request, _ := ts.createRequest("slider@f3nation.com")

	w := ts.request(http.MethodPost, "/profile/email/verify-old", map[string]string{
		"requestId": request.ID.String(),
		"code":      "000000",
	})

	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	body := ts.decode(w)
	assert.Equal(ts.T(), false, body["success"])
	assert.Equal(ts.T(), "INVALID_CODE", body["error"])
}

func (ts *EmailChangeTestSuite) TestVerifyUnknownRequest() {
	w := ts.request(http.MethodPost, "/profile/email/verify-old", map[string]string{
		"requestId": uuid.Must(uuid.NewV4()).String(),
		"code":      "123456",
	})

	assert.Equal(ts.T(), http.StatusNotFound, w.Code)
	assert.Equal(ts.T(), "NOT_FOUND", ts.decode(w)["error"])
}

func (ts *EmailChangeTestSuite) TestResend() {
	request, codes := ts.createRequest("slider@f3nation.com")

	w := ts.request(http.MethodPost, "/profile/email/resend", map[string]string{
		"requestId": request.ID.String(),
		"target":    "new",
	})
	require.Equal(ts.T(), http.StatusOK, w.Code)
	assert.Equal(ts.T(), true, ts.decode(w)["success"])

	// reissuing the new-side code invalidates the one it replaced
	w = ts.request(http.MethodPost, "/profile/email/verify-new", map[string]string{
		"requestId": request.ID.String(),
		"code":      codes.NewCode,
	})
	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)

	// the old side's code was not targeted and still works
	w = ts.request(http.MethodPost, "/profile/email/verify-old", map[string]string{
		"requestId": request.ID.String(),
		"code":      codes.OldCode,
	})
	assert.Equal(ts.T(), http.StatusOK, w.Code)
}

func (ts *EmailChangeTestSuite) TestResendBadTarget() {
	request, _ := ts.createRequest("slider@f3nation.com")

	w := ts.request(http.MethodPost, "/profile/email/resend", map[string]string{
		"requestId": request.ID.String(),
		"target":    "sideways",
	})

	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
}

func (ts *EmailChangeTestSuite) TestCancel() {
	request, _ := ts.createRequest("slider@f3nation.com")

	w := ts.request(http.MethodDelete, "/profile/email", map[string]string{
		"requestId": request.ID.String(),
	})
	require.Equal(ts.T(), http.StatusOK, w.Code)

	w = ts.request(http.MethodGet, "/profile/email", nil)
	require.Equal(ts.T(), http.StatusOK, w.Code)
	assert.Nil(ts.T(), ts.decode(w)["pendingChange"])

	// cancelling the same request again reports it gone, not a server error
	w = ts.request(http.MethodDelete, "/profile/email", map[string]string{
		"requestId": request.ID.String(),
	})
	assert.Equal(ts.T(), http.StatusNotFound, w.Code)
	assert.Equal(ts.T(), "NOT_FOUND", ts.decode(w)["error"])
}

func (ts *EmailChangeTestSuite) TestCancelUnknownRequest() {
	w := ts.request(http.MethodDelete, "/profile/email", map[string]string{
		"requestId": uuid.Must(uuid.NewV4()).String(),
	})

	assert.Equal(ts.T(), http.StatusNotFound, w.Code)
	assert.Equal(ts.T(), "NOT_FOUND", ts.decode(w)["error"])
}

func (ts *EmailChangeTestSuite) TestMalformedRequestID() {
	w := ts.request(http.MethodPost, "/profile/email/verify-old", map[string]string{
		"requestId": "not-a-uuid",
		"code":      "123456",
	})

	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	assert.Equal(ts.T(), "validation_failed", w.Header().Get("x-error-code"))
}

func (ts *EmailChangeTestSuite) TestPendingWhenNoneExists() {
	w := ts.request(http.MethodGet, "/profile/email", nil)

	require.Equal(ts.T(), http.StatusOK, w.Code)
	body := ts.decode(w)
	assert.Equal(ts.T(), true, body["success"])
	assert.Nil(ts.T(), body["pendingChange"])
}
