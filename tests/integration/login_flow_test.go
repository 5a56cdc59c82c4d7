package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mereside/opsgate/internal/models"
	"github.com/mereside/opsgate/internal/repositories"
)

func submitCredentials(t *testing.T, ts *TestServer, email, password string, headers map[string]string) (*http.Response, FlowResponse) {
	t.Helper()

	resp, err := ts.Request(http.MethodPost, "/auth/flow/credentials", map[string]string{
		"email":    email,
		"password": password,
	}, headers)
	require.NoError(t, err)

	var flow FlowResponse
	require.NoError(t, ParseJSONResponse(resp, &flow))
	return resp, flow
}

func submitCode(t *testing.T, ts *TestServer, token, code string, headers map[string]string) (*http.Response, FlowResponse) {
	t.Helper()

	withAuth := map[string]string{"Authorization": "Bearer " + token}
	for k, v := range headers {
		withAuth[k] = v
	}

	resp, err := ts.Request(http.MethodPost, "/auth/flow/otp", map[string]string{"code": code}, withAuth)
	require.NoError(t, err)

	var flow FlowResponse
	require.NoError(t, ParseJSONResponse(resp, &flow))
	return resp, flow
}

func TestLoginFlow_WrongPassword(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("wrong-password")
	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, _ := DeviceHeaders("device-wrong-password")
	resp, flow := submitCredentials(t, ts, email, "NotThePassword1!", headers)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "credentials", flow.Step)
	assert.Equal(t, "invalid email or password", flow.Message)
	assert.Empty(t, flow.ChallengeToken)
	assert.Empty(t, ts.EmailSender.Sent)
}

func TestLoginFlow_UntrustedDevice_CompletesChallenge(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("untrusted-full")
	require.NoError(t, SeedDirectoryContact(ctx, testDB.Pool, email, "", models.DeliveryMethodEmail))

	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, fingerprint := DeviceHeaders("device-untrusted-full")

	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "otp", flow.Step)
	assert.Equal(t, models.DeliveryMethodEmail, flow.DeliveryMethod)
	assert.NotEmpty(t, flow.ChallengeToken)
	assert.Equal(t, 60, flow.ResendIn)
	assert.Nil(t, flow.Session)

	// The provisional session is discarded before the code goes out
	assert.Equal(t, 1, ts.Identity.LogoutCount)

	code := ts.EmailSender.LastCode()
	require.Len(t, code, 6)

	resp, flow = submitCode(t, ts, flow.ChallengeToken, code, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated", flow.Step)
	require.NotNil(t, flow.Session)
	assert.Equal(t, "access-"+email, flow.Session.AccessToken)

	// Credentials were exchanged twice: once to verify, once after the code
	assert.Equal(t, 2, ts.Identity.SignInCount)

	// The device is now in the trust ledger
	deviceRepo := repositories.NewTrustedDeviceRepository(testDB.DB)
	device, err := deviceRepo.Get(ctx, email, fingerprint)
	require.NoError(t, err)
	assert.True(t, device.TrustedUntil.After(time.Now().Add(29*24*time.Hour)))

	// The code was consumed
	challengeRepo := repositories.NewOTPChallengeRepository(testDB.DB)
	_, err = challengeRepo.GetActive(ctx, email)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLoginFlow_TrustedDeviceSkipsChallenge(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("trusted-skip")
	headers, fingerprint := DeviceHeaders("device-trusted-skip")
	require.NoError(t, SeedTrustedDevice(ctx, testDB.DB, email, fingerprint, time.Now().Add(24*time.Hour)))

	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated", flow.Step)
	require.NotNil(t, flow.Session)
	assert.Empty(t, flow.ChallengeToken)

	// No code went out and the session was never discarded
	assert.Empty(t, ts.EmailSender.Sent)
	assert.Equal(t, 0, ts.Identity.LogoutCount)
}

func TestLoginFlow_LapsedTrustRequiresChallenge(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("trusted-lapsed")
	headers, fingerprint := DeviceHeaders("device-trusted-lapsed")
	require.NoError(t, SeedTrustedDevice(ctx, testDB.DB, email, fingerprint, time.Now().Add(-1*time.Minute)))

	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "otp", flow.Step)
	assert.NotEmpty(t, ts.EmailSender.Sent)
}

func TestLoginFlow_SMSPreference(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("sms-pref")
	require.NoError(t, SeedDirectoryContact(ctx, testDB.Pool, email, "+15551230001", models.DeliveryMethodSMS))

	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, _ := DeviceHeaders("device-sms-pref")
	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.DeliveryMethodSMS, flow.DeliveryMethod)
	assert.Equal(t, 1, ts.SMSSender.Count())
	assert.Empty(t, ts.EmailSender.Sent)
}

func TestLoginFlow_WrongCodeKeepsChallengeAlive(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("wrong-code")
	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, _ := DeviceHeaders("device-wrong-code")
	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "otp", flow.Step)
	token := flow.ChallengeToken

	code := ts.EmailSender.LastCode()
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	resp, flow = submitCode(t, ts, token, wrong, headers)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "otp", flow.Step)
	assert.Equal(t, "invalid code", flow.Message)

	// The right code still works afterwards
	resp, flow = submitCode(t, ts, token, code, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated", flow.Step)
}

func TestLoginFlow_MalformedCodeRejectedLocally(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("malformed-code")
	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, _ := DeviceHeaders("device-malformed-code")
	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = submitCode(t, ts, flow.ChallengeToken, "12ab56", headers)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginFlow_ChallengeTokenUnusableAfterSuccess(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("token-reuse")
	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, _ := DeviceHeaders("device-token-reuse")
	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := flow.ChallengeToken

	code := ts.EmailSender.LastCode()
	resp, _ = submitCode(t, ts, token, code, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = submitCode(t, ts, token, code, headers)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginFlow_ResendBeforeCooldown(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("resend-early")
	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, _ := DeviceHeaders("device-resend-early")
	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := ts.Request(http.MethodPost, "/auth/flow/resend", nil, map[string]string{
		"Authorization": "Bearer " + flow.ChallengeToken,
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Len(t, ts.EmailSender.Sent, 1)
}

func TestLoginFlow_BackAbandonsAttempt(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("back")
	ts := NewTestServer(testDB.DB, map[string]string{email: password})
	defer ts.Close()

	headers, _ := DeviceHeaders("device-back")
	resp, flow := submitCredentials(t, ts, email, password, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := flow.ChallengeToken
	code := ts.EmailSender.LastCode()

	resp, err := ts.Request(http.MethodPost, "/auth/flow/back", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.NoError(t, err)
	var backFlow FlowResponse
	require.NoError(t, ParseJSONResponse(resp, &backFlow))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "credentials", backFlow.Step)

	// The abandoned attempt cannot be resumed
	resp, _ = submitCode(t, ts, token, code, headers)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginFlow_MissingChallengeToken(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	ts := NewTestServer(testDB.DB, map[string]string{})
	defer ts.Close()

	resp, err := ts.Request(http.MethodPost, "/auth/flow/otp", map[string]string{"code": "123456"}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
