package backendapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/biometric/face/register", r.URL.Path)
		assert.Equal(t, "Bearer t1", r.Header.Get("Authorization"))

		var profile FaceProfile
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&profile)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "face_id", profile.Type)
		assert.Equal(t, "dev-1", profile.DeviceID)
		assert.True(t, profile.VerificationData.HardwareTEE)

		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"bio-1"}}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/").RegisterFace(context.Background(), FaceProfile{
		Type:     "face_id",
		DeviceID: "dev-1",
		VerificationData: VerificationData{
			LivenessScore:  1,
			FaceMatchScore: 1,
			SecurityLevel:  "BIOMETRIC_STRONG",
			HardwareTEE:    true,
		},
	}, "t1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"id":"bio-1"}`, string(resp.Data))
	assert.Empty(t, resp.Error)
}

func TestToggleBiometric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/biometric/toggle", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"biometric":{"enabled":true}}}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).ToggleBiometric(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, resp.Success)

	var data ToggleData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.Biometric.Enabled)
}

func TestBackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error string", http.StatusBadRequest, `{"success":false,"error":"invalid token"}`, "invalid token"},
		{"error object", http.StatusUnauthorized, `{"error":{"message":"expired"}}`, "expired"},
		{"message only", http.StatusConflict, `{"message":"already enabled"}`, "already enabled"},
		{"no body", http.StatusInternalServerError, ``, "backend returned status 500"},
		{"success false with 200", http.StatusOK, `{"success":false,"error":"nope"}`, "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewClient(srv.URL).ToggleBiometric(context.Background(), "t1")
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.want, resp.Error)
		})
	}
}

func TestNotConfigured(t *testing.T) {
	_, err := NewClient("").ToggleBiometric(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
