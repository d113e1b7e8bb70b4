package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

func profileRouter() *gin.Engine {
	router := newTestRouter()
	router.POST("/profiles", CreateProfile)
	router.POST("/register", RegisterUser)
	router.GET("/profiles", ListProfiles)
	return router
}

func TestCreateProfile(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doJSON(t, profileRouter(), http.MethodPost, "/profiles",
		paymasterapi.CreateProfileRequest{
			Email:     "dev@example.com",
			Region:    "eu",
			Roles:     []string{"developer"},
			ToolsUsed: []string{"scraping"},
			Attributes: map[string]string{"team": "data"},
		}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var profile models.UserProfile
	decodeBody(t, rec, &profile)
	if profile.Email != "dev@example.com" || profile.ID == "" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if len(profile.Roles) != 1 || profile.Roles[0] != "developer" {
		t.Fatalf("unexpected roles: %v", profile.Roles)
	}
}

// The onboarding alias behaves exactly like profile creation.
func TestRegisterUser_AliasesCreateProfile(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doJSON(t, profileRouter(), http.MethodPost, "/register",
		paymasterapi.CreateProfileRequest{Email: "dev@example.com", Region: "eu"}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateProfile_ValidationMessages(t *testing.T) {
	setupTest(t, LedgerVerifier{})

	cases := []struct {
		name string
		req  paymasterapi.CreateProfileRequest
		want string
	}{
		{"missing email", paymasterapi.CreateProfileRequest{}, "email is required"},
		{"bad email", paymasterapi.CreateProfileRequest{Email: "not-an-email", Region: "eu"}, "email must be a valid email address"},
		{"missing region", paymasterapi.CreateProfileRequest{Email: "dev@example.com"}, "region is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, profileRouter(), http.MethodPost, "/profiles", tc.req, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var envelope paymasterapi.ErrorResponse
			decodeBody(t, rec, &envelope)
			if envelope.Error.Message != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, envelope.Error.Message)
			}
		})
	}
}

func TestListProfiles(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	rows := sqlmock.NewRows([]string{
		"id", "email", "region", "roles", "tools_used", "attributes", "created_at",
	}).
		AddRow(uuid.New().String(), "b@example.com", "us", "{developer}", "{scraping}", []byte(`{}`), time.Now()).
		AddRow(uuid.New().String(), "a@example.com", "eu", "{}", "{}", []byte(`{}`), time.Now().Add(-time.Hour))

	mock.ExpectQuery("SELECT id, email, region").WillReturnRows(rows)

	rec := doJSON(t, profileRouter(), http.MethodGet, "/profiles", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var profiles []models.UserProfile
	decodeBody(t, rec, &profiles)
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Email != "b@example.com" {
		t.Fatalf("expected newest first, got %q", profiles[0].Email)
	}
}
