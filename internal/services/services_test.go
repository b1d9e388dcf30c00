package services

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fleetcare/fleet-backend/internal/config"
	"github.com/fleetcare/fleet-backend/internal/database"
	"github.com/fleetcare/fleet-backend/internal/dto"
	"github.com/fleetcare/fleet-backend/internal/models"
)

func TestSignAccessToken(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "ops@fleet.example", Role: models.RoleProvider}
	signed, err := SignAccessToken("secret", user, time.Minute)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, user.ID.String(), claims["sub"])
	assert.Equal(t, "ops@fleet.example", claims["email"])
	assert.Equal(t, models.RoleProvider, claims["role"])

	_, err = jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte("other"), nil })
	assert.Error(t, err)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:        "secret",
		JWTAccessExpiry:  time.Minute,
		JWTRefreshExpiry: time.Hour,
	}
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@fleet.example", prefix, uuid.NewString())
}

func TestAuthLifecycle(t *testing.T) {
	db := openTestDB(t)
	svc := NewAuthService(db, testConfig())
	email := uniqueEmail("Driver")

	_, err := svc.Register(&dto.RegisterRequest{Email: email, Password: "short"})
	assert.Error(t, err)
	_, err = svc.Register(&dto.RegisterRequest{Email: email, Password: "longenough", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidRole)

	reg, err := svc.Register(&dto.RegisterRequest{Email: email, Password: "longenough", Role: "Provider"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleProvider, reg.User.Role)
	assert.NotEmpty(t, reg.User.DisplayName)
	assert.NotEmpty(t, reg.AccessToken)

	_, err = svc.Register(&dto.RegisterRequest{Email: email, Password: "longenough"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(&dto.LoginRequest{Email: email, Password: "wrongpassword"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(&dto.LoginRequest{Email: email, Password: "longenough"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(&dto.RefreshRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens are single use")

	assert.ErrorIs(t, svc.DeactivateAccount(reg.User.ID, ""), ErrPasswordRequired)
	assert.ErrorIs(t, svc.DeactivateAccount(reg.User.ID, "nope"), ErrInvalidCredentials)
	require.NoError(t, svc.DeactivateAccount(reg.User.ID, "longenough"))

	_, err = svc.Login(&dto.LoginRequest{Email: email, Password: "longenough"})
	assert.ErrorIs(t, err, ErrAccountInactive)
	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: refreshed.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func createUser(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, db.Create(&models.User{
		ID: id, Email: uniqueEmail("user"), Password: "x", DisplayName: "User " + id.String()[:6], IsActive: true,
	}).Error)
	return id
}

func TestContacts(t *testing.T) {
	db := openTestDB(t)
	svc := NewContactService(db)
	owner, other := createUser(t, db), createUser(t, db)

	assert.ErrorIs(t, svc.AddContact(owner, owner), ErrSelfContact)
	assert.ErrorIs(t, svc.AddContact(owner, uuid.New()), ErrUserNotFound)

	require.NoError(t, svc.AddContact(owner, other))
	require.NoError(t, svc.AddContact(owner, other))

	contacts, total, err := svc.ListContacts(owner, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, contacts, 1)
	assert.Equal(t, other, contacts[0].ContactID)
	assert.Equal(t, other, contacts[0].Contact.ID)

	// Contacts are directed.
	_, total, err = svc.ListContacts(other, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, svc.RemoveContact(owner, other))
	assert.ErrorIs(t, svc.RemoveContact(owner, other), ErrContactNotFound)
}

func TestReports(t *testing.T) {
	db := openTestDB(t)
	svc := NewModerationService(db)
	reporter, offender, bystander := createUser(t, db), createUser(t, db), createUser(t, db)

	msg := models.Message{ID: uuid.New(), SenderID: offender, RecipientID: reporter, Content: "spam", SentAt: time.Now()}
	require.NoError(t, db.Create(&msg).Error)

	_, err := svc.CreateReport(reporter, &dto.CreateReportRequest{ContentType: "vehicle", ContentID: offender, Reason: "x"})
	assert.Error(t, err)
	_, err = svc.CreateReport(reporter, &dto.CreateReportRequest{ContentType: models.ReportTargetUser, ContentID: offender})
	assert.Error(t, err)
	_, err = svc.CreateReport(bystander, &dto.CreateReportRequest{ContentType: models.ReportTargetMessage, ContentID: msg.ID, Reason: "spam"})
	assert.ErrorIs(t, err, ErrReportTargetAbsent)

	report, err := svc.CreateReport(reporter, &dto.CreateReportRequest{ContentType: models.ReportTargetMessage, ContentID: msg.ID, Reason: " spam "})
	require.NoError(t, err)
	assert.Equal(t, "pending", report.Status)
	assert.Equal(t, "spam", report.Reason)

	assert.Error(t, svc.ActionReport(report.ID, &dto.ActionReportRequest{Status: "deleted"}))
	assert.ErrorIs(t, svc.ActionReport(uuid.New(), &dto.ActionReportRequest{Status: "dismissed"}), ErrReportNotFound)
	require.NoError(t, svc.ActionReport(report.ID, &dto.ActionReportRequest{Status: "actioned", AdminNote: "warned"}))

	reports, _, err := svc.ListReports("actioned", 100, 0)
	require.NoError(t, err)
	found := false
	for _, r := range reports {
		if r.ID == report.ID {
			found = true
			assert.Equal(t, "warned", r.AdminNote)
		}
	}
	assert.True(t, found)
}
