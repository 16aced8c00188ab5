package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/config"
	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/queue"
	"github.com/lifeflow/blood-donation-service/internal/repository"
	queue_publisher "github.com/lifeflow/blood-donation-service/internal/service"
	"github.com/lifeflow/blood-donation-service/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	Phone          *string  `json:"phone"`
	Role           string   `json:"role"` // donor | patient | hospital
	BloodGroup     *string  `json:"blood_group"`
	Age            *uint8   `json:"age"`
	WeightKg       *float64 `json:"weight_kg"`
	Gender         *string  `json:"gender"`
	MedicalHistory *string  `json:"medical_history"`
}

type verifyOTPReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailReq struct {
	Email string `json:"email"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	HospitalID uint64 `json:"hospital_id,omitempty"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Register creates an unverified account and queues a verification code for
// delivery. The account cannot log in until the code is confirmed.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, email and a password of at least 8 characters are required"})
	}

	role := strings.ToLower(strings.TrimSpace(req.Role))
	switch role {
	case model.RoleDonor, model.RolePatient, model.RoleHospital:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be donor, patient or hospital"})
	}

	if role == model.RoleDonor {
		if req.BloodGroup == nil || !model.ValidBloodGroup(*req.BloodGroup) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "a valid blood group is required for donors"})
		}
		if req.Age == nil || *req.Age < 18 || *req.Age > 65 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "donor age must be between 18 and 65"})
		}
		if req.WeightKg == nil || *req.WeightKg < 45 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "donor weight must be at least 45 kg"})
		}
	}
	if req.BloodGroup != nil && !model.ValidBloodGroup(*req.BloodGroup) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid blood group"})
	}

	code, err := utils.NewOTP()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "code generation failed"})
	}
	expiresAt := time.Now().UTC().Add(time.Duration(h.Cfg.OTPTTLMin) * time.Minute)

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, repository.NewUserParams{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		Phone:          req.Phone,
		Role:           role,
		BloodGroup:     req.BloodGroup,
		Age:            req.Age,
		WeightKg:       req.WeightKg,
		Gender:         req.Gender,
		MedicalHistory: req.MedicalHistory,
		OTPCode:        code,
		OTPExpiresAt:   expiresAt,
	}, h.Cfg.BcryptCost)
	if err != nil {
		return writeRepoError(c, err, "create user failed")
	}

	go func() {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pubCancel()
		_ = queue_publisher.PublishEmailVerification(pubCtx, queue.EmailVerificationEvent{
			UserID:    uid,
			Email:     req.Email,
			Name:      req.Name,
			Code:      code,
			ExpiresAt: expiresAt.Format(time.RFC3339),
		})
	}()

	return c.JSON(http.StatusCreated, echo.Map{
		"user_id": uid,
		"message": "account created, verification code sent to email",
	})
}

// VerifyOTP confirms the emailed code and activates the account.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req verifyOTPReq
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and code required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	err := h.Users.VerifyOTP(ctx, req.Email, req.Code)
	switch err {
	case nil:
		return c.JSON(http.StatusOK, echo.Map{"message": "email verified, you can now log in"})
	case repository.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	case repository.ErrInvalidState:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "account already verified"})
	case repository.ErrConflict:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired code"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
}

// ResendOTP issues a fresh verification code for an unverified account.
func (h *AuthHandler) ResendOTP(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	code, err := utils.NewOTP()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "code generation failed"})
	}
	expiresAt := time.Now().UTC().Add(time.Duration(h.Cfg.OTPTTLMin) * time.Minute)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.ResetOTP(ctx, email, code, expiresAt); err != nil {
		switch err {
		case repository.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
		case repository.ErrInvalidState:
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "account already verified"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "resend failed"})
	}

	u, err := h.Users.GetByEmail(ctx, email)
	if err == nil {
		go func() {
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer pubCancel()
			_ = queue_publisher.PublishEmailVerification(pubCtx, queue.EmailVerificationEvent{
				UserID:    u.ID,
				Email:     u.Email,
				Name:      u.Name,
				Code:      code,
				ExpiresAt: expiresAt.Format(time.RFC3339),
			})
		}()
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "verification code sent"})
}

// Login verifies credentials on an activated account and returns a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.IsVerified {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "email not verified"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	return h.issuePair(c, ctx, u, http.StatusOK)
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	_ = h.Tokens.RevokeByHash(ctx, hash)

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}

	return h.issuePair(c, ctx, u, http.StatusOK)
}

// RefreshAccess returns a fresh access token without rotating the refresh
// token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, hospitalIDOf(u), h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes the supplied refresh token, or every session for the
// authenticated user when called without a body on the protected route.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	cl, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.Tokens.RevokeAllForUser(ctx, cl.UserID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's full profile.
func (h *AuthHandler) Me(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, cl.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	resp := echo.Map{
		"id":                 u.ID,
		"name":               u.Name,
		"email":              u.Email,
		"role":               u.Role,
		"phone":              u.Phone,
		"eligibility_status": u.EligibilityStatus,
		"is_verified":        u.IsVerified,
	}
	if u.Role == model.RoleDonor {
		resp["blood_group"] = u.BloodGroup
		resp["age"] = u.Age
		resp["weight_kg"] = u.WeightKg
		resp["last_donation_date"] = u.LastDonationDate
		resp["next_eligible_date"] = u.NextEligibleDate
		if u.LastDonationDate != nil {
			resp["days_until_eligible"] = model.DaysUntilEligible(*u.LastDonationDate, time.Now().UTC())
		}
	}
	if u.HospitalID != nil {
		resp["hospital_id"] = *u.HospitalID
		resp["is_hospital_verified"] = u.IsHospitalVerified
	}
	return c.JSON(http.StatusOK, resp)
}

// ChangePassword swaps the password after checking the current one, then
// revokes every refresh token so other sessions must log in again.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}

	var req changePasswordReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || len(req.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password and a new_password of at least 8 characters are required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, cl.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}

	newHash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
	}
	if err := h.Users.UpdatePassword(ctx, cl.UserID, newHash); err != nil {
		return writeRepoError(c, err, "password update failed")
	}
	_ = h.Tokens.RevokeAllForUser(ctx, cl.UserID)

	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

func (h *AuthHandler) issuePair(c echo.Context, ctx context.Context, u model.User, status int) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, hospitalIDOf(u), h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}

	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, HospitalID: hospitalIDOf(u)},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}

func hospitalIDOf(u model.User) uint64 {
	if u.HospitalID != nil {
		return *u.HospitalID
	}
	return 0
}
