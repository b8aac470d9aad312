package handlers

import (
	"errors"
	"net/http"
	"time"

	"Storefront/i18n"
	"Storefront/jwt"
	"Storefront/logger"
	"Storefront/models"
	"Storefront/otp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const otpSessionCookie = "otp_session"

// loadFlow returns the sign-in flow bound to the otp_session cookie, starting
// a new one when the cookie is missing or the session expired.
func loadFlow(c *gin.Context, sessions otp.SessionStore) (string, *otp.Flow, error) {
	sessionID, err := c.Cookie(otpSessionCookie)
	if err == nil && sessionID != "" {
		flow, err := sessions.Load(c.Request.Context(), sessionID)
		if err == nil {
			return sessionID, flow, nil
		}
		if !errors.Is(err, otp.ErrSessionNotFound) {
			return "", nil, err
		}
		if _, err := uuid.Parse(sessionID); err == nil {
			return sessionID, otp.NewFlow(), nil
		}
	}

	sessionID = uuid.NewString()
	c.SetCookie(otpSessionCookie, sessionID, 0, "/", "", false, true)
	return sessionID, otp.NewFlow(), nil
}

func flowResponse(machine *otp.Machine, flow *otp.Flow, msg string) gin.H {
	return gin.H{
		"message":         msg,
		"state":           flow.State,
		"phone":           flow.Phone,
		"resendInSeconds": int(machine.RemainingCooldown(flow).Round(time.Second) / time.Second),
	}
}

// otpError answers a failed flow step with the localized message for err.
func otpError(c *gin.Context, machine *otp.Machine, flow *otp.Flow, err error) {
	key := otp.MessageKey(err)
	status := http.StatusBadRequest
	var msg string
	switch {
	case errors.Is(err, otp.ErrResendTooSoon):
		status = http.StatusTooManyRequests
		msg = i18n.Tr(c, key, int(machine.RemainingCooldown(flow).Round(time.Second)/time.Second))
	case errors.Is(err, otp.ErrWrongState):
		status = http.StatusConflict
		msg = i18n.Tr(c, key)
	case errors.Is(err, otp.ErrTooManyAttempts):
		status = http.StatusTooManyRequests
		msg = i18n.Tr(c, key)
	case key == "otp.failed":
		logger.FromGin(c).Warn("otp provider error", zap.Error(err))
		status = http.StatusBadGateway
		msg = i18n.Tr(c, key)
	default:
		msg = i18n.Tr(c, key)
	}

	body := flowResponse(machine, flow, msg)
	body["error"] = err.Error()
	c.JSON(status, body)
}

// 查詢登入流程狀態
func GetOTPStateHandler(c *gin.Context, machine *otp.Machine, sessions otp.SessionStore) {
	_, flow, err := loadFlow(c, sessions)
	if err != nil {
		serverError(c, "load otp session", err)
		return
	}
	c.JSON(http.StatusOK, flowResponse(machine, flow, ""))
}

// 送出手機號碼並請求驗證碼
func RequestOTPHandler(c *gin.Context, machine *otp.Machine, sessions otp.SessionStore) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sessionID, flow, err := loadFlow(c, sessions)
	if err != nil {
		serverError(c, "load otp session", err)
		return
	}

	err = machine.SubmitPhone(c.Request.Context(), flow, req.Phone)
	if saveErr := sessions.Save(c.Request.Context(), sessionID, flow); saveErr != nil {
		serverError(c, "save otp session", saveErr)
		return
	}
	if err != nil {
		otpError(c, machine, flow, err)
		return
	}

	c.JSON(http.StatusOK, flowResponse(machine, flow, i18n.Tr(c, "otp.code_sent", flow.Phone)))
}

// 重新發送驗證碼
func ResendOTPHandler(c *gin.Context, machine *otp.Machine, sessions otp.SessionStore) {
	sessionID, flow, err := loadFlow(c, sessions)
	if err != nil {
		serverError(c, "load otp session", err)
		return
	}

	err = machine.Resend(c.Request.Context(), flow)
	if saveErr := sessions.Save(c.Request.Context(), sessionID, flow); saveErr != nil {
		serverError(c, "save otp session", saveErr)
		return
	}
	if err != nil {
		otpError(c, machine, flow, err)
		return
	}

	c.JSON(http.StatusOK, flowResponse(machine, flow, i18n.Tr(c, "otp.code_sent", flow.Phone)))
}

// 返回輸入手機號碼步驟
func BackOTPHandler(c *gin.Context, machine *otp.Machine, sessions otp.SessionStore) {
	sessionID, flow, err := loadFlow(c, sessions)
	if err != nil {
		serverError(c, "load otp session", err)
		return
	}

	if err := machine.Back(flow); err != nil {
		otpError(c, machine, flow, err)
		return
	}
	if err := sessions.Save(c.Request.Context(), sessionID, flow); err != nil {
		serverError(c, "save otp session", err)
		return
	}

	c.JSON(http.StatusOK, flowResponse(machine, flow, ""))
}

// 送出驗證碼，成功後登入或建立帳號
func VerifyOTPHandler(c *gin.Context, db *gorm.DB, tokens *jwt.Manager, machine *otp.Machine, sessions otp.SessionStore) {
	sessionID, flow, err := loadFlow(c, sessions)
	if err != nil {
		serverError(c, "load otp session", err)
		return
	}

	var req struct {
		Code string `json:"code" binding:"required,otpcode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		// rejected before reaching the provider
		flow.Code = ""
		if saveErr := sessions.Save(c.Request.Context(), sessionID, flow); saveErr != nil {
			serverError(c, "save otp session", saveErr)
			return
		}
		otpError(c, machine, flow, otp.ErrInvalidCode)
		return
	}

	err = machine.SubmitCode(c.Request.Context(), flow, req.Code)
	if err != nil {
		if saveErr := sessions.Save(c.Request.Context(), sessionID, flow); saveErr != nil {
			serverError(c, "save otp session", saveErr)
			return
		}
		otpError(c, machine, flow, err)
		return
	}

	user, err := findOrCreatePhoneUser(db, flow.Phone, i18n.Locale(c))
	if err != nil {
		serverError(c, "find or create user", err)
		return
	}

	token, err := tokens.IssueLoginToken(c.Request.Context(), db, user)
	if err != nil {
		serverError(c, "issue login token", err)
		return
	}

	if err := sessions.Delete(c.Request.Context(), sessionID); err != nil {
		logger.FromGin(c).Warn("delete otp session", zap.Error(err))
	}
	c.SetCookie(otpSessionCookie, "", -1, "/", "", false, true)

	//成功登入 回傳Token和成功訊息
	c.Header("Authorization", "Bearer "+token)
	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "otp.verified"),
		"state":   flow.State,
		"userID":  user.ID,
	})
}

func findOrCreatePhoneUser(db *gorm.DB, phone, locale string) (*models.User, error) {
	var user models.User
	err := db.Where("phone = ?", phone).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Phone:  &phone,
		Locale: locale,
		Role:   models.RoleUser,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// 管理員帳號密碼登入
func LoginHandler(c *gin.Context, db *gorm.DB, tokens *jwt.Manager) {
	//檢查是否已經登入
	if _, ok := currentUserID(c); ok {
		c.JSON(http.StatusOK, gin.H{
			"message": i18n.Tr(c, "auth.already_signed_in"),
		})
		return
	}

	//從請求擷取帳號和密碼
	var loginReq struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		badRequest(c, err)
		return
	}

	//檢查是否有此帳號
	var user models.User
	err := db.First(&user, "username = ?", loginReq.Username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": i18n.Tr(c, "auth.invalid_credentials"),
			})
			return
		}
		serverError(c, "load user", err)
		return
	}

	//檢查密碼是否正確
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(loginReq.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"message": i18n.Tr(c, "auth.invalid_credentials"),
		})
		return
	}

	token, err := tokens.IssueLoginToken(c.Request.Context(), db, &user)
	if err != nil {
		serverError(c, "issue login token", err)
		return
	}

	c.Header("Authorization", "Bearer "+token)
	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "otp.verified"),
	})
}

func LogOutHandler(c *gin.Context, db *gorm.DB) {
	token, exists := c.Get("Token")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"message": i18n.Tr(c, "request.unauthorized"),
		})
		return
	}

	//刪除此LoginToken
	result := db.Where("token = ?", token).Delete(&models.LoginToken{})
	if result.Error != nil {
		serverError(c, "delete login token", result.Error)
		return
	}

	c.Header("Authorization", "")
	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "auth.logged_out"),
	})
}

// HashPassword is used when seeding admin accounts.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
