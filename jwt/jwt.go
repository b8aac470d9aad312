package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"Storefront/models"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

var ErrTokenRevoked = errors.New("token has been revoked")

// Claims carried by storefront access tokens.
type Claims struct {
	UserID uint   `json:"userID"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies RS256 tokens. Issued tokens are also recorded as
// LoginToken rows so that logging out revokes them before they expire.
type Manager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
	issuer     string
}

func NewManager(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, ttl time.Duration) *Manager {
	return &Manager{privateKey: privateKey, publicKey: publicKey, ttl: ttl, issuer: "storefront"}
}

// LoadManager reads a PEM key pair from disk.
func LoadManager(privateKeyPath, publicKeyPath string, ttl time.Duration) (*Manager, error) {
	privateBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return NewManager(privateKey, publicKey, ttl), nil
}

// GenerateToken signs a token for the user and returns it with its expiry.
func (m *Manager) GenerateToken(userID uint, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse checks the signature and expiry of tokenString.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// IssueLoginToken generates a token and stores it as a LoginToken.
func (m *Manager) IssueLoginToken(ctx context.Context, db *gorm.DB, user *models.User) (string, error) {
	token, expiresAt, err := m.GenerateToken(user.ID, user.Role)
	if err != nil {
		return "", err
	}
	err = db.WithContext(ctx).Create(&models.LoginToken{
		Token:          token,
		ExpirationTime: expiresAt,
		UserID:         user.ID,
		Role:           user.Role,
	}).Error
	if err != nil {
		return "", fmt.Errorf("store login token: %w", err)
	}
	return token, nil
}

// VerifyToken parses tokenString and checks that it has not been revoked.
func (m *Manager) VerifyToken(ctx context.Context, tokenString string, db *gorm.DB) (*Claims, error) {
	claims, err := m.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	//從資料庫檢查Token是否刪除
	var count int64
	err = db.WithContext(ctx).
		Model(&models.LoginToken{}).
		Where("token = ?", tokenString).
		Count(&count).
		Error
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// PurgeExpired hard-deletes login tokens whose expiration time has passed.
func PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Unscoped().
		Where("expiration_time < ?", now).
		Delete(&models.LoginToken{})
	return result.RowsAffected, result.Error
}
