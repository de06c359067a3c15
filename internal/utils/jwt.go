package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// PlayerClaims 玩家令牌，把一条连接绑定到房间和玩家
type PlayerClaims struct {
	RoomCode    string `json:"room_code"`
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenManager 玩家令牌管理器
type TokenManager struct {
	secretKey string
	expiry    time.Duration
	issuer    string
	now       func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secretKey string, expiry time.Duration, issuer string) *TokenManager {
	if issuer == "" {
		issuer = "undercover-game"
	}
	return &TokenManager{
		secretKey: secretKey,
		expiry:    expiry,
		issuer:    issuer,
		now:       time.Now,
	}
}

// GenerateToken 为房间内的玩家签发令牌
func (m *TokenManager) GenerateToken(roomCode, playerID, displayName string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)

	claims := &PlayerClaims{
		RoomCode:    roomCode,
		PlayerID:    playerID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   playerID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(err, apperrors.ErrUnknown, "签发令牌失败")
	}
	return signed, expiresAt, nil
}

// ValidateToken 验证令牌
func (m *TokenManager) ValidateToken(tokenString string) (*PlayerClaims, error) {
	if tokenString == "" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "缺少令牌")
	}

	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(m.secretKey), nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrap(err, apperrors.ErrTokenExpired)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTokenInvalid)
	}

	claims, ok := token.Claims.(*PlayerClaims)
	if !ok || !token.Valid || claims.RoomCode == "" || claims.PlayerID == "" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid)
	}
	return claims, nil
}

// Expiry 令牌有效期
func (m *TokenManager) Expiry() time.Duration {
	return m.expiry
}
