package usecase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/ethereum"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
)

type impl struct {
	jwtSecret  []byte
	signingMsg string
	tokenTTL   time.Duration
}

func New(jwtSecret string, signingMsg string) domain.AuthUsecase {
	return &impl{
		jwtSecret:  []byte(jwtSecret),
		signingMsg: signingMsg,
		tokenTTL:   24 * time.Hour,
	}
}

// SignToken issues a JWT after verifying the wallet signature over the
// signing message. The message embeds the claimed address so a captured
// signature cannot be replayed for another account.
func (im *impl) SignToken(ctx ctx.Ctx, address domain.Address, signature string) (string, error) {
	msg := fmt.Sprintf(im.signingMsg, address.ToLowerStr())
	valid, err := ethereum.ValidateMsgSignature([]byte(msg), signature, string(address))
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":     err,
			"address": address,
		}).Error("failed to ethereum.ValidateMsgSignature")
		return "", domain.ErrInvalidSignature
	}
	if !valid {
		return "", domain.ErrInvalidSignature
	}

	claims := domain.JwtCustomClaims{
		Address: address.ToLowerStr(),
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(im.tokenTTL).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	ss, err := token.SignedString(im.jwtSecret)
	if err != nil {
		ctx.WithField("err", err).Error("token.SignedString failed")
		return "", err
	}
	return ss, nil
}

func (im *impl) ParseToken(ctx ctx.Ctx, str string) (string, error) {
	token, err := jwt.ParseWithClaims(str, &domain.JwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return im.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*domain.JwtCustomClaims); ok && token.Valid {
		return claims.Address, nil
	}

	return "", domain.ErrInvalidSignature
}
