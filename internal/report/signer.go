package report

import (
	"errors"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// URLValidity é a janela fixa de um link assinado.
const URLValidity = time.Hour

var ErrInvalidSignature = errors.New("link de relatório inválido ou expirado")

// URLSigner emite links temporários para objetos do ObjectStore. O token é um
// JWT HS256 cujo subject é a chave do objeto.
type URLSigner struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

func NewURLSigner(secret, baseURL string) *URLSigner {
	return &URLSigner{secret: []byte(secret), baseURL: baseURL, now: time.Now}
}

func (s *URLSigner) Sign(key string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(URLValidity)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	u := s.baseURL + "/api/reports/" + key + "?token=" + url.QueryEscape(signed)
	return u, expiresAt, nil
}

// Verify confere assinatura, validade e se o token é da chave pedida.
func (s *URLSigner) Verify(key, token string) error {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject != key {
		return ErrInvalidSignature
	}
	return nil
}
