package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type Config struct {
	SecretKey string
	Issuer    string
	Expire    time.Duration
}

// JWT issues and verifies the connection tokens clients present when
// upgrading a websocket. The token is the only thing binding a socket to a
// user id; the session store takes both on faith from its caller.
type JWT struct {
	config *Config
}

// ConnectionClaims is the signed payload of a connection token: which user
// the socket belongs to and whether it carries admin privileges (admin
// connections are excluded from the store's metrics).
type ConnectionClaims struct {
	UserID int32 `json:"user_id"`
	Admin  bool  `json:"admin"`
	jwt.RegisteredClaims
}

func New(conf *Config) (*JWT, error) {
	if conf == nil {
		return nil, errors.New("jwtx: config is required")
	}
	if conf.SecretKey == "" {
		return nil, errors.New("jwtx: secret key is required")
	}
	if conf.Expire == 0 {
		conf.Expire = 24 * time.Hour
	}

	return &JWT{
		config: conf,
	}, nil
}

func MustNew(conf *Config) *JWT {
	j, err := New(conf)
	if err != nil {
		panic(err)
	}
	return j
}

// Issue signs a connection token for userID.
func (j *JWT) Issue(userID int32, admin bool) (string, error) {
	now := time.Now()
	claims := ConnectionClaims{
		UserID: userID,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.Expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SecretKey))
}

// Verify checks the signature and registered claims and returns the
// connection claims the token carries.
func (j *JWT) Verify(tokenString string) (*ConnectionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ConnectionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(j.config.SecretKey), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}

	claims, ok := token.Claims.(*ConnectionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
