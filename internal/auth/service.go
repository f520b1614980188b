package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymtrack/pkg"
)

const (
	DefaultTTL       = 24 * 7 * time.Hour
	sessionKeyPrefix = "gymtrack-service-session||"
	tokensSetKey     = "gymtrack-service-sessions"
)

var (
	ErrWrongUsername = errors.New("wrong username")
	ErrWrongPassword = errors.New("wrong password")
)

// Admin is the single account that can manage the gym data. The username
// and the bcrypt hash come from the server config.
type Admin struct {
	Username     string
	PasswordHash string
}

type Credentials struct {
	Username string
	Password string
}

// Service handles admin logins. Each session lives in redis twice: the
// token key holds the login time, and the tokens set indexes all sessions
// so ScanAndClean can sweep the expired ones.
type Service struct {
	admin       *Admin
	redisClient *redis.Client
	ttl         time.Duration
	// swapped out in tests for a fixed token
	RandStringFunc func(s int) (string, error)
}

func NewAuthService(
	admin *Admin,
	ttl time.Duration,
	redisClient *redis.Client,
) *Service {
	return &Service{
		admin:          admin,
		ttl:            ttl,
		redisClient:    redisClient,
		RandStringFunc: pkg.GenerateRandomString,
	}
}

// Login checks the credentials against the configured admin and, when they
// match, stores a fresh session token in redis and returns it.
func (s *Service) Login(ctx context.Context, credentials Credentials, createdAt time.Time) (string, error) {
	if credentials.Username != s.admin.Username {
		return "", ErrWrongUsername
	}
	if !pkg.CheckPasswordHash(credentials.Password, s.admin.PasswordHash) {
		return "", ErrWrongPassword
	}

	token, err := s.RandStringFunc(35)
	if err != nil {
		return "", err
	}

	if err := s.redisClient.Set(ctx, sessionKeyPrefix+token, createdAt.Unix(), 0).Err(); err != nil {
		return "", err
	}
	if err := s.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return "", err
	}

	return token, nil
}

// storedLoginUnix reads the login timestamp stored under the session token.
func (s *Service) storedLoginUnix(ctx context.Context, token string) (int64, error) {
	val, err := s.redisClient.Get(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// Logout invalidates the session token. The key is zeroed rather than
// deleted, ScanAndClean sweeps it later. Returns whether the token actually
// belonged to a live session.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	loginUnix, err := s.storedLoginUnix(ctx, token)
	if err != nil {
		return false, err
	}

	if err := s.redisClient.Set(ctx, sessionKeyPrefix+token, 0, 0).Err(); err != nil {
		return false, err
	}
	if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return false, err
	}

	return loginUnix > 0, nil
}

// ScanAndClean walks the tokens set and deletes every session older than
// the ttl. The server runs it periodically.
func (s *Service) ScanAndClean(ctx context.Context) {
	sessionTokens, err := s.redisClient.SMembers(ctx, tokensSetKey).Result()
	if err != nil {
		log.Errorf("auth session cleanup, get tokens: %s", err)
		return
	}
	if len(sessionTokens) == 0 {
		log.Debugln("auth session cleanup: no sessions")
		return
	}

	log.Debugf("auth session cleanup: checking %d sessions", len(sessionTokens))
	for _, token := range sessionTokens {
		loginUnix, err := s.storedLoginUnix(ctx, token)
		if err != nil {
			log.Errorf("auth session cleanup, token %s: %s", token, err)
			continue
		}
		if time.Since(time.Unix(loginUnix, 0)) <= s.ttl {
			continue
		}

		log.Debugf("auth session cleanup: removing expired token %s", token)
		if err := s.redisClient.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
			log.Errorf("auth session cleanup, delete token %s: %s", token, err)
			continue
		}
		if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
			log.Errorf("auth session cleanup, unindex token %s: %s", token, err)
		}
	}
}
