package auth

import (
	"time"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

// Strategy issues and validates bearer tokens carrying a principal.
type Strategy interface {
	IssueToken(p model.Principal) (string, error)
	ParseToken(token string) (model.Principal, error)
	Name() string
}

type Options struct {
	TTL time.Duration
}
