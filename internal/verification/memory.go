package verification

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/crypto"
	"github.com/F3-Nation/f3-nation-auth/internal/ratelimit"
)

type memoryCode struct {
	codeHash  string
	expiresAt time.Time
	attempts  int
}

// MemoryProvider keeps codes in process memory. Development and tests only;
// codes do not survive a restart and are not shared between instances.
type MemoryProvider struct {
	config      *conf.GlobalConfiguration
	sendLimiter *ratelimit.KeyedLimiter

	mu    sync.Mutex
	codes map[string]*memoryCode
}

func NewMemoryProvider(globalConfig *conf.GlobalConfiguration) *MemoryProvider {
	return &MemoryProvider{
		config:      globalConfig,
		sendLimiter: ratelimit.NewKeyedLimiter(globalConfig.Verification.SendRate),
		codes:       make(map[string]*memoryCode),
	}
}

func (p *MemoryProvider) SendCode(ctx context.Context, email, callbackURL string) error {
	email = strings.ToLower(email)
	if !p.sendLimiter.Allow(email) {
		return ErrSendRateLimited
	}

	code, err := crypto.GenerateOtp()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[email] = &memoryCode{
		codeHash:  crypto.GenerateCodeHash(email, code),
		expiresAt: time.Now().Add(p.config.Verification.CodeExp),
	}
	return nil
}

func (p *MemoryProvider) VerifyCode(ctx context.Context, email, code string, consume bool) (bool, error) {
	email = strings.ToLower(email)

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.codes[email]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(p.codes, email)
		return false, nil
	}
	if entry.attempts >= p.config.Verification.MaxAttempts {
		return false, nil
	}
	if !crypto.SecureEquals(entry.codeHash, crypto.GenerateCodeHash(email, code)) {
		entry.attempts++
		return false, nil
	}
	if consume {
		delete(p.codes, email)
	}
	return true, nil
}
