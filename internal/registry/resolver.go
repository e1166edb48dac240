package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrPermissionDenied is returned when the device is known but the user is
	// not in its authorized set, or the authority explicitly rejected the pair.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnauthorizedDevice is returned when an unknown device cannot be
	// positively verified, including when the authority is unreachable.
	ErrUnauthorizedDevice = errors.New("unauthorized device")
)

// Verifier checks an unseen device/user pair with the central authority.
type Verifier interface {
	VerifyDevice(ctx context.Context, deviceID, userID string) (authorized bool, reason string, err error)
}

// Resolver makes the hybrid access decision: cached entries answer locally
// with no network traffic; unseen devices trigger a live verification whose
// positive answer is merged back into the cache. Any failure to confirm
// trust denies.
type Resolver struct {
	cache      *Cache
	authorizer *Authorizer
	verifier   Verifier
	logger     *zap.Logger
}

// NewResolver wires the cache, the policy authorizer, and the authority
// verifier into one access decision.
func NewResolver(cache *Cache, authorizer *Authorizer, verifier Verifier, logger *zap.Logger) *Resolver {
	return &Resolver{cache: cache, authorizer: authorizer, verifier: verifier, logger: logger}
}

// Authorize resolves deviceID/userID; nil means authorized. A known device
// with a user outside its set fails with ErrPermissionDenied. An unknown
// device that cannot be positively verified fails with ErrUnauthorizedDevice;
// a partition never defaults to allow.
func (r *Resolver) Authorize(ctx context.Context, deviceID, userID string) error {
	if users, ok := r.cache.Lookup(deviceID); ok {
		allowed, err := r.authorizer.Allowed(ctx, deviceID, userID, users)
		if err != nil {
			r.logger.Warn("access policy evaluation failed",
				zap.String("device_id", deviceID),
				zap.Error(err))
			return fmt.Errorf("%w: user %s for device %s", ErrPermissionDenied, userID, deviceID)
		}
		if !allowed {
			return fmt.Errorf("%w: user %s not authorized for device %s", ErrPermissionDenied, userID, deviceID)
		}
		return nil
	}

	r.logger.Info("unknown device, verifying with authority", zap.String("device_id", deviceID))
	authorized, reason, err := r.verifier.VerifyDevice(ctx, deviceID, userID)
	if err != nil {
		r.logger.Warn("authority unreachable for verification",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return fmt.Errorf("%w: %s (authority unreachable)", ErrUnauthorizedDevice, deviceID)
	}
	if !authorized {
		if reason == "" {
			reason = "unknown"
		}
		return fmt.Errorf("%w: authority rejected: %s", ErrPermissionDenied, reason)
	}

	r.cache.Insert(deviceID, userID)
	r.logger.Info("authority verified device, cached",
		zap.String("device_id", deviceID),
		zap.String("user_id", userID))
	return nil
}
