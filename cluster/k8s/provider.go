package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	coordinationv1 "k8s.io/api/coordination/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/xraph/warden/cluster"
)

var _ cluster.LeaseStore = (*Provider)(nil)

const defaultLeaseName = "warden-leader"

// Provider implements cluster.LeaseStore with a single Lease object.
type Provider struct {
	client    kubernetes.Interface
	namespace string
	leaseName string
	clock     clockwork.Clock
	logger    *slog.Logger
}

// New creates a Lease-backed provider in namespace.
func New(client kubernetes.Interface, namespace string, opts ...Option) *Provider {
	p := &Provider{
		client:    client,
		namespace: namespace,
		leaseName: defaultLeaseName,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AcquireLease takes the Lease when it is missing, released, expired or
// already ours. A conflicting concurrent write counts as a lost race.
func (p *Provider) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := metav1.NewMicroTime(p.clock.Now().UTC())
	ttlSec := int32(ttl / time.Second)

	leases := p.client.CoordinationV1().Leases(p.namespace)
	lease, err := leases.Get(ctx, p.leaseName, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		fresh := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: p.leaseName, Namespace: p.namespace},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &holder,
				LeaseDurationSeconds: &ttlSec,
				AcquireTime:          &now,
				RenewTime:            &now,
			},
		}
		if _, cErr := leases.Create(ctx, fresh, metav1.CreateOptions{}); cErr != nil {
			if errors.IsAlreadyExists(cErr) {
				return false, nil
			}
			return false, fmt.Errorf("warden/k8s: create lease: %w", cErr)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("warden/k8s: get lease: %w", err)
	}

	if p.heldByOther(lease, holder) {
		return false, nil
	}
	if h := lease.Spec.HolderIdentity; h == nil || *h != holder {
		lease.Spec.AcquireTime = &now
	}
	lease.Spec.HolderIdentity = &holder
	lease.Spec.LeaseDurationSeconds = &ttlSec
	lease.Spec.RenewTime = &now

	if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
		if errors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("warden/k8s: update lease (acquire): %w", err)
	}
	return true, nil
}

// RenewLease bumps RenewTime when holder owns an unexpired Lease.
func (p *Provider) RenewLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := metav1.NewMicroTime(p.clock.Now().UTC())
	ttlSec := int32(ttl / time.Second)

	leases := p.client.CoordinationV1().Leases(p.namespace)
	lease, err := leases.Get(ctx, p.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("warden/k8s: renew get lease: %w", err)
	}
	if h := lease.Spec.HolderIdentity; h == nil || *h != holder || p.expired(lease) {
		return false, nil
	}

	lease.Spec.LeaseDurationSeconds = &ttlSec
	lease.Spec.RenewTime = &now
	if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
		if errors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("warden/k8s: renew update lease: %w", err)
	}
	return true, nil
}

// ReleaseLease clears the holder when holder owns the Lease. The object
// itself is kept so its history stays visible to kubectl.
func (p *Provider) ReleaseLease(ctx context.Context, holder string) (bool, error) {
	leases := p.client.CoordinationV1().Leases(p.namespace)
	lease, err := leases.Get(ctx, p.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("warden/k8s: release get lease: %w", err)
	}
	if h := lease.Spec.HolderIdentity; h == nil || *h != holder {
		return false, nil
	}

	empty := ""
	lease.Spec.HolderIdentity = &empty
	lease.Spec.RenewTime = nil
	if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
		if errors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("warden/k8s: release update lease: %w", err)
	}
	p.logger.Debug("lease released", slog.String("holder", holder))
	return true, nil
}

// LeaseHolder returns the holder of an unexpired Lease, or "".
func (p *Provider) LeaseHolder(ctx context.Context) (string, error) {
	lease, err := p.client.CoordinationV1().Leases(p.namespace).Get(ctx, p.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("warden/k8s: get leader lease: %w", err)
	}
	if lease.Spec.HolderIdentity == nil || p.expired(lease) {
		return "", nil
	}
	return *lease.Spec.HolderIdentity, nil
}

func (p *Provider) heldByOther(lease *coordinationv1.Lease, holder string) bool {
	h := lease.Spec.HolderIdentity
	if h == nil || *h == "" || *h == holder {
		return false
	}
	return !p.expired(lease)
}

// expired reports whether RenewTime + LeaseDurationSeconds has passed.
func (p *Provider) expired(lease *coordinationv1.Lease) bool {
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return true
	}
	dur := time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second
	return !p.clock.Now().Before(lease.Spec.RenewTime.Add(dur))
}
