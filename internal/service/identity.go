package service

import (
	"context"
	"fmt"

	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
)

// IdentityAssigner embeds a permanent identifier into a product file. A
// file that already carries one is rejected, so an identifier once assigned
// never changes.
type IdentityAssigner struct {
	attrs  AttributeEditor
	issuer PIDIssuer
}

// NewIdentityAssigner creates a new identity assigner.
func NewIdentityAssigner(attrs AttributeEditor, issuer PIDIssuer) *IdentityAssigner {
	return &IdentityAssigner{attrs: attrs, issuer: issuer}
}

// Assign issues a permanent identifier for the file at path and writes it
// into the file. uuid is the product identity; when empty the identity
// embedded in the file is used.
func (a *IdentityAssigner) Assign(ctx context.Context, path, uuid string) (string, error) {
	attrs, err := a.attrs.ReadAttributes(ctx, path)
	if err != nil {
		return "", err
	}
	if attrs.PID != "" {
		return "", domain.ErrAlreadyFrozen.New("file already has pid %s", attrs.PID)
	}
	if uuid == "" {
		uuid = attrs.UUID
	}
	if uuid == "" {
		return "", fmt.Errorf("file %s has no uuid", path)
	}

	pid, err := a.issuer.IssuePID(ctx, uuid)
	if err != nil {
		return "", err
	}
	if err := a.attrs.WriteAttributes(ctx, path, pid); err != nil {
		return "", err
	}

	logger.CtxInfo(ctx, "Assigned pid %s to %s", pid, uuid)
	return pid, nil
}
