package service

import (
	"context"

	"gocloud.dev/secrets"

	apperrors "github.com/allisson/keyvault/internal/errors"

	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

type cloudKeeperOpener struct{}

// NewCloudKeeperOpener opens keepers through the gocloud.dev URL mux. Supported schemes:
// awskms://, azurekeyvault://, gcpkms://, hashivault:// and base64key://.
func NewCloudKeeperOpener() KeeperOpener {
	return cloudKeeperOpener{}
}

func (cloudKeeperOpener) OpenKeeper(ctx context.Context, keyURI string) (Keeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open kms keeper")
	}
	return keeper, nil
}
