package signature

import "github.com/aretw0/authgate/pkg/domain"

func domainBundle(version int, algorithm, digest string) domain.SignatureBundle {
	return domain.SignatureBundle{Version: version, Algorithm: algorithm, Digest: digest}
}
