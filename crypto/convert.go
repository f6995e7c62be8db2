package crypto

import (
	gethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/corevm/corevm/core/types"
)

// gethcommonAddress converts a types.Address into go-ethereum's address
// type for calls into its crypto package.
func gethcommonAddress(a types.Address) gethcommon.Address {
	return gethcommon.BytesToAddress(a.Bytes())
}
