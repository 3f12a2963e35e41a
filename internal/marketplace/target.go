package marketplace

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nft/seller/internal/domain"
)

var (
	prefixedPattern = regexp.MustCompile(`^0x[0-9a-zA-Z]+$`)
	hexPattern      = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
)

// contractCandidates returns the path segments meant as contract addresses:
// all-hex 0x tokens, or 0x tokens of address length. Slugs such as "0xmons"
// are left alone.
func contractCandidates(path string) []string {
	var candidates []string
	for _, segment := range strings.Split(path, "/") {
		if !prefixedPattern.MatchString(segment) {
			continue
		}
		if hexPattern.MatchString(segment) || len(segment) == 2+2*common.AddressLength {
			candidates = append(candidates, segment)
		}
	}
	return candidates
}

// ValidateCollection checks that address is an absolute http(s) URL and that
// every contract address embedded in it is well formed.
func ValidateCollection(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("%w: collection address %q: %v", domain.ErrConfig, address, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: collection address %q must be an absolute http(s) URL", domain.ErrConfig, address)
	}
	for _, candidate := range contractCandidates(u.Path) {
		if !common.IsHexAddress(candidate) {
			return fmt.Errorf("%w: collection address %q contains invalid contract %s", domain.ErrConfig, address, candidate)
		}
	}
	return nil
}

// ContractAddress returns the checksummed contract embedded in the collection
// address, if there is one.
func ContractAddress(address string) (string, bool) {
	u, err := url.Parse(address)
	if err != nil {
		return "", false
	}
	for _, candidate := range contractCandidates(u.Path) {
		if common.IsHexAddress(candidate) {
			return common.HexToAddress(candidate).Hex(), true
		}
	}
	return "", false
}

// ListingURL is the collection address followed by the decimal item ID.
func ListingURL(collection string, id domain.ItemID) string {
	return collection + id.String()
}
