package wyvernsdk

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/wyvern-sdk-go/chain"
	"github.com/shopspring/decimal"
)

// GetWyvernAsset returns the metadata identity of an asset for its schema.
// quantity is already in base units.
func GetWyvernAsset(schema WyvernSchemaName, asset Asset, quantity decimal.Decimal) (*WyvernAsset, error) {
	address := strings.ToLower(asset.TokenAddress)
	switch schema {
	case WyvernSchemaERC20:
		return &WyvernAsset{Address: address, Quantity: quantity.String()}, nil
	case WyvernSchemaERC721, WyvernSchemaERC721v3:
		if asset.TokenID == nil {
			return nil, &InvalidParamError{Message: fmt.Sprintf("%s asset %s requires a token ID", schema, address)}
		}
		return &WyvernAsset{ID: *asset.TokenID, Address: address}, nil
	case WyvernSchemaERC1155:
		if asset.TokenID == nil {
			return nil, &InvalidParamError{Message: fmt.Sprintf("%s asset %s requires a token ID", schema, address)}
		}
		return &WyvernAsset{ID: *asset.TokenID, Address: address, Quantity: quantity.String()}, nil
	}
	return nil, &InvalidParamError{Message: fmt.Sprintf("Unsupported schema %q", schema)}
}

// GetWyvernBundle builds the bundle metadata for a set of assets, sorted by
// contract address then token ID so equal bundles always encode the same way
func GetWyvernBundle(assets []Asset, schemas []WyvernSchemaName, quantities []decimal.Decimal) (*WyvernBundle, error) {
	if len(assets) != len(quantities) {
		return nil, &InvalidParamError{Message: "Bundle must have a quantity for every asset"}
	}
	if len(assets) != len(schemas) {
		return nil, &InvalidParamError{Message: "Bundle must have a schema for every asset"}
	}

	type entry struct {
		asset  WyvernAsset
		schema WyvernSchemaName
	}
	entries := make([]entry, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))

	for i, asset := range assets {
		wyAsset, err := GetWyvernAsset(schemas[i], asset, quantities[i])
		if err != nil {
			return nil, err
		}
		key := wyAsset.Address + "-" + bundleSortID(wyAsset)
		if _, dup := seen[key]; dup {
			return nil, &InvalidParamError{Message: "Bundle can't contain duplicate assets"}
		}
		seen[key] = struct{}{}
		entries = append(entries, entry{asset: *wyAsset, schema: schemas[i]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].asset.Address != entries[j].asset.Address {
			return entries[i].asset.Address < entries[j].asset.Address
		}
		return bundleSortID(&entries[i].asset) < bundleSortID(&entries[j].asset)
	})

	bundle := &WyvernBundle{
		Assets:  make([]WyvernAsset, 0, len(entries)),
		Schemas: make([]WyvernSchemaName, 0, len(entries)),
	}
	for _, e := range entries {
		bundle.Assets = append(bundle.Assets, e.asset)
		bundle.Schemas = append(bundle.Schemas, e.schema)
	}
	return bundle, nil
}

func bundleSortID(asset *WyvernAsset) string {
	if asset.ID == "" {
		return "0"
	}
	return asset.ID
}

// toAssetRef converts metadata identity into the encoder's typed form
func toAssetRef(schema WyvernSchemaName, asset WyvernAsset) (chain.AssetRef, error) {
	if !common.IsHexAddress(asset.Address) {
		return chain.AssetRef{}, &InvalidParamError{Message: fmt.Sprintf("invalid asset address %q", asset.Address)}
	}
	ref := chain.AssetRef{Address: common.HexToAddress(asset.Address)}

	if asset.ID != "" {
		id, ok := new(big.Int).SetString(asset.ID, 10)
		if !ok {
			return chain.AssetRef{}, &InvalidParamError{Message: fmt.Sprintf("invalid token ID %q", asset.ID)}
		}
		ref.ID = id
	}
	if asset.Quantity != "" {
		quantity, ok := new(big.Int).SetString(asset.Quantity, 10)
		if !ok {
			return chain.AssetRef{}, &InvalidParamError{Message: fmt.Sprintf("invalid quantity %q", asset.Quantity)}
		}
		ref.Quantity = quantity
	}
	if schema == WyvernSchemaERC1155 && ref.Quantity == nil {
		ref.Quantity = big.NewInt(1)
	}
	return ref, nil
}

func bundleAssetRefs(bundle *WyvernBundle) ([]WyvernSchemaName, []chain.AssetRef, error) {
	if len(bundle.Schemas) != len(bundle.Assets) {
		return nil, nil, &InvalidParamError{Message: "Bundle must have a schema for every asset"}
	}
	refs := make([]chain.AssetRef, 0, len(bundle.Assets))
	for i, asset := range bundle.Assets {
		ref, err := toAssetRef(bundle.Schemas[i], asset)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, ref)
	}
	return bundle.Schemas, refs, nil
}
